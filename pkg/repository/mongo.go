package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/craftshop/pkg/config"
	"github.com/example/craftshop/pkg/models"
	"github.com/example/craftshop/pkg/patterns"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	ordersCollection   = "orders"
	productsCollection = "products"
	countersCollection = "counters"
)

type MongoRepository struct {
	client   *mongo.Client
	database *mongo.Database
	config   *config.MongoDBConfig
	breaker  *patterns.CircuitBreaker
	logger   *zap.Logger
}

func NewMongoRepository(cfg *config.MongoDBConfig, breakerCfg config.BreakerConfig, logger *zap.Logger) (*MongoRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, err
	}

	logger = logger.Named("mongo")
	return &MongoRepository{
		client:   client,
		database: client.Database(cfg.Database),
		config:   cfg,
		breaker:  patterns.NewCircuitBreaker("mongodb", "order-service", breakerCfg, logger, benignMongoError),
		logger:   logger,
	}, nil
}

func (m *MongoRepository) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoRepository) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// EnsureIndexes creates the unique order number index the ledger relies on
// plus the indexes behind the owner and admin listings.
func (m *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := m.database.Collection(ordersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "orderNumber", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_order_number"),
		},
		{
			Keys:    bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("user_created"),
		},
		{
			Keys:    bson.D{{Key: "orderStatus", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("status_created"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}
	return nil
}

// NextSequence atomically increments and returns the named counter.
func (m *MongoRepository) NextSequence(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := m.do(ctx, "next sequence", func(ctx context.Context) error {
		return m.database.Collection(countersCollection).FindOneAndUpdate(ctx,
			bson.M{"_id": name},
			bson.M{"$inc": bson.M{"seq": 1}},
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&doc)
	})
	if err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

func (m *MongoRepository) InsertOrder(ctx context.Context, order *models.Order) error {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	return m.do(ctx, "insert order", func(ctx context.Context) error {
		_, err := m.database.Collection(ordersCollection).InsertOne(ctx, order)
		return err
	})
}

func (m *MongoRepository) FindOrder(ctx context.Context, id string) (*models.Order, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.ErrNotFound
	}

	var order models.Order
	err = m.do(ctx, "find order", func(ctx context.Context) error {
		return m.database.Collection(ordersCollection).FindOne(ctx, bson.M{"_id": oid}).Decode(&order)
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindOrdersByUser returns the user's orders, newest first.
func (m *MongoRepository) FindOrdersByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	return m.findOrders(ctx, "find orders by user", bson.M{"user": userID}, 0)
}

func (m *MongoRepository) ListOrders(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error) {
	query := bson.M{}
	if filter.OrderStatus != "" {
		query["orderStatus"] = filter.OrderStatus
	}
	if filter.PaymentStatus != "" {
		query["paymentStatus"] = filter.PaymentStatus
	}
	return m.findOrders(ctx, "list orders", query, filter.Limit)
}

func (m *MongoRepository) findOrders(ctx context.Context, op string, filter bson.M, limit int64) ([]*models.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	orders := []*models.Order{}
	err := m.do(ctx, op, func(ctx context.Context) error {
		cursor, err := m.database.Collection(ordersCollection).Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &orders)
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrderStatus moves the order from one status to the next only if it
// is still in from. A lost race surfaces as ErrInvalidTransition.
func (m *MongoRepository) UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) (*models.Order, error) {
	return m.compareAndSet(ctx, id, "orderStatus", string(from), string(to))
}

func (m *MongoRepository) UpdatePaymentStatus(ctx context.Context, id string, from, to models.PaymentStatus) (*models.Order, error) {
	return m.compareAndSet(ctx, id, "paymentStatus", string(from), string(to))
}

func (m *MongoRepository) compareAndSet(ctx context.Context, id, field, from, to string) (*models.Order, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.ErrNotFound
	}

	var order models.Order
	err = m.do(ctx, "update "+field, func(ctx context.Context) error {
		return m.database.Collection(ordersCollection).FindOneAndUpdate(ctx,
			bson.M{"_id": oid, field: from},
			bson.M{"$set": bson.M{field: to, "updatedAt": time.Now().UTC()}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&order)
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s is no longer %s", models.ErrInvalidTransition, field, from)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetProducts reads catalog entries by id. Unknown or malformed ids are
// simply absent from the result.
func (m *MongoRepository) GetProducts(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}

	result := make(map[string]*models.Product, len(oids))
	if len(oids) == 0 {
		return result, nil
	}

	var products []*models.Product
	err := m.do(ctx, "get products", func(ctx context.Context) error {
		opts := options.Find().SetProjection(bson.M{"name": 1, "price": 1, "stock": 1, "images": 1})
		cursor, err := m.database.Collection(productsCollection).Find(ctx, bson.M{"_id": bson.M{"$in": oids}}, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &products)
	})
	if err != nil {
		return nil, err
	}

	for _, p := range products {
		result[p.ID.Hex()] = p
	}
	return result, nil
}

// do bounds fn with the configured timeout, runs it through the breaker and
// maps driver errors onto the model errors.
func (m *MongoRepository) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	err := m.breaker.Execute(func() error { return fn(ctx) })
	if err == nil {
		return nil
	}

	translated := translateMongoError(op, err)
	if errors.Is(translated, models.ErrStorageUnavailable) {
		m.logger.Error("MongoDB operation failed", zap.String("op", op), zap.Error(err))
	}
	return translated
}

func translateMongoError(op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return models.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %s", models.ErrDuplicateOrderNumber, op)
	case patterns.IsOpen(err):
		return fmt.Errorf("%w: %s: circuit open", models.ErrStorageUnavailable, op)
	default:
		return fmt.Errorf("%w: %s: %v", models.ErrStorageUnavailable, op, err)
	}
}

func benignMongoError(err error) bool {
	return err == nil || errors.Is(err, mongo.ErrNoDocuments) || mongo.IsDuplicateKeyError(err)
}
