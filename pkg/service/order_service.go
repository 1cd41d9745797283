package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/craftshop/pkg/metrics"
	"github.com/example/craftshop/pkg/models"
	"github.com/example/craftshop/pkg/pricing"
	"github.com/example/craftshop/pkg/repository"
	"go.uber.org/zap"
)

const (
	orderNumberPrefix   = "CG"
	orderSequenceName   = "orderNumber"
	maxNumberingRetries = 3
)

type (
	OrderStore interface {
		NextSequence(ctx context.Context, name string) (int64, error)
		InsertOrder(ctx context.Context, order *models.Order) error
		FindOrder(ctx context.Context, id string) (*models.Order, error)
		FindOrdersByUser(ctx context.Context, userID string) ([]*models.Order, error)
		ListOrders(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error)
		UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) (*models.Order, error)
		UpdatePaymentStatus(ctx context.Context, id string, from, to models.PaymentStatus) (*models.Order, error)
	}

	Catalog interface {
		GetProducts(ctx context.Context, ids []string) (map[string]*models.Product, error)
	}

	OrderCache interface {
		GetOrder(ctx context.Context, id string) (*models.Order, error)
		CacheOrder(ctx context.Context, order *models.Order) error
		InvalidateOrder(ctx context.Context, id string) error
	}

	// Directory resolves order owners for display.
	Directory interface {
		LookupUser(ctx context.Context, id string) (*repository.UserCache, error)
	}

	OrderService struct {
		store   OrderStore
		catalog Catalog
		cache   OrderCache
		users   Directory
		pricing *pricing.Engine
		logger  *zap.Logger
		now     func() time.Time
	}
)

func NewOrderService(
	store OrderStore,
	catalog Catalog,
	cache OrderCache,
	users Directory,
	engine *pricing.Engine,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		store:   store,
		catalog: catalog,
		cache:   cache,
		users:   users,
		pricing: engine,
		logger:  logger.Named("orders"),
		now:     time.Now,
	}
}

// Quote prices a cart without persisting anything.
func (s *OrderService) Quote(items []models.LineItem, offerCode string) (pricing.Quote, error) {
	return s.pricing.Quote(items, offerCode)
}

// CreateOrder validates the draft, prices it server-side and stores it under
// a fresh order number. Money fields on the stored order always come from
// the server quote; client figures are only compared against it.
func (s *OrderService) CreateOrder(ctx context.Context, owner models.Identity, draft *models.OrderDraft) (*models.Order, error) {
	const op = "service.CreateOrder"

	if owner.ID == "" {
		return nil, fmt.Errorf("%s: %w", op, models.ErrUnauthenticated)
	}

	if err := draft.Validate(); err != nil {
		metrics.OrdersRejected.WithLabelValues("validation").Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	quote, err := s.pricing.Quote(draft.Items, draft.OfferCode)
	if err != nil {
		metrics.OrdersRejected.WithLabelValues("offer_code").Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := quote.Verify(draft.Subtotal, draft.Discount, draft.Total); err != nil {
		metrics.OrdersRejected.WithLabelValues("price_mismatch").Inc()
		s.logger.Warn("Client totals disagree with quote",
			zap.String("user_id", owner.ID),
			zap.Float64("quote_total", quote.Total),
			zap.Error(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	order := &models.Order{
		User:            owner.ID,
		Items:           cloneItems(draft.Items),
		ShippingAddress: draft.ShippingAddress,
		PaymentMethod:   draft.PaymentMethod,
		PaymentStatus:   models.PaymentPending,
		OfferCode:       quote.OfferCode,
		Discount:        quote.Discount,
		Subtotal:        quote.Subtotal,
		Total:           quote.Total,
		OrderStatus:     models.OrderPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.insertWithNumber(ctx, order); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.cache.CacheOrder(ctx, order); err != nil {
		s.logger.Warn("Failed to cache order", zap.String("order_id", order.ID.Hex()), zap.Error(err))
	}

	metrics.OrdersCreated.WithLabelValues(string(order.PaymentMethod)).Inc()
	metrics.OrderValue.Observe(order.Total)

	s.logger.Info("Order created",
		zap.String("order_id", order.ID.Hex()),
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", order.User),
		zap.Int("item_count", len(order.Items)),
		zap.Float64("total", order.Total))

	return order, nil
}

// insertWithNumber assigns CG<unix-millis>-<seq> from the atomic counter and
// inserts. The unique index is the last word; a collision gets a new number.
func (s *OrderService) insertWithNumber(ctx context.Context, order *models.Order) error {
	var err error
	for attempt := 1; attempt <= maxNumberingRetries; attempt++ {
		var seq int64
		seq, err = s.store.NextSequence(ctx, orderSequenceName)
		if err != nil {
			return err
		}
		order.OrderNumber = fmt.Sprintf("%s%d-%d", orderNumberPrefix, s.now().UnixMilli(), seq)

		err = s.store.InsertOrder(ctx, order)
		if !errors.Is(err, models.ErrDuplicateOrderNumber) {
			return err
		}
		s.logger.Warn("Order number collision, retrying",
			zap.String("order_number", order.OrderNumber),
			zap.Int("attempt", attempt))
	}
	return err
}

// GetOrdersByOwner returns the caller's orders, newest first, with product
// display fields filled in.
func (s *OrderService) GetOrdersByOwner(ctx context.Context, owner models.Identity) ([]*models.Order, error) {
	orders, err := s.store.FindOrdersByUser(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("service.GetOrdersByOwner: %w", err)
	}
	s.populate(ctx, orders...)
	return orders, nil
}

// GetOrder loads one order and applies the access guard. The owner's name
// and email are attached when the user lookup succeeds.
func (s *OrderService) GetOrder(ctx context.Context, requester models.Identity, id string) (*models.Order, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service.GetOrder: %w", err)
	}
	if err := Authorize(requester, order); err != nil {
		s.logger.Warn("Order access denied",
			zap.String("order_id", id),
			zap.String("user_id", requester.ID))
		return nil, fmt.Errorf("service.GetOrder: %w", err)
	}
	s.populate(ctx, order)
	s.attachOwner(ctx, order)
	return order, nil
}

// ListOrders is the admin view over all orders.
func (s *OrderService) ListOrders(ctx context.Context, requester models.Identity, filter models.OrderFilter) ([]*models.Order, error) {
	if !requester.IsAdmin {
		return nil, fmt.Errorf("service.ListOrders: %w", models.ErrAccessDenied)
	}
	if filter.OrderStatus != "" && !filter.OrderStatus.Valid() {
		return nil, fmt.Errorf("service.ListOrders: %w: unknown order status %q", models.ErrValidation, filter.OrderStatus)
	}
	if filter.PaymentStatus != "" && !filter.PaymentStatus.Valid() {
		return nil, fmt.Errorf("service.ListOrders: %w: unknown payment status %q", models.ErrValidation, filter.PaymentStatus)
	}

	orders, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service.ListOrders: %w", err)
	}
	s.populate(ctx, orders...)
	return orders, nil
}

func (s *OrderService) load(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.cache.GetOrder(ctx, id)
	if err == nil {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return order, nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()
	if !errors.Is(err, repository.ErrCacheMiss) {
		s.logger.Warn("Order cache read failed", zap.String("order_id", id), zap.Error(err))
	}

	order, err = s.store.FindOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.CacheOrder(ctx, order); err != nil {
		s.logger.Warn("Failed to cache order", zap.String("order_id", id), zap.Error(err))
	}
	return order, nil
}

// populate attaches catalog name and images to each line item. Products that
// no longer exist are left unpopulated; the snapshot fields still stand.
func (s *OrderService) populate(ctx context.Context, orders ...*models.Order) {
	seen := map[string]struct{}{}
	var ids []string
	for _, o := range orders {
		for _, id := range o.ProductIDs() {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return
	}

	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		s.logger.Warn("Failed to populate products", zap.Int("product_count", len(ids)), zap.Error(err))
		return
	}

	for _, o := range orders {
		for i := range o.Items {
			if p, ok := products[o.Items[i].Product]; ok {
				o.Items[i].ProductInfo = p.Ref()
			}
		}
	}
}

func (s *OrderService) attachOwner(ctx context.Context, order *models.Order) {
	if s.users == nil {
		return
	}
	user, err := s.users.LookupUser(ctx, order.User)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			s.logger.Warn("Failed to look up order owner", zap.String("user_id", order.User), zap.Error(err))
		}
		return
	}
	order.UserInfo = &models.OwnerRef{ID: user.ID, Name: user.Name, Email: user.Email}
}

func cloneItems(items []models.LineItem) []models.LineItem {
	out := make([]models.LineItem, len(items))
	copy(out, items)
	for i := range out {
		out[i].ProductInfo = nil
	}
	return out
}
