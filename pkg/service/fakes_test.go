package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/example/craftshop/pkg/models"
	"github.com/example/craftshop/pkg/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memStore is an in-memory OrderStore. Orders are deep-copied in and out so
// callers cannot mutate what is "persisted".
type memStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	seq    int64

	// dupFirst makes the first n inserts fail as order number collisions.
	dupFirst int
	// fail, when set, is returned from every call.
	fail error
	// beforeUpdate runs at the start of each status update.
	beforeUpdate func(id string)
}

func newMemStore() *memStore {
	return &memStore{orders: map[string]*models.Order{}}
}

func deepCopy(o *models.Order) *models.Order {
	data, err := json.Marshal(o)
	if err != nil {
		panic(err)
	}
	var out models.Order
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return &out
}

func (m *memStore) NextSequence(_ context.Context, _ string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return 0, m.fail
	}
	m.seq++
	return m.seq, nil
}

func (m *memStore) InsertOrder(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	if m.dupFirst > 0 {
		m.dupFirst--
		return models.ErrDuplicateOrderNumber
	}
	for _, existing := range m.orders {
		if existing.OrderNumber == order.OrderNumber {
			return models.ErrDuplicateOrderNumber
		}
	}
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	m.orders[order.ID.Hex()] = deepCopy(order)
	return nil
}

func (m *memStore) FindOrder(_ context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return deepCopy(o), nil
}

func (m *memStore) sorted(match func(*models.Order) bool) []*models.Order {
	out := []*models.Order{}
	for _, o := range m.orders {
		if match(o) {
			out = append(out, deepCopy(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.Hex() > out[j].ID.Hex()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *memStore) FindOrdersByUser(_ context.Context, userID string) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	return m.sorted(func(o *models.Order) bool { return o.User == userID }), nil
}

func (m *memStore) ListOrders(_ context.Context, f models.OrderFilter) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	return m.sorted(func(o *models.Order) bool {
		return (f.OrderStatus == "" || o.OrderStatus == f.OrderStatus) &&
			(f.PaymentStatus == "" || o.PaymentStatus == f.PaymentStatus)
	}), nil
}

func (m *memStore) UpdateOrderStatus(_ context.Context, id string, from, to models.OrderStatus) (*models.Order, error) {
	if m.beforeUpdate != nil {
		m.beforeUpdate(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if o.OrderStatus != from {
		return nil, models.ErrInvalidTransition
	}
	o.OrderStatus = to
	return deepCopy(o), nil
}

func (m *memStore) UpdatePaymentStatus(_ context.Context, id string, from, to models.PaymentStatus) (*models.Order, error) {
	if m.beforeUpdate != nil {
		m.beforeUpdate(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if o.PaymentStatus != from {
		return nil, models.ErrInvalidTransition
	}
	o.PaymentStatus = to
	return deepCopy(o), nil
}

type memCatalog struct {
	products map[string]*models.Product
	fail     error
}

func (c *memCatalog) GetProducts(_ context.Context, ids []string) (map[string]*models.Product, error) {
	if c.fail != nil {
		return nil, c.fail
	}
	out := map[string]*models.Product{}
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type memCache struct {
	mu          sync.Mutex
	orders      map[string]*models.Order
	hits        int
	invalidated []string
}

func newMemCache() *memCache {
	return &memCache{orders: map[string]*models.Order{}}
}

func (c *memCache) GetOrder(_ context.Context, id string) (*models.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	if !ok {
		return nil, repository.ErrCacheMiss
	}
	c.hits++
	return deepCopy(o), nil
}

func (c *memCache) CacheOrder(_ context.Context, o *models.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[o.ID.Hex()] = deepCopy(o)
	return nil
}

func (c *memCache) InvalidateOrder(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.orders, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

type memDirectory struct {
	users map[string]*repository.UserCache
	fail  error
}

func (d *memDirectory) LookupUser(_ context.Context, id string) (*repository.UserCache, error) {
	if d.fail != nil {
		return nil, d.fail
	}
	u, ok := d.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}
