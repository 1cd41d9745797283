package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/example/craftshop/pkg/models"
	"github.com/example/craftshop/pkg/pricing"
	"github.com/example/craftshop/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var (
	owner    = models.Identity{ID: "user-owner"}
	stranger = models.Identity{ID: "user-stranger"}
	admin    = models.Identity{ID: "user-admin", IsAdmin: true}

	productID = primitive.NewObjectID()
)

type fixture struct {
	svc     *OrderService
	store   *memStore
	cache   *memCache
	catalog *memCatalog
	users   *memDirectory
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	registry := pricing.NewRegistry(map[string]pricing.Rule{
		"AKSHARA10": {Percent: 100},
		"AKSHARA9":  {Percent: 10},
	})
	f := &fixture{
		store: newMemStore(),
		cache: newMemCache(),
		catalog: &memCatalog{products: map[string]*models.Product{
			productID.Hex(): {ID: productID, Name: "Hand-painted Mug", Price: 499, Images: []string{"/img/mug.jpg"}},
		}},
		users: &memDirectory{users: map[string]*repository.UserCache{
			owner.ID: {ID: owner.ID, Name: "Meera Rao", Email: "meera@example.com"},
		}},
		clock: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewOrderService(f.store, f.catalog, f.cache, f.users, pricing.NewEngine(registry), zap.NewNop())
	f.svc.now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	return f
}

func address() models.ShippingAddress {
	return models.ShippingAddress{
		Street:  gofakeit.Street(),
		City:    gofakeit.City(),
		State:   gofakeit.State(),
		Country: gofakeit.Country(),
		ZipCode: gofakeit.Zip(),
		Phone:   gofakeit.Phone(),
	}
}

func draft(items ...models.LineItem) *models.OrderDraft {
	return &models.OrderDraft{
		Items:           items,
		ShippingAddress: address(),
		PaymentMethod:   models.PaymentCreditCard,
	}
}

func mug(qty int) models.LineItem {
	return models.LineItem{Product: productID.Hex(), Name: "Hand-painted Mug", Price: 499, Quantity: qty, Color: "blue"}
}

func f64(v float64) *float64 { return &v }

func TestCreateOrder_ScenarioA_NoOfferCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := draft(mug(2))
	d.Subtotal, d.Discount, d.Total = f64(998), f64(0), f64(998)

	order, err := f.svc.CreateOrder(ctx, owner, d)
	require.NoError(t, err)

	assert.Equal(t, 998.0, order.Subtotal)
	assert.Equal(t, 0.0, order.Discount)
	assert.Equal(t, 998.0, order.Total)
	assert.Equal(t, owner.ID, order.User)
	assert.Equal(t, models.PaymentPending, order.PaymentStatus)
	assert.Equal(t, models.OrderPending, order.OrderStatus)
	assert.True(t, strings.HasPrefix(order.OrderNumber, "CG"))
	assert.False(t, order.ID.IsZero())

	fetched, err := f.svc.GetOrder(ctx, owner, order.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, fetched.OrderNumber)
	assert.Equal(t, 998.0, fetched.Total)
}

func TestCreateOrder_ScenarioB_TenPercentCode(t *testing.T) {
	f := newFixture(t)

	d := draft(
		models.LineItem{Product: productID.Hex(), Name: "Mug", Price: 250, Quantity: 2},
		models.LineItem{Product: "65a000000000000000000002", Name: "Tote", Price: 500, Quantity: 1},
	)
	d.OfferCode = "akshara9"

	order, err := f.svc.CreateOrder(context.Background(), owner, d)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, order.Subtotal)
	assert.Equal(t, 100.0, order.Discount)
	assert.Equal(t, 900.0, order.Total)
	assert.Equal(t, "AKSHARA9", order.OfferCode)
}

func TestCreateOrder_FullDiscount(t *testing.T) {
	f := newFixture(t)

	d := draft(mug(3))
	d.OfferCode = "AKSHARA10"

	order, err := f.svc.CreateOrder(context.Background(), owner, d)
	require.NoError(t, err)
	assert.Equal(t, 1497.0, order.Subtotal)
	assert.Equal(t, 1497.0, order.Discount)
	assert.Zero(t, order.Total)
}

func TestCreateOrder_ScenarioC_EmptyItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before, err := f.svc.GetOrdersByOwner(ctx, owner)
	require.NoError(t, err)

	_, err = f.svc.CreateOrder(ctx, owner, draft())
	require.ErrorIs(t, err, models.ErrValidation)

	after, err := f.svc.GetOrdersByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
	assert.Empty(t, f.store.orders)
}

func TestCreateOrder_Rejections(t *testing.T) {
	testCases := []struct {
		desc   string
		draft  func() *models.OrderDraft
		caller models.Identity
		err    error
	}{
		{
			desc:   "ZeroQuantity",
			draft:  func() *models.OrderDraft { return draft(mug(0)) },
			caller: owner,
			err:    models.ErrValidation,
		},
		{
			desc: "BadPaymentMethod",
			draft: func() *models.OrderDraft {
				d := draft(mug(1))
				d.PaymentMethod = "cheque"
				return d
			},
			caller: owner,
			err:    models.ErrValidation,
		},
		{
			desc: "MissingShipping",
			draft: func() *models.OrderDraft {
				d := draft(mug(1))
				d.ShippingAddress = models.ShippingAddress{}
				return d
			},
			caller: owner,
			err:    models.ErrValidation,
		},
		{
			desc: "UnknownOfferCode",
			draft: func() *models.OrderDraft {
				d := draft(mug(1))
				d.OfferCode = "HALFOFF"
				return d
			},
			caller: owner,
			err:    models.ErrInvalidOfferCode,
		},
		{
			desc: "ClientTotalsTampered",
			draft: func() *models.OrderDraft {
				d := draft(mug(2))
				d.Subtotal, d.Discount, d.Total = f64(998), f64(998), f64(0)
				return d
			},
			caller: owner,
			err:    models.ErrValidation,
		},
		{
			desc:   "Anonymous",
			draft:  func() *models.OrderDraft { return draft(mug(1)) },
			caller: models.Identity{},
			err:    models.ErrUnauthenticated,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateOrder(context.Background(), tc.caller, tc.draft())
			require.ErrorIs(t, err, tc.err)
			assert.Empty(t, f.store.orders)
		})
	}
}

func TestCreateOrder_StorageUnavailable(t *testing.T) {
	f := newFixture(t)
	f.store.fail = fmt.Errorf("%w: insert order: timeout", models.ErrStorageUnavailable)

	_, err := f.svc.CreateOrder(context.Background(), owner, draft(mug(1)))
	require.ErrorIs(t, err, models.ErrStorageUnavailable)
}

func TestCreateOrder_OrderNumbersUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 50
	seen := map[string]bool{}
	for range n {
		order, err := f.svc.CreateOrder(ctx, owner, draft(mug(1)))
		require.NoError(t, err)
		require.False(t, seen[order.OrderNumber], "duplicate %s", order.OrderNumber)
		seen[order.OrderNumber] = true
	}
	assert.Len(t, seen, n)
}

func TestCreateOrder_SameInstantStillUnique(t *testing.T) {
	f := newFixture(t)
	frozen := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return frozen }

	a, err := f.svc.CreateOrder(context.Background(), owner, draft(mug(1)))
	require.NoError(t, err)
	b, err := f.svc.CreateOrder(context.Background(), owner, draft(mug(1)))
	require.NoError(t, err)

	assert.NotEqual(t, a.OrderNumber, b.OrderNumber)
	assert.Equal(t, fmt.Sprintf("CG%d-1", frozen.UnixMilli()), a.OrderNumber)
	assert.Equal(t, fmt.Sprintf("CG%d-2", frozen.UnixMilli()), b.OrderNumber)
}

func TestCreateOrder_RetriesOnDuplicateNumber(t *testing.T) {
	f := newFixture(t)
	f.store.dupFirst = 2

	order, err := f.svc.CreateOrder(context.Background(), owner, draft(mug(1)))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(order.OrderNumber, "-3"), order.OrderNumber)
	assert.Len(t, f.store.orders, 1)
}

func TestCreateOrder_GivesUpAfterRetries(t *testing.T) {
	f := newFixture(t)
	f.store.dupFirst = maxNumberingRetries

	_, err := f.svc.CreateOrder(context.Background(), owner, draft(mug(1)))
	require.ErrorIs(t, err, models.ErrDuplicateOrderNumber)
	assert.Empty(t, f.store.orders)
}

func TestGetOrder_AccessGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, owner, draft(mug(1)))
	require.NoError(t, err)
	id := order.ID.Hex()

	_, err = f.svc.GetOrder(ctx, stranger, id)
	require.ErrorIs(t, err, models.ErrAccessDenied)

	got, err := f.svc.GetOrder(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID.Hex())

	got, err = f.svc.GetOrder(ctx, admin, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID.Hex())

	_, err = f.svc.GetOrder(ctx, owner, primitive.NewObjectID().Hex())
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetOrder_Immutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := draft(mug(2), models.LineItem{Product: "65a000000000000000000009", Name: "Scarf", Price: 12.5, Quantity: 4, Size: "M"})
	d.OfferCode = "AKSHARA9"
	created, err := f.svc.CreateOrder(ctx, owner, d)
	require.NoError(t, err)

	// drop the cache so the second read goes to the store
	delete(f.cache.orders, created.ID.Hex())

	for range 2 {
		got, err := f.svc.GetOrder(ctx, owner, created.ID.Hex())
		require.NoError(t, err)

		assert.Equal(t, created.OrderNumber, got.OrderNumber)
		assert.Equal(t, created.Subtotal, got.Subtotal)
		assert.Equal(t, created.Discount, got.Discount)
		assert.Equal(t, created.Total, got.Total)
		require.Len(t, got.Items, len(created.Items))
		for i := range got.Items {
			item := got.Items[i]
			item.ProductInfo = nil
			assert.Equal(t, created.Items[i], item)
		}
	}
	assert.Equal(t, 1, f.cache.hits)
}

func TestGetOrder_PopulatesProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, owner, draft(mug(1), models.LineItem{Product: "gone", Name: "Retired", Price: 5, Quantity: 1}))
	require.NoError(t, err)

	got, err := f.svc.GetOrder(ctx, owner, order.ID.Hex())
	require.NoError(t, err)
	require.NotNil(t, got.Items[0].ProductInfo)
	assert.Equal(t, "Hand-painted Mug", got.Items[0].ProductInfo.Name)
	assert.Equal(t, []string{"/img/mug.jpg"}, got.Items[0].ProductInfo.Images)
	assert.Nil(t, got.Items[1].ProductInfo)
	assert.Equal(t, "Retired", got.Items[1].Name)
}

func TestGetOrder_CatalogFailureStillReturnsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, owner, draft(mug(1)))
	require.NoError(t, err)

	f.catalog.fail = models.ErrStorageUnavailable
	got, err := f.svc.GetOrder(ctx, owner, order.ID.Hex())
	require.NoError(t, err)
	assert.Nil(t, got.Items[0].ProductInfo)
}

func TestGetOrder_AttachesOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, owner, draft(mug(1)))
	require.NoError(t, err)
	assert.Nil(t, order.UserInfo)

	for _, requester := range []models.Identity{owner, admin} {
		got, err := f.svc.GetOrder(ctx, requester, order.ID.Hex())
		require.NoError(t, err)
		assert.Equal(t, &models.OwnerRef{ID: owner.ID, Name: "Meera Rao", Email: "meera@example.com"}, got.UserInfo)
	}

	cached := f.cache.orders[order.ID.Hex()]
	require.NotNil(t, cached)
	assert.Nil(t, cached.UserInfo)
}

func TestGetOrder_OwnerLookupIsBestEffort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, owner, draft(mug(1)))
	require.NoError(t, err)

	f.users.fail = models.ErrStorageUnavailable
	got, err := f.svc.GetOrder(ctx, owner, order.ID.Hex())
	require.NoError(t, err)
	assert.Nil(t, got.UserInfo)
	assert.Equal(t, order.Total, got.Total)

	f.users.fail = nil
	delete(f.users.users, owner.ID)
	got, err = f.svc.GetOrder(ctx, owner, order.ID.Hex())
	require.NoError(t, err)
	assert.Nil(t, got.UserInfo)
}

func TestGetOrdersByOwner_NewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var numbers []string
	for range 3 {
		o, err := f.svc.CreateOrder(ctx, owner, draft(mug(1)))
		require.NoError(t, err)
		numbers = append(numbers, o.OrderNumber)
	}
	_, err := f.svc.CreateOrder(ctx, stranger, draft(mug(1)))
	require.NoError(t, err)

	orders, err := f.svc.GetOrdersByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, numbers[2], orders[0].OrderNumber)
	assert.Equal(t, numbers[0], orders[2].OrderNumber)
	for _, o := range orders {
		assert.Equal(t, owner.ID, o.User)
		assert.NotNil(t, o.Items[0].ProductInfo)
	}
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateOrder(ctx, owner, draft(mug(1)))
	require.NoError(t, err)
	_, err = f.svc.CreateOrder(ctx, stranger, draft(mug(1)))
	require.NoError(t, err)

	_, err = f.svc.ListOrders(ctx, owner, models.OrderFilter{})
	require.ErrorIs(t, err, models.ErrAccessDenied)

	all, err := f.svc.ListOrders(ctx, admin, models.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	shipped, err := f.svc.ListOrders(ctx, admin, models.OrderFilter{OrderStatus: models.OrderShipped})
	require.NoError(t, err)
	assert.Empty(t, shipped)

	_, err = f.svc.ListOrders(ctx, admin, models.OrderFilter{OrderStatus: "lost"})
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestAuthorize(t *testing.T) {
	order := &models.Order{User: owner.ID}

	assert.NoError(t, Authorize(owner, order))
	assert.NoError(t, Authorize(admin, order))
	assert.ErrorIs(t, Authorize(stranger, order), models.ErrAccessDenied)
	assert.ErrorIs(t, Authorize(models.Identity{}, &models.Order{}), models.ErrAccessDenied)
}

func TestQuote(t *testing.T) {
	f := newFixture(t)

	q, err := f.svc.Quote([]models.LineItem{mug(2)}, "AKSHARA9")
	require.NoError(t, err)
	assert.Equal(t, pricing.Quote{OfferCode: "AKSHARA9", Subtotal: 998, Discount: 99.8, Total: 898.2}, q)
	assert.Empty(t, f.store.orders)
}
