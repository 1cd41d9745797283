package service

import (
	"context"
	"testing"

	"github.com/example/craftshop/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateOrderStatus_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, owner, draft(mug(1)))
	require.NoError(t, err)
	id := order.ID.Hex()

	for _, next := range []models.OrderStatus{models.OrderProcessing, models.OrderShipped, models.OrderDelivered} {
		updated, err := f.svc.UpdateOrderStatus(ctx, admin, id, next)
		require.NoError(t, err, next)
		assert.Equal(t, next, updated.OrderStatus)
	}

	_, err = f.svc.UpdateOrderStatus(ctx, admin, id, models.OrderCancelled)
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	got, err := f.svc.GetOrder(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, models.OrderDelivered, got.OrderStatus)
	assert.Equal(t, order.Total, got.Total)
}

func TestUpdateOrderStatus_Rejections(t *testing.T) {
	testCases := []struct {
		desc      string
		requester models.Identity
		next      models.OrderStatus
		err       error
	}{
		{desc: "NotAdmin", requester: owner, next: models.OrderProcessing, err: models.ErrAccessDenied},
		{desc: "UnknownStatus", requester: admin, next: "teleported", err: models.ErrValidation},
		{desc: "SkipsProcessing", requester: admin, next: models.OrderShipped, err: models.ErrInvalidTransition},
		{desc: "BackToPending", requester: admin, next: models.OrderPending, err: models.ErrInvalidTransition},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			order, err := f.svc.CreateOrder(ctx, owner, draft(mug(1)))
			require.NoError(t, err)

			_, err = f.svc.UpdateOrderStatus(ctx, tc.requester, order.ID.Hex(), tc.next)
			require.ErrorIs(t, err, tc.err)

			stored, err := f.store.FindOrder(ctx, order.ID.Hex())
			require.NoError(t, err)
			assert.Equal(t, models.OrderPending, stored.OrderStatus)
		})
	}
}

func TestUpdateOrderStatus_CancelFromPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, owner, draft(mug(1)))
	require.NoError(t, err)

	updated, err := f.svc.UpdateOrderStatus(ctx, admin, order.ID.Hex(), models.OrderCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, updated.OrderStatus)
	assert.Contains(t, f.cache.invalidated, order.ID.Hex())
	assert.NotContains(t, f.cache.orders, order.ID.Hex())
}

func TestUpdateStatus_StaleCacheDuringUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, owner, draft(mug(1)))
	require.NoError(t, err)
	id := order.ID.Hex()
	require.Contains(t, f.cache.orders, id)

	f.store.beforeUpdate = func(id string) {
		assert.NotContains(t, f.cache.orders, id)
		stale, err := f.store.FindOrder(ctx, id)
		require.NoError(t, err)
		require.NoError(t, f.cache.CacheOrder(ctx, stale))
	}

	_, err = f.svc.UpdateOrderStatus(ctx, admin, id, models.OrderProcessing)
	require.NoError(t, err)
	got, err := f.svc.GetOrder(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, models.OrderProcessing, got.OrderStatus)

	_, err = f.svc.UpdatePaymentStatus(ctx, admin, id, models.PaymentCompleted)
	require.NoError(t, err)
	got, err = f.svc.GetOrder(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, got.PaymentStatus)
	assert.Equal(t, models.OrderProcessing, got.OrderStatus)
}

func TestUpdateOrderStatus_UnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateOrderStatus(context.Background(), admin, "65a000000000000000000000", models.OrderProcessing)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdatePaymentStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, owner, draft(mug(1)))
	require.NoError(t, err)
	id := order.ID.Hex()

	_, err = f.svc.UpdatePaymentStatus(ctx, owner, id, models.PaymentCompleted)
	require.ErrorIs(t, err, models.ErrAccessDenied)

	updated, err := f.svc.UpdatePaymentStatus(ctx, admin, id, models.PaymentCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, updated.PaymentStatus)
	assert.Equal(t, models.OrderPending, updated.OrderStatus)

	_, err = f.svc.UpdatePaymentStatus(ctx, admin, id, models.PaymentFailed)
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = f.svc.UpdatePaymentStatus(ctx, admin, id, "refunded")
	require.ErrorIs(t, err, models.ErrValidation)
}
