package service

import (
	"context"
	"fmt"

	"github.com/example/craftshop/pkg/metrics"
	"github.com/example/craftshop/pkg/models"
	"go.uber.org/zap"
)

// UpdateOrderStatus advances the fulfilment state. Only admins may call it and
// only along pending→processing→shipped→delivered, or to cancelled from
// pending or processing.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, requester models.Identity, id string, next models.OrderStatus) (*models.Order, error) {
	const op = "service.UpdateOrderStatus"

	if !requester.IsAdmin {
		return nil, fmt.Errorf("%s: %w", op, models.ErrAccessDenied)
	}
	if !next.Valid() {
		return nil, fmt.Errorf("%s: %w: unknown order status %q", op, models.ErrValidation, next)
	}

	current, err := s.store.FindOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !current.OrderStatus.CanTransition(next) {
		return nil, fmt.Errorf("%s: %w: %s -> %s", op, models.ErrInvalidTransition, current.OrderStatus, next)
	}

	// a reader may re-cache the old document while the update is in flight,
	// so the entry is dropped on both sides of it
	s.invalidate(ctx, id)
	updated, err := s.store.UpdateOrderStatus(ctx, id, current.OrderStatus, next)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.afterTransition(ctx, "order", id, string(current.OrderStatus), string(next))
	s.populate(ctx, updated)
	return updated, nil
}

// UpdatePaymentStatus records the outcome of a payment: pending to completed
// or failed. There is no gateway callback; an admin records it.
func (s *OrderService) UpdatePaymentStatus(ctx context.Context, requester models.Identity, id string, next models.PaymentStatus) (*models.Order, error) {
	const op = "service.UpdatePaymentStatus"

	if !requester.IsAdmin {
		return nil, fmt.Errorf("%s: %w", op, models.ErrAccessDenied)
	}
	if !next.Valid() {
		return nil, fmt.Errorf("%s: %w: unknown payment status %q", op, models.ErrValidation, next)
	}

	current, err := s.store.FindOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !current.PaymentStatus.CanTransition(next) {
		return nil, fmt.Errorf("%s: %w: %s -> %s", op, models.ErrInvalidTransition, current.PaymentStatus, next)
	}

	s.invalidate(ctx, id)
	updated, err := s.store.UpdatePaymentStatus(ctx, id, current.PaymentStatus, next)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.afterTransition(ctx, "payment", id, string(current.PaymentStatus), string(next))
	s.populate(ctx, updated)
	return updated, nil
}

func (s *OrderService) invalidate(ctx context.Context, id string) {
	if err := s.cache.InvalidateOrder(ctx, id); err != nil {
		s.logger.Warn("Failed to invalidate cached order", zap.String("order_id", id), zap.Error(err))
	}
}

func (s *OrderService) afterTransition(ctx context.Context, kind, id, from, to string) {
	s.invalidate(ctx, id)
	metrics.StatusTransitions.WithLabelValues(kind, to).Inc()
	s.logger.Info("Order status changed",
		zap.String("order_id", id),
		zap.String("kind", kind),
		zap.String("from", from),
		zap.String("to", to))
}
