package patterns

import (
	"errors"
	"time"

	"github.com/example/craftshop/pkg/config"
	"github.com/example/craftshop/pkg/metrics"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// CircuitBreaker wraps gobreaker with metrics. Errors for which the
// isSuccessful predicate returns true (not found, duplicate key) do not
// count against the storage backend.
type CircuitBreaker struct {
	cb           *gobreaker.CircuitBreaker
	name         string
	service      string
	isSuccessful func(error) bool
}

func NewCircuitBreaker(name, service string, cfg config.BreakerConfig, logger *zap.Logger, isSuccessful func(error) bool) *CircuitBreaker {
	if isSuccessful == nil {
		isSuccessful = func(err error) bool { return err == nil }
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests || counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(cbName string, from gobreaker.State, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(service, cbName).Set(stateValue(to))
			logger.Warn("Circuit breaker state changed",
				zap.String("circuit", cbName),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: isSuccessful,
	}

	metrics.CircuitBreakerState.WithLabelValues(service, name).Set(0)

	return &CircuitBreaker{
		cb:           gobreaker.NewCircuitBreaker(settings),
		name:         name,
		service:      service,
		isSuccessful: isSuccessful,
	}
}

// Execute runs fn through the breaker. ErrOpenState and ErrTooManyRequests
// are returned unchanged; callers use IsOpen to recognise them. Only
// rejected calls and errors the breaker counts as failures are recorded.
func (c *CircuitBreaker) Execute(fn func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if IsOpen(err) || !c.isSuccessful(err) {
		metrics.CircuitBreakerFailures.WithLabelValues(c.service, c.name).Inc()
	}
	return err
}

func (c *CircuitBreaker) State() string {
	return c.cb.State().String()
}

// IsOpen reports whether err came from the breaker refusing the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// DefaultBreakerConfig mirrors the config defaults, for callers without a file.
func DefaultBreakerConfig() config.BreakerConfig {
	return config.BreakerConfig{
		MaxRequests:  3,
		Interval:     15 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}
