package mobilemoney

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards calls to the payment proxy. Only outages count as failures: transport
// errors and 5xx replies. A 4xx or an unreadable body is about one request, not the proxy.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *zap.Logger) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	threshold := uint32(maxFailures)
	return &CircuitBreaker{
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "mobile-money",
			MaxRequests: 1,
			Timeout:     resetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				return !isOutage(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
	}
}

// Execute runs fn unless the breaker is open or a half-open trial is already running.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

func (b *CircuitBreaker) State() gobreaker.State {
	return b.cb.State()
}

func isOutage(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var upstream *upstreamError
	if errors.As(err, &upstream) {
		return true
	}
	var transport *url.Error
	return errors.As(err, &transport)
}
