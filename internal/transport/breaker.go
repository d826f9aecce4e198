package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"marketplace/internal/util"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Breaker wraps a Client with one circuit breaker per endpoint. While a
// breaker is open requests fail fast with ErrCircuitOpen.
type Breaker struct {
	next        Client
	maxFailures uint32
	openTimeout time.Duration
	logger      *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreaker creates a new circuit breaking client
func NewBreaker(next Client, maxFailures uint32, openTimeout time.Duration) *Breaker {
	if maxFailures == 0 {
		maxFailures = 5
	}
	return &Breaker{
		next:        next,
		maxFailures: maxFailures,
		openTimeout: openTimeout,
		logger:      util.GetLogger(),
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (b *Breaker) breaker(endpoint string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[endpoint]; ok {
		return cb
	}

	settings := gobreaker.Settings{
		Name:        endpoint,
		MaxRequests: 1,
		Timeout:     b.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.logger.Warn("Circuit breaker state changed",
				zap.String("seller", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	cb := gobreaker.NewCircuitBreaker(settings)
	b.breakers[endpoint] = cb
	return cb
}

// State returns the breaker state of an endpoint
func (b *Breaker) State(endpoint string) gobreaker.State {
	return b.breaker(endpoint).State()
}

func (b *Breaker) Request(ctx context.Context, endpoint, msg string) (string, error) {
	result, err := b.breaker(endpoint).Execute(func() (interface{}, error) {
		return b.next.Request(ctx, endpoint, msg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %s", ErrCircuitOpen, endpoint)
		}
		return "", err
	}
	return result.(string), nil
}
