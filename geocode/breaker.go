package geocode

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker wraps a Provider with a circuit breaker so a failing service is
// skipped by the Chain until it recovers.
type Breaker struct {
	Provider
	cb *gobreaker.CircuitBreaker[*Result]
}

// WithBreaker wraps p. The circuit opens after five consecutive transport
// or server failures and half-opens after a minute.
func WithBreaker(p Provider, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        "geocode-" + p.Name(),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoResults)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("geocode circuit state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return &Breaker{Provider: p, cb: cb}
}

// Available reports false while the circuit is open.
func (b *Breaker) Available() bool {
	return b.Provider.Available() && b.cb.State() != gobreaker.StateOpen
}

// Geocode implements Geocoder.
func (b *Breaker) Geocode(ctx context.Context, address string) (*Result, error) {
	return b.cb.Execute(func() (*Result, error) {
		return b.Provider.Geocode(ctx, address)
	})
}
