package property

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/homeescrow/internal/circuitbreaker"
	"github.com/mbd888/homeescrow/internal/retry"
)

// BreakerKey names the property upstream on the shared breaker.
const BreakerKey = "property"

// Guarded wraps a Lookup with a per-call timeout, bounded retries and a
// circuit breaker. Any failure other than ErrNotFound surfaces as
// ErrUnavailable.
type Guarded struct {
	next     Lookup
	breaker  *circuitbreaker.Breaker
	timeout  time.Duration
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

// NewGuarded builds a guarded lookup. timeout bounds each attempt.
func NewGuarded(next Lookup, breaker *circuitbreaker.Breaker, timeout time.Duration, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Guarded{
		next:     next,
		breaker:  breaker,
		timeout:  timeout,
		attempts: 3,
		backoff:  100 * time.Millisecond,
		logger:   logger,
	}
}

// WithRetry overrides the retry policy.
func (g *Guarded) WithRetry(attempts int, backoff time.Duration) *Guarded {
	g.attempts = attempts
	g.backoff = backoff
	return g
}

func (g *Guarded) GetPropertyByID(ctx context.Context, id string) (*Property, error) {
	var prop *Property

	err := retry.DoIf(ctx, g.attempts, g.backoff, retryable, func() error {
		return g.breaker.Execute(BreakerKey, countable, func() error {
			callCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()

			p, err := g.next.GetPropertyByID(callCtx, id)
			if err != nil {
				return err
			}
			prop = p
			return nil
		})
	})
	switch {
	case err == nil:
		return prop, nil
	case errors.Is(err, ErrNotFound):
		return nil, ErrNotFound
	case errors.Is(err, ErrUnavailable):
		g.logger.Warn("property lookup failed", "property_id", id, "error", err)
		return nil, err
	default:
		g.logger.Warn("property lookup failed", "property_id", id, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// countable reports whether err should trip the breaker.
func countable(err error) bool {
	return !errors.Is(err, ErrNotFound)
}

func retryable(err error) bool {
	return !errors.Is(err, ErrNotFound) && !errors.Is(err, circuitbreaker.ErrOpen)
}

var _ Lookup = (*Guarded)(nil)
