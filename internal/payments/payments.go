// Package payments answers one question about an escrow payment: has the
// gateway reported it as succeeded? Provider protocol details stay here.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"

	"github.com/mbd888/homeescrow/internal/circuitbreaker"
)

// BreakerKey names the payment provider on the shared breaker.
const BreakerKey = "stripe"

var (
	ErrUnknownReference = errors.New("unknown payment reference")
	ErrUnavailable      = errors.New("payment provider unavailable")
)

// Confirmer reports whether the payment identified by reference succeeded.
type Confirmer interface {
	Confirmed(ctx context.Context, reference string) (bool, error)
}

// intentGetter is the subset of the Stripe PaymentIntent client used here.
type intentGetter interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeConfirmer checks PaymentIntent status with Stripe.
type StripeConfirmer struct {
	intents intentGetter
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// NewStripeConfirmer creates a confirmer using the given secret key.
func NewStripeConfirmer(secretKey string, breaker *circuitbreaker.Breaker, logger *slog.Logger) *StripeConfirmer {
	client := &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey}
	return newStripeConfirmer(client, breaker, logger)
}

func newStripeConfirmer(intents intentGetter, breaker *circuitbreaker.Breaker, logger *slog.Logger) *StripeConfirmer {
	if logger == nil {
		logger = slog.Default()
	}
	if breaker == nil {
		breaker = circuitbreaker.New(5, 0)
	}
	return &StripeConfirmer{intents: intents, breaker: breaker, logger: logger}
}

func (s *StripeConfirmer) Confirmed(ctx context.Context, reference string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var pi *stripe.PaymentIntent
	err := s.breaker.Execute(BreakerKey, isProviderFailure, func() error {
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		var err error
		pi, err = s.intents.Get(reference, params)
		return err
	})
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.HTTPStatusCode == 404 {
			return false, ErrUnknownReference
		}
		s.logger.Warn("stripe payment intent lookup failed", "reference", reference, "error", err)
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return true, nil
	case stripe.PaymentIntentStatusCanceled:
		s.logger.Info("payment intent cancelled", "reference", reference)
		return false, nil
	default:
		return false, nil
	}
}

// 4xx responses other than rate limiting are the caller's problem, not the
// provider's.
func isProviderFailure(err error) bool {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		return serr.HTTPStatusCode >= 500 || serr.HTTPStatusCode == 429 || serr.HTTPStatusCode == 0
	}
	return true
}

// StaticConfirmer is an in-memory confirmer for development and tests.
type StaticConfirmer struct {
	mu        sync.RWMutex
	succeeded map[string]bool
}

// NewStaticConfirmer creates a confirmer that knows the given references.
func NewStaticConfirmer() *StaticConfirmer {
	return &StaticConfirmer{succeeded: make(map[string]bool)}
}

// Set records the outcome for a reference.
func (s *StaticConfirmer) Set(reference string, succeeded bool) {
	s.mu.Lock()
	s.succeeded[reference] = succeeded
	s.mu.Unlock()
}

func (s *StaticConfirmer) Confirmed(ctx context.Context, reference string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ok, known := s.succeeded[reference]
	if !known {
		return false, ErrUnknownReference
	}
	return ok, nil
}

var (
	_ Confirmer = (*StripeConfirmer)(nil)
	_ Confirmer = (*StaticConfirmer)(nil)
)
