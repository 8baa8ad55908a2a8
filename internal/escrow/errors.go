package escrow

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies escrow errors for callers and transports.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidTransition
	KindNotAuthorized
	KindDuplicateActiveEscrow
	KindSelfDealing
	KindDisputeAlreadyFiled
	KindConflict
	KindUpstreamUnavailable
	KindValidation
)

var kindNames = map[Kind]string{
	KindInternal:              "internal_error",
	KindNotFound:              "not_found",
	KindInvalidTransition:     "invalid_transition",
	KindNotAuthorized:         "not_authorized",
	KindDuplicateActiveEscrow: "duplicate_active_escrow",
	KindSelfDealing:           "self_dealing",
	KindDisputeAlreadyFiled:   "dispute_already_filed",
	KindConflict:              "conflict",
	KindUpstreamUnavailable:   "upstream_unavailable",
	KindValidation:            "validation_error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// kindError is a sentinel error tagged with its Kind.
type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Kind() Kind    { return e.kind }

func newError(kind Kind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

var (
	ErrTransactionNotFound   = newError(KindNotFound, "transaction not found")
	ErrPropertyNotFound      = newError(KindNotFound, "property not found")
	ErrInvalidTransition     = newError(KindInvalidTransition, "invalid status transition")
	ErrNotAuthorized         = newError(KindNotAuthorized, "not authorized for this escrow operation")
	ErrDuplicateActiveEscrow = newError(KindDuplicateActiveEscrow, "property already has an active escrow transaction")
	ErrSelfDealing           = newError(KindSelfDealing, "buyer cannot be the property owner")
	ErrDisputeAlreadyFiled   = newError(KindDisputeAlreadyFiled, "a dispute has already been filed for this transaction")
	ErrConflict              = newError(KindConflict, "transaction was modified concurrently")
	ErrUpstreamUnavailable   = newError(KindUpstreamUnavailable, "dependency unavailable")

	ErrInvalidAmount        = newError(KindValidation, "amount must be greater than zero")
	ErrInvalidCurrency      = newError(KindValidation, "currency must be a 3-letter code")
	ErrInvalidPaymentMethod = newError(KindValidation, "unsupported payment method")
	ErrInvalidStatus        = newError(KindValidation, "unknown transaction status")
	ErrInvalidResolution    = newError(KindValidation, "unsupported dispute resolution")
	ErrInvalidDispute       = newError(KindValidation, "dispute reason is required")
	ErrInvalidDocument      = newError(KindValidation, "document type, url and name are required")
	ErrPropertyUnavailable  = newError(KindValidation, "property is not available for escrow")
	ErrPaymentNotConfirmed  = newError(KindValidation, "payment has not been confirmed by the gateway")
	ErrInvalidDateRange     = newError(KindValidation, "date range must start before it ends")
)

// KindOf returns the Kind of err, or KindInternal for untagged errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var k interface{ Kind() Kind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// IsRetryable reports whether the operation may succeed if repeated as is.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindUpstreamUnavailable:
		return true
	}
	return false
}

// TransitionError reports a status change the tables do not allow.
type TransitionError struct {
	Op   string
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot move transaction from %s to %s", e.Op, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// AuthError reports which participants may perform an operation.
type AuthError struct {
	Op       string
	Required []ParticipantRole
}

func (e *AuthError) Error() string {
	if len(e.Required) == 0 {
		return e.Op + ": not authorized"
	}
	names := make([]string, len(e.Required))
	for i, r := range e.Required {
		names[i] = string(r)
	}
	return fmt.Sprintf("%s: requires %s", e.Op, strings.Join(names, " or "))
}

func (e *AuthError) Unwrap() error { return ErrNotAuthorized }

func authError(op string, required ...ParticipantRole) error {
	return &AuthError{Op: op, Required: required}
}

func upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUpstreamUnavailable, err)
}
