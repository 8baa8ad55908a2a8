// Package property provides read-only access to property snapshots and
// ownership, as needed when an escrow transaction is opened.
package property

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound    = errors.New("property not found")
	ErrUnavailable = errors.New("property lookup unavailable")
)

// StatusAvailable is the only listing status that accepts a new escrow.
const StatusAvailable = "available"

// Owner identifies the listing owner.
type Owner struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Property is the snapshot of a listing taken at transaction creation.
type Property struct {
	ID     string          `json:"id"`
	Title  string          `json:"title"`
	Price  decimal.Decimal `json:"price"`
	Status string          `json:"status"`
	Owner  Owner           `json:"owner"`
}

// IsAvailable reports whether the listing can be put under escrow.
func (p *Property) IsAvailable() bool {
	return p.Status == StatusAvailable
}

// Lookup fetches property snapshots. Implementations return ErrNotFound
// for unknown ids and ErrUnavailable when the backing system fails.
type Lookup interface {
	GetPropertyByID(ctx context.Context, id string) (*Property, error)
}
