package escrow

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/homeescrow/internal/identity"
	"github.com/mbd888/homeescrow/internal/pagination"
)

// Store persists escrow transactions.
//
// Every write carries its timeline event; implementations must persist the
// event in the same atomic write as the change it documents.
type Store interface {
	// Create inserts a new transaction. It returns ErrDuplicateActiveEscrow
	// when the property already has a live transaction.
	Create(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	// ConditionalUpdate applies p only if the stored status still equals
	// expected, and returns ErrConflict otherwise.
	ConditionalUpdate(ctx context.Context, id string, expected Status, p Patch) (*Transaction, error)
	List(ctx context.Context, f ListFilter, page pagination.Page) ([]*Transaction, int, error)
	// CountByStatus counts transactions per status. No statuses means all.
	CountByStatus(ctx context.Context, statuses ...Status) (map[Status]int, error)
	MonthlyRollups(ctx context.Context) ([]MonthlyRollup, error)
	DailyVolumes(ctx context.Context, from, to time.Time) ([]DailyVolume, error)
}

// Patch is the change a single mutating operation makes.
type Patch struct {
	Status           Status // empty leaves the status unchanged
	Dispute          *Dispute
	Document         *Document
	ActualCompletion *time.Time
	Event            TimelineEvent
	UpdatedAt        time.Time
}

// apply mutates tx in place. Callers hold whatever lock guards tx.
func (p Patch) apply(tx *Transaction) {
	if p.Status != "" {
		tx.Status = p.Status
	}
	if p.Dispute != nil {
		d := *p.Dispute
		tx.Dispute = &d
	}
	if p.Document != nil {
		tx.Documents = append(tx.Documents, *p.Document)
	}
	if p.ActualCompletion != nil {
		at := *p.ActualCompletion
		tx.ActualCompletion = &at
	}
	tx.Timeline = append(tx.Timeline, p.Event.clone())
	tx.UpdatedAt = p.UpdatedAt
}

// ListFilter narrows a transaction listing. Zero fields match everything.
type ListFilter struct {
	// Participants restricts results to transactions where any of these
	// ids is the buyer or the seller.
	Participants []identity.ID
	// Side limits participant matching to RoleBuyer or RoleSeller.
	Side       ParticipantRole
	Status     Status
	PropertyID string
}

func (f ListFilter) matches(tx *Transaction) bool {
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.PropertyID != "" && tx.PropertyID != f.PropertyID {
		return false
	}
	if len(f.Participants) == 0 {
		return true
	}
	for _, id := range f.Participants {
		if f.Side != RoleSeller && tx.BuyerID == id {
			return true
		}
		if f.Side != RoleBuyer && tx.SellerID == id {
			return true
		}
	}
	return false
}

// MonthlyRollup aggregates transactions created in one calendar month (UTC).
type MonthlyRollup struct {
	Month  string          `json:"month"` // YYYY-MM
	Count  int             `json:"count"`
	Volume decimal.Decimal `json:"volume"`
	Fees   decimal.Decimal `json:"fees"`
}

// DailyVolume is the summed amount of transactions created on one day (UTC).
type DailyVolume struct {
	Date   string          `json:"date"` // YYYY-MM-DD
	Count  int             `json:"count"`
	Volume decimal.Decimal `json:"volume"`
}

// Statistics summarises all transactions.
type Statistics struct {
	Total    int             `json:"total"`
	ByStatus map[Status]int  `json:"byStatus"`
	Monthly  []MonthlyRollup `json:"monthly"`
}

const (
	monthLayout = "2006-01"
	dayLayout   = "2006-01-02"
)
