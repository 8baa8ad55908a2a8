// Package escrow runs the lifecycle of real-estate escrow transactions.
//
// A buyer opens a transaction against an available property. Buyer, seller
// and administrators then move it through a fixed status graph:
//
//	initiated -> pending -> active -> completed
//	    |           |          |-> disputed -> completed | refunded | cancelled
//	    +-----------+----------+-> cancelled
//
// Every mutation is a compare-and-swap on the status read at the start of
// the operation, and appends exactly one timeline event in the same write.
// Notifications go out after the commit and are never awaited.
package escrow

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/homeescrow/internal/auth"
	"github.com/mbd888/homeescrow/internal/identity"
	"github.com/mbd888/homeescrow/internal/property"
)

// Status represents the state of an escrow transaction.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusDisputed  Status = "disputed"
	StatusRefunded  Status = "refunded"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusInitiated, StatusPending, StatusActive, StatusCompleted,
	StatusCancelled, StatusDisputed, StatusRefunded,
}

// LiveStatuses are the statuses that hold a property exclusively.
var LiveStatuses = []Status{StatusInitiated, StatusPending, StatusActive}

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	for _, known := range AllStatuses {
		if st == known {
			return st, nil
		}
	}
	return "", ErrInvalidStatus
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// IsLive reports whether the status blocks another escrow on the property.
func (s Status) IsLive() bool {
	switch s {
	case StatusInitiated, StatusPending, StatusActive:
		return true
	}
	return false
}

// Resolution is an administrator's ruling on a dispute.
type Resolution string

const (
	ResolutionBuyerFavor    Resolution = "buyer_favor"
	ResolutionSellerFavor   Resolution = "seller_favor"
	ResolutionPartialRefund Resolution = "partial_refund"
	ResolutionFullRefund    Resolution = "full_refund"
)

// Valid reports whether r is a known resolution.
func (r Resolution) Valid() bool {
	switch r {
	case ResolutionBuyerFavor, ResolutionSellerFavor, ResolutionPartialRefund, ResolutionFullRefund:
		return true
	}
	return false
}

// ParticipantRole is the relation of an actor to one transaction.
type ParticipantRole string

const (
	RoleBuyer  ParticipantRole = "buyer"
	RoleSeller ParticipantRole = "seller"
	RoleAdmin  ParticipantRole = "admin"
	RoleNone   ParticipantRole = ""
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID    identity.ID
	Email string
	Role  auth.Role
}

// ActorFromUser converts an authenticated user.
func ActorFromUser(u auth.User) Actor {
	return Actor{ID: u.ID, Email: u.Email, Role: u.Role}
}

// IsAdmin reports whether the actor has platform admin rights.
func (a Actor) IsAdmin() bool { return a.Role == auth.RoleAdmin }

// matches reports whether the actor is the participant recorded as id.
// Sellers recorded by owner email match on the actor's email.
func (a Actor) matches(id identity.ID) bool {
	if id.IsZero() {
		return false
	}
	if a.ID == id {
		return true
	}
	if a.Email == "" {
		return false
	}
	email, ok := identity.Normalize(identity.ByEmail(a.Email))
	return ok && email == id
}

// Fees are computed once when a transaction is created.
type Fees struct {
	PlatformFee   decimal.Decimal `json:"platformFee"`
	ProcessingFee decimal.Decimal `json:"processingFee"`
	TotalFees     decimal.Decimal `json:"totalFees"`
}

// Dispute is filed once and resolved at most once.
type Dispute struct {
	Reason      string      `json:"reason"`
	Description string      `json:"description,omitempty"`
	Evidence    []string    `json:"evidence,omitempty"`
	FiledBy     identity.ID `json:"filedBy"`
	FiledAt     time.Time   `json:"filedAt"`
	Resolution  Resolution  `json:"resolution,omitempty"`
	AdminNotes  string      `json:"adminNotes,omitempty"`
	ResolvedAt  *time.Time  `json:"resolvedAt,omitempty"`
	ResolvedBy  identity.ID `json:"resolvedBy,omitempty"`
}

// IsResolved reports whether an administrator has ruled.
func (d *Dispute) IsResolved() bool {
	return d != nil && d.ResolvedAt != nil
}

// Document is a file attached to a transaction.
type Document struct {
	Type       string      `json:"type"`
	URL        string      `json:"url"`
	Name       string      `json:"name"`
	UploadedBy identity.ID `json:"uploadedBy"`
	UploadedAt time.Time   `json:"uploadedAt"`
}

// Participants are the two parties of a transaction.
type Participants struct {
	BuyerID  identity.ID `json:"buyerId"`
	SellerID identity.ID `json:"sellerId"`
}

// Transaction is an escrow transaction.
type Transaction struct {
	ID                 string            `json:"id"`
	Reference          string            `json:"reference"`
	PaymentReference   string            `json:"paymentReference,omitempty"`
	PropertyID         string            `json:"propertyId"`
	Property           property.Property `json:"property"`
	BuyerID            identity.ID       `json:"buyerId"`
	SellerID           identity.ID       `json:"sellerId"`
	Amount             decimal.Decimal   `json:"amount"`
	Currency           string            `json:"currency"`
	PaymentMethod      PaymentMethod     `json:"paymentMethod"`
	Fees               Fees              `json:"fees"`
	Status             Status            `json:"status"`
	Dispute            *Dispute          `json:"dispute,omitempty"`
	Documents          []Document        `json:"documents"`
	Timeline           []TimelineEvent   `json:"timeline"`
	ExpectedCompletion *time.Time        `json:"expectedCompletion,omitempty"`
	ActualCompletion   *time.Time        `json:"actualCompletion,omitempty"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

// Participants returns the buyer and seller ids.
func (t *Transaction) Participants() Participants {
	return Participants{BuyerID: t.BuyerID, SellerID: t.SellerID}
}

// RoleOf returns the actor's relation to the transaction. Participation
// takes precedence over the admin role.
func (t *Transaction) RoleOf(a Actor) ParticipantRole {
	switch {
	case a.matches(t.BuyerID):
		return RoleBuyer
	case a.matches(t.SellerID):
		return RoleSeller
	case a.IsAdmin():
		return RoleAdmin
	}
	return RoleNone
}

// Counterparts returns the participants other than the given actor.
func (t *Transaction) Counterparts(a Actor) []identity.ID {
	var out []identity.ID
	p := t.Participants()
	for _, id := range []identity.ID{p.BuyerID, p.SellerID} {
		if !a.matches(id) {
			out = append(out, id)
		}
	}
	return out
}

// Clone returns a deep copy.
func (t *Transaction) Clone() *Transaction {
	cp := *t
	if t.Dispute != nil {
		d := *t.Dispute
		d.Evidence = append([]string(nil), t.Dispute.Evidence...)
		if t.Dispute.ResolvedAt != nil {
			r := *t.Dispute.ResolvedAt
			d.ResolvedAt = &r
		}
		cp.Dispute = &d
	}
	cp.Documents = append([]Document(nil), t.Documents...)
	cp.Timeline = make([]TimelineEvent, len(t.Timeline))
	for i, ev := range t.Timeline {
		cp.Timeline[i] = ev.clone()
	}
	if t.ExpectedCompletion != nil {
		e := *t.ExpectedCompletion
		cp.ExpectedCompletion = &e
	}
	if t.ActualCompletion != nil {
		a := *t.ActualCompletion
		cp.ActualCompletion = &a
	}
	return &cp
}
