// Package notify delivers in-app notifications about escrow activity.
//
// Producers enqueue and move on. Workers persist each notification to the
// recipient's inbox and push it to any live connection, retrying with
// backoff. Failures are logged and counted, never returned to producers.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/homeescrow/internal/pagination"
)

var (
	ErrNotFound  = errors.New("notification not found")
	ErrQueueFull = errors.New("notification queue full")
	ErrStopped   = errors.New("notification dispatcher stopped")
)

// Type identifies what happened.
type Type string

const (
	TypeTransactionCreated Type = "transaction_created"
	TypeDisputeFiled       Type = "dispute_filed"
	TypeDisputeResolved    Type = "dispute_resolved"
)

// StatusType is the notification type for a transaction entering status.
func StatusType(status string) Type {
	return Type("transaction_" + status)
}

// Notification is one inbox entry.
type Notification struct {
	ID        string         `json:"id"`
	Recipient string         `json:"recipient"`
	Sender    string         `json:"sender,omitempty"`
	Type      Type           `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"createdAt"`
	ReadAt    *time.Time     `json:"readAt,omitempty"`
}

// Store persists inbox entries. Create must be idempotent on ID so that
// retried deliveries do not duplicate.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	ListByRecipient(ctx context.Context, recipient string, unreadOnly bool, page pagination.Page) ([]*Notification, int, error)
	MarkRead(ctx context.Context, id, recipient string, at time.Time) error
	CountUnread(ctx context.Context, recipient string) (int, error)
}

// Pusher delivers a notification to live connections. Best effort.
type Pusher interface {
	Push(ctx context.Context, n *Notification) error
}
