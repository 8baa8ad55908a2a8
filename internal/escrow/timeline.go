package escrow

import (
	"fmt"
	"time"

	"github.com/mbd888/homeescrow/internal/identity"
)

// EventType names a timeline entry.
type EventType string

const (
	EventTransactionCreated EventType = "transaction_created"
	EventStatusChanged      EventType = "status_changed"
	EventDisputeFiled       EventType = "dispute_filed"
	EventDisputeResolved    EventType = "dispute_resolved"
	EventDocumentUploaded   EventType = "document_uploaded"
)

// TimelineEvent is one immutable entry in a transaction's history.
type TimelineEvent struct {
	Type        EventType      `json:"type"`
	Description string         `json:"description"`
	PerformedBy identity.ID    `json:"performedBy"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

func (e TimelineEvent) clone() TimelineEvent {
	if e.Metadata != nil {
		md := make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		e.Metadata = md
	}
	return e
}

func createdEvent(t *Transaction, at time.Time) TimelineEvent {
	return TimelineEvent{
		Type:        EventTransactionCreated,
		Description: "Escrow transaction created",
		PerformedBy: t.BuyerID,
		Metadata: map[string]any{
			"status":        string(StatusInitiated),
			"amount":        t.Amount.String(),
			"currency":      t.Currency,
			"paymentMethod": string(t.PaymentMethod),
		},
		Timestamp: at,
	}
}

func statusChangedEvent(by identity.ID, from, to Status, notes string, at time.Time) TimelineEvent {
	md := map[string]any{
		"previousStatus": string(from),
		"newStatus":      string(to),
	}
	if notes != "" {
		md["notes"] = notes
	}
	return TimelineEvent{
		Type:        EventStatusChanged,
		Description: fmt.Sprintf("Status changed from %s to %s", from, to),
		PerformedBy: by,
		Metadata:    md,
		Timestamp:   at,
	}
}

func disputeFiledEvent(by identity.ID, from Status, reason string, at time.Time) TimelineEvent {
	return TimelineEvent{
		Type:        EventDisputeFiled,
		Description: "Dispute filed: " + reason,
		PerformedBy: by,
		Metadata: map[string]any{
			"previousStatus": string(from),
			"newStatus":      string(StatusDisputed),
			"reason":         reason,
		},
		Timestamp: at,
	}
}

func disputeResolvedEvent(by identity.ID, r Resolution, to Status, at time.Time) TimelineEvent {
	return TimelineEvent{
		Type:        EventDisputeResolved,
		Description: "Dispute resolved: " + string(r),
		PerformedBy: by,
		Metadata: map[string]any{
			"previousStatus": string(StatusDisputed),
			"newStatus":      string(to),
			"resolution":     string(r),
		},
		Timestamp: at,
	}
}

func documentUploadedEvent(by identity.ID, doc Document, at time.Time) TimelineEvent {
	return TimelineEvent{
		Type:        EventDocumentUploaded,
		Description: "Document uploaded: " + doc.Name,
		PerformedBy: by,
		Metadata: map[string]any{
			"documentType": doc.Type,
			"name":         doc.Name,
		},
		Timestamp: at,
	}
}

// ReplayStatus reconstructs the sequence of statuses a transaction passed
// through from its timeline alone. Events that do not move the status are
// skipped.
func ReplayStatus(timeline []TimelineEvent) []Status {
	var out []Status
	for _, ev := range timeline {
		switch ev.Type {
		case EventTransactionCreated:
			out = append(out, StatusInitiated)
		case EventStatusChanged, EventDisputeFiled, EventDisputeResolved:
			if s, ok := ev.Metadata["newStatus"].(string); ok {
				out = append(out, Status(s))
			}
		}
	}
	return out
}
