package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	EventAppointmentCreated     = "appointment.created"
	EventAppointmentRescheduled = "appointment.rescheduled"
	EventAppointmentCancelled   = "appointment.cancelled"
	EventAppointmentStatus      = "appointment.status_changed"
	EventInvoiceCreated         = "invoice.created"
	EventInvoicePayment         = "invoice.payment_received"
	EventInvoicePaid            = "invoice.paid"
	EventInvoiceCancelled       = "invoice.cancelled"
	EventPrescriptionIssued     = "prescription.issued"
	EventPrescriptionReleased   = "prescription.released"
)

// Event is one notification addressed to one recipient.
type Event struct {
	ID              int64
	RecipientID     uuid.UUID
	EventType       string
	Title           string
	Body            string
	RelatedEntityID uuid.UUID
	SenderID        *uuid.UUID
	CreatedAt       time.Time
	Attempts        int
	LastError       *string
	DispatchedAt    *time.Time
}

// Notify builds the same event for every recipient, skipping nil and
// duplicate ids.
func Notify(eventType, title, body string, related uuid.UUID, sender uuid.UUID, recipients ...uuid.UUID) []Event {
	var senderID *uuid.UUID
	if sender != uuid.Nil {
		s := sender
		senderID = &s
	}

	seen := make(map[uuid.UUID]struct{}, len(recipients))
	events := make([]Event, 0, len(recipients))
	for _, r := range recipients {
		if r == uuid.Nil {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		events = append(events, Event{
			RecipientID:     r,
			EventType:       eventType,
			Title:           title,
			Body:            body,
			RelatedEntityID: related,
			SenderID:        senderID,
		})
	}
	return events
}

// Append writes events inside the caller's transaction so they commit or
// roll back together with the business change.
func Append(ctx context.Context, tx pgx.Tx, events ...Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(`
			INSERT INTO outbox_events (recipient_id, event_type, title, body, related_entity_id, sender_id)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, ev.RecipientID, ev.EventType, ev.Title, ev.Body, ev.RelatedEntityID, ev.SenderID)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("append outbox events: %w", err)
	}
	return nil
}
