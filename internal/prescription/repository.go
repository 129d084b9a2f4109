package prescription

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-core/internal/outbox"
)

// AttachFunc validates and applies an invoice link on the locked
// prescription.
type AttachFunc func(p *Prescription, inv InvoiceRef) ([]outbox.Event, error)

type Repository interface {
	Insert(ctx context.Context, p *Prescription, events []outbox.Event) (*Prescription, error)
	Get(ctx context.Context, id uuid.UUID) (*Prescription, error)

	// Attach locks the prescription, reads the invoice and persists fn's
	// changes. A second prescription on the same invoice is a conflict.
	Attach(ctx context.Context, id, invoiceID uuid.UUID, fn AttachFunc) (*Prescription, error)

	// ReleaseState returns the prescription with the current state of its
	// invoice, read in one query. The invoice is nil when none is linked.
	ReleaseState(ctx context.Context, id uuid.UUID) (*Prescription, *InvoiceRef, error)

	// ReconcilePaid marks pending prescriptions whose invoice is paid and
	// returns their ids.
	ReconcilePaid(ctx context.Context) ([]uuid.UUID, error)
}
