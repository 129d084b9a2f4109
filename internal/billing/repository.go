package billing

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-core/internal/outbox"
)

// MutateFunc edits a locked invoice in place. A non-nil payment is recorded
// together with the new balance.
type MutateFunc func(inv *Invoice) (*Payment, []outbox.Event, error)

// Repository contains all DB interactions needed by the ledger. Create and
// Update are atomic with their items, payments and outbox events.
type Repository interface {
	// Create assigns the invoice number and stores the invoice with its items.
	Create(ctx context.Context, inv *Invoice, events []outbox.Event) (*Invoice, error)
	// Update locks the invoice row, applies fn and persists the result. When
	// the invoice becomes paid the settlement hooks run in the same
	// transaction.
	Update(ctx context.Context, id uuid.UUID, fn MutateFunc) (*Invoice, error)

	Get(ctx context.Context, id uuid.UUID) (*Invoice, error)
	List(ctx context.Context, f ListFilter) ([]Invoice, error)
	Payments(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error)
}
