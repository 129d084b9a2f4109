package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-core/internal/outbox"
)

// MutateFunc edits a locked appointment in place and returns the events to
// record with the change. Returning an error aborts the whole update.
type MutateFunc func(a *Appointment) ([]outbox.Event, error)

// Repository contains all DB interactions needed by the scheduler. Insert and
// Update are atomic: the slot check, the write and the outbox events commit
// together or not at all.
type Repository interface {
	// Insert fails with a conflict error when the doctor already holds a
	// live appointment at the same instant.
	Insert(ctx context.Context, a *Appointment, events []outbox.Event) (*Appointment, error)
	// Update locks the row, applies fn and persists the result.
	Update(ctx context.Context, id uuid.UUID, fn MutateFunc) (*Appointment, error)

	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, f ListFilter) ([]Appointment, error)

	// BookedInstants returns the doctor's non-cancelled start times in [from, to).
	BookedInstants(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error)
}
