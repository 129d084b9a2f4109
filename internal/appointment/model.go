package appointment

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-core/internal/access"
	"github.com/hackgods/clinic-core/internal/apperr"
)

type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
)

// forward lists the legal non-cancel transitions. Cancellation is allowed
// from every non-terminal state.
var forward = map[AppointmentStatus]AppointmentStatus{
	StatusScheduled:  StatusInProgress,
	StatusInProgress: StatusCompleted,
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	return forward[s] == next
}

type Appointment struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	PatientID   uuid.UUID
	ScheduledAt time.Time
	Duration    time.Duration
	Reason      string
	Status      AppointmentStatus
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (a *Appointment) Owner() access.Owner {
	return access.Owner{PatientID: a.PatientID, DoctorID: a.DoctorID}
}

func (a *Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(a.Duration)
}

type BookRequest struct {
	DoctorID    uuid.UUID
	PatientID   uuid.UUID
	ScheduledAt time.Time
	Duration    time.Duration
	Reason      string
}

func (r BookRequest) validate(now time.Time) error {
	switch {
	case r.DoctorID == uuid.Nil:
		return apperr.Validation("doctor_id is required")
	case r.PatientID == uuid.Nil:
		return apperr.Validation("patient_id is required")
	case r.ScheduledAt.IsZero():
		return apperr.Validation("scheduled_at is required")
	case strings.TrimSpace(r.Reason) == "":
		return apperr.Validation("reason is required")
	case r.Duration < 0:
		return apperr.Validation("duration must be positive")
	case r.Duration%time.Second != 0:
		return apperr.Validation("duration must be a whole number of seconds")
	}
	return notInPast(r.ScheduledAt, now)
}

func notInPast(at, now time.Time) error {
	if at.Before(now) {
		return apperr.Validation("cannot schedule in the past: %s", at.Format(time.RFC3339))
	}
	return nil
}

// ListFilter narrows List. Nil fields are ignored.
type ListFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    *AppointmentStatus
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

func (f *ListFilter) normalize() {
	if f.Limit <= 0 {
		f.Limit = 20 // default
	}
	if f.Limit > 100 {
		f.Limit = 100 // max
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
