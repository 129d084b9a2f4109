package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-core/internal/access"
	"github.com/hackgods/clinic-core/internal/apperr"
	"github.com/hackgods/clinic-core/internal/calendar"
	"github.com/hackgods/clinic-core/internal/config"
	"github.com/hackgods/clinic-core/internal/document"
	"github.com/hackgods/clinic-core/internal/outbox"
	redisclient "github.com/hackgods/clinic-core/internal/redis"
)

var (
	ErrAppointmentNotFound = apperr.NotFound("appointment not found")
	ErrSlotBeingBooked     = apperr.Conflict("slot is currently being booked, please retry")
)

type Scheduler struct {
	repo     Repository
	locker   redisclient.Locker
	renderer document.Renderer
	hours    calendar.WorkingHours
	slot     time.Duration
	loc      *time.Location
	now      func() time.Time
}

func NewScheduler(repo Repository, locker redisclient.Locker, renderer document.Renderer, sched config.Schedule) *Scheduler {
	if locker == nil {
		locker = redisclient.NoopLocker{}
	}
	return &Scheduler{
		repo:     repo,
		locker:   locker,
		renderer: renderer,
		hours:    calendar.WorkingHours{StartHour: sched.StartHour, EndHour: sched.EndHour},
		slot:     sched.SlotDuration,
		loc:      sched.Location(),
		now:      time.Now,
	}
}

// WithClock replaces the scheduler clock. Tests only.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Book reserves a slot for a patient. The collision check and the insert are
// one statement guarded by the partial unique index, so two concurrent
// bookings for the same doctor and instant cannot both succeed. The Redis
// lock in front only turns most races into an early conflict.
func (s *Scheduler) Book(ctx context.Context, actor access.Actor, req BookRequest) (*Appointment, error) {
	if err := req.validate(s.now()); err != nil {
		return nil, err
	}
	if err := access.Authorize(actor, access.OpBookAppointment, access.Owner{PatientID: req.PatientID, DoctorID: req.DoctorID}); err != nil {
		return nil, err
	}

	duration := req.Duration
	if duration == 0 {
		duration = s.slot
	}

	appt := &Appointment{
		ID:          uuid.New(),
		DoctorID:    req.DoctorID,
		PatientID:   req.PatientID,
		ScheduledAt: req.ScheduledAt.Truncate(time.Second),
		Duration:    duration,
		Reason:      req.Reason,
		Status:      StatusScheduled,
	}

	events := outbox.Notify(
		outbox.EventAppointmentCreated,
		"Appointment booked",
		fmt.Sprintf("Appointment on %s", s.display(appt.ScheduledAt)),
		appt.ID, actor.ID,
		appt.PatientID, appt.DoctorID,
	)

	var created *Appointment
	err := s.locker.WithLock(ctx, redisclient.SlotKey(appt.DoctorID, appt.ScheduledAt), func(lockCtx context.Context) error {
		var err error
		created, err = s.repo.Insert(lockCtx, appt, events)
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, s.wrap("book appointment", err)
	}

	zerolog.Ctx(ctx).Info().
		Stringer("appointment_id", created.ID).
		Stringer("doctor_id", created.DoctorID).
		Time("scheduled_at", created.ScheduledAt).
		Msg("appointment booked")

	return created, nil
}

// Reschedule moves an appointment to a new instant. The row is locked and
// updated in place so it never collides with itself.
func (s *Scheduler) Reschedule(ctx context.Context, actor access.Actor, id uuid.UUID, newInstant time.Time) (*Appointment, error) {
	if newInstant.IsZero() {
		return nil, apperr.Validation("scheduled_at is required")
	}
	if err := notInPast(newInstant, s.now()); err != nil {
		return nil, err
	}
	at := newInstant.Truncate(time.Second)

	mutate := func(a *Appointment) ([]outbox.Event, error) {
		if err := access.Authorize(actor, access.OpRescheduleAppointment, a.Owner()); err != nil {
			return nil, err
		}
		if a.Status != StatusScheduled {
			return nil, apperr.State("cannot reschedule a %s appointment", a.Status)
		}
		previous := a.ScheduledAt
		a.ScheduledAt = at
		return outbox.Notify(
			outbox.EventAppointmentRescheduled,
			"Appointment rescheduled",
			fmt.Sprintf("Moved from %s to %s", s.display(previous), s.display(at)),
			a.ID, actor.ID,
			a.PatientID, a.DoctorID,
		), nil
	}

	// The doctor is only known once the row is loaded, so the advisory lock
	// is keyed on the appointment itself.
	var updated *Appointment
	err := s.locker.WithLock(ctx, "lock:appointment:"+id.String(), func(lockCtx context.Context) error {
		var err error
		updated, err = s.repo.Update(lockCtx, id, mutate)
		return err
	})
	if err != nil {
		return nil, s.wrap("reschedule appointment", err)
	}

	return updated, nil
}

// Cancel marks an appointment cancelled, freeing its slot. Patients may only
// cancel their own appointments.
func (s *Scheduler) Cancel(ctx context.Context, actor access.Actor, id uuid.UUID) (*Appointment, error) {
	updated, err := s.repo.Update(ctx, id, func(a *Appointment) ([]outbox.Event, error) {
		if err := access.Authorize(actor, access.OpCancelAppointment, a.Owner()); err != nil {
			return nil, err
		}
		if !a.Status.CanTransitionTo(StatusCancelled) {
			return nil, apperr.State("appointment is already %s", a.Status)
		}
		a.Status = StatusCancelled
		return outbox.Notify(
			outbox.EventAppointmentCancelled,
			"Appointment cancelled",
			fmt.Sprintf("The appointment on %s was cancelled", s.display(a.ScheduledAt)),
			a.ID, actor.ID,
			a.PatientID, a.DoctorID,
		), nil
	})
	if err != nil {
		return nil, s.wrap("cancel appointment", err)
	}

	zerolog.Ctx(ctx).Info().Stringer("appointment_id", id).Msg("appointment cancelled")
	return updated, nil
}

// Advance moves an appointment forward (scheduled -> in_progress ->
// completed), typically when a consultation is opened or closed.
func (s *Scheduler) Advance(ctx context.Context, actor access.Actor, id uuid.UUID, next AppointmentStatus) (*Appointment, error) {
	if next != StatusInProgress && next != StatusCompleted {
		return nil, apperr.State("cannot advance to %q", next)
	}

	updated, err := s.repo.Update(ctx, id, func(a *Appointment) ([]outbox.Event, error) {
		if err := access.Authorize(actor, access.OpAdvanceAppointment, a.Owner()); err != nil {
			return nil, err
		}
		if !a.Status.CanTransitionTo(next) {
			return nil, apperr.State("cannot move appointment from %s to %s", a.Status, next)
		}
		a.Status = next
		return outbox.Notify(
			outbox.EventAppointmentStatus,
			"Appointment update",
			fmt.Sprintf("Appointment is now %s", next),
			a.ID, actor.ID,
			a.PatientID,
		), nil
	})
	if err != nil {
		return nil, s.wrap("advance appointment", err)
	}

	return updated, nil
}

func (s *Scheduler) UpdateNotes(ctx context.Context, actor access.Actor, id uuid.UUID, notes string) (*Appointment, error) {
	updated, err := s.repo.Update(ctx, id, func(a *Appointment) ([]outbox.Event, error) {
		if err := access.Authorize(actor, access.OpEditAppointmentNotes, a.Owner()); err != nil {
			return nil, err
		}
		if a.Status == StatusCancelled {
			return nil, apperr.State("appointment is cancelled")
		}
		a.Notes = notes
		return nil, nil
	})
	if err != nil {
		return nil, s.wrap("update notes", err)
	}
	return updated, nil
}

func (s *Scheduler) Get(ctx context.Context, actor access.Actor, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.wrap("get appointment", err)
	}
	if err := access.Authorize(actor, access.OpViewAppointment, a.Owner()); err != nil {
		return nil, err
	}
	return a, nil
}

// List returns appointments visible to actor. Patients and doctors only ever
// see their own.
func (s *Scheduler) List(ctx context.Context, actor access.Actor, f ListFilter) ([]Appointment, error) {
	switch actor.Role {
	case access.RolePatient:
		id := actor.ID
		f.PatientID = &id
	case access.RoleDoctor:
		id := actor.ID
		f.DoctorID = &id
	}
	owner := access.Owner{}
	if f.PatientID != nil {
		owner.PatientID = *f.PatientID
	}
	if f.DoctorID != nil {
		owner.DoctorID = *f.DoctorID
	}
	if err := access.Authorize(actor, access.OpViewAppointment, owner); err != nil {
		return nil, err
	}

	f.normalize()

	list, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return list, nil
}

// AvailableSlots lists the doctor's free slot starts on date, in the clinic's
// time zone. Slots already in the past are dropped.
func (s *Scheduler) AvailableSlots(ctx context.Context, actor access.Actor, doctorID uuid.UUID, date time.Time) ([]time.Time, error) {
	if doctorID == uuid.Nil {
		return nil, apperr.Validation("doctor_id is required")
	}
	if err := access.Authorize(actor, access.OpViewSlots, access.Owner{DoctorID: doctorID}); err != nil {
		return nil, err
	}

	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	from, to := calendar.DayBounds(day)

	booked, err := s.repo.BookedInstants(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load booked instants: %w", err)
	}

	slots := calendar.AvailableSlots(day, s.hours, s.slot, booked)

	now := s.now()
	free := slots[:0]
	for _, slot := range slots {
		if !slot.Before(now) {
			free = append(free, slot)
		}
	}
	return free, nil
}

// Document renders a visit summary. Only completed appointments are
// renderable.
func (s *Scheduler) Document(ctx context.Context, actor access.Actor, id uuid.UUID) (*document.File, error) {
	a, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusCompleted {
		return nil, apperr.State("appointment is %s, only completed appointments can be rendered", a.Status)
	}

	file, err := s.renderer.Render(ctx, document.Record{
		Name:     "appointment-" + a.ID.String(),
		Title:    "Visit summary",
		Subtitle: s.display(a.ScheduledAt),
		Fields: []document.Field{
			{Label: "Appointment", Value: a.ID.String()},
			{Label: "Doctor", Value: a.DoctorID.String()},
			{Label: "Patient", Value: a.PatientID.String()},
			{Label: "Duration", Value: a.Duration.String()},
			{Label: "Reason", Value: a.Reason},
			{Label: "Notes", Value: a.Notes},
		},
	})
	if err != nil {
		return nil, apperr.Delivery(err, "render visit summary")
	}
	return file, nil
}

func (s *Scheduler) display(t time.Time) string {
	return t.In(s.loc).Format("Mon 02 Jan 2006 15:04 MST")
}

// wrap keeps domain errors as they are and adds context to internal ones.
func (s *Scheduler) wrap(op string, err error) error {
	if apperr.KindOf(err) != "" {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
