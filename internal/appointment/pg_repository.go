package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-core/internal/apperr"
	"github.com/hackgods/clinic-core/internal/db"
	"github.com/hackgods/clinic-core/internal/outbox"
)

const slotConstraint = "appointments_doctor_slot_active_uq"

const selectAppointment = `
	SELECT id, doctor_id, patient_id, scheduled_at, duration_s, reason, status, notes, created_at, updated_at
	FROM appointments`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var durationS int64

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.ScheduledAt,
		&durationS,
		&a.Reason,
		&a.Status,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Duration = time.Duration(durationS) * time.Second
	return &a, nil
}

func translateWriteErr(err error, a *Appointment) error {
	if db.IsUniqueViolation(err, slotConstraint) {
		return apperr.Conflict("doctor %s already has an appointment at %s",
			a.DoctorID, a.ScheduledAt.UTC().Format(time.RFC3339))
	}
	if db.IsLockConflict(err) {
		return apperr.Conflict("appointment %s is being modified concurrently", a.ID)
	}
	return err
}

// Interface methods

func (r *PgRepository) Insert(ctx context.Context, a *Appointment, events []outbox.Event) (*Appointment, error) {
	var created *Appointment

	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO appointments (id, doctor_id, patient_id, scheduled_at, duration_s, reason, status, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
			RETURNING id, doctor_id, patient_id, scheduled_at, duration_s, reason, status, notes, created_at, updated_at
		`, a.ID, a.DoctorID, a.PatientID, a.ScheduledAt, int64(a.Duration/time.Second), a.Reason, a.Status, a.Notes)

		var err error
		created, err = scanAppointment(row)
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}

		return outbox.Append(ctx, tx, events...)
	})
	if err != nil {
		return nil, translateWriteErr(err, a)
	}

	return created, nil
}

func (r *PgRepository) Update(ctx context.Context, id uuid.UUID, fn MutateFunc) (*Appointment, error) {
	var (
		updated *Appointment
		current *Appointment
	)

	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		current, err = scanAppointment(tx.QueryRow(ctx, selectAppointment+` WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		events, err := fn(current)
		if err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
			UPDATE appointments
			SET scheduled_at = $2,
			    duration_s = $3,
			    status = $4,
			    notes = $5,
			    updated_at = now()
			WHERE id = $1
			RETURNING id, doctor_id, patient_id, scheduled_at, duration_s, reason, status, notes, created_at, updated_at
		`, id, current.ScheduledAt, int64(current.Duration/time.Second), current.Status, current.Notes)

		updated, err = scanAppointment(row)
		if err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}

		return outbox.Append(ctx, tx, events...)
	})
	if err != nil {
		if current == nil {
			return nil, err
		}
		return nil, translateWriteErr(err, current)
	}

	return updated, nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, selectAppointment+` WHERE id = $1`, id))
}

func (r *PgRepository) List(ctx context.Context, f ListFilter) ([]Appointment, error) {
	q := psql.Select("id", "doctor_id", "patient_id", "scheduled_at", "duration_s", "reason", "status", "notes", "created_at", "updated_at").
		From("appointments").
		OrderBy("scheduled_at", "id").
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset))

	if f.DoctorID != nil {
		q = q.Where(sq.Eq{"doctor_id": *f.DoctorID})
	}
	if f.PatientID != nil {
		q = q.Where(sq.Eq{"patient_id": *f.PatientID})
	}
	if f.Status != nil {
		q = q.Where(sq.Eq{"status": *f.Status})
	}
	if f.From != nil {
		q = q.Where(sq.GtOrEq{"scheduled_at": *f.From})
	}
	if f.To != nil {
		q = q.Where(sq.Lt{"scheduled_at": *f.To})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) BookedInstants(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT scheduled_at
		FROM appointments
		WHERE doctor_id = $1
		  AND status <> 'cancelled'
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		ORDER BY scheduled_at
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}

	instants, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, fmt.Errorf("collect booked instants: %w", err)
	}
	return instants, nil
}
