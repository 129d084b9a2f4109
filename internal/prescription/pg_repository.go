package prescription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-core/internal/apperr"
	"github.com/hackgods/clinic-core/internal/billing"
	"github.com/hackgods/clinic-core/internal/db"
	"github.com/hackgods/clinic-core/internal/outbox"
)

const invoiceConstraint = "prescriptions_invoice_uq"

const selectPrescription = `
	SELECT id, doctor_id, patient_id, consultation_id, diagnosis, medications, status, invoice_id, created_at, updated_at
	FROM prescriptions`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(
		&p.ID,
		&p.DoctorID,
		&p.PatientID,
		&p.ConsultationID,
		&p.Diagnosis,
		&p.Medications,
		&p.Status,
		&p.InvoiceID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrescriptionNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Interface methods

func (r *PgRepository) Insert(ctx context.Context, p *Prescription, events []outbox.Event) (*Prescription, error) {
	var created *Prescription

	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO prescriptions (id, doctor_id, patient_id, consultation_id, diagnosis, medications, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, doctor_id, patient_id, consultation_id, diagnosis, medications, status, invoice_id, created_at, updated_at
		`, p.ID, p.DoctorID, p.PatientID, p.ConsultationID, p.Diagnosis, p.Medications, p.Status)

		var err error
		created, err = scanPrescription(row)
		if err != nil {
			return fmt.Errorf("insert prescription: %w", err)
		}

		return outbox.Append(ctx, tx, events...)
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return scanPrescription(r.pool.QueryRow(ctx, selectPrescription+` WHERE id = $1`, id))
}

func (r *PgRepository) Attach(ctx context.Context, id, invoiceID uuid.UUID, fn AttachFunc) (*Prescription, error) {
	var updated *Prescription

	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanPrescription(tx.QueryRow(ctx, selectPrescription+` WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		// FOR SHARE keeps the invoice status stable until the link commits;
		// a concurrent payment waits and then sees the link through the
		// settlement hook.
		var inv InvoiceRef
		err = tx.QueryRow(ctx, `
			SELECT id, patient_id, status FROM invoices WHERE id = $1 FOR SHARE
		`, invoiceID).Scan(&inv.ID, &inv.PatientID, &inv.Status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return billing.ErrInvoiceNotFound
			}
			return fmt.Errorf("load invoice: %w", err)
		}

		events, err := fn(current, inv)
		if err != nil {
			return err
		}

		updated, err = scanPrescription(tx.QueryRow(ctx, `
			UPDATE prescriptions
			SET invoice_id = $2,
			    status = $3,
			    updated_at = now()
			WHERE id = $1
			RETURNING id, doctor_id, patient_id, consultation_id, diagnosis, medications, status, invoice_id, created_at, updated_at
		`, id, current.InvoiceID, current.Status))
		if err != nil {
			return fmt.Errorf("link invoice: %w", err)
		}

		return outbox.Append(ctx, tx, events...)
	})
	if err != nil {
		if db.IsUniqueViolation(err, invoiceConstraint) {
			return nil, apperr.Conflict("invoice %s already settles another prescription", invoiceID)
		}
		return nil, err
	}

	return updated, nil
}

func (r *PgRepository) ReleaseState(ctx context.Context, id uuid.UUID) (*Prescription, *InvoiceRef, error) {
	var (
		p          Prescription
		invID      *uuid.UUID
		invPatient *uuid.UUID
		invStatus  *billing.InvoiceStatus
	)
	err := r.pool.QueryRow(ctx, `
		SELECT p.id, p.doctor_id, p.patient_id, p.consultation_id, p.diagnosis, p.medications,
		       p.status, p.invoice_id, p.created_at, p.updated_at,
		       i.id, i.patient_id, i.status
		FROM prescriptions p
		LEFT JOIN invoices i ON i.id = p.invoice_id
		WHERE p.id = $1
	`, id).Scan(
		&p.ID, &p.DoctorID, &p.PatientID, &p.ConsultationID, &p.Diagnosis, &p.Medications,
		&p.Status, &p.InvoiceID, &p.CreatedAt, &p.UpdatedAt,
		&invID, &invPatient, &invStatus,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrPrescriptionNotFound
		}
		return nil, nil, err
	}

	if invID == nil {
		return &p, nil, nil
	}
	return &p, &InvoiceRef{ID: *invID, PatientID: *invPatient, Status: *invStatus}, nil
}

func (r *PgRepository) ReconcilePaid(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID

	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			UPDATE prescriptions p
			SET status = 'paid', updated_at = now()
			FROM invoices i
			WHERE i.id = p.invoice_id
			  AND i.status = 'paid'
			  AND p.status = 'pending'
			RETURNING p.id, p.patient_id
		`)
		if err != nil {
			return fmt.Errorf("reconcile prescriptions: %w", err)
		}

		var events []outbox.Event
		for rows.Next() {
			var id, patientID uuid.UUID
			if err := rows.Scan(&id, &patientID); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
			events = append(events, releasedEvents(id, patientID)...)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		return outbox.Append(ctx, tx, events...)
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// MarkInvoicePaid is a billing.SettlementHook: it releases the prescription
// linked to invoiceID inside the payment transaction.
func (r *PgRepository) MarkInvoicePaid(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID) error {
	var id, patientID uuid.UUID
	err := tx.QueryRow(ctx, `
		UPDATE prescriptions
		SET status = 'paid', updated_at = now()
		WHERE invoice_id = $1 AND status = 'pending'
		RETURNING id, patient_id
	`, invoiceID).Scan(&id, &patientID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release prescription: %w", err)
	}

	return outbox.Append(ctx, tx, releasedEvents(id, patientID)...)
}
