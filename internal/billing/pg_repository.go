package billing

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

// SettlementHook runs inside the payment transaction that turns an invoice
// paid. Returning an error rolls the payment back.
type SettlementHook func(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID) error

var ErrInvoiceNotFound = apperr.NotFound("invoice not found")

var invoiceColumns = []string{
	"id", "number", "patient_id", "consultation_id", "tax_rate",
	"amount_excl_tax", "amount_tax", "amount_total", "insurance_coverage",
	"amount_paid", "amount_due", "status", "created_at", "updated_at",
}

const selectInvoice = `
	SELECT id, number, patient_id, consultation_id, tax_rate,
	       amount_excl_tax, amount_tax, amount_total, insurance_coverage,
	       amount_paid, amount_due, status, created_at, updated_at
	FROM invoices`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PgRepository struct {
	pool  *pgxpool.Pool
	hooks []SettlementHook
}

func NewPgRepository(pool *pgxpool.Pool, hooks ...SettlementHook) *PgRepository {
	return &PgRepository{pool: pool, hooks: hooks}
}

// Helpers

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID,
		&inv.Number,
		&inv.PatientID,
		&inv.ConsultationID,
		&inv.TaxRate,
		&inv.AmountExclTax,
		&inv.AmountTax,
		&inv.AmountTotal,
		&inv.InsuranceCoverage,
		&inv.AmountPaid,
		&inv.AmountDue,
		&inv.Status,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func loadItems(ctx context.Context, q db.Querier, invoiceID uuid.UUID) ([]Item, error) {
	rows, err := q.Query(ctx, `
		SELECT description, quantity, unit_price, category
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY position
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("query invoice items: %w", err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var it Item
		err := row.Scan(&it.Description, &it.Quantity, &it.UnitPrice, &it.Category)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan invoice items: %w", err)
	}
	return items, nil
}

func translateWriteErr(err error) error {
	if db.IsLockConflict(err) {
		return apperr.Conflict("invoice is being modified concurrently, please retry")
	}
	return err
}

// Interface methods

func (r *PgRepository) Create(ctx context.Context, inv *Invoice, events []outbox.Event) (*Invoice, error) {
	var created *Invoice

	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			seq int64
			now time.Time
		)
		if err := tx.QueryRow(ctx, `SELECT nextval('invoice_number_seq'), now()`).Scan(&seq, &now); err != nil {
			return fmt.Errorf("next invoice number: %w", err)
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO invoices (id, number, patient_id, consultation_id, tax_rate,
			                      amount_excl_tax, amount_tax, amount_total, insurance_coverage,
			                      amount_paid, amount_due, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
			RETURNING id, number, patient_id, consultation_id, tax_rate,
			          amount_excl_tax, amount_tax, amount_total, insurance_coverage,
			          amount_paid, amount_due, status, created_at, updated_at
		`, inv.ID, FormatNumber(now.Year(), seq), inv.PatientID, inv.ConsultationID, inv.TaxRate,
			inv.AmountExclTax, inv.AmountTax, inv.AmountTotal, inv.InsuranceCoverage,
			inv.AmountPaid, inv.AmountDue, inv.Status, now)

		var err error
		created, err = scanInvoice(row)
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}

		batch := &pgx.Batch{}
		for i, it := range inv.Items {
			batch.Queue(`
				INSERT INTO invoice_items (invoice_id, position, description, quantity, unit_price, category)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, inv.ID, i, it.Description, it.Quantity, it.UnitPrice, it.Category)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert invoice items: %w", err)
		}
		created.Items = append([]Item(nil), inv.Items...)

		return outbox.Append(ctx, tx, events...)
	})
	if err != nil {
		return nil, translateWriteErr(err)
	}

	return created, nil
}

// Update sets PaidAt on the payment returned by fn once it is stored.
func (r *PgRepository) Update(ctx context.Context, id uuid.UUID, fn MutateFunc) (*Invoice, error) {
	var updated *Invoice

	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanInvoice(tx.QueryRow(ctx, selectInvoice+` WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		previous := current.Status

		payment, events, err := fn(current)
		if err != nil {
			return err
		}

		if payment != nil {
			err := tx.QueryRow(ctx, `
				INSERT INTO payments (id, invoice_id, amount, method, reference, recorded_by)
				VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
				RETURNING paid_at
			`, payment.ID, id, payment.Amount, payment.Method, payment.Reference, payment.RecordedBy).Scan(&payment.PaidAt)
			if err != nil {
				return fmt.Errorf("insert payment: %w", err)
			}
		}

		updated, err = scanInvoice(tx.QueryRow(ctx, `
			UPDATE invoices
			SET amount_paid = $2,
			    amount_due = $3,
			    status = $4,
			    updated_at = now()
			WHERE id = $1
			RETURNING id, number, patient_id, consultation_id, tax_rate,
			          amount_excl_tax, amount_tax, amount_total, insurance_coverage,
			          amount_paid, amount_due, status, created_at, updated_at
		`, id, current.AmountPaid, current.AmountDue, current.Status))
		if err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}

		if previous != StatusPaid && updated.Status == StatusPaid {
			for _, hook := range r.hooks {
				if err := hook(ctx, tx, id); err != nil {
					return fmt.Errorf("settlement hook: %w", err)
				}
			}
		}

		if updated.Items, err = loadItems(ctx, tx, id); err != nil {
			return err
		}

		return outbox.Append(ctx, tx, events...)
	})
	if err != nil {
		return nil, translateWriteErr(err)
	}

	return updated, nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, selectInvoice+` WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if inv.Items, err = loadItems(ctx, r.pool, id); err != nil {
		return nil, err
	}
	return inv, nil
}

// List returns invoices without their items.
func (r *PgRepository) List(ctx context.Context, f ListFilter) ([]Invoice, error) {
	q := psql.Select(invoiceColumns...).
		From("invoices").
		OrderBy("created_at DESC", "id").
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset))

	if f.PatientID != nil {
		q = q.Where(sq.Eq{"patient_id": *f.PatientID})
	}
	if f.Status != nil {
		q = q.Where(sq.Eq{"status": *f.Status})
	}
	if f.From != nil {
		q = q.Where(sq.GtOrEq{"created_at": *f.From})
	}
	if f.To != nil {
		q = q.Where(sq.Lt{"created_at": *f.To})
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

	var result []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *inv)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) Payments(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, invoice_id, amount, method, COALESCE(reference, ''), paid_at, recorded_by
		FROM payments
		WHERE invoice_id = $1
		ORDER BY paid_at, id
	`, invoiceID)
	if err != nil {
		return nil, err
	}

	payments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Payment, error) {
		var p Payment
		err := row.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Reference, &p.PaidAt, &p.RecordedBy)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect payments: %w", err)
	}
	return payments, nil
}
