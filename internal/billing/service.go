package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-core/internal/access"
	"github.com/hackgods/clinic-core/internal/apperr"
	"github.com/hackgods/clinic-core/internal/outbox"
)

type Ledger struct {
	repo Repository
}

func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// CreateInvoice prices the items, splits out the tax and stores the invoice
// with its number in one transaction.
func (l *Ledger) CreateInvoice(ctx context.Context, actor access.Actor, req CreateInvoiceRequest) (*Invoice, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := access.Authorize(actor, access.OpCreateInvoice, access.Owner{PatientID: req.PatientID}); err != nil {
		return nil, err
	}

	// Totals come from the stored prices so the lines always add up.
	items := make([]Item, len(req.Items))
	for i, it := range req.Items {
		it.UnitPrice = round2(it.UnitPrice)
		items[i] = it
	}

	rate := round2(req.TaxRate)
	totals := ComputeTotals(items, rate)
	coverage := round2(req.InsuranceCoverage)
	if coverage.GreaterThan(totals.Total) {
		return nil, apperr.Validation("insurance coverage %s exceeds the invoice total %s",
			coverage.StringFixed(2), totals.Total.StringFixed(2))
	}

	due := totals.Total.Sub(coverage)
	inv := &Invoice{
		ID:                uuid.New(),
		PatientID:         req.PatientID,
		ConsultationID:    req.ConsultationID,
		Items:             items,
		TaxRate:           rate,
		AmountExclTax:     totals.ExclTax,
		AmountTax:         totals.Tax,
		AmountTotal:       totals.Total,
		InsuranceCoverage: coverage,
		AmountPaid:        zero,
		AmountDue:         due,
		Status:            deriveStatus(zero, due),
	}

	events := outbox.Notify(
		outbox.EventInvoiceCreated,
		"New invoice",
		fmt.Sprintf("An invoice of %s has been issued, %s due", totals.Total.StringFixed(2), due.StringFixed(2)),
		inv.ID, actor.ID,
		inv.PatientID,
	)

	created, err := l.repo.Create(ctx, inv, events)
	if err != nil {
		return nil, wrap("create invoice", err)
	}

	zerolog.Ctx(ctx).Info().
		Stringer("invoice_id", created.ID).
		Str("number", created.Number).
		Str("total", created.AmountTotal.StringFixed(2)).
		Msg("invoice created")

	return created, nil
}

// ApplyPayment records a payment against the locked invoice row. Payments on
// the same invoice serialize, so of two payments that together overpay the
// second one fails.
func (l *Ledger) ApplyPayment(ctx context.Context, actor access.Actor, invoiceID uuid.UUID, req PaymentRequest) (*PaymentResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var payment *Payment
	updated, err := l.repo.Update(ctx, invoiceID, func(inv *Invoice) (*Payment, []outbox.Event, error) {
		if err := access.Authorize(actor, access.OpApplyPayment, inv.Owner()); err != nil {
			return nil, nil, err
		}
		if err := inv.settle(req.Amount); err != nil {
			return nil, nil, err
		}

		payment = &Payment{
			ID:         uuid.New(),
			InvoiceID:  inv.ID,
			Amount:     req.Amount,
			Method:     req.Method,
			Reference:  req.Reference,
			RecordedBy: actor.ID,
		}

		events := outbox.Notify(
			outbox.EventInvoicePayment,
			"Payment received",
			fmt.Sprintf("Received %s on invoice %s, %s remaining", req.Amount.StringFixed(2), inv.Number, inv.AmountDue.StringFixed(2)),
			inv.ID, actor.ID,
			inv.PatientID,
		)
		if inv.Status == StatusPaid {
			events = append(events, outbox.Notify(
				outbox.EventInvoicePaid,
				"Invoice paid",
				fmt.Sprintf("Invoice %s is fully paid", inv.Number),
				inv.ID, actor.ID,
				inv.PatientID,
			)...)
		}
		return payment, events, nil
	})
	if err != nil {
		return nil, wrap("apply payment", err)
	}

	zerolog.Ctx(ctx).Info().
		Stringer("invoice_id", updated.ID).
		Str("amount", payment.Amount.StringFixed(2)).
		Str("due", updated.AmountDue.StringFixed(2)).
		Str("status", string(updated.Status)).
		Msg("payment applied")

	return &PaymentResult{
		Payment:    *payment,
		AmountPaid: updated.AmountPaid,
		AmountDue:  updated.AmountDue,
		Status:     updated.Status,
	}, nil
}

// CancelInvoice cancels an unpaid or partially paid invoice. Amounts already
// paid stay recorded.
func (l *Ledger) CancelInvoice(ctx context.Context, actor access.Actor, id uuid.UUID) (*Invoice, error) {
	updated, err := l.repo.Update(ctx, id, func(inv *Invoice) (*Payment, []outbox.Event, error) {
		if err := access.Authorize(actor, access.OpCancelInvoice, inv.Owner()); err != nil {
			return nil, nil, err
		}
		switch inv.Status {
		case StatusCancelled:
			return nil, nil, nil
		case StatusPaid:
			return nil, nil, apperr.State("invoice %s is paid and cannot be cancelled", inv.Number)
		}
		inv.Status = StatusCancelled
		return nil, outbox.Notify(
			outbox.EventInvoiceCancelled,
			"Invoice cancelled",
			fmt.Sprintf("Invoice %s was cancelled", inv.Number),
			inv.ID, actor.ID,
			inv.PatientID,
		), nil
	})
	if err != nil {
		return nil, wrap("cancel invoice", err)
	}
	return updated, nil
}

func (l *Ledger) Get(ctx context.Context, actor access.Actor, id uuid.UUID) (*Invoice, error) {
	inv, err := l.repo.Get(ctx, id)
	if err != nil {
		return nil, wrap("get invoice", err)
	}
	if err := access.Authorize(actor, access.OpViewInvoice, inv.Owner()); err != nil {
		return nil, err
	}
	return inv, nil
}

func (l *Ledger) List(ctx context.Context, actor access.Actor, f ListFilter) ([]Invoice, error) {
	if actor.Role == access.RolePatient {
		id := actor.ID
		f.PatientID = &id
	}
	owner := access.Owner{}
	if f.PatientID != nil {
		owner.PatientID = *f.PatientID
	}
	if err := access.Authorize(actor, access.OpViewInvoice, owner); err != nil {
		return nil, err
	}

	f.normalize()

	list, err := l.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return list, nil
}

func (l *Ledger) Payments(ctx context.Context, actor access.Actor, invoiceID uuid.UUID) ([]Payment, error) {
	if _, err := l.Get(ctx, actor, invoiceID); err != nil {
		return nil, err
	}
	payments, err := l.repo.Payments(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

func wrap(op string, err error) error {
	if apperr.KindOf(err) != "" {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
