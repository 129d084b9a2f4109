package prescription

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-core/internal/access"
	"github.com/hackgods/clinic-core/internal/apperr"
	"github.com/hackgods/clinic-core/internal/billing"
	"github.com/hackgods/clinic-core/internal/document"
	"github.com/hackgods/clinic-core/internal/outbox"
)

var ErrPrescriptionNotFound = apperr.NotFound("prescription not found")

// Gate issues prescriptions and decides when their documents may be released.
type Gate struct {
	repo     Repository
	renderer document.Renderer
}

func NewGate(repo Repository, renderer document.Renderer) *Gate {
	return &Gate{repo: repo, renderer: renderer}
}

// Issue creates a pending prescription authored by actor.
func (g *Gate) Issue(ctx context.Context, actor access.Actor, req IssueRequest) (*Prescription, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := access.Authorize(actor, access.OpIssuePrescription, access.Owner{PatientID: req.PatientID, DoctorID: actor.ID}); err != nil {
		return nil, err
	}

	p := &Prescription{
		ID:             uuid.New(),
		DoctorID:       actor.ID,
		PatientID:      req.PatientID,
		ConsultationID: req.ConsultationID,
		Diagnosis:      strings.TrimSpace(req.Diagnosis),
		Medications:    req.Medications,
		Status:         StatusPending,
	}

	events := outbox.Notify(
		outbox.EventPrescriptionIssued,
		"New prescription",
		fmt.Sprintf("A prescription with %d medication(s) was issued", len(p.Medications)),
		p.ID, actor.ID,
		p.PatientID,
	)

	created, err := g.repo.Insert(ctx, p, events)
	if err != nil {
		return nil, wrap("issue prescription", err)
	}

	zerolog.Ctx(ctx).Info().
		Stringer("prescription_id", created.ID).
		Stringer("doctor_id", created.DoctorID).
		Msg("prescription issued")

	return created, nil
}

// AttachInvoice links the invoice that settles the prescription. The link is
// one-to-one and never replaced.
func (g *Gate) AttachInvoice(ctx context.Context, actor access.Actor, id, invoiceID uuid.UUID) (*Prescription, error) {
	if invoiceID == uuid.Nil {
		return nil, apperr.Validation("invoice_id is required")
	}

	updated, err := g.repo.Attach(ctx, id, invoiceID, func(p *Prescription, inv InvoiceRef) ([]outbox.Event, error) {
		if err := access.Authorize(actor, access.OpAttachInvoice, p.Owner()); err != nil {
			return nil, err
		}
		if p.InvoiceID != nil {
			return nil, apperr.Conflict("prescription already linked to invoice %s", *p.InvoiceID)
		}
		if inv.PatientID != p.PatientID {
			return nil, apperr.Validation("invoice belongs to another patient")
		}
		if inv.Status == billing.StatusCancelled {
			return nil, apperr.State("invoice is cancelled")
		}

		linked := inv.ID
		p.InvoiceID = &linked
		if inv.Status == billing.StatusPaid {
			p.Status = StatusPaid
			return releasedEvents(p.ID, p.PatientID), nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, wrap("attach invoice", err)
	}

	return updated, nil
}

// CanRelease reports whether actor may obtain the prescription document. The
// author always can; the patient only once the linked invoice is paid.
// Anyone else cannot.
func (g *Gate) CanRelease(ctx context.Context, actor access.Actor, id uuid.UUID) (bool, error) {
	p, inv, err := g.repo.ReleaseState(ctx, id)
	if err != nil {
		return false, wrap("load prescription", err)
	}
	return canRelease(actor, p, inv), nil
}

func canRelease(actor access.Actor, p *Prescription, inv *InvoiceRef) bool {
	switch {
	case actor.Role == access.RoleDoctor && actor.ID == p.DoctorID:
		return true
	case actor.Role == access.RolePatient && actor.ID == p.PatientID:
		return inv != nil && inv.Status == billing.StatusPaid
	default:
		return false
	}
}

func (g *Gate) Get(ctx context.Context, actor access.Actor, id uuid.UUID) (*Prescription, error) {
	p, err := g.repo.Get(ctx, id)
	if err != nil {
		return nil, wrap("get prescription", err)
	}
	if err := access.Authorize(actor, access.OpViewPrescription, p.Owner()); err != nil {
		return nil, err
	}
	return p, nil
}

// Document renders the prescription for a caller allowed to release it.
func (g *Gate) Document(ctx context.Context, actor access.Actor, id uuid.UUID) (*document.File, error) {
	p, inv, err := g.repo.ReleaseState(ctx, id)
	if err != nil {
		return nil, wrap("load prescription", err)
	}
	if !canRelease(actor, p, inv) {
		return nil, apperr.Forbidden("prescription %s is not released", id)
	}

	rows := make([][]string, 0, len(p.Medications))
	for _, m := range p.Medications {
		rows = append(rows, []string{m.Name, m.Dosage, m.Regimen, m.Duration})
	}

	file, err := g.renderer.Render(ctx, document.Record{
		Name:     "prescription-" + p.ID.String(),
		Title:    "Prescription",
		Subtitle: p.CreatedAt.Format("02 Jan 2006"),
		Fields: []document.Field{
			{Label: "Prescription", Value: p.ID.String()},
			{Label: "Doctor", Value: p.DoctorID.String()},
			{Label: "Patient", Value: p.PatientID.String()},
			{Label: "Diagnosis", Value: p.Diagnosis},
		},
		Table: &document.Table{
			Header: []string{"Medication", "Dosage", "Regimen", "Duration"},
			Rows:   rows,
		},
		Verify: "prescription:" + p.ID.String(),
	})
	if err != nil {
		return nil, apperr.Delivery(err, "render prescription")
	}
	return file, nil
}

// ReconcilePaid releases prescriptions whose invoice was paid without the
// settlement hook taking effect. Running it twice changes nothing.
func (g *Gate) ReconcilePaid(ctx context.Context) (int, error) {
	ids, err := g.repo.ReconcilePaid(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconcile paid prescriptions: %w", err)
	}
	if len(ids) > 0 {
		zerolog.Ctx(ctx).Warn().Int("count", len(ids)).Msg("released prescriptions missed by settlement")
	}
	return len(ids), nil
}

func wrap(op string, err error) error {
	if apperr.KindOf(err) != "" {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
