//go:build integration

package prescription

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-core/internal/access"
	"github.com/hackgods/clinic-core/internal/apperr"
	"github.com/hackgods/clinic-core/internal/billing"
	"github.com/hackgods/clinic-core/internal/db/dbtest"
)

func TestPgGate_PaymentReleasesPrescription(t *testing.T) {
	pool := dbtest.Pool(t)
	ctx := context.Background()

	prescriptions := NewPgRepository(pool)
	gate := NewGate(prescriptions, nil)
	ledger := billing.NewLedger(billing.NewPgRepository(pool, prescriptions.MarkInvoicePaid))

	doctor := access.Actor{ID: uuid.New(), Role: access.RoleDoctor}
	patient := access.Actor{ID: uuid.New(), Role: access.RolePatient}

	p, err := gate.Issue(ctx, doctor, IssueRequest{
		PatientID:   patient.ID,
		Diagnosis:   "Otitis media",
		Medications: []Medication{{Name: "Amoxicillin", Dosage: "250 mg", Regimen: "2x daily"}},
	})
	require.NoError(t, err)

	inv, err := ledger.CreateInvoice(ctx, doctor, billing.CreateInvoiceRequest{
		PatientID: patient.ID,
		Items:     []billing.Item{{Description: "Consultation", Quantity: 1, UnitPrice: decimal.NewFromInt(60)}},
		TaxRate:   decimal.Zero,
	})
	require.NoError(t, err)

	linked, err := gate.AttachInvoice(ctx, doctor, p.ID, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, linked.Status)

	second, err := gate.Issue(ctx, doctor, IssueRequest{
		PatientID:   patient.ID,
		Diagnosis:   "Follow-up",
		Medications: []Medication{{Name: "Paracetamol", Dosage: "1 g", Regimen: "as needed"}},
	})
	require.NoError(t, err)
	_, err = gate.AttachInvoice(ctx, doctor, second.ID, inv.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)

	ok, err := gate.CanRelease(ctx, patient, p.ID)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = ledger.ApplyPayment(ctx, patient, inv.ID, billing.PaymentRequest{Amount: decimal.NewFromInt(60), Method: billing.MethodCard})
	require.NoError(t, err)

	ok, err = gate.CanRelease(ctx, patient, p.ID)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := gate.Get(ctx, patient, p.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, got.Status)
	require.Equal(t, "Amoxicillin", got.Medications[0].Name)

	n, err := gate.ReconcilePaid(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}
