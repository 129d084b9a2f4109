package document

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPDFRenderer_Render(t *testing.T) {
	r := NewPDFRenderer("Clinique Saint-Roch")
	r.now = func() time.Time { return time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC) }

	f, err := r.Render(context.Background(), Record{
		Name:  "prescription 123",
		Title: "Prescription",
		Fields: []Field{
			{Label: "Patient", Value: "Jeanne Dupré"},
			{Label: "Diagnosis", Value: "Acute sinusitis"},
		},
		Table: &Table{
			Header: []string{"Medication", "Dosage", "Regimen"},
			Rows:   [][]string{{"Amoxicillin", "500 mg", "3x daily"}, {"Paracetamol"}},
		},
		Footer: "Valid for 3 months.",
	})
	require.NoError(t, err)

	require.Equal(t, "prescription_123.pdf", f.Name)
	require.Equal(t, "application/pdf", f.ContentType)
	require.True(t, bytes.HasPrefix(f.Data, []byte("%PDF-")))
}

func TestPDFRenderer_VerificationCode(t *testing.T) {
	r := NewPDFRenderer("Clinic")

	plain, err := r.Render(context.Background(), Record{Title: "Prescription"})
	require.NoError(t, err)

	withQR, err := r.Render(context.Background(), Record{Title: "Prescription", Verify: "prescription:42"})
	require.NoError(t, err)

	require.True(t, bytes.HasPrefix(withQR.Data, []byte("%PDF-")))
	require.Greater(t, len(withQR.Data), len(plain.Data))
	require.Contains(t, string(withQR.Data), "/Subtype /Image")
}

func TestPDFRenderer_RequiresTitle(t *testing.T) {
	_, err := NewPDFRenderer("Clinic").Render(context.Background(), Record{Name: "x"})
	require.Error(t, err)
}

func TestPDFRenderer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPDFRenderer("Clinic").Render(ctx, Record{Title: "Visit summary"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFileName(t *testing.T) {
	require.Equal(t, "document.pdf", fileName("  "))
	require.Equal(t, "INV-2024-000001.pdf", fileName("INV-2024-000001"))
	require.Equal(t, "a_b_c.pdf", fileName("a/b c"))
}
