package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-core/internal/access"
	"github.com/hackgods/clinic-core/internal/apperr"
	"github.com/hackgods/clinic-core/internal/outbox"
)

// memRepo is an in-memory Repository; its mutex stands in for the invoice
// row lock.
type memRepo struct {
	mu       sync.Mutex
	seq      int64
	invoices map[uuid.UUID]Invoice
	payments map[uuid.UUID][]Payment
	events   []outbox.Event
	settled  []uuid.UUID
}

func newMemRepo() *memRepo {
	return &memRepo{
		invoices: make(map[uuid.UUID]Invoice),
		payments: make(map[uuid.UUID][]Payment),
	}
}

func (r *memRepo) Create(_ context.Context, inv *Invoice, events []outbox.Event) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	stored := *inv
	stored.Number = FormatNumber(2024, r.seq)
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.invoices[inv.ID] = stored
	r.events = append(r.events, events...)
	return &stored, nil
}

func (r *memRepo) Update(_ context.Context, id uuid.UUID, fn MutateFunc) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	previous := current.Status

	payment, events, err := fn(&current)
	if err != nil {
		return nil, err
	}
	if payment != nil {
		payment.PaidAt = time.Now()
		r.payments[id] = append(r.payments[id], *payment)
	}
	if previous != StatusPaid && current.Status == StatusPaid {
		r.settled = append(r.settled, id)
	}
	r.invoices[id] = current
	r.events = append(r.events, events...)
	return &current, nil
}

func (r *memRepo) Get(_ context.Context, id uuid.UUID) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	return &inv, nil
}

func (r *memRepo) List(_ context.Context, f ListFilter) ([]Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Invoice
	for _, inv := range r.invoices {
		if f.PatientID != nil && inv.PatientID != *f.PatientID {
			continue
		}
		if f.Status != nil && inv.Status != *f.Status {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func (r *memRepo) Payments(_ context.Context, invoiceID uuid.UUID) ([]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Payment(nil), r.payments[invoiceID]...), nil
}

func staff() access.Actor {
	return access.Actor{ID: uuid.New(), Role: access.RoleStaff}
}

func consultationInvoice(patient uuid.UUID) CreateInvoiceRequest {
	return CreateInvoiceRequest{
		PatientID: patient,
		Items: []Item{
			{Description: "Consultation", Quantity: 1, UnitPrice: dec("100"), Category: "consultation"},
			{Description: "Blood test", Quantity: 2, UnitPrice: dec("50"), Category: "lab"},
		},
		TaxRate: dec("20"),
	}
}

func requireBalanced(t *testing.T, inv *Invoice) {
	t.Helper()
	require.True(t, inv.AmountDue.Equal(inv.AmountTotal.Sub(inv.InsuranceCoverage).Sub(inv.AmountPaid)),
		"due %s != total %s - coverage %s - paid %s", inv.AmountDue, inv.AmountTotal, inv.InsuranceCoverage, inv.AmountPaid)
	require.False(t, inv.AmountDue.IsNegative())
}

func TestLedger_CreateInvoice(t *testing.T) {
	repo := newMemRepo()
	l := NewLedger(repo)

	inv, err := l.CreateInvoice(context.Background(), staff(), consultationInvoice(uuid.New()))
	require.NoError(t, err)

	require.Equal(t, "INV-2024-000001", inv.Number)
	require.Equal(t, "200.00", inv.AmountTotal.StringFixed(2))
	require.Equal(t, "166.67", inv.AmountExclTax.StringFixed(2))
	require.Equal(t, "33.33", inv.AmountTax.StringFixed(2))
	require.Equal(t, "200.00", inv.AmountDue.StringFixed(2))
	require.Equal(t, StatusUnpaid, inv.Status)
	require.Len(t, inv.Items, 2)
	requireBalanced(t, inv)

	require.Len(t, repo.events, 1)
	require.Equal(t, outbox.EventInvoiceCreated, repo.events[0].EventType)
	require.Equal(t, inv.PatientID, repo.events[0].RecipientID)
}

func TestLedger_CreateInvoiceCoverage(t *testing.T) {
	l := NewLedger(newMemRepo())
	ctx := context.Background()

	req := consultationInvoice(uuid.New())
	req.InsuranceCoverage = dec("200")
	inv, err := l.CreateInvoice(ctx, staff(), req)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, inv.Status, "fully covered invoices are settled at creation")
	requireBalanced(t, inv)

	req.InsuranceCoverage = dec("200.01")
	_, err = l.CreateInvoice(ctx, staff(), req)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestLedger_CreateInvoiceTotalMatchesStoredLines(t *testing.T) {
	l := NewLedger(newMemRepo())

	inv, err := l.CreateInvoice(context.Background(), staff(), CreateInvoiceRequest{
		PatientID: uuid.New(),
		Items:     []Item{{Description: "Swab", Quantity: 3, UnitPrice: dec("0.333")}},
		TaxRate:   dec("0"),
	})
	require.NoError(t, err)

	require.Equal(t, "0.33", inv.Items[0].UnitPrice.StringFixed(2))
	lines := zero
	for _, it := range inv.Items {
		lines = lines.Add(it.LineTotal())
	}
	require.True(t, inv.AmountTotal.Equal(lines), "total %s != stored lines %s", inv.AmountTotal, lines)
	require.Equal(t, "0.99", inv.AmountTotal.StringFixed(2))
	requireBalanced(t, inv)
}

func TestLedger_CreateInvoiceForbiddenForPatient(t *testing.T) {
	patient := uuid.New()
	_, err := NewLedger(newMemRepo()).CreateInvoice(context.Background(),
		access.Actor{ID: patient, Role: access.RolePatient}, consultationInvoice(patient))
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestLedger_ApplyPayment(t *testing.T) {
	repo := newMemRepo()
	l := NewLedger(repo)
	ctx := context.Background()
	patient := uuid.New()

	inv, err := l.CreateInvoice(ctx, staff(), consultationInvoice(patient))
	require.NoError(t, err)

	payer := access.Actor{ID: patient, Role: access.RolePatient}

	res, err := l.ApplyPayment(ctx, payer, inv.ID, PaymentRequest{Amount: dec("80"), Method: MethodCard})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyPaid, res.Status)
	require.Equal(t, "80.00", res.AmountPaid.StringFixed(2))
	require.Equal(t, "120.00", res.AmountDue.StringFixed(2))
	require.Equal(t, patient, res.Payment.RecordedBy)
	require.False(t, res.Payment.PaidAt.IsZero())

	res, err = l.ApplyPayment(ctx, payer, inv.ID, PaymentRequest{Amount: dec("45.5"), Method: MethodCash})
	require.NoError(t, err)
	require.Equal(t, "125.50", res.AmountPaid.StringFixed(2), "sequential payments add up")
	require.Equal(t, "74.50", res.AmountDue.StringFixed(2))

	_, err = l.ApplyPayment(ctx, payer, inv.ID, PaymentRequest{Amount: dec("74.51"), Method: MethodCash})
	require.ErrorIs(t, err, apperr.ErrOverpayment)

	res, err = l.ApplyPayment(ctx, payer, inv.ID, PaymentRequest{Amount: dec("74.50"), Method: MethodBankTransfer, Reference: "TRX-1"})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, res.Status)
	require.True(t, res.AmountDue.IsZero())

	got, err := l.Get(ctx, payer, inv.ID)
	require.NoError(t, err)
	requireBalanced(t, got)
	require.Equal(t, []uuid.UUID{inv.ID}, repo.settled)

	payments, err := l.Payments(ctx, payer, inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 3)

	// a paid invoice has nothing left to pay
	_, err = l.ApplyPayment(ctx, payer, inv.ID, PaymentRequest{Amount: dec("1"), Method: MethodCash})
	require.ErrorIs(t, err, apperr.ErrOverpayment)
}

func TestLedger_PayInFull(t *testing.T) {
	l := NewLedger(newMemRepo())
	ctx := context.Background()

	inv, err := l.CreateInvoice(ctx, staff(), consultationInvoice(uuid.New()))
	require.NoError(t, err)

	res, err := l.ApplyPayment(ctx, staff(), inv.ID, PaymentRequest{Amount: dec("200"), Method: MethodCard})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, res.Status)
	require.Equal(t, "0.00", res.AmountDue.StringFixed(2))
}

func TestLedger_ApplyPaymentErrors(t *testing.T) {
	l := NewLedger(newMemRepo())
	ctx := context.Background()

	inv, err := l.CreateInvoice(ctx, staff(), consultationInvoice(uuid.New()))
	require.NoError(t, err)

	_, err = l.ApplyPayment(ctx, staff(), inv.ID, PaymentRequest{Amount: dec("0"), Method: MethodCash})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = l.ApplyPayment(ctx, staff(), uuid.New(), PaymentRequest{Amount: dec("10"), Method: MethodCash})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	stranger := access.Actor{ID: uuid.New(), Role: access.RolePatient}
	_, err = l.ApplyPayment(ctx, stranger, inv.ID, PaymentRequest{Amount: dec("10"), Method: MethodCash})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = l.CancelInvoice(ctx, staff(), inv.ID)
	require.NoError(t, err)
	_, err = l.ApplyPayment(ctx, staff(), inv.ID, PaymentRequest{Amount: dec("10"), Method: MethodCash})
	require.ErrorIs(t, err, apperr.ErrState)
}

func TestLedger_ConcurrentOverpayment(t *testing.T) {
	l := NewLedger(newMemRepo())
	ctx := context.Background()

	inv, err := l.CreateInvoice(ctx, staff(), consultationInvoice(uuid.New()))
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.ApplyPayment(ctx, staff(), inv.ID, PaymentRequest{Amount: dec("150"), Method: MethodCard})
		}(i)
	}
	wg.Wait()

	var ok, over int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrOverpayment):
			over++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, over)

	got, err := l.Get(ctx, staff(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, "150.00", got.AmountPaid.StringFixed(2))
	requireBalanced(t, got)
}

func TestLedger_CancelInvoice(t *testing.T) {
	l := NewLedger(newMemRepo())
	ctx := context.Background()

	inv, err := l.CreateInvoice(ctx, staff(), consultationInvoice(uuid.New()))
	require.NoError(t, err)

	doctor := access.Actor{ID: uuid.New(), Role: access.RoleDoctor}
	_, err = l.CancelInvoice(ctx, doctor, inv.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = l.ApplyPayment(ctx, staff(), inv.ID, PaymentRequest{Amount: dec("50"), Method: MethodCash})
	require.NoError(t, err)

	cancelled, err := l.CancelInvoice(ctx, staff(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, "50.00", cancelled.AmountPaid.StringFixed(2), "paid amounts are kept")
	requireBalanced(t, cancelled)

	again, err := l.CancelInvoice(ctx, staff(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, again.Status)
}

func TestLedger_CancelPaidInvoice(t *testing.T) {
	l := NewLedger(newMemRepo())
	ctx := context.Background()

	inv, err := l.CreateInvoice(ctx, staff(), consultationInvoice(uuid.New()))
	require.NoError(t, err)
	_, err = l.ApplyPayment(ctx, staff(), inv.ID, PaymentRequest{Amount: dec("200"), Method: MethodCard})
	require.NoError(t, err)

	_, err = l.CancelInvoice(ctx, staff(), inv.ID)
	require.ErrorIs(t, err, apperr.ErrState)
}

func TestLedger_ListScopesPatients(t *testing.T) {
	l := NewLedger(newMemRepo())
	ctx := context.Background()
	patient := uuid.New()

	_, err := l.CreateInvoice(ctx, staff(), consultationInvoice(patient))
	require.NoError(t, err)
	_, err = l.CreateInvoice(ctx, staff(), consultationInvoice(uuid.New()))
	require.NoError(t, err)

	mine, err := l.List(ctx, access.Actor{ID: patient, Role: access.RolePatient}, ListFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)

	all, err := l.List(ctx, staff(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	unpaid := StatusUnpaid
	filtered, err := l.List(ctx, staff(), ListFilter{Status: &unpaid})
	require.NoError(t, err)
	require.Len(t, filtered, 2)
}

func TestLedger_GetForbiddenForOtherPatient(t *testing.T) {
	l := NewLedger(newMemRepo())
	ctx := context.Background()

	inv, err := l.CreateInvoice(ctx, staff(), consultationInvoice(uuid.New()))
	require.NoError(t, err)

	_, err = l.Get(ctx, access.Actor{ID: uuid.New(), Role: access.RolePatient}, inv.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)
}
