package billing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-core/internal/apperr"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeTotals(t *testing.T) {
	items := []Item{
		{Description: "Consultation", Quantity: 1, UnitPrice: dec("100")},
		{Description: "Blood test", Quantity: 2, UnitPrice: dec("50")},
	}

	got := ComputeTotals(items, dec("20"))
	require.Equal(t, "200.00", got.Total.StringFixed(2))
	require.Equal(t, "166.67", got.ExclTax.StringFixed(2))
	require.Equal(t, "33.33", got.Tax.StringFixed(2))
	require.True(t, got.ExclTax.Add(got.Tax).Equal(got.Total))
}

func TestComputeTotalsZeroRate(t *testing.T) {
	got := ComputeTotals([]Item{{Description: "Dressing", Quantity: 3, UnitPrice: dec("9.99")}}, decimal.Zero)
	require.Equal(t, "29.97", got.Total.StringFixed(2))
	require.Equal(t, "29.97", got.ExclTax.StringFixed(2))
	require.True(t, got.Tax.IsZero())
}

func TestDeriveStatus(t *testing.T) {
	require.Equal(t, StatusUnpaid, deriveStatus(dec("0"), dec("10")))
	require.Equal(t, StatusPartiallyPaid, deriveStatus(dec("5"), dec("5")))
	require.Equal(t, StatusPaid, deriveStatus(dec("10"), dec("0")))
	// fully covered by insurance
	require.Equal(t, StatusPaid, deriveStatus(dec("0"), dec("0")))
}

func TestInvoiceSettle(t *testing.T) {
	inv := &Invoice{
		Number:            "INV-2024-000001",
		AmountTotal:       dec("200"),
		InsuranceCoverage: dec("50"),
		AmountPaid:        decimal.Zero,
		AmountDue:         dec("150"),
		Status:            StatusUnpaid,
	}

	require.NoError(t, inv.settle(dec("100")))
	require.Equal(t, StatusPartiallyPaid, inv.Status)
	require.Equal(t, "50.00", inv.AmountDue.StringFixed(2))

	require.ErrorIs(t, inv.settle(dec("50.01")), apperr.ErrOverpayment)

	require.NoError(t, inv.settle(dec("50")))
	require.Equal(t, StatusPaid, inv.Status)
	require.True(t, inv.AmountDue.IsZero())
	require.True(t, inv.AmountTotal.Sub(inv.InsuranceCoverage).Sub(inv.AmountPaid).Equal(inv.AmountDue))

	inv.Status = StatusCancelled
	require.ErrorIs(t, inv.settle(dec("1")), apperr.ErrState)
}

func TestFormatNumber(t *testing.T) {
	require.Equal(t, "INV-2024-000042", FormatNumber(2024, 42))
}

func TestCreateInvoiceRequestValidate(t *testing.T) {
	valid := func() CreateInvoiceRequest {
		return CreateInvoiceRequest{
			PatientID: uuid.New(),
			Items:     []Item{{Description: "Consultation", Quantity: 1, UnitPrice: dec("100")}},
			TaxRate:   dec("20"),
		}
	}
	require.NoError(t, valid().validate())

	broken := []func(r *CreateInvoiceRequest){
		func(r *CreateInvoiceRequest) { r.PatientID = uuid.Nil },
		func(r *CreateInvoiceRequest) { r.Items = nil },
		func(r *CreateInvoiceRequest) { r.Items[0].Quantity = 0 },
		func(r *CreateInvoiceRequest) { r.Items[0].UnitPrice = dec("-1") },
		func(r *CreateInvoiceRequest) { r.Items[0].Description = "" },
		func(r *CreateInvoiceRequest) { r.TaxRate = dec("100.5") },
		func(r *CreateInvoiceRequest) { r.InsuranceCoverage = dec("-3") },
	}
	for i, mutate := range broken {
		r := valid()
		mutate(&r)
		require.ErrorIs(t, r.validate(), apperr.ErrValidation, "case %d", i)
	}
}

func TestPaymentRequestValidate(t *testing.T) {
	require.NoError(t, PaymentRequest{Amount: dec("10.50"), Method: MethodCard}.validate())
	require.ErrorIs(t, PaymentRequest{Amount: dec("0"), Method: MethodCard}.validate(), apperr.ErrValidation)
	require.ErrorIs(t, PaymentRequest{Amount: dec("-5"), Method: MethodCash}.validate(), apperr.ErrValidation)
	require.ErrorIs(t, PaymentRequest{Amount: dec("1.005"), Method: MethodCash}.validate(), apperr.ErrValidation)
	require.ErrorIs(t, PaymentRequest{Amount: dec("5"), Method: "cheque"}.validate(), apperr.ErrValidation)
}
