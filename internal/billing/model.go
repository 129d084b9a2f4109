package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/clinic-core/internal/access"
	"github.com/hackgods/clinic-core/internal/apperr"
)

type InvoiceStatus string

const (
	StatusUnpaid        InvoiceStatus = "unpaid"
	StatusPartiallyPaid InvoiceStatus = "partially_paid"
	StatusPaid          InvoiceStatus = "paid"
	StatusCancelled     InvoiceStatus = "cancelled"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case StatusUnpaid, StatusPartiallyPaid, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodCard         PaymentMethod = "card"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodInsurance    PaymentMethod = "insurance"
	MethodOther        PaymentMethod = "other"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodBankTransfer, MethodInsurance, MethodOther:
		return true
	}
	return false
}

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

type Item struct {
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
	Category    string
}

func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Invoice struct {
	ID                uuid.UUID
	Number            string
	PatientID         uuid.UUID
	ConsultationID    *uuid.UUID
	Items             []Item
	TaxRate           decimal.Decimal
	AmountExclTax     decimal.Decimal
	AmountTax         decimal.Decimal
	AmountTotal       decimal.Decimal
	InsuranceCoverage decimal.Decimal
	AmountPaid        decimal.Decimal
	AmountDue         decimal.Decimal
	Status            InvoiceStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (inv *Invoice) Owner() access.Owner {
	return access.Owner{PatientID: inv.PatientID}
}

// FormatNumber renders the human-readable invoice number.
func FormatNumber(year int, seq int64) string {
	return fmt.Sprintf("INV-%d-%06d", year, seq)
}

// Totals holds the tax split of a tax-inclusive amount.
type Totals struct {
	ExclTax decimal.Decimal
	Tax     decimal.Decimal
	Total   decimal.Decimal
}

// ComputeTotals sums the items and splits the tax-inclusive total at rate
// percent. The tax part absorbs the rounding so ExclTax + Tax == Total.
func ComputeTotals(items []Item, rate decimal.Decimal) Totals {
	total := zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	total = round2(total)

	excl := round2(total.Div(decimal.NewFromInt(1).Add(rate.Div(hundred))))
	return Totals{
		ExclTax: excl,
		Tax:     total.Sub(excl),
		Total:   total,
	}
}

// deriveStatus maps a balance to a status. Cancelled is never derived.
func deriveStatus(paid, due decimal.Decimal) InvoiceStatus {
	switch {
	case !due.IsPositive():
		return StatusPaid
	case paid.IsPositive():
		return StatusPartiallyPaid
	default:
		return StatusUnpaid
	}
}

// settle applies amount to the balance. The caller holds the invoice lock.
func (inv *Invoice) settle(amount decimal.Decimal) error {
	if inv.Status == StatusCancelled {
		return apperr.State("invoice %s is cancelled", inv.Number)
	}
	if amount.GreaterThan(inv.AmountDue) {
		return apperr.Overpayment("payment of %s exceeds the amount due of %s on invoice %s",
			amount.StringFixed(2), inv.AmountDue.StringFixed(2), inv.Number)
	}

	inv.AmountPaid = inv.AmountPaid.Add(amount)
	inv.AmountDue = inv.AmountTotal.Sub(inv.InsuranceCoverage).Sub(inv.AmountPaid)
	inv.Status = deriveStatus(inv.AmountPaid, inv.AmountDue)
	return nil
}

type Payment struct {
	ID         uuid.UUID
	InvoiceID  uuid.UUID
	Amount     decimal.Decimal
	Method     PaymentMethod
	Reference  string
	PaidAt     time.Time
	RecordedBy uuid.UUID
}

type CreateInvoiceRequest struct {
	PatientID         uuid.UUID
	ConsultationID    *uuid.UUID
	Items             []Item
	TaxRate           decimal.Decimal
	InsuranceCoverage decimal.Decimal
}

func (r CreateInvoiceRequest) validate() error {
	if r.PatientID == uuid.Nil {
		return apperr.Validation("patient_id is required")
	}
	if len(r.Items) == 0 {
		return apperr.Validation("an invoice needs at least one item")
	}
	for i, it := range r.Items {
		switch {
		case strings.TrimSpace(it.Description) == "":
			return apperr.Validation("item %d: description is required", i+1)
		case it.Quantity <= 0:
			return apperr.Validation("item %d: quantity must be positive", i+1)
		case it.UnitPrice.IsNegative():
			return apperr.Validation("item %d: unit price cannot be negative", i+1)
		}
	}
	if r.TaxRate.IsNegative() || r.TaxRate.GreaterThan(hundred) {
		return apperr.Validation("tax rate must be between 0 and 100")
	}
	if r.InsuranceCoverage.IsNegative() {
		return apperr.Validation("insurance coverage cannot be negative")
	}
	return nil
}

type PaymentRequest struct {
	Amount    decimal.Decimal
	Method    PaymentMethod
	Reference string
}

func (r PaymentRequest) validate() error {
	if !r.Amount.IsPositive() {
		return apperr.Validation("payment amount must be positive")
	}
	if !r.Amount.Equal(round2(r.Amount)) {
		return apperr.Validation("payment amount has more than two decimals")
	}
	if !r.Method.Valid() {
		return apperr.Validation("unknown payment method %q", r.Method)
	}
	return nil
}

// PaymentResult is the invoice balance right after a payment.
type PaymentResult struct {
	Payment    Payment
	AmountPaid decimal.Decimal
	AmountDue  decimal.Decimal
	Status     InvoiceStatus
}

// ListFilter narrows List. Nil fields are ignored.
type ListFilter struct {
	PatientID *uuid.UUID
	Status    *InvoiceStatus
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

func (f *ListFilter) normalize() {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
