package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/clinic-core/internal/appointment"
	"github.com/hackgods/clinic-core/internal/billing"
	"github.com/hackgods/clinic-core/internal/prescription"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Appointments

type BookAppointmentRequest struct {
	DoctorID        uuid.UUID `json:"doctor_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes,omitempty"`
	Reason          string    `json:"reason"`
}

type RescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

type AdvanceRequest struct {
	Status string `json:"status"`
}

type NotesRequest struct {
	Notes string `json:"notes"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Reason          string    `json:"reason"`
	Status          string    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		DoctorID:        a.DoctorID,
		PatientID:       a.PatientID,
		ScheduledAt:     a.ScheduledAt,
		DurationMinutes: int(a.Duration / time.Minute),
		Reason:          a.Reason,
		Status:          string(a.Status),
		Notes:           a.Notes,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type SlotsResponse struct {
	DoctorID uuid.UUID   `json:"doctor_id"`
	Date     string      `json:"date"`
	Slots    []time.Time `json:"slots"`
}

// Invoices

type InvoiceItemPayload struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Category    string          `json:"category,omitempty"`
}

type CreateInvoiceRequest struct {
	PatientID         uuid.UUID            `json:"patient_id"`
	ConsultationID    *uuid.UUID           `json:"consultation_id,omitempty"`
	Items             []InvoiceItemPayload `json:"items"`
	TaxRate           decimal.Decimal      `json:"tax_rate"`
	InsuranceCoverage decimal.Decimal      `json:"insurance_coverage"`
}

func (r CreateInvoiceRequest) toDomain() billing.CreateInvoiceRequest {
	items := make([]billing.Item, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, billing.Item{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Category:    it.Category,
		})
	}
	return billing.CreateInvoiceRequest{
		PatientID:         r.PatientID,
		ConsultationID:    r.ConsultationID,
		Items:             items,
		TaxRate:           r.TaxRate,
		InsuranceCoverage: r.InsuranceCoverage,
	}
}

type InvoiceItemResponse struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
	Category    string `json:"category,omitempty"`
}

// Amounts are rendered as fixed two-decimal strings.
type InvoiceResponse struct {
	ID                uuid.UUID             `json:"id"`
	Number            string                `json:"number"`
	PatientID         uuid.UUID             `json:"patient_id"`
	ConsultationID    *uuid.UUID            `json:"consultation_id,omitempty"`
	Items             []InvoiceItemResponse `json:"items,omitempty"`
	TaxRate           string                `json:"tax_rate"`
	AmountExclTax     string                `json:"amount_excl_tax"`
	AmountTax         string                `json:"amount_tax"`
	AmountTotal       string                `json:"amount_total"`
	InsuranceCoverage string                `json:"insurance_coverage"`
	AmountPaid        string                `json:"amount_paid"`
	AmountDue         string                `json:"amount_due"`
	Status            string                `json:"status"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

func toInvoiceResponse(inv *billing.Invoice) InvoiceResponse {
	items := make([]InvoiceItemResponse, 0, len(inv.Items))
	for _, it := range inv.Items {
		items = append(items, InvoiceItemResponse{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.StringFixed(2),
			LineTotal:   it.LineTotal().StringFixed(2),
			Category:    it.Category,
		})
	}
	return InvoiceResponse{
		ID:                inv.ID,
		Number:            inv.Number,
		PatientID:         inv.PatientID,
		ConsultationID:    inv.ConsultationID,
		Items:             items,
		TaxRate:           inv.TaxRate.StringFixed(2),
		AmountExclTax:     inv.AmountExclTax.StringFixed(2),
		AmountTax:         inv.AmountTax.StringFixed(2),
		AmountTotal:       inv.AmountTotal.StringFixed(2),
		InsuranceCoverage: inv.InsuranceCoverage.StringFixed(2),
		AmountPaid:        inv.AmountPaid.StringFixed(2),
		AmountDue:         inv.AmountDue.StringFixed(2),
		Status:            string(inv.Status),
		CreatedAt:         inv.CreatedAt,
		UpdatedAt:         inv.UpdatedAt,
	}
}

type PaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Reference string          `json:"reference,omitempty"`
}

type PaymentResponse struct {
	ID         uuid.UUID `json:"id"`
	InvoiceID  uuid.UUID `json:"invoice_id"`
	Amount     string    `json:"amount"`
	Method     string    `json:"method"`
	Reference  string    `json:"reference,omitempty"`
	PaidAt     time.Time `json:"paid_at"`
	RecordedBy uuid.UUID `json:"recorded_by"`
}

func toPaymentResponse(p billing.Payment) PaymentResponse {
	return PaymentResponse{
		ID:         p.ID,
		InvoiceID:  p.InvoiceID,
		Amount:     p.Amount.StringFixed(2),
		Method:     string(p.Method),
		Reference:  p.Reference,
		PaidAt:     p.PaidAt,
		RecordedBy: p.RecordedBy,
	}
}

type PaymentResultResponse struct {
	Payment    PaymentResponse `json:"payment"`
	AmountPaid string          `json:"amount_paid"`
	AmountDue  string          `json:"amount_due"`
	Status     string          `json:"status"`
}

// Prescriptions

type IssuePrescriptionRequest struct {
	PatientID      uuid.UUID                 `json:"patient_id"`
	ConsultationID *uuid.UUID                `json:"consultation_id,omitempty"`
	Diagnosis      string                    `json:"diagnosis"`
	Medications    []prescription.Medication `json:"medications"`
}

type AttachInvoiceRequest struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
}

type PrescriptionResponse struct {
	ID             uuid.UUID                 `json:"id"`
	DoctorID       uuid.UUID                 `json:"doctor_id"`
	PatientID      uuid.UUID                 `json:"patient_id"`
	ConsultationID *uuid.UUID                `json:"consultation_id,omitempty"`
	Diagnosis      string                    `json:"diagnosis"`
	Medications    []prescription.Medication `json:"medications"`
	Status         string                    `json:"status"`
	InvoiceID      *uuid.UUID                `json:"invoice_id,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

func toPrescriptionResponse(p *prescription.Prescription) PrescriptionResponse {
	return PrescriptionResponse{
		ID:             p.ID,
		DoctorID:       p.DoctorID,
		PatientID:      p.PatientID,
		ConsultationID: p.ConsultationID,
		Diagnosis:      p.Diagnosis,
		Medications:    p.Medications,
		Status:         string(p.Status),
		InvoiceID:      p.InvoiceID,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

type ReleaseResponse struct {
	PrescriptionID uuid.UUID `json:"prescription_id"`
	Releasable     bool      `json:"releasable"`
}
