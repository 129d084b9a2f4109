package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-core/internal/access"
	"github.com/hackgods/clinic-core/internal/appointment"
	"github.com/hackgods/clinic-core/internal/billing"
	"github.com/hackgods/clinic-core/internal/document"
	"github.com/hackgods/clinic-core/internal/prescription"
)

type AppointmentService interface {
	Book(ctx context.Context, actor access.Actor, req appointment.BookRequest) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, actor access.Actor, id uuid.UUID, at time.Time) (*appointment.Appointment, error)
	Cancel(ctx context.Context, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error)
	Advance(ctx context.Context, actor access.Actor, id uuid.UUID, next appointment.AppointmentStatus) (*appointment.Appointment, error)
	UpdateNotes(ctx context.Context, actor access.Actor, id uuid.UUID, notes string) (*appointment.Appointment, error)
	Get(ctx context.Context, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error)
	List(ctx context.Context, actor access.Actor, f appointment.ListFilter) ([]appointment.Appointment, error)
	AvailableSlots(ctx context.Context, actor access.Actor, doctorID uuid.UUID, date time.Time) ([]time.Time, error)
	Document(ctx context.Context, actor access.Actor, id uuid.UUID) (*document.File, error)
}

type BillingService interface {
	CreateInvoice(ctx context.Context, actor access.Actor, req billing.CreateInvoiceRequest) (*billing.Invoice, error)
	ApplyPayment(ctx context.Context, actor access.Actor, invoiceID uuid.UUID, req billing.PaymentRequest) (*billing.PaymentResult, error)
	CancelInvoice(ctx context.Context, actor access.Actor, id uuid.UUID) (*billing.Invoice, error)
	Get(ctx context.Context, actor access.Actor, id uuid.UUID) (*billing.Invoice, error)
	List(ctx context.Context, actor access.Actor, f billing.ListFilter) ([]billing.Invoice, error)
	Payments(ctx context.Context, actor access.Actor, invoiceID uuid.UUID) ([]billing.Payment, error)
}

type PrescriptionService interface {
	Issue(ctx context.Context, actor access.Actor, req prescription.IssueRequest) (*prescription.Prescription, error)
	AttachInvoice(ctx context.Context, actor access.Actor, id, invoiceID uuid.UUID) (*prescription.Prescription, error)
	CanRelease(ctx context.Context, actor access.Actor, id uuid.UUID) (bool, error)
	Get(ctx context.Context, actor access.Actor, id uuid.UUID) (*prescription.Prescription, error)
	Document(ctx context.Context, actor access.Actor, id uuid.UUID) (*document.File, error)
}

type RouterConfig struct {
	Appointments  AppointmentService
	Billing       BillingService
	Prescriptions PrescriptionService
	Health        *HealthHandler
	Logger        zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware)

		// Appointment endpoints
		r.Get("/doctors/{id}/slots", availableSlotsHandler(cfg.Appointments))
		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", bookAppointmentHandler(cfg.Appointments))
			r.Get("/", listAppointmentsHandler(cfg.Appointments))
			r.Get("/{id}", getAppointmentHandler(cfg.Appointments))
			r.Post("/{id}/reschedule", rescheduleAppointmentHandler(cfg.Appointments))
			r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Appointments))
			r.Post("/{id}/advance", advanceAppointmentHandler(cfg.Appointments))
			r.Put("/{id}/notes", updateNotesHandler(cfg.Appointments))
			r.Get("/{id}/document", appointmentDocumentHandler(cfg.Appointments))
		})

		// Invoice endpoints
		r.Route("/invoices", func(r chi.Router) {
			r.Post("/", createInvoiceHandler(cfg.Billing))
			r.Get("/", listInvoicesHandler(cfg.Billing))
			r.Get("/{id}", getInvoiceHandler(cfg.Billing))
			r.Post("/{id}/payments", applyPaymentHandler(cfg.Billing))
			r.Get("/{id}/payments", listPaymentsHandler(cfg.Billing))
			r.Post("/{id}/cancel", cancelInvoiceHandler(cfg.Billing))
		})

		// Prescription endpoints
		r.Route("/prescriptions", func(r chi.Router) {
			r.Post("/", issuePrescriptionHandler(cfg.Prescriptions))
			r.Get("/{id}", getPrescriptionHandler(cfg.Prescriptions))
			r.Post("/{id}/invoice", attachInvoiceHandler(cfg.Prescriptions))
			r.Get("/{id}/release", releaseHandler(cfg.Prescriptions))
			r.Get("/{id}/document", prescriptionDocumentHandler(cfg.Prescriptions))
		})
	})

	return r
}

var (
	_ AppointmentService  = (*appointment.Scheduler)(nil)
	_ BillingService      = (*billing.Ledger)(nil)
	_ PrescriptionService = (*prescription.Gate)(nil)
)
