package prescription

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-core/internal/access"
	"github.com/hackgods/clinic-core/internal/apperr"
	"github.com/hackgods/clinic-core/internal/billing"
	"github.com/hackgods/clinic-core/internal/outbox"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

// Medication is one line of a prescription, stored as a JSONB array element.
type Medication struct {
	Name     string `json:"name"`
	Dosage   string `json:"dosage"`
	Regimen  string `json:"regimen"`
	Duration string `json:"duration,omitempty"`
}

func (m Medication) validate() error {
	switch {
	case strings.TrimSpace(m.Name) == "":
		return apperr.Validation("medication name is required")
	case strings.TrimSpace(m.Dosage) == "":
		return apperr.Validation("dosage is required for %s", m.Name)
	case strings.TrimSpace(m.Regimen) == "":
		return apperr.Validation("regimen is required for %s", m.Name)
	}
	return nil
}

type Prescription struct {
	ID             uuid.UUID
	DoctorID       uuid.UUID
	PatientID      uuid.UUID
	ConsultationID *uuid.UUID
	Diagnosis      string
	Medications    []Medication
	Status         Status
	InvoiceID      *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (p *Prescription) Owner() access.Owner {
	return access.Owner{PatientID: p.PatientID, DoctorID: p.DoctorID}
}

// InvoiceRef is the read-only view of an invoice the gate decides on.
type InvoiceRef struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	Status    billing.InvoiceStatus
}

type IssueRequest struct {
	PatientID      uuid.UUID
	ConsultationID *uuid.UUID
	Diagnosis      string
	Medications    []Medication
}

func (r IssueRequest) validate() error {
	if r.PatientID == uuid.Nil {
		return apperr.Validation("patient_id is required")
	}
	if strings.TrimSpace(r.Diagnosis) == "" {
		return apperr.Validation("diagnosis is required")
	}
	if len(r.Medications) == 0 {
		return apperr.Validation("a prescription needs at least one medication")
	}
	for _, m := range r.Medications {
		if err := m.validate(); err != nil {
			return err
		}
	}
	return nil
}

// releasedEvents tells the patient the document is available.
func releasedEvents(id, patientID uuid.UUID) []outbox.Event {
	return outbox.Notify(
		outbox.EventPrescriptionReleased,
		"Prescription available",
		"Your invoice is settled, the prescription can now be downloaded",
		id, uuid.Nil,
		patientID,
	)
}
