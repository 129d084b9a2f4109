// Package access holds the single authorization policy consulted by every
// core operation. Identity is verified upstream; this package only decides.
package access

import (
	"github.com/google/uuid"

	"github.com/hackgods/clinic-core/internal/apperr"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// Actor is the verified caller handed over by the identity gateway.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

type Operation string

const (
	OpViewSlots             Operation = "slots.view"
	OpBookAppointment       Operation = "appointment.book"
	OpViewAppointment       Operation = "appointment.view"
	OpRescheduleAppointment Operation = "appointment.reschedule"
	OpCancelAppointment     Operation = "appointment.cancel"
	OpAdvanceAppointment    Operation = "appointment.advance"
	OpEditAppointmentNotes  Operation = "appointment.notes"
	OpCreateInvoice         Operation = "invoice.create"
	OpViewInvoice           Operation = "invoice.view"
	OpApplyPayment          Operation = "invoice.pay"
	OpCancelInvoice         Operation = "invoice.cancel"
	OpIssuePrescription     Operation = "prescription.issue"
	OpViewPrescription      Operation = "prescription.view"
	OpAttachInvoice         Operation = "prescription.attach_invoice"
)

// Owner identifies who a resource belongs to. Zero ids mean "not applicable".
type Owner struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
}

type rule func(a Actor, o Owner) bool

var (
	anyone     rule = func(Actor, Owner) bool { return true }
	nobody     rule = func(Actor, Owner) bool { return false }
	ownPatient rule = func(a Actor, o Owner) bool { return o.PatientID != uuid.Nil && a.ID == o.PatientID }
	ownDoctor  rule = func(a Actor, o Owner) bool { return o.DoctorID != uuid.Nil && a.ID == o.DoctorID }
)

// policy maps operation -> role -> rule. Missing entries deny.
var policy = map[Operation]map[Role]rule{
	OpViewSlots: {
		RolePatient: anyone, RoleDoctor: anyone, RoleStaff: anyone, RoleAdmin: anyone,
	},
	OpBookAppointment: {
		RolePatient: ownPatient, RoleDoctor: ownDoctor, RoleStaff: anyone, RoleAdmin: anyone,
	},
	OpViewAppointment: {
		RolePatient: ownPatient, RoleDoctor: ownDoctor, RoleStaff: anyone, RoleAdmin: anyone,
	},
	OpRescheduleAppointment: {
		RolePatient: ownPatient, RoleDoctor: ownDoctor, RoleStaff: anyone, RoleAdmin: anyone,
	},
	OpCancelAppointment: {
		RolePatient: ownPatient, RoleDoctor: anyone, RoleStaff: anyone, RoleAdmin: anyone,
	},
	OpAdvanceAppointment: {
		RolePatient: nobody, RoleDoctor: ownDoctor, RoleStaff: anyone, RoleAdmin: anyone,
	},
	OpEditAppointmentNotes: {
		RoleDoctor: ownDoctor, RoleStaff: anyone, RoleAdmin: anyone,
	},
	OpCreateInvoice: {
		RoleDoctor: anyone, RoleStaff: anyone, RoleAdmin: anyone,
	},
	OpViewInvoice: {
		RolePatient: ownPatient, RoleDoctor: anyone, RoleStaff: anyone, RoleAdmin: anyone,
	},
	OpApplyPayment: {
		RolePatient: ownPatient, RoleStaff: anyone, RoleAdmin: anyone,
	},
	OpCancelInvoice: {
		RoleStaff: anyone, RoleAdmin: anyone,
	},
	OpIssuePrescription: {
		RoleDoctor: ownDoctor,
	},
	OpViewPrescription: {
		RolePatient: ownPatient, RoleDoctor: ownDoctor, RoleStaff: anyone, RoleAdmin: anyone,
	},
	OpAttachInvoice: {
		RoleDoctor: ownDoctor, RoleStaff: anyone, RoleAdmin: anyone,
	},
}

// Authorize returns a forbidden error unless actor may perform op on a
// resource owned by owner.
func Authorize(actor Actor, op Operation, owner Owner) error {
	if actor.ID == uuid.Nil || !actor.Role.Valid() {
		return apperr.Forbidden("unknown actor")
	}
	rules, ok := policy[op]
	if !ok {
		return apperr.Forbidden("operation %s is not permitted", op)
	}
	allow, ok := rules[actor.Role]
	if !ok || !allow(actor, owner) {
		return apperr.Forbidden("%s may not perform %s on this resource", actor.Role, op)
	}
	return nil
}
