package access

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-core/internal/apperr"
)

func TestAuthorize(t *testing.T) {
	t.Parallel()

	patient := uuid.New()
	otherPatient := uuid.New()
	doctor := uuid.New()
	otherDoctor := uuid.New()
	staff := uuid.New()

	owner := Owner{PatientID: patient, DoctorID: doctor}

	cases := []struct {
		name  string
		actor Actor
		op    Operation
		allow bool
	}{
		{"patient books for self", Actor{patient, RolePatient}, OpBookAppointment, true},
		{"patient books for someone else", Actor{otherPatient, RolePatient}, OpBookAppointment, false},
		{"patient cancels own", Actor{patient, RolePatient}, OpCancelAppointment, true},
		{"patient cancels foreign", Actor{otherPatient, RolePatient}, OpCancelAppointment, false},
		{"any doctor may cancel", Actor{otherDoctor, RoleDoctor}, OpCancelAppointment, true},
		{"patient cannot advance", Actor{patient, RolePatient}, OpAdvanceAppointment, false},
		{"doctor advances own", Actor{doctor, RoleDoctor}, OpAdvanceAppointment, true},
		{"doctor cannot advance foreign", Actor{otherDoctor, RoleDoctor}, OpAdvanceAppointment, false},
		{"staff creates invoice", Actor{staff, RoleStaff}, OpCreateInvoice, true},
		{"patient cannot create invoice", Actor{patient, RolePatient}, OpCreateInvoice, false},
		{"patient pays own invoice", Actor{patient, RolePatient}, OpApplyPayment, true},
		{"doctor cannot record payment", Actor{doctor, RoleDoctor}, OpApplyPayment, false},
		{"patient cannot cancel invoice", Actor{patient, RolePatient}, OpCancelInvoice, false},
		{"admin cancels invoice", Actor{staff, RoleAdmin}, OpCancelInvoice, true},
		{"only authoring doctor issues", Actor{otherDoctor, RoleDoctor}, OpIssuePrescription, false},
		{"staff cannot issue", Actor{staff, RoleStaff}, OpIssuePrescription, false},
		{"doctor issues as self", Actor{doctor, RoleDoctor}, OpIssuePrescription, true},
		{"unknown role", Actor{staff, Role("janitor")}, OpViewSlots, false},
		{"nil actor", Actor{uuid.Nil, RoleAdmin}, OpViewSlots, false},
		{"unknown operation", Actor{staff, RoleAdmin}, Operation("invoice.delete"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Authorize(tc.actor, tc.op, owner)
			if tc.allow {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.True(t, errors.Is(err, apperr.ErrForbidden))
		})
	}
}

func TestAuthorize_NilOwnerNeverMatchesPatient(t *testing.T) {
	err := Authorize(Actor{ID: uuid.New(), Role: RolePatient}, OpViewInvoice, Owner{})
	require.ErrorIs(t, err, apperr.ErrForbidden)
}
