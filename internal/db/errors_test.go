package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert appointment: %w", &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "appointments_doctor_slot_active_uq",
	})

	require.True(t, IsUniqueViolation(err))
	require.True(t, IsUniqueViolation(err, "appointments_doctor_slot_active_uq"))
	require.False(t, IsUniqueViolation(err, "invoices_number_key"))
	require.False(t, IsUniqueViolation(errors.New("boom")))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
}

func TestIsLockConflict(t *testing.T) {
	require.True(t, IsLockConflict(&pgconn.PgError{Code: "40001"}))
	require.True(t, IsLockConflict(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "40P01"})))
	require.False(t, IsLockConflict(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsLockConflict(nil))
}
