package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSlotKey(t *testing.T) {
	doctor := uuid.MustParse("5b6d0be2-4a8f-4a57-9d8a-0f8b8d2f0c11")
	at := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	require.Equal(t, "lock:slot:5b6d0be2-4a8f-4a57-9d8a-0f8b8d2f0c11:1718010000", SlotKey(doctor, at))

	// Same instant in another zone maps to the same key.
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	require.Equal(t, SlotKey(doctor, at), SlotKey(doctor, at.In(paris)))
}

func TestNoopLocker(t *testing.T) {
	called := false
	err := NoopLocker{}.WithLock(context.Background(), "k", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, called)
}
