package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsIsMatchesKind(t *testing.T) {
	err := Conflict("slot %s taken", "09:00")

	require.True(t, errors.Is(err, ErrConflict))
	require.False(t, errors.Is(err, ErrValidation))
	require.Equal(t, "slot 09:00 taken", err.Error())
}

func TestErrorsIsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("book appointment: %w", NotFound("appointment not found"))

	require.True(t, errors.Is(err, ErrNotFound))
	require.Equal(t, KindNotFound, KindOf(err))
}

func TestKindOfInternal(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestDeliveryUnwraps(t *testing.T) {
	cause := errors.New("font missing")
	err := Delivery(cause, "render prescription")

	require.True(t, errors.Is(err, ErrDelivery))
	require.True(t, errors.Is(err, cause))
	require.Equal(t, "render prescription: font missing", err.Error())
}

func TestSentinelsDoNotMatchSpecificErrors(t *testing.T) {
	// A specific error matches its sentinel, never the other way round.
	require.False(t, errors.Is(ErrState, State("invoice is paid")))
}
