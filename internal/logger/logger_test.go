package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer

	l, err := newWithWriter(&buf, "warn", "prod", "api-server")
	require.NoError(t, err)

	l.Info().Msg("dropped")
	l.Warn().Msg("kept")

	require.NotContains(t, buf.String(), "dropped")
	require.Contains(t, buf.String(), `"service":"api-server"`)
	require.Contains(t, buf.String(), `"message":"kept"`)
}

func TestNew_DefaultContextLogger(t *testing.T) {
	var buf bytes.Buffer

	_, err := newWithWriter(&buf, "", "prod", "worker")
	require.NoError(t, err)

	zerolog.Ctx(context.Background()).Info().Msg("from ctx")
	require.Contains(t, buf.String(), "from ctx")
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New("loud", "prod", "x")
	require.Error(t, err)
}
