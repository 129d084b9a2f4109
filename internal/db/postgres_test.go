package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSlowQueryTracer(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())
	tracer := &slowQueryTracer{threshold: 10 * time.Millisecond}

	fast := tracer.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	tracer.TraceQueryEnd(fast, nil, pgx.TraceQueryEndData{})
	require.Empty(t, buf.String())

	slow := tracer.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{SQL: "SELECT pg_sleep(1)"})
	time.Sleep(15 * time.Millisecond)
	tracer.TraceQueryEnd(slow, nil, pgx.TraceQueryEndData{Err: errors.New("canceled")})

	require.Contains(t, buf.String(), "slow query")
	require.Contains(t, buf.String(), "pg_sleep")
	require.Contains(t, buf.String(), "canceled")
}
