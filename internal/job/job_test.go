package job

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRunnerRunsUntilCancelled(t *testing.T) {
	var runs atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(zerolog.Nop()).Register("tick", 10*time.Millisecond, 0, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	r.Start(ctx)

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)

	cancel()
	r.Wait()

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, after, runs.Load())
}

func TestRunnerSurvivesErrorsAndPanics(t *testing.T) {
	var runs atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRunner(zerolog.Nop()).Register("flaky", 5*time.Millisecond, 0, func(context.Context) error {
		switch runs.Add(1) {
		case 1:
			return errors.New("boom")
		case 2:
			panic("kaboom")
		}
		return nil
	})
	r.Start(ctx)

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestRunnerAppliesTimeout(t *testing.T) {
	deadlines := make(chan bool, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRunner(zerolog.Nop()).Register("bounded", time.Hour, 50*time.Millisecond, func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		deadlines <- ok
		return nil
	})
	r.Start(ctx)

	require.True(t, <-deadlines)
}

func TestTryRegisterDisabled(t *testing.T) {
	r := NewRunner(zerolog.Nop()).TryRegister(false, "off", time.Second, 0, func(context.Context) error {
		return nil
	})
	require.Empty(t, r.jobs)
}
