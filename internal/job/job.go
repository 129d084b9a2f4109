// Package job runs periodic background tasks on tickers.
package job

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Func func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	fn       Func
}

type Runner struct {
	jobs []job
	log  zerolog.Logger
	wg   sync.WaitGroup
}

func NewRunner(log zerolog.Logger) *Runner {
	return &Runner{log: log}
}

// Register adds a job that runs once at start and then every interval.
// Each run gets its own deadline of timeout when it is positive.
func (r *Runner) Register(name string, interval, timeout time.Duration, fn Func) *Runner {
	return r.TryRegister(true, name, interval, timeout, fn)
}

func (r *Runner) TryRegister(enabled bool, name string, interval, timeout time.Duration, fn Func) *Runner {
	if !enabled {
		return r
	}

	r.jobs = append(r.jobs, job{
		name:     name,
		interval: interval,
		timeout:  timeout,
		fn:       fn,
	})

	return r
}

// Start launches every registered job. They stop when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	for _, j := range r.jobs {
		r.wg.Add(1)
		go r.loop(ctx, j)
	}
}

// Wait blocks until every job has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context, j job) {
	defer r.wg.Done()

	l := r.log.With().Str("job", j.name).Logger()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		start := time.Now()
		if err := r.runOnce(l.WithContext(ctx), j); err != nil {
			l.Error().Err(err).Msg("job failed")
		} else {
			l.Debug().Dur("took", time.Since(start)).Msg("job done")
		}

		select {
		case <-ctx.Done():
			l.Debug().Msg("job stopped")
			return
		case <-ticker.C:
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, j job) (err error) {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()

	return j.fn(ctx)
}
