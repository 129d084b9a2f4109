package outbox

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

//go:generate go run go.uber.org/mock/mockgen@v0.4.0 -source=dispatcher.go -destination=../mocks/outbox.go -package=mocks

// Publisher delivers one event to the notification channel.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Store hands pending events to deliver and persists the outcome.
type Store interface {
	Drain(ctx context.Context, limit, maxAttempts int, deliver func(context.Context, Event) error) (Result, error)
}

type Result struct {
	Sent   int
	Failed int
}

type Dispatcher struct {
	store       Store
	pub         Publisher
	batchSize   int
	maxAttempts int
	log         zerolog.Logger
}

func NewDispatcher(store Store, pub Publisher, batchSize, maxAttempts int, log zerolog.Logger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Dispatcher{
		store:       store,
		pub:         pub,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		log:         log.With().Str("component", "outbox").Logger(),
	}
}

// RunOnce drains one batch. Delivery failures are logged and left for the
// next run; they never reach the business transaction that produced them.
func (d *Dispatcher) RunOnce(ctx context.Context) (Result, error) {
	res, err := d.store.Drain(ctx, d.batchSize, d.maxAttempts, func(ctx context.Context, ev Event) error {
		if err := d.pub.Publish(ctx, ev); err != nil {
			lvl := d.log.Warn()
			if ev.Attempts+1 >= d.maxAttempts {
				lvl = d.log.Error()
			}
			lvl.Err(err).
				Int64("event_id", ev.ID).
				Str("event_type", ev.EventType).
				Int("attempt", ev.Attempts+1).
				Msg("notification delivery failed")
			return err
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("drain outbox: %w", err)
	}

	if res.Sent > 0 || res.Failed > 0 {
		d.log.Info().Int("sent", res.Sent).Int("failed", res.Failed).Msg("outbox batch dispatched")
	}
	return res, nil
}

// Drain keeps running batches until one comes back short, a delivery fails
// or ctx ends.
func (d *Dispatcher) Drain(ctx context.Context) error {
	for {
		res, err := d.RunOnce(ctx)
		if err != nil {
			return err
		}
		if res.Failed > 0 || res.Sent < d.batchSize || ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
