package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-core/internal/outbox"
)

// LogPublisher stands in for a broker in development.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log.With().Str("component", "notify").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, ev outbox.Event) error {
	p.log.Info().
		Int64("event_id", ev.ID).
		Str("event_type", ev.EventType).
		Stringer("recipient_id", ev.RecipientID).
		Stringer("related_entity_id", ev.RelatedEntityID).
		Str("title", ev.Title).
		Msg("notification")
	return nil
}
