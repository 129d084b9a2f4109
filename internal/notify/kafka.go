package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/hackgods/clinic-core/internal/outbox"
)

// Message is the wire form of a notification.
type Message struct {
	EventID         int64      `json:"event_id"`
	RecipientID     uuid.UUID  `json:"recipient_id"`
	EventType       string     `json:"event_type"`
	Title           string     `json:"title"`
	Body            string     `json:"body"`
	RelatedEntityID uuid.UUID  `json:"related_entity_id"`
	SenderID        *uuid.UUID `json:"sender_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func messageFrom(ev outbox.Event) Message {
	return Message{
		EventID:         ev.ID,
		RecipientID:     ev.RecipientID,
		EventType:       ev.EventType,
		Title:           ev.Title,
		Body:            ev.Body,
		RelatedEntityID: ev.RelatedEntityID,
		SenderID:        ev.SenderID,
		CreatedAt:       ev.CreatedAt,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes notifications synchronously so the outbox learns
// about delivery failures.
type KafkaPublisher struct {
	w     messageWriter
	topic string
	log   zerolog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, log zerolog.Logger) *KafkaPublisher {
	l := log.With().Str("component", "kafka").Str("topic", topic).Logger()

	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			l.Debug().Msgf(msg, args...)
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			l.Error().Msgf(msg, args...)
		}),
	}

	return &KafkaPublisher{w: w, topic: topic, log: l}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev outbox.Event) error {
	b, err := json.Marshal(messageFrom(ev))
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(ev.RecipientID.String()),
		Value: b,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.EventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() {
	if err := p.w.Close(); err != nil {
		p.log.Error().Err(err).Msg("close kafka writer")
	}
}
