package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-core/internal/outbox"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{w: w, topic: "clinic.notifications", log: zerolog.Nop()}

	recipient := uuid.New()
	ev := outbox.Event{
		ID:              42,
		RecipientID:     recipient,
		EventType:       outbox.EventInvoicePaid,
		Title:           "Invoice paid",
		Body:            "INV-2024-000001 is settled",
		RelatedEntityID: uuid.New(),
	}

	require.NoError(t, p.Publish(context.Background(), ev))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	require.Equal(t, "clinic.notifications", msg.Topic)
	require.Equal(t, []byte(recipient.String()), msg.Key)

	var got Message
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	require.Equal(t, int64(42), got.EventID)
	require.Equal(t, outbox.EventInvoicePaid, got.EventType)
	require.Equal(t, recipient, got.RecipientID)
}

func TestKafkaPublisher_PublishError(t *testing.T) {
	p := &KafkaPublisher{w: &fakeWriter{err: errors.New("leader not available")}, topic: "t", log: zerolog.Nop()}

	err := p.Publish(context.Background(), outbox.Event{RecipientID: uuid.New()})
	require.Error(t, err)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf))

	require.NoError(t, p.Publish(context.Background(), outbox.Event{ID: 7, EventType: outbox.EventAppointmentCreated}))
	require.Contains(t, buf.String(), `"event_type":"appointment.created"`)
}
