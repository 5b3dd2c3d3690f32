package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/kiranshivaraju/keyhub/internal/events"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func sampleEvent() events.KeyEvent {
	return events.KeyEvent{
		Type:        events.KeyRotated,
		TenantID:    42,
		KID:         "kid_00112233aabbccdd",
		PreviousKID: "kid_ffeeddccbbaa9988",
		Environment: "production",
		OccurredAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestMessage_KeyedByTenant(t *testing.T) {
	msg, err := events.Message(sampleEvent())
	require.NoError(t, err)

	assert.Equal(t, "42", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event-type", msg.Headers[0].Key)
	assert.Equal(t, "api_key.rotated", string(msg.Headers[0].Value))

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "api_key.rotated", body["type"])
	assert.Equal(t, "kid_00112233aabbccdd", body["kid"])
	assert.Equal(t, "kid_ffeeddccbbaa9988", body["previous_kid"])
	assert.Equal(t, float64(42), body["tenant_id"])
}

func TestMessage_OmitsEmptyPreviousKID(t *testing.T) {
	ev := sampleEvent()
	ev.Type = events.KeyCreated
	ev.PreviousKID = ""

	msg, err := events.Message(ev)
	require.NoError(t, err)
	assert.NotContains(t, string(msg.Value), "previous_kid")
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := events.NewKafkaPublisherWithWriter(w)

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "42", string(w.msgs[0].Key))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := events.NewKafkaPublisherWithWriter(w)

	err := p.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key.rotated")
	assert.Contains(t, err.Error(), "broker down")
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := events.NewLogPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	assert.Contains(t, buf.String(), `"kid":"kid_00112233aabbccdd"`)
	assert.Contains(t, buf.String(), `"tenant_id":42`)
}
