package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medvault-api/internal/model"
	"github.com/jwalitptl/medvault-api/internal/repository/memory"
	"github.com/jwalitptl/medvault-api/pkg/logger"
	"github.com/jwalitptl/medvault-api/pkg/messaging"
	"github.com/jwalitptl/medvault-api/pkg/metrics"
)

type fakeBroker struct {
	mu        sync.Mutex
	published map[string][]messaging.Message
	err       error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{published: map[string][]messaging.Message{}}
}

func (b *fakeBroker) Publish(_ context.Context, channel string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.published[channel] = append(b.published[channel], message.(messaging.Message))
	return nil
}

func (b *fakeBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *fakeBroker) Close() error { return nil }

func newProcessor(t *testing.T, broker messaging.Broker) (*OutboxProcessor, *memory.Store, *metrics.Metrics) {
	t.Helper()
	store := memory.NewStore()
	m := metrics.NewNop()
	p := NewOutboxProcessor(store.Outbox(), broker, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Minute,
	}, logger.Nop(), m)
	return p, store, m
}

func queue(t *testing.T, store *memory.Store, eventType string, payload interface{}) *model.OutboxEvent {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	evt := &model.OutboxEvent{EventType: eventType, Payload: raw}
	require.NoError(t, store.Outbox().Create(context.Background(), evt))
	return evt
}

func TestProcessEvents_PublishesAndMarksProcessed(t *testing.T) {
	broker := newFakeBroker()
	p, store, m := newProcessor(t, broker)
	ctx := context.Background()

	booked := queue(t, store, model.EventAppointmentBooked, model.AppointmentEvent{AppointmentID: 1, Status: model.AppointmentStatusPending})
	queue(t, store, model.EventFeedbackSubmitted, model.FeedbackEvent{FeedbackID: 2, Rating: 5})

	n, err := p.processEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, broker.published[model.EventAppointmentBooked], 1)
	msg := broker.published[model.EventAppointmentBooked][0]
	assert.Equal(t, booked.ID.String(), msg.ID)
	assert.Equal(t, model.EventAppointmentBooked, msg.Type)

	var payload model.AppointmentEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, int64(1), payload.AppointmentID)

	for _, e := range store.OutboxEvents() {
		assert.Equal(t, model.OutboxStatusProcessed, e.Status)
		assert.NotNil(t, e.ProcessedAt)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutboxEventsProcessed))

	n, err = p.processEvents(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessEvents_FailureSchedulesRetryThenParks(t *testing.T) {
	broker := newFakeBroker()
	broker.err = errors.New("redis down")
	p, store, m := newProcessor(t, broker)
	ctx := context.Background()

	now := time.Now()
	p.now = func() time.Time { return now }
	queue(t, store, model.EventAppointmentRescheduled, map[string]int{"appointment_id": 3})

	_, err := p.processEvents(ctx)
	require.NoError(t, err)

	evt := store.OutboxEvents()[0]
	assert.Equal(t, model.OutboxStatusFailed, evt.Status)
	assert.Equal(t, 1, evt.RetryCount)
	require.NotNil(t, evt.RetryAt)
	assert.WithinDuration(t, now.Add(time.Minute), *evt.RetryAt, time.Second)
	require.NotNil(t, evt.ErrorMessage)
	assert.Contains(t, *evt.ErrorMessage, "redis down")

	// not due yet
	n, err := p.processEvents(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, store.OutboxEvents()[0].RetryCount)

	// a forced failure makes the event due with two recorded attempts,
	// so the next delivery is the last one
	past := time.Now().Add(-time.Second)
	require.NoError(t, store.Outbox().MarkFailed(ctx, evt.ID, "forced", &past))
	_, err = p.processEvents(ctx)
	require.NoError(t, err)

	parked := store.OutboxEvents()[0]
	assert.Equal(t, model.OutboxStatusFailed, parked.Status)
	assert.Nil(t, parked.RetryAt)
	assert.Equal(t, 3, parked.RetryCount)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutboxEventsFailed))

	pending, err := store.Outbox().GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxCleanupWorker(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	done := queue(t, store, model.EventAppointmentBooked, map[string]int{"a": 1})
	require.NoError(t, store.Outbox().MarkProcessed(ctx, done.ID))
	queue(t, store, model.EventAppointmentBooked, map[string]int{"a": 2})

	w := NewOutboxCleanupWorker(store.Outbox(), -time.Minute, time.Hour, logger.Nop())
	assert.Equal(t, int64(1), w.cleanup(ctx))
	assert.Len(t, store.OutboxEvents(), 1)
	assert.Equal(t, model.OutboxStatusPending, store.OutboxEvents()[0].Status)
}

func TestNewOutboxProcessor_PanicsOnBadConfig(t *testing.T) {
	assert.Panics(t, func() {
		NewOutboxProcessor(memory.NewStore().Outbox(), newFakeBroker(), OutboxProcessorConfig{}, logger.Nop(), metrics.NewNop())
	})
}
