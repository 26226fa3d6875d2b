package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medvault-api/internal/model"
	"github.com/jwalitptl/medvault-api/pkg/logger"
)

type fakeOutbox struct {
	events []*model.OutboxEvent
	err    error
}

func (f *fakeOutbox) Create(_ context.Context, e *model.OutboxEvent) error {
	if f.err != nil {
		return f.err
	}
	e.ID = uuid.New()
	e.Status = model.OutboxStatusPending
	f.events = append(f.events, e)
	return nil
}

func (f *fakeOutbox) GetPendingEvents(context.Context, int) ([]*model.OutboxEvent, error) {
	return f.events, nil
}
func (f *fakeOutbox) MarkProcessed(context.Context, uuid.UUID) error { return nil }
func (f *fakeOutbox) MarkFailed(context.Context, uuid.UUID, string, *time.Time) error {
	return nil
}
func (f *fakeOutbox) DeleteProcessedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func TestEmit_WritesOutboxRow(t *testing.T) {
	repo := &fakeOutbox{}
	svc := NewService(repo, logger.Nop())

	payload := model.FeedbackEvent{FeedbackID: 3, AppointmentID: 9, Rating: 5}
	require.NoError(t, svc.Emit(context.Background(), model.EventFeedbackSubmitted, payload))

	require.Len(t, repo.events, 1)
	assert.Equal(t, model.EventFeedbackSubmitted, repo.events[0].EventType)

	var got model.FeedbackEvent
	require.NoError(t, json.Unmarshal(repo.events[0].Payload, &got))
	assert.Equal(t, payload, got)
}

func TestEmit_PropagatesStoreError(t *testing.T) {
	svc := NewService(&fakeOutbox{err: errors.New("db down")}, logger.Nop())
	err := svc.Emit(context.Background(), model.EventAppointmentBooked, map[string]int{"a": 1})
	assert.ErrorContains(t, err, "db down")
}

func TestEmit_RejectsUnmarshalablePayload(t *testing.T) {
	repo := &fakeOutbox{}
	svc := NewService(repo, logger.Nop())
	err := svc.Emit(context.Background(), "x", make(chan int))
	assert.Error(t, err)
	assert.Empty(t, repo.events)
}
