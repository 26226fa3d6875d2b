package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medvault-api/internal/model"
	"github.com/jwalitptl/medvault-api/pkg/logger"
	"github.com/jwalitptl/medvault-api/pkg/messaging"
)

type sentMail struct{ to, subject, body string }

type fakeEmail struct {
	sent []sentMail
	err  error
}

func (f *fakeEmail) SendCustom(_ context.Context, to, subject, content string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, content})
	return nil
}

type fakeBroker struct {
	channels map[string]chan []byte
}

func (b *fakeBroker) Publish(context.Context, string, interface{}) error { return nil }

func (b *fakeBroker) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	return b.channels[channel], nil
}

func (b *fakeBroker) Close() error { return nil }

func envelope(t *testing.T, eventType string, evt model.AppointmentEvent) []byte {
	t.Helper()
	payload, err := json.Marshal(evt)
	require.NoError(t, err)
	raw, err := json.Marshal(messaging.Message{ID: "evt-1", Type: eventType, Payload: payload})
	require.NoError(t, err)
	return raw
}

var sample = model.AppointmentEvent{
	AppointmentID:   1,
	DoctorName:      "Dr. House",
	PatientName:     "Pat",
	PatientEmail:    "p@x.com",
	AppointmentDate: "2024-06-01",
	AppointmentTime: "10:30",
	Status:          model.AppointmentStatusApproved,
}

func TestHandle_Rescheduled(t *testing.T) {
	mail := &fakeEmail{}
	svc := NewService(mail, logger.Nop())

	evt := sample
	evt.Reason = "doctor unavailable at 09:00"
	require.NoError(t, svc.Handle(context.Background(), envelope(t, model.EventAppointmentRescheduled, evt)))

	require.Len(t, mail.sent, 1)
	assert.Equal(t, "p@x.com", mail.sent[0].to)
	assert.Equal(t, "Your appointment was rescheduled", mail.sent[0].subject)
	assert.Contains(t, mail.sent[0].body, "2024-06-01 at 10:30")
	assert.Contains(t, mail.sent[0].body, "doctor unavailable")
}

func TestHandle_StatusChanged(t *testing.T) {
	mail := &fakeEmail{}
	svc := NewService(mail, logger.Nop())

	for _, status := range []model.AppointmentStatus{
		model.AppointmentStatusApproved,
		model.AppointmentStatusCancelled,
		model.AppointmentStatusCompleted,
		model.AppointmentStatusPending,
	} {
		evt := sample
		evt.Status = status
		require.NoError(t, svc.Handle(context.Background(), envelope(t, model.EventAppointmentStatusChanged, evt)))
	}

	require.Len(t, mail.sent, 3)
	assert.Equal(t, "Appointment approved", mail.sent[0].subject)
	assert.Equal(t, "Appointment cancelled", mail.sent[1].subject)
	assert.Contains(t, mail.sent[2].body, "leave feedback")
}

func TestHandle_IgnoresAndRejects(t *testing.T) {
	mail := &fakeEmail{}
	svc := NewService(mail, logger.Nop())
	ctx := context.Background()

	assert.NoError(t, svc.Handle(ctx, envelope(t, model.EventAppointmentBooked, sample)))

	noRecipient := sample
	noRecipient.PatientEmail = ""
	assert.NoError(t, svc.Handle(ctx, envelope(t, model.EventAppointmentRescheduled, noRecipient)))
	assert.Empty(t, mail.sent)

	assert.Error(t, svc.Handle(ctx, []byte("{")))

	mail.err = errors.New("smtp down")
	assert.ErrorContains(t, svc.Handle(ctx, envelope(t, model.EventAppointmentRescheduled, sample)), "smtp down")
}

func TestRun_DrainsUntilChannelsClose(t *testing.T) {
	mail := &fakeEmail{}
	svc := NewService(mail, logger.Nop())

	broker := &fakeBroker{channels: map[string]chan []byte{}}
	for _, ch := range Channels {
		broker.channels[ch] = make(chan []byte, 1)
	}
	broker.channels[model.EventAppointmentRescheduled] <- envelope(t, model.EventAppointmentRescheduled, sample)
	for _, ch := range broker.channels {
		close(ch)
	}

	assert.NoError(t, svc.Run(context.Background(), broker))
	assert.Len(t, mail.sent, 1)
}
