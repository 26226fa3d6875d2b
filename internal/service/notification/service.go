package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/jwalitptl/medvault-api/internal/email"
	"github.com/jwalitptl/medvault-api/internal/model"
	"github.com/jwalitptl/medvault-api/pkg/logger"
	"github.com/jwalitptl/medvault-api/pkg/messaging"
)

// Channels mails the patient about.
var Channels = []string{
	model.EventAppointmentStatusChanged,
	model.EventAppointmentRescheduled,
}

// Service turns appointment events into patient emails.
type Service struct {
	emailSvc email.Service
	logger   *logger.Logger
}

func NewService(emailSvc email.Service, log *logger.Logger) *Service {
	return &Service{
		emailSvc: emailSvc,
		logger:   log,
	}
}

// Run subscribes to Channels and handles messages until ctx is done.
func (s *Service) Run(ctx context.Context, broker messaging.Broker) error {
	var wg sync.WaitGroup
	for _, channel := range Channels {
		msgs, err := broker.Subscribe(ctx, channel)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
		}

		wg.Add(1)
		go func(channel string, msgs <-chan []byte) {
			defer wg.Done()
			for raw := range msgs {
				if err := s.Handle(ctx, raw); err != nil {
					s.logger.Error(err, "Failed to handle notification", "channel", channel)
				}
			}
		}(channel, msgs)
	}

	s.logger.Info("Notification subscriber started", "channels", strings.Join(Channels, ","))
	wg.Wait()
	return ctx.Err()
}

// Handle mails the patient for one envelope. Other event types are ignored.
func (s *Service) Handle(ctx context.Context, raw []byte) error {
	msg, err := messaging.Decode(raw)
	if err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	var evt model.AppointmentEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return fmt.Errorf("invalid %s payload: %w", msg.Type, err)
	}

	subject, body, ok := render(msg.Type, evt)
	if !ok {
		return nil
	}
	if evt.PatientEmail == "" {
		s.logger.Warn("Skipping notification without recipient", "event_id", msg.ID, "appointment_id", evt.AppointmentID)
		return nil
	}

	if err := s.emailSvc.SendCustom(ctx, evt.PatientEmail, subject, body); err != nil {
		return err
	}
	s.logger.Info("Notification sent", "event_id", msg.ID, "appointment_id", evt.AppointmentID)
	return nil
}

func render(eventType string, evt model.AppointmentEvent) (string, string, bool) {
	when := fmt.Sprintf("%s at %s", evt.AppointmentDate, evt.AppointmentTime)

	switch eventType {
	case model.EventAppointmentRescheduled:
		body := fmt.Sprintf("Hello %s,\n\nYour appointment with %s has been moved to %s.\n",
			evt.PatientName, evt.DoctorName, when)
		if evt.Reason != "" {
			body += fmt.Sprintf("\nNote: %s\n", evt.Reason)
		}
		return "Your appointment was rescheduled", body, true

	case model.EventAppointmentStatusChanged:
		var line string
		switch evt.Status {
		case model.AppointmentStatusApproved:
			line = fmt.Sprintf("has been approved for %s", when)
		case model.AppointmentStatusCancelled:
			line = fmt.Sprintf("on %s has been cancelled", when)
		case model.AppointmentStatusCompleted:
			line = fmt.Sprintf("on %s is complete. You can now leave feedback", when)
		default:
			return "", "", false
		}
		body := fmt.Sprintf("Hello %s,\n\nYour appointment with %s %s.\n", evt.PatientName, evt.DoctorName, line)
		return fmt.Sprintf("Appointment %s", strings.ToLower(string(evt.Status))), body, true
	}
	return "", "", false
}
