package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/medvault-api/internal/model"
	"github.com/jwalitptl/medvault-api/internal/repository"
	"github.com/jwalitptl/medvault-api/pkg/logger"
)

// Emitter records a domain event for asynchronous delivery.
type Emitter interface {
	Emit(ctx context.Context, eventType string, payload interface{}) error
}

// Service writes events to the transactional outbox; the worker publishes them.
type Service struct {
	outboxRepo repository.OutboxRepository
	logger     *logger.Logger
}

func NewService(outboxRepo repository.OutboxRepository, log *logger.Logger) *Service {
	return &Service{
		outboxRepo: outboxRepo,
		logger:     log,
	}
}

func (s *Service) Emit(ctx context.Context, eventType string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	evt := &model.OutboxEvent{
		EventType: eventType,
		Payload:   payloadJSON,
	}
	if err := s.outboxRepo.Create(ctx, evt); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}

	s.logger.Debug("event queued", "event_id", evt.ID.String(), "event_type", eventType)
	return nil
}

// NopEmitter drops every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, string, interface{}) error { return nil }
