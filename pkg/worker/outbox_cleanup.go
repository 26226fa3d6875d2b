package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/medvault-api/internal/repository"
	"github.com/jwalitptl/medvault-api/pkg/logger"
)

// OutboxCleanupWorker deletes processed outbox rows older than the retention window.
type OutboxCleanupWorker struct {
	repo      repository.OutboxRepository
	retention time.Duration
	interval  time.Duration
	logger    *logger.Logger
}

func NewOutboxCleanupWorker(repo repository.OutboxRepository, retention, interval time.Duration, log *logger.Logger) *OutboxCleanupWorker {
	return &OutboxCleanupWorker{
		repo:      repo,
		retention: retention,
		interval:  interval,
		logger:    log,
	}
}

func (w *OutboxCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *OutboxCleanupWorker) cleanup(ctx context.Context) int64 {
	cutoff := time.Now().Add(-w.retention)
	deleted, err := w.repo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		w.logger.Error(err, "Failed to clean up outbox events")
		return 0
	}
	if deleted > 0 {
		w.logger.Info("Cleaned up outbox events", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted
}
