// Package cleanup provides data retention and cleanup services.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/condenserhq/condenser/pkg/config"
)

// BatchCleaner evicts terminal batches older than the given age from memory.
type BatchCleaner interface {
	Cleanup(olderThan time.Duration) int
}

// RecordStore deletes persisted summary records created before the cutoff.
type RecordStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service periodically enforces retention policies:
//   - Evicts terminal batches from the in-memory registry past their TTL
//   - Deletes persisted summary records past the retention window
//
// All operations are idempotent.
type Service struct {
	config  *config.RetentionConfig
	batches BatchCleaner
	records RecordStore
	logger  *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service. records may be nil when the
// server runs without a database.
func NewService(cfg *config.RetentionConfig, batches BatchCleaner, records RecordStore, logger *slog.Logger) *Service {
	return &Service{
		config:  cfg,
		batches: batches,
		records: records,
		logger:  logger,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("cleanup service started",
		"batch_ttl", s.config.BatchTTL,
		"record_retention_days", s.config.RecordRetentionDays,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.evictTerminalBatches()
	s.deleteOldRecords(ctx)
}

func (s *Service) evictTerminalBatches() {
	count := s.batches.Cleanup(s.config.BatchTTL)
	if count > 0 {
		s.logger.Info("retention: evicted terminal batches", "count", count)
	}
}

func (s *Service) deleteOldRecords(ctx context.Context) {
	if s.records == nil || s.config.RecordRetentionDays <= 0 {
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -s.config.RecordRetentionDays)

	opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	count, err := s.records.DeleteOlderThan(opCtx, cutoff)
	if err != nil {
		s.logger.Error("retention: record cleanup failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("retention: deleted old summary records", "count", count)
	}
}
