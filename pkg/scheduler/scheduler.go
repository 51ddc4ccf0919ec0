// Package scheduler drives batches through the summarization provider.
// It owns the batch registry; the cancellation controller touches only the
// cancel subfields and everything else reads immutable snapshots.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/condenserhq/condenser/pkg/cancellation"
	"github.com/condenserhq/condenser/pkg/config"
	"github.com/condenserhq/condenser/pkg/merger"
	"github.com/condenserhq/condenser/pkg/models"
	"github.com/condenserhq/condenser/pkg/notifier"
	"github.com/condenserhq/condenser/pkg/progress"
	"github.com/condenserhq/condenser/pkg/provider"
)

// EventSink publishes scheduler events. The notifier hub implements it.
type EventSink interface {
	Publish(batchID string, eventType notifier.EventType, payload interface{})
}

// RecordStore persists finished summaries. May be nil when no store is
// configured; persistence is best effort either way.
type RecordStore interface {
	SaveRecord(ctx context.Context, record *models.SummaryRecord) error
}

// StartOptions carry per-request overrides for one batch.
type StartOptions struct {
	ConcurrencyLimit int // 0 uses the configured default; capped at the max
	MergeOptions     merger.Options
}

// Scheduler runs batches. All exported methods are safe for concurrent use.
type Scheduler struct {
	cfg      *config.BatchConfig
	provider provider.Summarizer
	merger   *merger.Merger
	tracker  *progress.Tracker
	sink     EventSink
	control  *cancellation.Controller
	store    RecordStore
	logger   *slog.Logger

	mu      sync.RWMutex
	batches map[string]*batchRun

	baseCtx   context.Context
	baseStop  context.CancelFunc
	wg        sync.WaitGroup
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// batchRun is a batch plus its in-flight scheduling state.
type batchRun struct {
	mu    sync.Mutex
	batch *models.Batch

	gate *pauseGate

	runCtx  context.Context
	stopRun context.CancelFunc

	running    int  // provider calls in flight
	failedFast bool
	cancelled  bool
}

// cancelRequested reports whether a cancellation request has been applied
// to this batch. A pending graceful cancel must stop new dispatch so the
// in-flight calls can drain to a safe checkpoint.
func (r *batchRun) cancelRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// NewScheduler wires the scheduler. Call Shutdown to stop it.
func NewScheduler(
	cfg *config.BatchConfig,
	p provider.Summarizer,
	m *merger.Merger,
	tracker *progress.Tracker,
	sink EventSink,
	control *cancellation.Controller,
	store RecordStore,
	logger *slog.Logger,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:      cfg,
		provider: p,
		merger:   m,
		tracker:  tracker,
		sink:     sink,
		control:  control,
		store:    store,
		logger:   logger.With("component", "scheduler"),
		batches:  make(map[string]*batchRun),
		baseCtx:  ctx,
		baseStop: cancel,
		sleepFunc: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// ErrNoSegments rejects a batch with an empty segment list.
var ErrNoSegments = errors.New("scheduler: batch has no segments")

// Start registers a batch and begins processing it in the background.
func (s *Scheduler) Start(segments []models.Segment, originalText, userID string, opts StartOptions) (string, error) {
	if len(segments) == 0 {
		return "", provider.NewError(provider.KindInvalidInput, "scheduler.start", ErrNoSegments)
	}

	batchID := uuid.New().String()
	tasks := make([]*models.SegmentTask, len(segments))
	for i, seg := range segments {
		tasks[i] = &models.SegmentTask{Segment: seg, Status: models.TaskPending}
	}

	batch := &models.Batch{
		ID:           batchID,
		UserID:       userID,
		CreatedAt:    time.Now().UTC(),
		OriginalText: originalText,
		Tasks:        tasks,
		Stage:        models.StageInitializing,
	}

	token := s.control.Register(batchID, s.baseCtx)
	var runCtx context.Context
	var stopRun context.CancelFunc
	if s.cfg.BatchTimeout > 0 {
		runCtx, stopRun = context.WithTimeout(token, s.cfg.BatchTimeout)
	} else {
		runCtx, stopRun = context.WithCancel(token)
	}

	run := &batchRun{
		batch:   batch,
		gate:    newPauseGate(),
		runCtx:  runCtx,
		stopRun: stopRun,
	}

	s.mu.Lock()
	s.batches[batchID] = run
	s.mu.Unlock()

	s.tracker.StartBatch(batchID, len(tasks))
	s.publish(batchID, notifier.EventStageChanged,
		notifier.StageChangedPayload{Stage: models.StageInitializing})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(run, opts)
	}()

	s.logger.Info("batch started", "batch_id", batchID, "segments", len(tasks), "user_id", userID)
	return batchID, nil
}

// run drives one batch from segmenting to a terminal stage.
func (s *Scheduler) run(run *batchRun, opts StartOptions) {
	batchID := run.batch.ID
	defer run.stopRun()

	s.setStage(run, models.StageSegmenting, "")
	s.setStage(run, models.StageBatchProcessing, "")

	limit := s.concurrency(opts.ConcurrencyLimit)
	sem := semaphore.NewWeighted(int64(limit))

	var workers sync.WaitGroup
	for _, task := range run.batch.Tasks {
		if run.cancelRequested() {
			break
		}
		if err := run.gate.wait(run.runCtx); err != nil {
			break
		}
		if err := sem.Acquire(run.runCtx, 1); err != nil {
			break
		}
		if run.runCtx.Err() != nil || run.cancelRequested() {
			sem.Release(1)
			break
		}

		workers.Add(1)
		go func(task *models.SegmentTask) {
			defer workers.Done()
			defer sem.Release(1)
			s.processTask(run, task)
		}(task)
	}
	workers.Wait()

	s.finish(run, opts)
	s.control.Unregister(batchID)
}

// finish merges, persists, and emits the terminal event for a batch.
func (s *Scheduler) finish(run *batchRun, opts StartOptions) {
	run.mu.Lock()
	batch := run.batch
	cancelled := run.cancelled || (run.runCtx.Err() != nil && !run.failedFast)
	failedFast := run.failedFast
	completed, failed := countTerminal(batch.Tasks)
	run.mu.Unlock()

	switch {
	case failedFast:
		s.finishFailed(run, "too many segment failures", string(provider.KindUnavailable))
		return
	case cancelled:
		s.finishCancelled(run)
		return
	case completed == 0:
		s.finishFailed(run, "no segment produced a summary", string(provider.KindUnavailable))
		return
	}

	s.setStage(run, models.StageMerging, "")

	result, err := s.merger.Merge(run.runCtx, batch.Tasks, opts.MergeOptions)
	if err != nil {
		s.logger.Error("merge failed", "batch_id", batch.ID, "error", err)
		s.finishFailed(run, "merging summaries failed", string(provider.Classify(err)))
		return
	}

	s.setStage(run, models.StageFinalizing, "")

	now := time.Now().UTC()
	run.mu.Lock()
	batch.Summary = result.Summary
	batch.CompletedAt = &now
	run.mu.Unlock()

	s.persistRecord(batch, result, "")
	s.setStage(run, models.StageCompleted, "")

	s.publish(batch.ID, notifier.EventBatchCompleted, notifier.BatchCompletedPayload{
		BatchID:          batch.ID,
		Summary:          result.Summary,
		Completed:        completed,
		Failed:           failed,
		Total:            len(batch.Tasks),
		ProcessingTimeMs: now.Sub(batch.CreatedAt).Milliseconds(),
	})
	s.logger.Info("batch completed", "batch_id", batch.ID,
		"completed", completed, "failed", failed, "duration", now.Sub(batch.CreatedAt))
}

func (s *Scheduler) finishCancelled(run *batchRun) {
	batch := run.batch
	now := time.Now().UTC()

	run.mu.Lock()
	batch.Stage = models.StageCancelled
	batch.CompletedAt = &now
	partial := batch.Partial
	completed, failed := countTerminal(batch.Tasks)
	run.mu.Unlock()

	s.tracker.SetStage(batch.ID, models.StageCancelled)
	s.publish(batch.ID, notifier.EventBatchCompleted, notifier.BatchCompletedPayload{
		BatchID:          batch.ID,
		Cancelled:        true,
		Partial:          partial,
		Summary:          partialSummary(partial),
		Completed:        completed,
		Failed:           failed,
		Total:            len(batch.Tasks),
		ProcessingTimeMs: now.Sub(batch.CreatedAt).Milliseconds(),
	})
	s.logger.Info("batch cancelled", "batch_id", batch.ID, "completed", completed, "partial_saved", partial != nil)
}

func (s *Scheduler) finishFailed(run *batchRun, message, errorCode string) {
	batch := run.batch
	now := time.Now().UTC()

	run.mu.Lock()
	batch.Stage = models.StageFailed
	batch.ErrorMessage = message
	batch.CompletedAt = &now
	run.mu.Unlock()

	s.tracker.SetStage(batch.ID, models.StageFailed)
	s.persistRecord(batch, nil, message)
	s.publish(batch.ID, notifier.EventBatchFailed, notifier.BatchFailedPayload{
		BatchID:   batch.ID,
		Error:     message,
		ErrorCode: errorCode,
	})
	s.logger.Warn("batch failed", "batch_id", batch.ID, "error", message)
}

// setStage advances the batch stage, the tracker, and subscribers together.
func (s *Scheduler) setStage(run *batchRun, stage models.Stage, info string) {
	run.mu.Lock()
	if run.batch.Stage == stage || run.batch.Stage.Terminal() {
		run.mu.Unlock()
		return
	}
	run.batch.Stage = stage
	run.mu.Unlock()

	s.tracker.SetStage(run.batch.ID, stage)
	s.publish(run.batch.ID, notifier.EventStageChanged, notifier.StageChangedPayload{Stage: stage, Info: info})
}

func (s *Scheduler) concurrency(requested int) int {
	limit := s.cfg.DefaultConcurrentLimit
	if requested > 0 {
		limit = requested
	}
	if limit > s.cfg.MaxConcurrentLimit {
		limit = s.cfg.MaxConcurrentLimit
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

func (s *Scheduler) publish(batchID string, eventType notifier.EventType, payload interface{}) {
	if s.sink != nil {
		s.sink.Publish(batchID, eventType, payload)
	}
}

func (s *Scheduler) persistRecord(batch *models.Batch, result *merger.Result, errMsg string) {
	if s.store == nil {
		return
	}
	record := &models.SummaryRecord{
		ID:             batch.ID,
		OriginalText:   batch.OriginalText,
		CreatedAt:      time.Now().UTC(),
		UserID:         batch.UserID,
		OriginalLength: len(batch.OriginalText),
		ErrorMessage:   errMsg,
	}
	if result != nil {
		record.SummaryText = result.Summary
		record.SummaryLength = len(result.Summary)
		record.ProcessingTimeMs = result.ProcessingMs
	}
	if batch.CompletedAt != nil {
		record.ProcessingTimeMs = batch.CompletedAt.Sub(batch.CreatedAt).Milliseconds()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.SaveRecord(ctx, record); err != nil {
		s.logger.Warn("failed to persist summary record", "batch_id", batch.ID, "error", err)
	}
}

func countTerminal(tasks []*models.SegmentTask) (completed, failed int) {
	for _, t := range tasks {
		switch t.Status {
		case models.TaskCompleted:
			completed++
		case models.TaskFailed:
			failed++
		}
	}
	return completed, failed
}

func partialSummary(p *models.PartialResult) string {
	if p == nil {
		return ""
	}
	return p.MergedSummary
}

// Shutdown cancels all running batches and waits for them to stop, bounded
// by the context.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.batches))
	for id, run := range s.batches {
		run.mu.Lock()
		terminal := run.batch.Stage.Terminal()
		run.mu.Unlock()
		if !terminal {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range ids {
		s.Cancel(models.CancellationRequest{
			BatchID:     id,
			RequestedBy: "system",
			Reason:      models.CancelReasonShutdown,
			Force:       true,
		})
	}
	s.baseStop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pauseGate blocks dispatch while a batch is paused. Running provider
// calls are never interrupted by a pause.
type pauseGate struct {
	mu     sync.Mutex
	open   chan struct{}
	paused bool
}

func newPauseGate() *pauseGate {
	g := &pauseGate{open: make(chan struct{})}
	close(g.open)
	return g
}

func (g *pauseGate) pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		g.paused = true
		g.open = make(chan struct{})
	}
}

func (g *pauseGate) resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		g.paused = false
		close(g.open)
	}
}

func (g *pauseGate) wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.open
	g.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
