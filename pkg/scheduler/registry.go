package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/condenserhq/condenser/pkg/cancellation"
	"github.com/condenserhq/condenser/pkg/merger"
	"github.com/condenserhq/condenser/pkg/models"
)

// Progress returns the live snapshot for a batch.
func (s *Scheduler) Progress(batchID string) (models.ProgressSnapshot, bool) {
	return s.tracker.Snapshot(batchID)
}

// Batch returns a copy of a batch's current state.
func (s *Scheduler) Batch(batchID string) (*models.Batch, bool) {
	run, ok := s.lookup(batchID)
	if !ok {
		return nil, false
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	clone := *run.batch
	clone.Tasks = make([]*models.SegmentTask, len(run.batch.Tasks))
	for i, t := range run.batch.Tasks {
		tc := *t
		clone.Tasks[i] = &tc
	}
	return &clone, true
}

// Pause stops new segments from being dispatched. Running provider calls
// continue to completion.
func (s *Scheduler) Pause(batchID string) bool {
	run, ok := s.lookup(batchID)
	if !ok {
		return false
	}
	run.mu.Lock()
	terminal := run.batch.Stage.Terminal()
	run.mu.Unlock()
	if terminal {
		return false
	}
	run.gate.pause()
	s.logger.Info("batch paused", "batch_id", batchID)
	return true
}

// Resume reopens the dispatch gate.
func (s *Scheduler) Resume(batchID string) bool {
	run, ok := s.lookup(batchID)
	if !ok {
		return false
	}
	run.gate.resume()
	s.logger.Info("batch resumed", "batch_id", batchID)
	return true
}

// Cancel applies a cancellation request to a batch. Idempotent; cancelling
// a terminal or unknown batch succeeds with a descriptive message.
func (s *Scheduler) Cancel(req models.CancellationRequest) models.CancellationResult {
	run, ok := s.lookup(req.BatchID)
	if ok {
		run.mu.Lock()
		if run.batch.Stage.Terminal() {
			run.mu.Unlock()
			return models.CancellationResult{
				BatchID:      req.BatchID,
				IsSuccessful: true,
				Message:      "batch already finished",
			}
		}
		run.batch.CancelRequest = &req
		run.cancelled = true
		// A paused batch must not sit behind its gate while cancelling.
		run.gate.resume()
		run.mu.Unlock()
	}
	return s.control.Cancel(req)
}

// CapturePartial merges the completed subset of a batch and attaches the
// result to it. Called by the cancellation controller.
func (s *Scheduler) CapturePartial(batchID string) (*models.PartialResult, error) {
	run, ok := s.lookup(batchID)
	if !ok {
		return nil, nil
	}

	run.mu.Lock()
	tasks := make([]*models.SegmentTask, len(run.batch.Tasks))
	for i, t := range run.batch.Tasks {
		tc := *t
		tasks[i] = &tc
	}
	total := len(tasks)
	run.mu.Unlock()

	completed, _ := countTerminal(tasks)
	if completed == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, err := s.merger.Merge(ctx, tasks, merger.Options{})
	if err != nil {
		return nil, err
	}

	var completedTasks []*models.SegmentTask
	for _, t := range tasks {
		if t.Status == models.TaskCompleted {
			completedTasks = append(completedTasks, t)
		}
	}

	partial := &models.PartialResult{
		BatchID:          batchID,
		CompletedTasks:   completedTasks,
		CompletionPct:    float64(completed) / float64(total) * 100,
		MergedSummary:    result.Summary,
		Quality:          cancellation.AssessPartialQuality(tasks),
		CancellationTime: time.Now().UTC(),
	}

	run.mu.Lock()
	run.batch.Partial = partial
	run.mu.Unlock()
	return partial, nil
}

// ListByUser returns compact summaries of a user's batches, newest first.
func (s *Scheduler) ListByUser(userID string) []models.BatchSummary {
	s.mu.RLock()
	runs := make([]*batchRun, 0, len(s.batches))
	for _, run := range s.batches {
		runs = append(runs, run)
	}
	s.mu.RUnlock()

	var out []models.BatchSummary
	for _, run := range runs {
		run.mu.Lock()
		b := run.batch
		if b.UserID != userID {
			run.mu.Unlock()
			continue
		}
		completed, failed := countTerminal(b.Tasks)
		summary := models.BatchSummary{
			BatchID:     b.ID,
			UserID:      b.UserID,
			Stage:       b.Stage,
			Total:       len(b.Tasks),
			Completed:   completed,
			Failed:      failed,
			CreatedAt:   b.CreatedAt,
			CompletedAt: b.CompletedAt,
		}
		run.mu.Unlock()

		if snap, ok := s.tracker.Snapshot(b.ID); ok {
			summary.OverallPct = snap.OverallPct
		}
		out = append(out, summary)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Cleanup removes terminal batches whose completion is older than the
// threshold and returns how many were removed.
func (s *Scheduler) Cleanup(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	s.mu.Lock()
	var victims []string
	for id, run := range s.batches {
		run.mu.Lock()
		if run.batch.Stage.Terminal() && run.batch.CompletedAt != nil && run.batch.CompletedAt.Before(cutoff) {
			victims = append(victims, id)
		}
		run.mu.Unlock()
	}
	for _, id := range victims {
		delete(s.batches, id)
	}
	s.mu.Unlock()

	for _, id := range victims {
		s.tracker.Remove(id)
	}
	if len(victims) > 0 {
		s.logger.Info("cleaned up terminal batches", "count", len(victims))
	}
	return len(victims)
}

// ActiveBatches counts batches that have not reached a terminal stage.
func (s *Scheduler) ActiveBatches() int {
	s.mu.RLock()
	runs := make([]*batchRun, 0, len(s.batches))
	for _, run := range s.batches {
		runs = append(runs, run)
	}
	s.mu.RUnlock()

	active := 0
	for _, run := range runs {
		run.mu.Lock()
		if !run.batch.Stage.Terminal() {
			active++
		}
		run.mu.Unlock()
	}
	return active
}

func (s *Scheduler) lookup(batchID string) (*batchRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.batches[batchID]
	return run, ok
}
