package scheduler

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/condenserhq/condenser/pkg/models"
	"github.com/condenserhq/condenser/pkg/notifier"
	"github.com/condenserhq/condenser/pkg/provider"
)

// protocolRetryLimit caps retries for malformed provider responses; a
// backend that keeps answering garbage is not going to recover.
const protocolRetryLimit = 1

// processTask runs one segment to a terminal task state.
func (s *Scheduler) processTask(run *batchRun, task *models.SegmentTask) {
	batchID := run.batch.ID

	if run.runCtx.Err() != nil || run.cancelRequested() {
		return
	}

	s.workerStarted(run)
	defer s.workerFinished(run)

	started := time.Now()
	s.tracker.SegmentStarted(batchID, task.Segment.Index)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.BaseDelay
	bo.Multiplier = s.cfg.BackoffMultiplier
	bo.RandomizationFactor = s.cfg.JitterPct
	bo.MaxElapsedTime = 0
	bo.Reset()

	protocolRetries := 0
	for attempt := 1; ; attempt++ {
		if run.cancelRequested() {
			s.failTask(run, task, "cancelled before provider call", provider.KindCancelled, started)
			return
		}

		s.updateTask(run, task, func(t *models.SegmentTask) {
			t.Status = models.TaskRunning
			t.Attempts = attempt
			if t.StartedAt == nil {
				now := time.Now().UTC()
				t.StartedAt = &now
			}
		})

		result, err := s.summarizeSegment(run.runCtx, task.Segment.Content)
		if err == nil {
			s.completeTask(run, task, result, started)
			return
		}

		kind := provider.Classify(err)
		if kind == provider.KindCancelled {
			s.failTask(run, task, err.Error(), kind, started)
			return
		}
		if kind == provider.KindProtocol {
			protocolRetries++
		}

		retry := provider.Retryable(kind) &&
			attempt <= s.cfg.MaxRetries &&
			(kind != provider.KindProtocol || protocolRetries <= protocolRetryLimit)
		if !retry {
			s.failTask(run, task, err.Error(), kind, started)
			return
		}

		s.updateTask(run, task, func(t *models.SegmentTask) {
			t.Status = models.TaskRetrying
			t.Error = err.Error()
			t.LastErrorKind = string(kind)
		})
		s.logger.Debug("retrying segment", "batch_id", batchID,
			"segment", task.Segment.Index, "attempt", attempt, "kind", kind)

		if s.sleepFunc(run.runCtx, bo.NextBackOff()) != nil {
			s.failTask(run, task, "cancelled during retry wait", provider.KindCancelled, started)
			return
		}
	}
}

// summarizeSegment calls the provider with the per-call timeout. Long
// segments get the long timeout.
func (s *Scheduler) summarizeSegment(ctx context.Context, content string) (string, error) {
	timeout := s.cfg.DefaultTimeout
	if len(content) > s.cfg.LongTimeoutThreshold {
		timeout = s.cfg.LongTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.provider.Summarize(callCtx, content)
}

func (s *Scheduler) completeTask(run *batchRun, task *models.SegmentTask, result string, started time.Time) {
	now := time.Now().UTC()
	s.updateTask(run, task, func(t *models.SegmentTask) {
		t.Status = models.TaskCompleted
		t.Result = result
		t.Error = ""
		t.LastErrorKind = ""
		t.FinishedAt = &now
	})
	s.tracker.SegmentFinished(run.batch.ID, time.Since(started), len(task.Segment.Content), false)
}

func (s *Scheduler) failTask(run *batchRun, task *models.SegmentTask, errMsg string, kind provider.Kind, started time.Time) {
	now := time.Now().UTC()
	s.updateTask(run, task, func(t *models.SegmentTask) {
		t.Status = models.TaskFailed
		t.Error = errMsg
		t.LastErrorKind = string(kind)
		t.FinishedAt = &now
	})
	s.tracker.SegmentFinished(run.batch.ID, time.Since(started), len(task.Segment.Content), true)

	if kind != provider.KindCancelled {
		s.logger.Warn("segment failed", "batch_id", run.batch.ID,
			"segment", task.Segment.Index, "kind", kind, "attempts", task.Attempts)
	}
	s.checkFailFast(run)
}

// updateTask mutates a task under the batch lock and emits a status event
// with a copy of the task.
func (s *Scheduler) updateTask(run *batchRun, task *models.SegmentTask, mutate func(*models.SegmentTask)) {
	run.mu.Lock()
	mutate(task)
	snapshot := *task
	run.mu.Unlock()

	s.publish(run.batch.ID, notifier.EventSegmentStatusUpdate, snapshot)
}

// checkFailFast abandons the batch once failures pass half the segments.
func (s *Scheduler) checkFailFast(run *batchRun) {
	run.mu.Lock()
	_, failed := countTerminal(run.batch.Tasks)
	trip := !run.failedFast && failed > len(run.batch.Tasks)/2
	if trip {
		run.failedFast = true
	}
	run.mu.Unlock()

	if trip {
		s.logger.Warn("fail-fast threshold tripped, abandoning batch",
			"batch_id", run.batch.ID, "failed", failed, "total", len(run.batch.Tasks))
		run.stopRun()
	}
}

// workerStarted / workerFinished maintain the safe-checkpoint flag: the
// batch is at a safe checkpoint exactly when no provider call is in flight.
func (s *Scheduler) workerStarted(run *batchRun) {
	run.mu.Lock()
	run.running++
	first := run.running == 1
	run.mu.Unlock()
	if first {
		s.control.SetSafeCheckpoint(run.batch.ID, false)
	}
}

func (s *Scheduler) workerFinished(run *batchRun) {
	run.mu.Lock()
	run.running--
	last := run.running == 0
	run.mu.Unlock()
	if last {
		s.control.SetSafeCheckpoint(run.batch.ID, true)
	}
}
