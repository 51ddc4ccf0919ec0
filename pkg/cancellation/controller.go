// Package cancellation owns cancel tokens and the safe-checkpoint policy.
// The controller decides when a batch's token fires; capturing partial
// results is delegated to a handler wired in at startup.
package cancellation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/condenserhq/condenser/pkg/models"
	"github.com/condenserhq/condenser/pkg/notifier"
)

// DefaultAwaitTimeout bounds how long a graceful cancel waits for the next
// safe checkpoint before escalating to forced.
const DefaultAwaitTimeout = 15 * time.Second

// EventSink publishes controller events. The notifier hub implements it.
type EventSink interface {
	Publish(batchID string, eventType notifier.EventType, payload interface{})
}

// PartialHandler captures a partial result for a batch at cancellation
// time. The scheduler implements it.
type PartialHandler interface {
	CapturePartial(batchID string) (*models.PartialResult, error)
}

type entry struct {
	ctx            context.Context
	cancel         context.CancelFunc
	request        *models.CancellationRequest
	safeCheckpoint bool
	pending        bool
	pendingTimer   *time.Timer
	cancelled      bool
}

// Controller tracks cancel state per batch.
type Controller struct {
	mu      sync.Mutex
	entries map[string]*entry

	sink         EventSink
	partials     PartialHandler
	awaitTimeout time.Duration
	logger       *slog.Logger
}

// NewController creates the controller. The sink may be nil in tests.
func NewController(sink EventSink, awaitTimeout time.Duration, logger *slog.Logger) *Controller {
	if awaitTimeout <= 0 {
		awaitTimeout = DefaultAwaitTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		entries:      make(map[string]*entry),
		sink:         sink,
		awaitTimeout: awaitTimeout,
		logger:       logger.With("component", "cancellation"),
	}
}

// SetPartialHandler wires the partial-result capturer. Called once during
// startup after the scheduler exists.
func (c *Controller) SetPartialHandler(h PartialHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partials = h
}

// Register creates a cancel token for a batch. The returned context is the
// token; workers propagate it into provider calls.
func (c *Controller) Register(batchID string, parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[batchID] = &entry{ctx: ctx, cancel: cancel, safeCheckpoint: true}
	return ctx
}

// Unregister releases a batch's cancel state. The scheduler calls this when
// the batch reaches a terminal stage.
func (c *Controller) Unregister(batchID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[batchID]; ok {
		if e.pendingTimer != nil {
			e.pendingTimer.Stop()
		}
		e.cancel()
		delete(c.entries, batchID)
	}
}

// IsCancelled reports whether a batch's token has fired.
func (c *Controller) IsCancelled(batchID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[batchID]
	return ok && e.cancelled
}

// Token returns a batch's cancel token.
func (c *Controller) Token(batchID string) (context.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[batchID]; ok {
		return e.ctx, true
	}
	return nil, false
}

// Request returns a record of the active cancellation request, if any.
func (c *Controller) Request(batchID string) *models.CancellationRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[batchID]; ok {
		return e.request
	}
	return nil
}

// SetSafeCheckpoint marks whether the batch is between segments. A pending
// graceful cancel fires as soon as the checkpoint is reached.
func (c *Controller) SetSafeCheckpoint(batchID string, value bool) {
	c.mu.Lock()
	e, ok := c.entries[batchID]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.safeCheckpoint = value

	if !value || !e.pending || e.cancelled {
		c.mu.Unlock()
		return
	}

	// A graceful cancel was waiting for this checkpoint. Capture the
	// partial before firing the token.
	if e.pendingTimer != nil {
		e.pendingTimer.Stop()
		e.pendingTimer = nil
	}
	req := e.request
	c.mu.Unlock()

	if req != nil && req.SavePartial {
		c.capturePartial(batchID)
	}

	c.mu.Lock()
	e.pending = false
	c.cancelLocked(e)
	c.mu.Unlock()
}

// Cancel applies the cancellation policy for a request. It is idempotent;
// cancelling an unknown or already-cancelled batch succeeds with a
// descriptive message.
func (c *Controller) Cancel(req models.CancellationRequest) models.CancellationResult {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}

	c.mu.Lock()
	e, ok := c.entries[req.BatchID]
	if !ok {
		c.mu.Unlock()
		return models.CancellationResult{
			BatchID:      req.BatchID,
			IsSuccessful: true,
			Message:      "batch is not active; nothing to cancel",
		}
	}
	if e.cancelled || e.pending {
		c.mu.Unlock()
		return models.CancellationResult{
			BatchID:      req.BatchID,
			IsSuccessful: true,
			Message:      "cancellation already in progress",
		}
	}

	e.request = &req
	c.publishRequested(req)

	if req.Force {
		c.cancelLocked(e)
		c.mu.Unlock()
		c.logger.Info("batch cancelled", "batch_id", req.BatchID, "mode", "forced", "reason", req.Reason)
		return models.CancellationResult{BatchID: req.BatchID, IsSuccessful: true, Message: "forced"}
	}

	if e.safeCheckpoint {
		// Capture the partial before firing the token so the scheduler's
		// terminal event sees it.
		e.pending = true
		c.mu.Unlock()

		partialSaved := false
		if req.SavePartial {
			partialSaved = c.capturePartial(req.BatchID)
		}

		c.mu.Lock()
		e.pending = false
		c.cancelLocked(e)
		c.mu.Unlock()
		c.logger.Info("batch cancelled", "batch_id", req.BatchID, "mode", "graceful", "reason", req.Reason)
		return models.CancellationResult{
			BatchID:      req.BatchID,
			IsSuccessful: true,
			Message:      "graceful",
			PartialSaved: partialSaved,
		}
	}

	// Mid-segment: wait for the next safe checkpoint, bounded by the await
	// timeout, then escalate to forced.
	e.pending = true
	batchID := req.BatchID
	e.pendingTimer = time.AfterFunc(c.awaitTimeout, func() {
		c.escalate(batchID)
	})
	c.mu.Unlock()

	c.logger.Info("cancellation pending safe checkpoint", "batch_id", req.BatchID, "await", c.awaitTimeout)
	return models.CancellationResult{BatchID: req.BatchID, IsSuccessful: true, Message: "pending"}
}

// escalate turns a still-pending graceful cancel into a forced one after
// the await timeout. The requested partial is still captured from whatever
// has completed; only the wait for a safe checkpoint is abandoned.
func (c *Controller) escalate(batchID string) {
	c.mu.Lock()
	e, ok := c.entries[batchID]
	if !ok || e.cancelled || !e.pending {
		c.mu.Unlock()
		return
	}
	e.pendingTimer = nil
	req := e.request
	c.mu.Unlock()

	if req != nil && req.SavePartial {
		c.capturePartial(batchID)
	}

	c.mu.Lock()
	// A checkpoint may have completed the cancel while the partial was
	// being captured.
	forced := !e.cancelled && e.pending
	if forced {
		e.pending = false
		c.cancelLocked(e)
	}
	c.mu.Unlock()

	if forced {
		c.logger.Warn("safe checkpoint never reached, forcing cancellation", "batch_id", batchID)
	}
}

func (c *Controller) cancelLocked(e *entry) {
	e.cancelled = true
	e.cancel()
}

func (c *Controller) publishRequested(req models.CancellationRequest) {
	if c.sink != nil {
		c.sink.Publish(req.BatchID, notifier.EventCancellationRequested, req)
	}
}

func (c *Controller) capturePartial(batchID string) bool {
	c.mu.Lock()
	h := c.partials
	c.mu.Unlock()
	if h == nil {
		return false
	}
	partial, err := h.CapturePartial(batchID)
	if err != nil {
		c.logger.Warn("partial result capture failed", "batch_id", batchID, "error", err)
		return false
	}
	if partial != nil {
		c.logger.Info("partial result captured",
			"batch_id", batchID,
			"completion_pct", fmt.Sprintf("%.0f", partial.CompletionPct),
			"quality", partial.Quality.Level)
	}
	return partial != nil
}
