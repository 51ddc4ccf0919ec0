package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/condenserhq/condenser/pkg/models"
	"github.com/condenserhq/condenser/pkg/notifier"
	"github.com/condenserhq/condenser/pkg/provider"
	"github.com/condenserhq/condenser/pkg/scheduler"
)

// handleRecovery re-runs the failed segments of a terminal batch as a new
// batch.
func (s *Server) handleRecovery(c *gin.Context) {
	batchID := c.Param("batchId")
	reason := c.Query("reason")

	batch, ok := s.scheduler.Batch(batchID)
	if !ok {
		respondNotFound(c, "unknown batch "+batchID)
		return
	}
	if !batch.Stage.Terminal() {
		respondErrorKind(c, provider.KindInvalidInput,
			"batch is still running; cancel it before recovering")
		return
	}

	var failed []models.Segment
	for _, t := range batch.Tasks {
		if t.Status == models.TaskFailed {
			failed = append(failed, t.Segment)
		}
	}
	if len(failed) == 0 {
		respondErrorKind(c, provider.KindInvalidInput, "batch has no failed segments to recover")
		return
	}

	recoveryID, err := s.scheduler.Start(failed, batch.OriginalText, batch.UserID, scheduler.StartOptions{})
	if err != nil {
		respondError(c, err, "")
		return
	}

	s.mu.Lock()
	s.recoveries[batchID] = &recoveryState{RecoveryBatchID: recoveryID, Reason: reason}
	s.mu.Unlock()

	s.logger.Info("recovery started",
		"batch_id", batchID, "recovery_batch_id", recoveryID,
		"segments", len(failed), "reason", reason)

	c.JSON(http.StatusAccepted, DataResponse{
		Success: true,
		Data: gin.H{
			"batchId":         batchID,
			"recoveryBatchId": recoveryID,
			"segments":        len(failed),
		},
	})
}

// handleRecoveryStatus reports the state of a batch's recovery run.
func (s *Server) handleRecoveryStatus(c *gin.Context) {
	batchID := c.Param("batchId")

	s.mu.Lock()
	state, ok := s.recoveries[batchID]
	s.mu.Unlock()
	if !ok {
		respondNotFound(c, "no recovery run for batch "+batchID)
		return
	}

	recovery, ok := s.scheduler.Batch(state.RecoveryBatchID)
	if !ok {
		respondNotFound(c, "recovery batch "+state.RecoveryBatchID+" no longer exists")
		return
	}

	completed, failed := 0, 0
	for _, t := range recovery.Tasks {
		switch t.Status {
		case models.TaskCompleted:
			completed++
		case models.TaskFailed:
			failed++
		}
	}

	c.JSON(http.StatusOK, DataResponse{
		Success: true,
		Data: gin.H{
			"batchId":         batchID,
			"recoveryBatchId": recovery.ID,
			"stage":           recovery.Stage,
			"completed":       completed,
			"failed":          failed,
			"total":           len(recovery.Tasks),
			"summary":         recovery.Summary,
			"reason":          state.Reason,
		},
	})
}

// handleReset clears server-side state by scope.
func (s *Server) handleReset(c *gin.Context) {
	switch c.Query("resetType") {
	case "ui":
		// Client-side state; nothing to do server-side.
		c.JSON(http.StatusOK, DataResponse{Success: true, Message: "ui reset acknowledged"})

	case "batch":
		batchID := c.Query("batchId")
		if batchID == "" {
			respondErrorKind(c, provider.KindInvalidInput, "batchId is required for resetType=batch")
			return
		}
		result := s.scheduler.Cancel(models.CancellationRequest{
			BatchID:     batchID,
			RequestedBy: "reset",
			Reason:      models.CancelReasonSystemError,
			Force:       true,
			RequestedAt: time.Now().UTC(),
		})
		c.JSON(http.StatusOK, DataResponse{Success: result.IsSuccessful, Message: result.Message})

	case "resources":
		removed := s.scheduler.Cleanup(0)
		s.hub.Broadcast(notifier.EventSystemStatusUpdate, gin.H{
			"message":   "server resources were reset",
			"timestamp": time.Now().UTC(),
		})
		c.JSON(http.StatusOK, DataResponse{
			Success: true,
			Message: "terminal batches cleared",
			Data:    gin.H{"removed": removed},
		})

	default:
		respondErrorKind(c, provider.KindInvalidInput, "resetType must be ui, batch, or resources")
	}
}
