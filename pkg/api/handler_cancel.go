package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/condenserhq/condenser/pkg/models"
	"github.com/condenserhq/condenser/pkg/provider"
)

// handleCancel applies a full CancellationRequest to a batch.
func (s *Server) handleCancel(c *gin.Context) {
	var req models.CancellationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorKind(c, provider.KindInvalidInput, err.Error())
		return
	}

	req.BatchID = c.Param("batchId")
	if req.RequestedBy == "" {
		req.RequestedBy = userID(c)
	}
	if req.Reason == "" {
		req.Reason = models.CancelReasonUser
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}

	result := s.scheduler.Cancel(req)
	c.JSON(http.StatusOK, result)
}

// handleLegacyCancel is the older cancellation endpoint: cooperative cancel
// without partial-result capture.
func (s *Server) handleLegacyCancel(c *gin.Context) {
	result := s.scheduler.Cancel(models.CancellationRequest{
		BatchID:     c.Param("batchId"),
		RequestedBy: userID(c),
		Reason:      models.CancelReasonUser,
		SavePartial: false,
		Force:       false,
		RequestedAt: time.Now().UTC(),
	})

	c.JSON(http.StatusOK, gin.H{
		"success": result.IsSuccessful,
		"message": result.Message,
	})
}
