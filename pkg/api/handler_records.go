package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/condenserhq/condenser/pkg/provider"
)

// handleListRecords lists persisted summary records, newest first.
func (s *Server) handleListRecords(c *gin.Context) {
	if s.store == nil {
		respondErrorKind(c, provider.KindUnavailable, "record persistence is not configured")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondErrorKind(c, provider.KindInvalidInput, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.store.ListRecords(c.Request.Context(), userID(c), limit)
	if err != nil {
		respondErrorKind(c, provider.KindInternal, "failed to list records: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, DataResponse{Success: true, Data: records})
}

// handleListBatches lists the caller's in-memory batches, newest first.
func (s *Server) handleListBatches(c *gin.Context) {
	id := userID(c)
	if id == "" {
		respondErrorKind(c, provider.KindInvalidInput, "userId is required")
		return
	}
	c.JSON(http.StatusOK, DataResponse{Success: true, Data: s.scheduler.ListByUser(id)})
}
