// Package api exposes the HTTP and WebSocket surface of the service.
package api

import (
	"log/slog"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/condenserhq/condenser/pkg/config"
	"github.com/condenserhq/condenser/pkg/notifier"
	"github.com/condenserhq/condenser/pkg/provider"
	"github.com/condenserhq/condenser/pkg/scheduler"
	"github.com/condenserhq/condenser/pkg/segmenter"
	"github.com/condenserhq/condenser/pkg/store"
)

// Server holds the handler dependencies.
type Server struct {
	cfg         *config.Config
	segmenter   *segmenter.Segmenter
	scheduler   *scheduler.Scheduler
	hub         *notifier.Hub
	connManager *notifier.ConnectionManager
	provider    provider.Summarizer
	store       *store.Store // nil when persistence is disabled
	logger      *slog.Logger

	// Recovery runs started for terminal batches: original id → state.
	mu         sync.Mutex
	recoveries map[string]*recoveryState
}

type recoveryState struct {
	RecoveryBatchID string
	Reason          string
}

// NewServer creates the API server. st may be nil.
func NewServer(
	cfg *config.Config,
	seg *segmenter.Segmenter,
	sched *scheduler.Scheduler,
	hub *notifier.Hub,
	connManager *notifier.ConnectionManager,
	prov provider.Summarizer,
	st *store.Store,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:         cfg,
		segmenter:   seg,
		scheduler:   sched,
		hub:         hub,
		connManager: connManager,
		provider:    prov,
		store:       st,
		logger:      logger.With("component", "api"),
		recoveries:  make(map[string]*recoveryState),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), correlationMiddleware(), s.requestLogger())

	sum := r.Group("/api/summarize")
	sum.POST("", s.handleSummarize)
	sum.POST("/upload", s.handleUpload)
	sum.POST("/cancel/:batchId", s.handleCancel)
	sum.POST("/batch/:batchId/cancel", s.handleLegacyCancel)
	sum.GET("/health", s.handleHealth)
	sum.GET("/health/system", s.handleSystemHealth)
	sum.POST("/health/self-repair", s.handleSelfRepair)
	sum.POST("/recovery/:batchId", s.handleRecovery)
	sum.GET("/recovery/:batchId/status", s.handleRecoveryStatus)
	sum.POST("/reset", s.handleReset)
	sum.GET("/records", s.handleListRecords)
	sum.GET("/batches", s.handleListBatches)

	r.GET("/batchProgressHub", s.handleWebSocket)
	return r
}

// userID extracts the caller identity. Identity is advisory; there is no
// authentication layer.
func userID(c *gin.Context) string {
	if id := c.GetHeader("X-User-Id"); id != "" {
		return id
	}
	return c.Query("userId")
}
