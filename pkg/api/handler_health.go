package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/condenserhq/condenser/pkg/provider"
	"github.com/condenserhq/condenser/pkg/version"
)

const healthProbeTimeout = 5 * time.Second

// handleHealth probes the summarization provider.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	if err := s.provider.Health(ctx); err != nil {
		respondErrorKind(c, provider.KindUnavailable,
			"provider "+s.provider.Name()+" is unhealthy: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, DataResponse{
		Success: true,
		Data: gin.H{
			"provider": s.provider.Name(),
			"healthy":  true,
		},
	})
}

// handleSystemHealth reports the health of every subsystem. Degraded
// subsystems do not fail the endpoint; the payload carries their state.
func (s *Server) handleSystemHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	providerHealthy := s.provider.Health(ctx) == nil

	database := gin.H{"enabled": false}
	if s.store != nil {
		database = gin.H{
			"enabled": true,
			"healthy": s.store.Health(ctx) == nil,
		}
	}

	c.JSON(http.StatusOK, DataResponse{
		Success: true,
		Data: gin.H{
			"provider": gin.H{
				"name":    s.provider.Name(),
				"healthy": providerHealthy,
			},
			"database": database,
			"scheduler": gin.H{
				"active_batches": s.scheduler.ActiveBatches(),
			},
			"websocket": gin.H{
				"connections": s.connManager.ActiveConnections(),
			},
			"version": version.Full(),
		},
	})
}

// handleSelfRepair re-probes the provider and reports whether the backend
// recovered.
func (s *Server) handleSelfRepair(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	err := s.provider.Health(ctx)
	if err != nil {
		respondErrorKind(c, provider.KindUnavailable,
			"self-repair probe failed: "+err.Error())
		return
	}

	s.logger.Info("self-repair probe succeeded", "provider", s.provider.Name())
	c.JSON(http.StatusOK, DataResponse{
		Success: true,
		Message: "provider is healthy",
		Data: gin.H{
			"provider":  s.provider.Name(),
			"healthy":   true,
			"probed_at": time.Now().UTC(),
		},
	})
}
