package api

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// handleWebSocket upgrades the connection and hands it to the
// ConnectionManager. Blocks until the WebSocket closes.
func (s *Server) handleWebSocket(c *gin.Context) {
	if s.connManager == nil {
		respondErrorStatus(c, http.StatusServiceUnavailable, "provider_unavailable",
			"real-time updates are not available", "warning", true, nil)
		return
	}

	opts := &websocket.AcceptOptions{}
	if len(s.cfg.Server.AllowedWSOrigins) > 0 {
		opts.OriginPatterns = s.cfg.Server.AllowedWSOrigins
	} else {
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s.connManager.HandleConnection(c.Request.Context(), conn)
}
