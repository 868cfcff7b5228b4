package api

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/baton/pkg/faults"
)

// websocketHandler handles GET /ws.
// Upgrades the connection and hands it to the connection manager, which
// owns the read loop until the client disconnects. Cross-origin access
// is limited to the configured origin patterns.
func (s *Server) websocketHandler(c *gin.Context) {
	if s.connManager == nil {
		abortWithFault(c, http.StatusServiceUnavailable,
			faults.New(faults.CodeConflict, "websocket endpoint is not enabled"))
		return
	}

	var opts websocket.AcceptOptions
	if s.cfg != nil && s.cfg.API != nil {
		opts.OriginPatterns = s.cfg.API.AllowedWSOrigins
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &opts)
	if err != nil {
		// Accept has already written the handshake failure response.
		return
	}

	s.connManager.HandleConnection(c.Request.Context(), conn)
}
