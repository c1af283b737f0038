package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"credit-core.io/creditcore/internal/pkg/logger"
)

// upgrader performs the WebSocket handshake. Origin checking belongs to the
// outer edge together with the rest of the browser-facing policy.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocket handles GET /ws: upgrades the connection and hands the session
// to the hub until the client disconnects or idles out.
func (s *Server) WebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	s.hub.Serve(c.Request.Context(), conn, s.pools, s.wsOptions)
}
