package api

import (
	"github.com/gofiber/contrib/v3/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/signalmesh/server/internal/connection"
)

// GatewayHandler serves the WebSocket upgrade endpoint that terminates one Connection per
// socket.
type GatewayHandler struct {
	auth connection.Authenticator
	log  zerolog.Logger
}

// NewGatewayHandler creates a new gateway handler.
func NewGatewayHandler(auth connection.Authenticator, log zerolog.Logger) *GatewayHandler {
	return &GatewayHandler{auth: auth, log: log}
}

// Upgrade handles GET /ws. It upgrades the HTTP connection to a WebSocket and starts a
// Connection actor over it.
func (h *GatewayHandler) Upgrade(c fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		connection.New(conn.Conn, h.auth, h.log)
	})(c)
}
