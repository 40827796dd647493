package api

import (
	"time"

	"github.com/gofiber/contrib/v3/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/tienphuckx/anony-box-backbone/internal/gateway"
)

// GatewayHandler serves the WebSocket upgrade endpoint for the real-time core
// (spec.md §4.D session lifecycle).
type GatewayHandler struct {
	dispatcher     *gateway.Dispatcher
	hub            *gateway.Hub
	outboundBuffer int
	authTimeout    time.Duration
	log            zerolog.Logger
}

// NewGatewayHandler creates a new gateway handler.
func NewGatewayHandler(dispatcher *gateway.Dispatcher, hub *gateway.Hub, outboundBuffer int, authTimeout time.Duration, logger zerolog.Logger) *GatewayHandler {
	return &GatewayHandler{dispatcher: dispatcher, hub: hub, outboundBuffer: outboundBuffer, authTimeout: authTimeout, log: logger}
}

// Upgrade handles GET /api/v1/gateway. It upgrades the HTTP connection to a
// WebSocket and runs the session's inbound/outbound pumps until it closes.
// Unlike the REST routes, the x-user-code header is not required here: the
// protocol's own Authenticate frame carries the bearer code, since a plain
// WebSocket upgrade request cannot always carry custom headers from browser
// clients.
func (h *GatewayHandler) Upgrade(c fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		session := gateway.NewSession(conn.Conn, h.dispatcher, h.hub, h.log, h.outboundBuffer, h.authTimeout)
		session.Serve()
	})(c)
}
