package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/martinemde/vibeloop/engine"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The daemon serves a local UI; accept any origin.
		return true
	},
}

// StreamEventsWS mirrors the SSE stream over a WebSocket: hello bootstrap
// first, then one compact JSON event per text message. A write failure or
// client close unsubscribes.
// GET /api/ws
func (s *Server) StreamEventsWS(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return err
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// Drain the read side so client close and ping/pong are observed.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sub := s.bus.Subscribe()
	defer sub.Close()

	if err := writeWS(ws, engine.NewHello()); err != nil {
		return nil
	}

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			return nil
		}
		if err := writeWS(ws, ev); err != nil {
			return nil
		}
	}
}

func writeWS(ws *websocket.Conn, ev engine.Event) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return ws.WriteMessage(websocket.TextMessage, data)
}
