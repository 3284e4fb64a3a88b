package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/martinemde/vibeloop/engine"
)

// Server adapts the event bus to HTTP: live streams out, commands in.
type Server struct {
	bus         *engine.Bus
	storageRoot string
	webRoot     string
}

// NewServer creates a Server publishing to and subscribing from the given
// bus. storageRoot is served under /static so the UI can fetch screenshots;
// webRoot, when non-empty, is served at the root.
func NewServer(bus *engine.Bus, storageRoot, webRoot string) *Server {
	return &Server{bus: bus, storageRoot: storageRoot, webRoot: webRoot}
}

// Register mounts all routes on the echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/api/events", s.StreamEvents)
	e.GET("/api/ws", s.StreamEventsWS)
	e.POST("/api/control", s.Control)
	e.POST("/api/prompt", s.Prompt)
	e.Static("/static", s.storageRoot)
	if s.webRoot != "" {
		e.Static("/", s.webRoot)
	}
}

// StreamEvents streams bus events to the client via SSE. The first message
// is the synthetic hello bootstrap; everything after is the subscriber's
// sequence verbatim, one compact JSON event per message.
// GET /api/events
func (s *Server) StreamEvents(c echo.Context) error {
	ctx := c.Request().Context()

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	sub := s.bus.Subscribe()
	defer sub.Close()

	if err := s.writeSSE(c, engine.NewHello()); err != nil {
		return err
	}

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			// Client disconnect or subscription teardown; not a failure.
			return nil
		}
		if err := s.writeSSE(c, ev); err != nil {
			return err
		}
	}
}

func (s *Server) writeSSE(c echo.Context, ev engine.Event) error {
	data, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(c.Response().Writer, "event: message\ndata: %s\n\n", data); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}

// Control translates a pause/resume instruction into a control event on the
// bus. The loop is never called directly: its control listener observes the
// published event like every other subscriber.
// POST /api/control
func (s *Server) Control(c echo.Context) error {
	var cmd ControlCommand
	if err := c.Bind(&cmd); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid control command"})
	}
	if err := cmd.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	switch cmd.Action {
	case ActionPause:
		s.bus.Publish(engine.NewControlPaused())
	case ActionResume:
		s.bus.Publish(engine.NewControlResumed())
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// Prompt validates a routed prompt from the UI. Routing override is not
// wired into the loop yet, so a valid command is acknowledged and dropped.
// POST /api/prompt
func (s *Server) Prompt(c echo.Context) error {
	var cmd PromptCommand
	if err := c.Bind(&cmd); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid prompt command"})
	}
	if err := cmd.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	slog.Info("prompt accepted", "route_to", cmd.RouteTo, "parts", len(cmd.Content))
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
