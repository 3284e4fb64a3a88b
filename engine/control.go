package engine

import (
	"context"
	"log/slog"
)

// ControlListener consumes control events from the bus and toggles the run
// loop's pause gate. Inbound commands publish control.paused or
// control.resumed rather than calling the loop directly, so control changes
// reach every observer in the same total order as data events.
type ControlListener struct {
	bus  *Bus
	loop *RunLoop
}

// NewControlListener creates a listener for the given bus and loop.
func NewControlListener(bus *Bus, loop *RunLoop) *ControlListener {
	return &ControlListener{bus: bus, loop: loop}
}

// Run subscribes to the bus and applies control events until ctx is done or
// the subscription is closed. It is intended to run for the life of the
// process on its own goroutine.
func (c *ControlListener) Run(ctx context.Context) {
	sub := c.bus.Subscribe()
	defer sub.Close()

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			return
		}
		switch ev.Kind {
		case KindControlPaused:
			c.loop.Pause()
			slog.Info("run loop paused", "run_id", c.loop.RunID())
		case KindControlResumed:
			c.loop.Resume()
			slog.Info("run loop resumed", "run_id", c.loop.RunID())
		}
	}
}
