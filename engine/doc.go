// Package engine implements the iteration run loop and its event plumbing.
//
// It drives an autonomous "iterate on a visual artifact" cycle: on each tick
// the loop advances an iteration counter, exchanges a prompt and response with
// a language model, mutates the rendered HTML workspace, captures a screenshot
// of the result, and emits a strictly ordered sequence of lifecycle events.
// Every event is appended to a per-run JSONL log before it is published to the
// in-process bus, so the log is the durable source of truth and the bus is a
// best-effort live tap for connected observers.
//
// # Architecture
//
// The package is organized around these core concepts:
//
//   - Event: The tagged envelope every lifecycle fact shares.
//   - Bus: In-memory publish/subscribe fan-out to live subscribers, each with
//     its own unbounded queue so a slow consumer never stalls the loop.
//   - Log: Append-only per-run persistence of events, one JSON line each.
//   - RunLoop: The pausable iteration state machine orchestrating one
//     iteration's sub-steps and delegating real work to collaborators.
//   - ControlListener: Consumes control events from the bus and toggles the
//     loop's pause gate, so control flows through the same ordered stream as
//     data.
//
// # Quick Start
//
//	paths := engine.NewPaths("storage")
//	bus := engine.NewBus()
//	log := engine.NewLog(paths)
//	loop := engine.NewRunLoop(log, bus, paths, exchanger, patcher, capturer, nil)
//
//	if err := loop.Start(); err != nil {
//	    slog.Error("start failed", "error", err)
//	    return
//	}
//	go engine.NewControlListener(bus, loop).Run(ctx)
//	loop.Resume()
//	loop.Run(ctx, 2*time.Second)
package engine
