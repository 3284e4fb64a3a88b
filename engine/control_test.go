package engine

import (
	"context"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestControlListenerTogglesPause(t *testing.T) {
	loop, _, _, bus := newTestLoop(t, stubExchanger{}, &stubCapturer{})
	if err := loop.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewControlListener(bus, loop).Run(ctx)
	waitFor(t, func() bool { return bus.SubscriberCount() == 1 }, "listener never subscribed")

	bus.Publish(NewControlResumed())
	waitFor(t, func() bool { return !loop.Paused() }, "loop never resumed")

	bus.Publish(NewControlPaused())
	waitFor(t, func() bool { return loop.Paused() }, "loop never paused")
}

func TestControlListenerIgnoresDataEvents(t *testing.T) {
	loop, _, _, bus := newTestLoop(t, stubExchanger{}, &stubCapturer{})
	if err := loop.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewControlListener(bus, loop).Run(ctx)
	waitFor(t, func() bool { return bus.SubscriberCount() == 1 }, "listener never subscribed")

	bus.Publish(NewControlResumed())
	waitFor(t, func() bool { return !loop.Paused() }, "loop never resumed")

	bus.Publish(NewIterationStarted(loop.RunID(), 1))
	bus.Publish(NewControlResumed())
	// Still running: data events must not flip the gate.
	waitFor(t, func() bool { return !loop.Paused() }, "loop paused unexpectedly")
}
