package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type stubExchanger struct {
	err error
}

func (s stubExchanger) Exchange(_ context.Context, runID string, n int, routeTo Target, parts []ContentPart) (Event, Event, error) {
	if s.err != nil {
		return Event{}, Event{}, s.err
	}
	sent, err := NewPromptSent(runID, ActorVision, routeTo, parts, n)
	if err != nil {
		return Event{}, Event{}, err
	}
	recv, err := NewResponseReceived(runID, Actor(routeTo), "ok", n)
	return sent, recv, err
}

type stubCapturer struct {
	err error
}

func (s *stubCapturer) Capture(_ context.Context, _, outPath string, _ Viewport) error {
	if s.err != nil {
		return s.err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outPath, []byte("png"), 0o644)
}

func newTestLoop(t *testing.T, exchanger Exchanger, capturer Capturer) (*RunLoop, *Log, *Paths, *Bus) {
	t.Helper()
	paths := NewPaths(t.TempDir())
	bus := NewBus()
	log := NewLog(paths)
	loop := NewRunLoop(log, bus, paths, exchanger, NewWorkspacePatcher(paths), capturer, nil)
	return loop, log, paths, bus
}

func TestStartEmitsRunStarted(t *testing.T) {
	loop, log, _, _ := newTestLoop(t, stubExchanger{}, &stubCapturer{})

	if err := loop.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	rid := loop.RunID()
	if !runIDPattern.MatchString(rid) {
		t.Errorf("run id %q does not match pattern", rid)
	}

	events, err := log.Read(rid)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(events) != 1 || events[0].Kind != KindRunStarted || events[0].RunID != rid {
		t.Errorf("expected exactly one run.started with run_id %s, got %+v", rid, events)
	}
	if !loop.Paused() {
		t.Error("fresh run must start paused")
	}
}

func TestStartTwice(t *testing.T) {
	loop, _, _, _ := newTestLoop(t, stubExchanger{}, &stubCapturer{})
	if err := loop.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := loop.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestTickBeforeStart(t *testing.T) {
	loop, _, _, _ := newTestLoop(t, stubExchanger{}, &stubCapturer{})
	if err := loop.Tick(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}

func TestTicksWhilePausedAppendNothing(t *testing.T) {
	loop, log, _, _ := newTestLoop(t, stubExchanger{}, &stubCapturer{})
	if err := loop.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := loop.Tick(ctx); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}

	events, err := log.Read(loop.RunID())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected only run.started, got %d events", len(events))
	}
	if loop.Iteration() != 0 {
		t.Errorf("iteration counter advanced while paused: %d", loop.Iteration())
	}
}

func iterationKinds(events []Event) []string {
	kinds := make([]string, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, string(ev.Kind))
	}
	return kinds
}

func TestIterationEventOrder(t *testing.T) {
	loop, log, paths, _ := newTestLoop(t, stubExchanger{}, &stubCapturer{})
	if err := loop.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	loop.Resume()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := loop.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i+1, err)
		}
	}

	rid := loop.RunID()
	events, err := log.Read(rid)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	want := []struct {
		kind    Kind
		ordinal int
	}{
		{KindRunStarted, 0},
		{KindIterationStarted, 1},
		{KindPromptSent, 1},
		{KindResponseReceived, 1},
		{KindScreenshotCaptured, 1},
		{KindIterationStarted, 2},
		{KindPromptSent, 2},
		{KindResponseReceived, 2},
		{KindScreenshotCaptured, 2},
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(events), iterationKinds(events))
	}
	for i, w := range want {
		ev := events[i]
		if ev.Kind != w.kind {
			t.Errorf("event %d: expected %s, got %s", i, w.kind, ev.Kind)
		}
		ordinal := ev.N
		if ordinal == 0 {
			ordinal = ev.Iteration
		}
		if ordinal != w.ordinal {
			t.Errorf("event %d (%s): expected ordinal %d, got %d", i, ev.Kind, w.ordinal, ordinal)
		}
		if ev.RunID != rid {
			t.Errorf("event %d: run_id %q, want %q", i, ev.RunID, rid)
		}
	}

	for n := 1; n <= 2; n++ {
		if _, err := os.Stat(paths.SnapPath(rid, n)); err != nil {
			t.Errorf("screenshot %d missing: %v", n, err)
		}
	}
}

func TestScreenshotFailureAbortsIteration(t *testing.T) {
	capturer := &stubCapturer{err: fmt.Errorf("chrome exploded")}
	loop, log, _, _ := newTestLoop(t, stubExchanger{}, capturer)
	if err := loop.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	loop.Resume()

	ctx := context.Background()
	if err := loop.Tick(ctx); err == nil {
		t.Fatal("expected tick error")
	}

	events, err := log.Read(loop.RunID())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	kinds := iterationKinds(events)
	wantKinds := []string{"run.started", "iteration.started", "prompt.sent", "response.received", "error"}
	if len(kinds) != len(wantKinds) {
		t.Fatalf("expected %v, got %v", wantKinds, kinds)
	}
	for i, w := range wantKinds {
		if kinds[i] != w {
			t.Errorf("event %d: expected %s, got %s", i, w, kinds[i])
		}
	}
	errEv := events[len(events)-1]
	if errEv.Where != "screenshot" {
		t.Errorf("expected where=screenshot, got %q", errEv.Where)
	}

	// The failed ordinal is not retried: the next tick starts n+1.
	capturer.err = nil
	if err := loop.Tick(ctx); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	events, err = log.Read(loop.RunID())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	next := events[len(wantKinds)]
	if next.Kind != KindIterationStarted || next.N != 2 {
		t.Errorf("expected iteration.started n=2, got %s n=%d", next.Kind, next.N)
	}
}

func TestExchangeFailureAbortsIteration(t *testing.T) {
	loop, log, _, _ := newTestLoop(t, stubExchanger{err: fmt.Errorf("quota exhausted")}, &stubCapturer{})
	if err := loop.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	loop.Resume()

	if err := loop.Tick(context.Background()); err == nil {
		t.Fatal("expected tick error")
	}

	events, err := log.Read(loop.RunID())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	kinds := iterationKinds(events)
	wantKinds := []string{"run.started", "iteration.started", "error"}
	if len(kinds) != len(wantKinds) {
		t.Fatalf("expected %v, got %v", wantKinds, kinds)
	}
	errEv := events[len(events)-1]
	if errEv.Where != "exchange" || errEv.Msg != "quota exhausted" {
		t.Errorf("expected error{where:exchange, msg:quota exhausted}, got %+v", errEv)
	}
}

func TestPauseResumeOrdinalContinuity(t *testing.T) {
	loop, log, _, _ := newTestLoop(t, stubExchanger{}, &stubCapturer{})
	if err := loop.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx := context.Background()
	loop.Resume()
	if err := loop.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	loop.Pause()
	for i := 0; i < 2; i++ {
		if err := loop.Tick(ctx); err != nil {
			t.Fatalf("paused tick: %v", err)
		}
	}
	loop.Resume()
	if err := loop.Tick(ctx); err != nil {
		t.Fatalf("tick after resume: %v", err)
	}

	events, err := log.Read(loop.RunID())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var ordinals []int
	for _, ev := range events {
		if ev.Kind == KindIterationStarted {
			ordinals = append(ordinals, ev.N)
		}
	}
	if len(ordinals) != 2 || ordinals[0] != 1 || ordinals[1] != 2 {
		t.Errorf("expected ordinals [1 2], got %v", ordinals)
	}
}

func TestLogOrderMatchesPublishOrder(t *testing.T) {
	loop, log, _, bus := newTestLoop(t, stubExchanger{}, &stubCapturer{})

	sub := bus.Subscribe()
	defer sub.Close()

	if err := loop.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	loop.Resume()
	if err := loop.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	logged, err := log.Read(loop.RunID())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i, want := range logged {
		got, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if got.Kind != want.Kind {
			t.Errorf("publish order diverges from log order at %d: %s vs %s", i, got.Kind, want.Kind)
		}
	}
}
