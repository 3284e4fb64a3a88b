package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultTickInterval is the cadence the host driver ticks the loop on when
// no interval is configured.
const DefaultTickInterval = 2 * time.Second

// ErrNotStarted is returned when the loop is ticked before Start.
var ErrNotStarted = errors.New("run loop not started")

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("run loop already started")

// Viewport is the browser viewport used for screenshot capture.
type Viewport struct {
	Width  int
	Height int
}

// DefaultViewport is the capture viewport used when none is configured.
var DefaultViewport = Viewport{Width: 1280, Height: 720}

// Exchanger performs one prompt/response round trip with a language model.
// It returns both the envelope that was sent (the content may be normalized
// or echoed for the UI) and the envelope received. Ordinary model refusals
// are a normal reply text, not an error; only transport, authentication, and
// quota failures return one.
type Exchanger interface {
	Exchange(ctx context.Context, runID string, iteration int, routeTo Target, parts []ContentPart) (sent Event, recv Event, err error)
}

// Patcher mutates the run's workspace deterministically from the iteration
// ordinal and returns the workspace entry point. Implementations must be
// idempotent per (runID, iteration).
type Patcher interface {
	ApplyPatch(runID string, iteration int) (string, error)
}

// Capturer renders the workspace entry point and writes a PNG screenshot to
// outPath.
type Capturer interface {
	Capture(ctx context.Context, htmlPath, outPath string, viewport Viewport) error
}

// StepError wraps a collaborator failure with the name of the iteration
// phase it occurred in.
type StepError struct {
	Phase string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// LoopConfig holds per-loop iteration policy.
type LoopConfig struct {
	// RouteTo is the fixed model role prompts are routed to.
	RouteTo Target
	// Prompt is the text part sent each iteration.
	Prompt string
	// Viewport is the screenshot capture viewport.
	Viewport Viewport
}

// DefaultLoopConfig returns the reference configuration: prompts routed to
// the code model, a minimal "iterate" instruction, and a 1280x720 viewport.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		RouteTo:  TargetCode,
		Prompt:   "iterate",
		Viewport: DefaultViewport,
	}
}

// RunLoop is the pausable iteration state machine. It owns exactly one run:
// Start mints the run identity, then each Tick executes one iteration unless
// the pause gate is set. Every resulting event is appended to the log before
// it is published to the bus.
//
// A freshly started loop is paused; callers must Resume it to begin
// iterating. That is deliberate policy: a run only iterates once an external
// actor asks it to.
type RunLoop struct {
	log       *Log
	bus       *Bus
	paths     *Paths
	exchanger Exchanger
	patcher   Patcher
	capturer  Capturer
	cfg       LoopConfig

	// mu guards the fields below. The pause gate is flipped from the
	// control listener goroutine while Tick reads it.
	mu        sync.Mutex
	runID     string
	iteration int
	paused    bool
}

// NewRunLoop creates a RunLoop wired to its collaborators. A nil cfg selects
// DefaultLoopConfig.
func NewRunLoop(log *Log, bus *Bus, paths *Paths, exchanger Exchanger, patcher Patcher, capturer Capturer, cfg *LoopConfig) *RunLoop {
	c := DefaultLoopConfig()
	if cfg != nil {
		c = *cfg
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		c.Viewport = DefaultViewport
	}
	return &RunLoop{
		log:       log,
		bus:       bus,
		paths:     paths,
		exchanger: exchanger,
		patcher:   patcher,
		capturer:  capturer,
		cfg:       c,
		paused:    true,
	}
}

// Start allocates a fresh run identity, resets the iteration counter, and
// logs and publishes run.started. It must be called exactly once before
// ticking.
func (l *RunLoop) Start() error {
	l.mu.Lock()
	if l.runID != "" {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.runID = NewRunID()
	l.iteration = 0
	runID := l.runID
	l.mu.Unlock()

	if err := l.emit(runID, NewRunStarted(runID)); err != nil {
		return err
	}
	slog.Info("run started", "run_id", runID)
	return nil
}

// RunID returns the run identifier, or "" before Start.
func (l *RunLoop) RunID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runID
}

// Iteration returns the last captured iteration ordinal.
func (l *RunLoop) Iteration() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.iteration
}

// Paused reports the pause gate.
func (l *RunLoop) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

// Pause sets the pause gate. Idempotent; takes effect on the next tick
// boundary, so an iteration already in flight runs to completion.
func (l *RunLoop) Pause() {
	l.mu.Lock()
	l.paused = true
	l.mu.Unlock()
}

// Resume clears the pause gate. Idempotent.
func (l *RunLoop) Resume() {
	l.mu.Lock()
	l.paused = false
	l.mu.Unlock()
}

// emit appends the event to the log and then publishes it to the bus, in
// that order. The append is the durability boundary: if it fails, the event
// is not published.
func (l *RunLoop) emit(runID string, ev Event) error {
	if err := l.log.Append(runID, ev); err != nil {
		return err
	}
	l.bus.Publish(ev)
	return nil
}

// Tick executes exactly one iteration when the loop is running, and nothing
// when it is paused. If any step fails, one error event carrying the failing
// phase is logged and published, the remainder of this iteration is
// abandoned, and the counter is not rewound: the next Tick attempts the next
// ordinal.
func (l *RunLoop) Tick(ctx context.Context) error {
	l.mu.Lock()
	if l.runID == "" {
		l.mu.Unlock()
		return ErrNotStarted
	}
	if l.paused {
		l.mu.Unlock()
		return nil
	}
	l.iteration++
	runID, n := l.runID, l.iteration
	l.mu.Unlock()

	if err := l.iterate(ctx, runID, n); err != nil {
		phase, msg := "", err.Error()
		var step *StepError
		if errors.As(err, &step) {
			phase, msg = step.Phase, step.Err.Error()
		}
		if emitErr := l.emit(runID, NewError(runID, msg, phase)); emitErr != nil {
			slog.Error("failed to record iteration error", "run_id", runID, "n", n, "error", emitErr)
		}
		return fmt.Errorf("iteration %d: %w", n, err)
	}
	return nil
}

// iterate runs one iteration's strictly sequential sub-steps.
func (l *RunLoop) iterate(ctx context.Context, runID string, n int) error {
	if err := l.emit(runID, NewIterationStarted(runID, n)); err != nil {
		return &StepError{Phase: "log", Err: err}
	}

	parts := []ContentPart{TextPart(l.cfg.Prompt)}
	sent, recv, err := l.exchanger.Exchange(ctx, runID, n, l.cfg.RouteTo, parts)
	if err != nil {
		return &StepError{Phase: "exchange", Err: err}
	}
	// The collaborator builds the envelopes; the loop owns run identity.
	sent.RunID = runID
	recv.RunID = runID
	if err := l.emit(runID, sent); err != nil {
		return &StepError{Phase: "log", Err: err}
	}
	if err := l.emit(runID, recv); err != nil {
		return &StepError{Phase: "log", Err: err}
	}

	entry, err := l.patcher.ApplyPatch(runID, n)
	if err != nil {
		return &StepError{Phase: "patch", Err: err}
	}

	out := l.paths.SnapPath(runID, n)
	if err := l.capturer.Capture(ctx, entry, out, l.cfg.Viewport); err != nil {
		return &StepError{Phase: "screenshot", Err: err}
	}

	if err := l.emit(runID, NewScreenshotCaptured(runID, l.paths.ScreenshotURL(runID, n), n)); err != nil {
		return &StepError{Phase: "log", Err: err}
	}
	return nil
}

// Run ticks the loop on a fixed cadence until ctx is done. Iteration
// failures are logged and the loop keeps accepting ticks; ticking before
// Start is a programming error and returns immediately.
func (l *RunLoop) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				if errors.Is(err, ErrNotStarted) {
					return err
				}
				slog.Warn("iteration failed", "run_id", l.RunID(), "error", err)
			}
		}
	}
}
