package engine

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the type of lifecycle event.
type Kind string

const (
	KindRunStarted         Kind = "run.started"
	KindIterationStarted   Kind = "iteration.started"
	KindPromptSent         Kind = "prompt.sent"
	KindResponseReceived   Kind = "response.received"
	KindScreenshotCaptured Kind = "screenshot.captured"
	KindControlPaused      Kind = "control.paused"
	KindControlResumed     Kind = "control.resumed"
	KindError              Kind = "error"

	// KindHello is a synthetic bootstrap event delivered by live-stream
	// transports on connect. It is never written to the log.
	KindHello Kind = "hello"
)

// Actor identifies who produced or receives a prompt.
type Actor string

const (
	ActorVision Actor = "vision"
	ActorCode   Actor = "code"
	ActorUser   Actor = "user"
)

// Target is the model role a prompt is routed to.
type Target string

const (
	TargetVision Target = "vision"
	TargetCode   Target = "code"
)

// PartType is the discriminator tag for ContentPart.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image_url"
)

// ContentPart is one element of a prompt's ordered content list, either a
// text fragment or an image locator.
type ContentPart struct {
	Type PartType `json:"type"`
	Text string   `json:"text,omitempty"`
	URL  string   `json:"url,omitempty"`
}

// TextPart creates a text ContentPart.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

// ImagePart creates an image ContentPart from a URL (http, /static, or data:).
func ImagePart(url string) ContentPart {
	return ContentPart{Type: PartImage, URL: url}
}

// Validate checks the part against the closed discriminator set.
func (p ContentPart) Validate() error {
	switch p.Type {
	case PartText, PartImage:
		return nil
	default:
		return fmt.Errorf("unknown content part type %q", p.Type)
	}
}

// TimestampLayout is the wire format for event timestamps: UTC, second
// precision, ISO-8601 with a trailing Z.
const TimestampLayout = "2006-01-02T15:04:05Z"

func nowTimestamp() string {
	return time.Now().UTC().Format(TimestampLayout)
}

// Event is the tagged envelope every lifecycle fact shares. Kind selects the
// variant; run_id is unset only for pre-run system events. The remaining
// fields are populated per variant and omitted from the wire form otherwise.
type Event struct {
	Kind      Kind          `json:"kind"`
	Timestamp string        `json:"timestamp"`
	RunID     string        `json:"run_id,omitempty"`
	N         int           `json:"n,omitempty"`
	Actor     Actor         `json:"actor,omitempty"`
	To        Target        `json:"to,omitempty"`
	Content   []ContentPart `json:"content,omitempty"`
	Iteration int           `json:"iteration,omitempty"`
	Text      string        `json:"text,omitempty"`
	URL       string        `json:"url,omitempty"`
	Msg       string        `json:"msg,omitempty"`
	Where     string        `json:"where,omitempty"`
}

// NewRunStarted creates a run.started event.
func NewRunStarted(runID string) Event {
	return Event{Kind: KindRunStarted, Timestamp: nowTimestamp(), RunID: runID}
}

// NewIterationStarted creates an iteration.started event for ordinal n.
func NewIterationStarted(runID string, n int) Event {
	return Event{Kind: KindIterationStarted, Timestamp: nowTimestamp(), RunID: runID, N: n}
}

// NewPromptSent creates a prompt.sent event. The actor, target, and every
// content part must match the closed enumerations.
func NewPromptSent(runID string, actor Actor, to Target, content []ContentPart, iteration int) (Event, error) {
	switch actor {
	case ActorVision, ActorCode, ActorUser:
	default:
		return Event{}, fmt.Errorf("unknown actor %q", actor)
	}
	switch to {
	case TargetVision, TargetCode:
	default:
		return Event{}, fmt.Errorf("unknown route target %q", to)
	}
	for i, part := range content {
		if err := part.Validate(); err != nil {
			return Event{}, fmt.Errorf("content part %d: %w", i, err)
		}
	}
	return Event{
		Kind:      KindPromptSent,
		Timestamp: nowTimestamp(),
		RunID:     runID,
		Actor:     actor,
		To:        to,
		Content:   content,
		Iteration: iteration,
	}, nil
}

// NewResponseReceived creates a response.received event.
func NewResponseReceived(runID string, actor Actor, text string, iteration int) (Event, error) {
	switch actor {
	case ActorVision, ActorCode:
	default:
		return Event{}, fmt.Errorf("unknown actor %q", actor)
	}
	return Event{
		Kind:      KindResponseReceived,
		Timestamp: nowTimestamp(),
		RunID:     runID,
		Actor:     actor,
		Text:      text,
		Iteration: iteration,
	}, nil
}

// NewScreenshotCaptured creates a screenshot.captured event pointing at the
// produced image.
func NewScreenshotCaptured(runID, url string, iteration int) Event {
	return Event{
		Kind:      KindScreenshotCaptured,
		Timestamp: nowTimestamp(),
		RunID:     runID,
		URL:       url,
		Iteration: iteration,
	}
}

// NewControlPaused creates a control.paused event.
func NewControlPaused() Event {
	return Event{Kind: KindControlPaused, Timestamp: nowTimestamp()}
}

// NewControlResumed creates a control.resumed event.
func NewControlResumed() Event {
	return Event{Kind: KindControlResumed, Timestamp: nowTimestamp()}
}

// NewError creates an error event. where names the failing phase and may be
// empty.
func NewError(runID, msg, where string) Event {
	return Event{Kind: KindError, Timestamp: nowTimestamp(), RunID: runID, Msg: msg, Where: where}
}

// NewHello creates the synthetic bootstrap event transports deliver on
// connect.
func NewHello() Event {
	return Event{Kind: KindHello, Timestamp: nowTimestamp()}
}

// Encode serializes the event to its compact wire form. Downstream consumers
// pattern-match on the encoding, so no extraneous whitespace is emitted.
func (e Event) Encode() ([]byte, error) {
	switch e.Kind {
	case KindRunStarted, KindIterationStarted, KindPromptSent, KindResponseReceived,
		KindScreenshotCaptured, KindControlPaused, KindControlResumed, KindError, KindHello:
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return json.Marshal(e)
}

// DecodeEvent parses one wire-form event, rejecting unknown kinds.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if _, err := ev.Encode(); err != nil {
		return Event{}, err
	}
	return ev, nil
}
