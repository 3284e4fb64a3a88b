package modelrelay

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/martinemde/vibeloop/engine"
)

const relaySystemPrompt = "You iterate on a small HTML artifact. Reply with a concise instruction or observation for the next iteration."

// Relay implements engine.Exchanger over a pair of models: one for code
// prompts and one for vision prompts. Transient provider failures are
// retried with the configured policy; terminal failures propagate to the
// loop, which surfaces them as error events.
type Relay struct {
	code   Model
	vision Model
	policy RetryPolicy
}

// NewRelay creates a Relay. A nil policy selects DefaultRetryPolicy with
// retry attempts logged via slog.
func NewRelay(code, vision Model, policy *RetryPolicy) *Relay {
	p := DefaultRetryPolicy()
	if policy != nil {
		p = *policy
	}
	if p.OnRetry == nil {
		p.OnRetry = func(err error, attempt int, delay time.Duration) {
			slog.Warn("model call retry", "attempt", attempt, "delay", delay, "error", err)
		}
	}
	return &Relay{code: code, vision: vision, policy: p}
}

// promptActor is who a routed prompt speaks as: prompts routed to the vision
// model come from the code side and vice versa.
func promptActor(routeTo engine.Target) engine.Actor {
	if routeTo == engine.TargetVision {
		return engine.ActorCode
	}
	return engine.ActorVision
}

func (r *Relay) modelFor(routeTo engine.Target) Model {
	if routeTo == engine.TargetVision {
		return r.vision
	}
	return r.code
}

// normalizeParts rewrites image parts whose URL is a local file path into
// base64 data URLs, so the envelope echoed to the UI matches what the model
// was actually shown.
func normalizeParts(parts []engine.ContentPart) ([]engine.ContentPart, error) {
	normalized := make([]engine.ContentPart, len(parts))
	for i, part := range parts {
		normalized[i] = part
		if part.Type != engine.PartImage || part.URL == "" || IsDataURL(part.URL) {
			continue
		}
		if _, err := os.Stat(part.URL); err != nil {
			// Not a local file; assume a fetchable URL and pass through.
			continue
		}
		url, err := EncodeImageToDataURL(part.URL)
		if err != nil {
			return nil, err
		}
		normalized[i].URL = url
	}
	return normalized, nil
}

func toRelayParts(parts []engine.ContentPart) []ContentPart {
	converted := make([]ContentPart, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case engine.PartText:
			converted = append(converted, TextPart(part.Text))
		case engine.PartImage:
			converted = append(converted, ImageURLPart(part.URL))
		}
	}
	return converted
}

// Exchange routes the prompt parts to the target model and returns the
// prompt.sent and response.received envelopes for the loop to emit.
func (r *Relay) Exchange(ctx context.Context, runID string, iteration int, routeTo engine.Target, parts []engine.ContentPart) (engine.Event, engine.Event, error) {
	normalized, err := normalizeParts(parts)
	if err != nil {
		return engine.Event{}, engine.Event{}, err
	}

	sent, err := engine.NewPromptSent(runID, promptActor(routeTo), routeTo, normalized, iteration)
	if err != nil {
		return engine.Event{}, engine.Event{}, err
	}

	model := r.modelFor(routeTo)
	req := Request{
		Messages: []Message{
			SystemMessage(relaySystemPrompt),
			{Role: RoleUser, Content: toRelayParts(normalized)},
		},
	}
	resp, err := Retry(ctx, r.policy, func(ctx context.Context) (*Response, error) {
		return model.Complete(ctx, req)
	})
	if err != nil {
		return engine.Event{}, engine.Event{}, err
	}

	recv, err := engine.NewResponseReceived(runID, engine.Actor(routeTo), resp.Text(), iteration)
	if err != nil {
		return engine.Event{}, engine.Event{}, err
	}
	return sent, recv, nil
}

// EchoExchanger is the offline model exchange: it answers every prompt with
// the prompt's own text. Used when no API key is configured, and in tests.
type EchoExchanger struct{}

// Exchange returns the prompt.sent envelope and a response.received echoing
// the first text part, without leaving the process.
func (EchoExchanger) Exchange(ctx context.Context, runID string, iteration int, routeTo engine.Target, parts []engine.ContentPart) (engine.Event, engine.Event, error) {
	sent, err := engine.NewPromptSent(runID, promptActor(routeTo), routeTo, parts, iteration)
	if err != nil {
		return engine.Event{}, engine.Event{}, err
	}

	reply := "ok"
	for _, part := range parts {
		if part.Type == engine.PartText && part.Text != "" {
			reply = part.Text
			break
		}
	}
	recv, err := engine.NewResponseReceived(runID, engine.Actor(routeTo), reply, iteration)
	if err != nil {
		return engine.Event{}, engine.Event{}, err
	}
	return sent, recv, nil
}
