package modelrelay

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/martinemde/vibeloop/engine"
)

type scriptedModel struct {
	name  string
	reply string
	err   error
	calls int
}

func (m *scriptedModel) Name() string { return m.name }

func (m *scriptedModel) Complete(_ context.Context, req Request) (*Response, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &Response{
		Model:   req.Model,
		Message: Message{Role: RoleAssistant, Content: []ContentPart{TextPart(m.reply)}},
	}, nil
}

func TestRelayRoutesToCodeModel(t *testing.T) {
	code := &scriptedModel{name: "code", reply: "patched"}
	vision := &scriptedModel{name: "vision", reply: "looks fine"}
	relay := NewRelay(code, vision, &RetryPolicy{MaxRetries: 0})

	parts := []engine.ContentPart{engine.TextPart("iterate")}
	sent, recv, err := relay.Exchange(context.Background(), "r1", 1, engine.TargetCode, parts)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	if code.calls != 1 || vision.calls != 0 {
		t.Errorf("expected the code model to be called, got code=%d vision=%d", code.calls, vision.calls)
	}
	if sent.Kind != engine.KindPromptSent || sent.Actor != engine.ActorVision || sent.To != engine.TargetCode {
		t.Errorf("unexpected prompt.sent envelope: %+v", sent)
	}
	if recv.Kind != engine.KindResponseReceived || recv.Actor != engine.ActorCode || recv.Text != "patched" {
		t.Errorf("unexpected response.received envelope: %+v", recv)
	}
	if sent.Iteration != 1 || recv.Iteration != 1 {
		t.Errorf("iteration ordinals mismatch: sent=%d recv=%d", sent.Iteration, recv.Iteration)
	}
}

func TestRelayRoutesToVisionModel(t *testing.T) {
	code := &scriptedModel{name: "code", reply: "patched"}
	vision := &scriptedModel{name: "vision", reply: "too much red"}
	relay := NewRelay(code, vision, &RetryPolicy{MaxRetries: 0})

	parts := []engine.ContentPart{engine.TextPart("critique")}
	sent, recv, err := relay.Exchange(context.Background(), "r1", 2, engine.TargetVision, parts)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	if vision.calls != 1 || code.calls != 0 {
		t.Errorf("expected the vision model to be called, got code=%d vision=%d", code.calls, vision.calls)
	}
	if sent.Actor != engine.ActorCode || sent.To != engine.TargetVision {
		t.Errorf("routing to vision must speak as code, got %+v", sent)
	}
	if recv.Actor != engine.ActorVision || recv.Text != "too much red" {
		t.Errorf("unexpected response.received envelope: %+v", recv)
	}
}

func TestRelayRetriesTransientFailures(t *testing.T) {
	flaky := &failThenSucceed{failures: 2, reply: "done"}
	relay := NewRelay(flaky, flaky, &RetryPolicy{MaxRetries: 3, BaseDelay: 0.001, MaxDelay: 0.01, BackoffMultiplier: 1})

	_, recv, err := relay.Exchange(context.Background(), "r1", 1, engine.TargetCode, []engine.ContentPart{engine.TextPart("iterate")})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if recv.Text != "done" {
		t.Errorf("expected reply after retries, got %q", recv.Text)
	}
	if flaky.calls != 3 {
		t.Errorf("expected 3 calls, got %d", flaky.calls)
	}
}

type failThenSucceed struct {
	failures int
	reply    string
	calls    int
}

func (m *failThenSucceed) Name() string { return "flaky" }

func (m *failThenSucceed) Complete(_ context.Context, _ Request) (*Response, error) {
	m.calls++
	if m.calls <= m.failures {
		return nil, ErrorFromStatusCode(503, "overloaded", "flaky", nil)
	}
	return &Response{Message: Message{Role: RoleAssistant, Content: []ContentPart{TextPart(m.reply)}}}, nil
}

func TestRelayPropagatesTerminalFailure(t *testing.T) {
	broke := &scriptedModel{name: "code", err: ErrorFromStatusCode(402, "insufficient credits", "openai", nil)}
	relay := NewRelay(broke, broke, &RetryPolicy{MaxRetries: 3, BaseDelay: 0.001, MaxDelay: 0.01, BackoffMultiplier: 1})

	_, _, err := relay.Exchange(context.Background(), "r1", 1, engine.TargetCode, []engine.ContentPart{engine.TextPart("iterate")})
	if err == nil {
		t.Fatal("expected error")
	}
	if broke.calls != 1 {
		t.Errorf("terminal failure must not be retried, got %d calls", broke.calls)
	}
}

func TestRelayNormalizesLocalImagePaths(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "snap_1.png")
	if err := os.WriteFile(img, []byte{0x89, 'P', 'N', 'G'}, 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	code := &scriptedModel{name: "code", reply: "ok"}
	relay := NewRelay(code, code, &RetryPolicy{MaxRetries: 0})

	parts := []engine.ContentPart{engine.TextPart("iterate"), engine.ImagePart(img)}
	sent, _, err := relay.Exchange(context.Background(), "r1", 1, engine.TargetCode, parts)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	if len(sent.Content) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(sent.Content))
	}
	url := sent.Content[1].URL
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("local image path was not inlined, got %q", url)
	}
	// The original slice must be left untouched.
	if parts[1].URL != img {
		t.Errorf("input parts mutated: %q", parts[1].URL)
	}
}

func TestEchoExchanger(t *testing.T) {
	sent, recv, err := EchoExchanger{}.Exchange(context.Background(), "r1", 5, engine.TargetCode, []engine.ContentPart{engine.TextPart("iterate")})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if sent.Kind != engine.KindPromptSent || sent.To != engine.TargetCode || sent.Iteration != 5 {
		t.Errorf("unexpected prompt.sent envelope: %+v", sent)
	}
	if recv.Kind != engine.KindResponseReceived || recv.Text != "iterate" {
		t.Errorf("echo must return the prompt text, got %+v", recv)
	}
}

func TestEchoExchangerEmptyPrompt(t *testing.T) {
	_, recv, err := EchoExchanger{}.Exchange(context.Background(), "r1", 1, engine.TargetVision, []engine.ContentPart{engine.ImagePart("/static/x.png")})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if recv.Text != "ok" {
		t.Errorf("expected fallback reply, got %q", recv.Text)
	}
}

func TestEncodeImageToDataURLPassThrough(t *testing.T) {
	in := "data:image/png;base64,AAAA"
	out, err := EncodeImageToDataURL(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if out != in {
		t.Errorf("data URLs must pass through unchanged, got %q", out)
	}
}
