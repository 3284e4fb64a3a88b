package modelrelay

import (
	"context"
	"fmt"
	"strings"

	"github.com/teilomillet/gollm"
)

// GollmModel wraps a gollm.LLM instance and implements Model. It translates
// between the relay's message types and gollm's prompt API.
type GollmModel struct {
	provider string
	model    string
	llm      gollm.LLM
}

// GollmOption configures a GollmModel.
type GollmOption func(*gollmConfig)

type gollmConfig struct {
	apiKey      string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key. When empty, gollm reads it from the
// provider's environment variable.
func WithAPIKey(key string) GollmOption {
	return func(c *gollmConfig) {
		c.apiKey = key
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmOption {
	return func(c *gollmConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) GollmOption {
	return func(c *gollmConfig) {
		c.temperature = t
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmOption {
	return func(c *gollmConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmModel creates a Model backed by gollm for the given provider and
// model slug.
func NewGollmModel(provider, model string, opts ...GollmOption) (*GollmModel, error) {
	cfg := &gollmConfig{
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // The relay handles retries itself.
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, &ConfigurationError{RelayError: RelayError{
			Message: fmt.Sprintf("create %s model %s", provider, model),
			Cause:   err,
		}}
	}

	return &GollmModel{provider: provider, model: model, llm: llm}, nil
}

// Name returns the provider identifier.
func (m *GollmModel) Name() string {
	return m.provider
}

// Complete sends a blocking request and returns the full response.
func (m *GollmModel) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := m.translateRequest(req)

	if req.Model != "" {
		m.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		m.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		m.llm.SetOption("max_tokens", *req.MaxTokens)
	}

	text, err := m.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, m.translateError(err)
	}

	model := req.Model
	if model == "" {
		model = m.model
	}
	return &Response{
		Model:   model,
		Message: Message{Role: RoleAssistant, Content: []ContentPart{TextPart(text)}},
	}, nil
}

// translateRequest flattens the message list into a gollm prompt. Image
// parts are referenced inline by URL; gollm's text path carries no binary
// payloads, so data URLs pass through as-is.
func (m *GollmModel) translateRequest(req Request) *gollm.Prompt {
	var systemPrompt string
	var userParts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt += msg.TextContent() + "\n"
		case RoleUser:
			for _, part := range msg.Content {
				switch part.Kind {
				case ContentText:
					userParts = append(userParts, part.Text)
				case ContentImage:
					if part.Image != nil && part.Image.URL != "" {
						userParts = append(userParts, "[image] "+part.Image.URL)
					}
				}
			}
		case RoleAssistant:
			if text := msg.TextContent(); text != "" {
				userParts = append(userParts, "[Assistant]: "+text)
			}
		}
	}

	promptText := strings.Join(userParts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if systemPrompt != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(systemPrompt), gollm.CacheTypeEphemeral))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// translateError converts a gollm error into the relay error hierarchy,
// classifying on message content since gollm does not expose status codes.
func (m *GollmModel) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	msgLower := strings.ToLower(msg)

	pe := ProviderError{
		RelayError: RelayError{Message: msg, Cause: err},
		Provider:   m.provider,
	}
	switch {
	case strings.Contains(msgLower, "401") || strings.Contains(msgLower, "unauthorized") || strings.Contains(msgLower, "invalid api key"):
		pe.StatusCode = 401
		return &AuthenticationError{ProviderError: pe}
	case strings.Contains(msgLower, "402") || strings.Contains(msgLower, "insufficient credits") || strings.Contains(msgLower, "quota"):
		pe.StatusCode = 402
		return &QuotaExceededError{ProviderError: pe}
	case strings.Contains(msgLower, "429") || strings.Contains(msgLower, "rate limit"):
		pe.StatusCode = 429
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case strings.Contains(msgLower, "500") || strings.Contains(msgLower, "502") || strings.Contains(msgLower, "503") || strings.Contains(msgLower, "internal server"):
		pe.StatusCode = 500
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	case strings.Contains(msgLower, "timeout") || strings.Contains(msgLower, "deadline exceeded"):
		return &RequestTimeoutError{RelayError: RelayError{Message: msg, Cause: err}}
	case strings.Contains(msgLower, "connection") || strings.Contains(msgLower, "no such host"):
		return &NetworkError{RelayError: RelayError{Message: msg, Cause: err}}
	default:
		pe.Retryable = true
		return &pe
	}
}
