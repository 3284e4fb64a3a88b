package modelrelay

import (
	"context"
	"strings"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentKind is the discriminator tag for ContentPart.
type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentImage ContentKind = "image"
)

// ImageData holds image content as either a URL or raw bytes.
type ImageData struct {
	URL       string `json:"url,omitempty"`
	Data      []byte `json:"data,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

// ContentPart is a tagged union representing one part of a message.
type ContentPart struct {
	Kind  ContentKind `json:"kind"`
	Text  string      `json:"text,omitempty"`
	Image *ImageData  `json:"image,omitempty"`
}

// TextPart creates a text ContentPart.
func TextPart(text string) ContentPart {
	return ContentPart{Kind: ContentText, Text: text}
}

// ImageURLPart creates an image ContentPart from a URL or data URL.
func ImageURLPart(url string) ContentPart {
	return ContentPart{Kind: ContentImage, Image: &ImageData{URL: url}}
}

// Message is the fundamental unit of conversation.
type Message struct {
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content"`
}

// TextContent returns the concatenation of all text content parts.
func (m Message) TextContent() string {
	var sb strings.Builder
	for _, part := range m.Content {
		if part.Kind == ContentText {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: []ContentPart{TextPart(text)}}
}

// UserMessage creates a user Message with text content.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentPart{TextPart(text)}}
}

// Request is the input to Model.Complete.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// Response is the output of Model.Complete.
type Response struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
}

// Text returns the concatenated text of the response message.
func (r Response) Text() string {
	return r.Message.TextContent()
}

// Model is the interface every model backend must implement.
type Model interface {
	// Name returns the backend identifier (e.g. "openai", "anthropic").
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)
}
