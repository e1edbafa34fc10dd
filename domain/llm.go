package domain

import (
	"context"
	"time"
)

// DefaultModel is the Gemini model every chat is opened against.
const DefaultModel = "gemini-2.0-flash-exp"

// Llm abstracts the remote multimodal chat provider.
type Llm interface {
	// StartChat opens a new conversation with an empty turn history.
	StartChat(ctx context.Context) (ChatSession, error)
}

// LlmFactory resolves a provider bound to a credential. An empty credential
// means "use whatever the process environment provides".
type LlmFactory func(credential string) Llm

// ChatSession is the opaque conversation handle held by the provider.
// Calls on one handle must not overlap.
type ChatSession interface {
	ID() string
	SendMessage(ctx context.Context, message ChatMessage) (ChatMessage, error)
	History() ([]ChatMessage, error)
}

type ChatMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Image     *Image    `json:"-"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Failed reports whether the turn carries an error instead of a model reply.
func (m ChatMessage) Failed() bool {
	return m.ErrorKind != ""
}

type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
)

// GenerationConfig holds the sampling parameters bound to every chat.
type GenerationConfig struct {
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int32
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:     0.7,
		TopP:            0.95,
		TopK:            40,
		MaxOutputTokens: 8192,
	}
}
