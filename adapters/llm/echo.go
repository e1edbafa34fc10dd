package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/satriahrh/landuse-agentic/domain"
)

// EchoClient is an offline provider that answers each turn with its last
// non-empty line. It is useful for demos and tests without credentials.
type EchoClient struct {
	Prefix string
}

func NewEchoClient(prefix string) *EchoClient {
	if strings.TrimSpace(prefix) == "" {
		prefix = "Echo:"
	}
	return &EchoClient{Prefix: prefix}
}

// For satisfies domain.LlmFactory; the credential is ignored.
func (e *EchoClient) For(string) domain.Llm {
	return e
}

func (e *EchoClient) StartChat(context.Context) (domain.ChatSession, error) {
	return &echoChat{id: uuid.NewString(), prefix: e.Prefix}, nil
}

type echoChat struct {
	id     string
	prefix string

	mu      sync.Mutex
	history []domain.ChatMessage
}

func (c *echoChat) ID() string {
	return c.id
}

func (c *echoChat) SendMessage(_ context.Context, message domain.ChatMessage) (domain.ChatMessage, error) {
	reply := fmt.Sprintf("%s %s", c.prefix, lastLine(message.Content))
	if img := message.Image; img != nil {
		reply = fmt.Sprintf("%s [%s %dx%d] %s", c.prefix, img.MIMEType, img.Width, img.Height, lastLine(message.Content))
	}
	answer := domain.ChatMessage{Role: domain.AssistantRole, Content: reply, Timestamp: time.Now()}

	c.mu.Lock()
	c.history = append(c.history, domain.ChatMessage{Role: domain.UserRole, Content: message.Content}, answer)
	c.mu.Unlock()
	return answer, nil
}

func (c *echoChat) History() ([]domain.ChatMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ChatMessage, len(c.history))
	copy(out, c.history)
	return out, nil
}

func lastLine(prompt string) string {
	lines := strings.Split(prompt, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if candidate := strings.TrimSpace(lines[i]); candidate != "" {
			return candidate
		}
	}
	return "<empty prompt>"
}
