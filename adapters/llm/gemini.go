package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/landuse-agentic/domain"
	"github.com/satriahrh/landuse-agentic/utils/log"
)

type Config struct {
	// APIKey is the explicit credential. When empty the SDK falls back to
	// GEMINI_API_KEY / GOOGLE_API_KEY from the environment.
	APIKey     string
	Model      string
	Generation domain.GenerationConfig
	BaseURL    string
	APIVersion string
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = domain.DefaultModel
	}
	if c.Generation == (domain.GenerationConfig{}) {
		c.Generation = domain.DefaultGenerationConfig()
	}
	if c.APIVersion == "" {
		c.APIVersion = "v1beta"
	}
	return c
}

type GeminiClient struct {
	client    *genai.Client
	initErr   error
	model     string
	genConfig *genai.GenerateContentConfig
}

// NewGeminiClient never fails: a client that cannot be configured (e.g. no
// credential anywhere) is kept in an unauthenticated state and reports the
// problem from StartChat.
func NewGeminiClient(ctx context.Context, cfg Config) *GeminiClient {
	cfg = cfg.withDefaults()
	g := &GeminiClient{
		model:     cfg.Model,
		genConfig: toGenerateContentConfig(cfg.Generation),
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			APIVersion: cfg.APIVersion,
			BaseURL:    cfg.BaseURL,
		},
	})
	if err != nil {
		g.initErr = fmt.Errorf("%w: creating genai client: %w", domain.ErrCredential, err)
		log.WithCtx(ctx).Warn("Gemini client is unauthenticated", zap.Error(err))
		return g
	}
	g.client = client
	return g
}

func toGenerateContentConfig(gc domain.GenerationConfig) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(gc.Temperature),
		TopP:            genai.Ptr(gc.TopP),
		TopK:            genai.Ptr(gc.TopK),
		MaxOutputTokens: gc.MaxOutputTokens,
	}
}

func (g *GeminiClient) Model() string {
	return g.model
}

// StartChat implements domain.Llm.
func (g *GeminiClient) StartChat(ctx context.Context) (domain.ChatSession, error) {
	if g.initErr != nil {
		return nil, g.initErr
	}
	chat, err := g.client.Chats.Create(ctx, g.model, g.genConfig, nil)
	if err != nil {
		return nil, classify(fmt.Errorf("creating chat: %w", err))
	}
	return &GeminiChatSession{id: uuid.NewString(), chat: chat}, nil
}

type GeminiChatSession struct {
	id   string
	chat *genai.Chat
}

func (g *GeminiChatSession) ID() string {
	return g.id
}

// SendMessage implements domain.ChatSession.
func (g *GeminiChatSession) SendMessage(ctx context.Context, message domain.ChatMessage) (
	domain.ChatMessage,
	error,
) {
	parts := []*genai.Part{{Text: message.Content}}
	if message.Image != nil {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: message.Image.MIMEType, Data: message.Image.Data},
		})
	}

	resp, err := g.chat.Send(ctx, parts...)
	if err != nil {
		return domain.ChatMessage{}, classify(fmt.Errorf("send message: %w", err))
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return domain.ChatMessage{}, emptyResponseError(resp)
	}
	return domain.ChatMessage{
		Role:      domain.AssistantRole,
		Content:   text,
		Timestamp: time.Now(),
	}, nil
}

func (g *GeminiChatSession) History() ([]domain.ChatMessage, error) {
	resp := g.chat.History(false)
	history := make([]domain.ChatMessage, len(resp))
	for i, content := range resp {
		var text strings.Builder
		for _, p := range content.Parts {
			if p == nil {
				continue
			}
			if p.InlineData != nil {
				text.WriteString("[" + p.InlineData.MIMEType + "]")
				continue
			}
			text.WriteString(p.Text)
		}
		role := domain.AssistantRole
		if content.Role == genai.RoleUser {
			role = domain.UserRole
		}
		history[i] = domain.ChatMessage{
			Role:    role,
			Content: text.String(),
		}
	}
	return history, nil
}

func emptyResponseError(resp *genai.GenerateContentResponse) error {
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return fmt.Errorf("%w: prompt blocked: %s %s", domain.ErrProvider, fb.BlockReason, fb.BlockReasonMessage)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		return fmt.Errorf("%w: empty response (finish reason %s)", domain.ErrProvider, resp.Candidates[0].FinishReason)
	}
	return fmt.Errorf("%w: empty response", domain.ErrProvider)
}

// classify wraps err with the domain sentinel matching its cause.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if isCredentialFailure(apiErr) {
			return fmt.Errorf("%w: %s", domain.ErrCredential, apiErr.Message)
		}
		return fmt.Errorf("%w: %d %s: %s", domain.ErrProvider, apiErr.Code, apiErr.Status, apiErr.Message)
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrProvider, err)
}

func isCredentialFailure(apiErr genai.APIError) bool {
	switch apiErr.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	case http.StatusBadRequest:
		return strings.Contains(strings.ToLower(apiErr.Message), "api key")
	default:
		return false
	}
}

// GeminiFactory hands out one client per credential and forgets it once
// every session holding it has been released.
type GeminiFactory struct {
	ctx context.Context
	cfg Config

	mu      sync.Mutex
	clients map[string]*factoryEntry
}

type factoryEntry struct {
	client *GeminiClient
	refs   int
}

func NewGeminiFactory(ctx context.Context, cfg Config) *GeminiFactory {
	return &GeminiFactory{
		ctx:     ctx,
		cfg:     cfg,
		clients: make(map[string]*factoryEntry),
	}
}

// For resolves the client for credential; an empty credential uses the
// configured default key. Every call must be paired with a Release. It
// satisfies domain.LlmFactory.
func (f *GeminiFactory) For(credential string) domain.Llm {
	credential = strings.TrimSpace(credential)

	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.clients[credential]
	if !ok {
		cfg := f.cfg
		if credential != "" {
			cfg.APIKey = credential
		}
		entry = &factoryEntry{client: NewGeminiClient(f.ctx, cfg)}
		f.clients[credential] = entry
	}
	entry.refs++
	return entry.client
}

// Release drops one reference taken by For.
func (f *GeminiFactory) Release(credential string) {
	credential = strings.TrimSpace(credential)

	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.clients[credential]
	if !ok {
		return
	}
	if entry.refs--; entry.refs <= 0 {
		delete(f.clients, credential)
	}
}

// Len reports how many credentials currently have a client.
func (f *GeminiFactory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}
