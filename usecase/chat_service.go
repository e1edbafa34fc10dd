package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/landuse-agentic/domain"
	"github.com/satriahrh/landuse-agentic/utils/log"
)

// ChatService drives the per-session state machine: open, ask, upload,
// analyze and clear. Every action holds the session lock until the remote
// call returns, so one session never has two calls in flight.
type ChatService struct {
	assistant *Assistant
	factory   domain.LlmFactory
	sessions  domain.SessionRepository
	processor domain.ImageProcessor
	hasher    domain.Hasher

	broker      domain.MessageBroker
	transcriber domain.Transcriber
	synthesizer domain.Synthesizer
	release     func(credential string)
}

type Option func(*ChatService)

// WithBroker publishes a TurnEvent for every appended turn.
func WithBroker(broker domain.MessageBroker) Option {
	return func(s *ChatService) { s.broker = broker }
}

// WithVoice enables AskByVoice and Speak. Either side may be nil.
func WithVoice(transcriber domain.Transcriber, synthesizer domain.Synthesizer) Option {
	return func(s *ChatService) {
		s.transcriber = transcriber
		s.synthesizer = synthesizer
	}
}

// WithCredentialRelease calls release with a session's credential once the
// session is closed or expires.
func WithCredentialRelease(release func(credential string)) Option {
	return func(s *ChatService) { s.release = release }
}

func NewChatService(
	assistant *Assistant,
	factory domain.LlmFactory,
	sessions domain.SessionRepository,
	processor domain.ImageProcessor,
	hasher domain.Hasher,
	opts ...Option,
) *ChatService {
	s := &ChatService{
		assistant: assistant,
		factory:   factory,
		sessions:  sessions,
		processor: processor,
		hasher:    hasher,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionView is a consistent snapshot of a session.
type SessionView struct {
	ID          string               `json:"id"`
	ChatID      string               `json:"chat_id,omitempty"`
	State       domain.SessionState  `json:"state"`
	Error       string               `json:"error,omitempty"`
	Turns       []domain.ChatMessage `json:"turns"`
	ImageName   string               `json:"image_name,omitempty"`
	ImageDigest string               `json:"image_digest,omitempty"`
	Analyzed    bool                 `json:"analyzed"`
	CreatedAt   time.Time            `json:"created_at"`
}

// Open creates a session bound to credential and opens its first chat. A
// failed open leaves the session degraded rather than failing the call.
func (c *ChatService) Open(ctx context.Context, credential string) (*domain.Session, error) {
	credential = strings.TrimSpace(credential)
	session := domain.NewSession(uuid.NewString(), c.factory(credential))
	session.Credential = credential
	ctx = log.WithSessionID(ctx, session.ID)

	chat, err := c.assistant.StartChat(ctx, session.Llm)
	session.Bind(chat, err)

	if err := c.sessions.Save(session); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	log.WithCtx(ctx).Info("session opened",
		zap.String("state", string(session.State())),
		zap.String("chat_id", session.ChatID()),
	)
	return session, nil
}

func (c *ChatService) Get(id string) (*domain.Session, error) {
	return c.sessions.Get(id)
}

// Close forgets the session. Its chat handle is dropped with it.
func (c *ChatService) Close(ctx context.Context, id string) error {
	session, err := c.sessions.Get(id)
	if err != nil {
		return err
	}
	if err := c.sessions.Delete(id); err != nil {
		return err
	}
	c.releaseCredential(session)
	log.WithCtx(log.WithSessionID(ctx, id)).Info("session closed")
	return nil
}

// Expire closes every session older than maxAge and returns how many.
func (c *ChatService) Expire(ctx context.Context, maxAge time.Duration) int {
	expired := c.sessions.Sweep(time.Now().Add(-maxAge))
	for _, session := range expired {
		c.releaseCredential(session)
		log.WithCtx(log.WithSessionID(ctx, session.ID)).Info("session expired",
			zap.Time("created_at", session.CreatedAt),
		)
	}
	return len(expired)
}

// RunExpiry calls Expire every interval until ctx is done.
func (c *ChatService) RunExpiry(ctx context.Context, maxAge, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Expire(ctx, maxAge)
		}
	}
}

func (c *ChatService) releaseCredential(session *domain.Session) {
	if c.release != nil {
		c.release(session.Credential)
	}
}

func (c *ChatService) View(s *domain.Session) SessionView {
	s.Lock()
	defer s.Unlock()

	view := SessionView{
		ID:        s.ID,
		ChatID:    s.ChatID(),
		State:     s.State(),
		Turns:     s.Transcript.Turns(),
		Analyzed:  s.Analyzed,
		CreatedAt: s.CreatedAt,
	}
	if s.ChatErr != nil {
		view.Error = s.ChatErr.Error()
	}
	if s.Upload != nil {
		view.ImageName = s.Upload.Name
		view.ImageDigest = s.Upload.Digest
	}
	return view
}

// Ask appends the user's text and the assistant's reply to the transcript.
// On failure the reply turn carries the error text and kind, and the
// *domain.Error is returned as well.
func (c *ChatService) Ask(ctx context.Context, s *domain.Session, text string) (domain.ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return domain.ChatMessage{}, domain.ErrEmptyMessage
	}

	s.Lock()
	defer s.Unlock()
	ctx = log.WithSessionID(ctx, s.ID)

	c.appendTurn(ctx, s, domain.ChatMessage{
		Role:      domain.UserRole,
		Content:   text,
		Timestamp: time.Now(),
	})

	var (
		reply string
		err   error
	)
	if s.Chat == nil {
		err = domain.Unavailable(domain.OpSendMessage, s.ChatErr)
	} else {
		reply, err = c.assistant.SendMessage(ctx, s.Chat, text)
	}

	turn := domain.ChatMessage{
		Role:      domain.AssistantRole,
		Content:   reply,
		Timestamp: time.Now(),
	}
	if err != nil {
		turn.Content = err.Error()
		turn.ErrorKind = domain.KindOf(err)
	}
	c.appendTurn(ctx, s, turn)
	return turn, err
}

// Upload decodes data and makes it the session's current image. The
// analysis latch is re-armed; no analysis is started.
func (c *ChatService) Upload(ctx context.Context, s *domain.Session, name string, data []byte) (*domain.UploadedImage, error) {
	pixels, format, err := c.processor.Decode(data)
	if err != nil {
		return nil, err
	}
	upload := &domain.UploadedImage{
		Name:   name,
		Digest: c.hasher.Hash(data),
		Format: format,
		Pixels: pixels,
	}

	s.Lock()
	defer s.Unlock()
	s.Upload = upload
	s.Analyzed = false

	bounds := pixels.Bounds()
	log.WithCtx(log.WithSessionID(ctx, s.ID)).Info("image uploaded",
		zap.String("name", name),
		zap.String("digest", upload.Digest),
		zap.String("format", format),
		zap.Int("width", bounds.Dx()),
		zap.Int("height", bounds.Dy()),
	)
	return upload, nil
}

// Analyze runs the site analysis on the current image once. The latch is
// set after the attempt whether or not the provider succeeded.
func (c *ChatService) Analyze(ctx context.Context, s *domain.Session) (domain.ChatMessage, error) {
	s.Lock()
	defer s.Unlock()
	ctx = log.WithSessionID(ctx, s.ID)

	if s.Upload == nil {
		return domain.ChatMessage{}, domain.ErrNoImage
	}
	if s.Analyzed {
		return domain.ChatMessage{}, domain.ErrAlreadyAnalyzed
	}

	var (
		report string
		err    error
	)
	if s.Chat == nil {
		err = domain.Unavailable(domain.OpAnalyzeImage, s.ChatErr)
	} else {
		report, err = c.assistant.AnalyzeImage(ctx, s.Chat, s.Upload.Pixels)
	}
	s.Analyzed = true

	turn := domain.ChatMessage{
		Role:      domain.AssistantRole,
		Content:   report,
		Timestamp: time.Now(),
	}
	if err != nil {
		turn.Content = err.Error() + "\n" + domain.AnalyzeHint
		turn.ErrorKind = domain.KindOf(err)
	}
	c.appendTurn(ctx, s, turn)
	return turn, err
}

// Clear discards the transcript and image, re-arms the latch and replaces
// the chat handle with a fresh one. The session is degraded afterwards if
// the new chat could not be opened.
func (c *ChatService) Clear(ctx context.Context, s *domain.Session) domain.SessionState {
	s.Lock()
	defer s.Unlock()
	ctx = log.WithSessionID(ctx, s.ID)

	previous := s.ChatID()
	s.Transcript = domain.NewTranscript()
	s.Upload = nil
	s.Analyzed = false
	chat, err := c.assistant.StartChat(ctx, s.Llm)
	s.Bind(chat, err)

	c.publish(ctx, domain.TurnEvent{SessionID: s.ID, ChatID: s.ChatID(), Cleared: true})
	log.WithCtx(ctx).Info("session cleared",
		zap.String("previous_chat_id", previous),
		zap.String("chat_id", s.ChatID()),
		zap.String("state", string(s.State())),
	)
	return s.State()
}

// Export renders the transcript as plain text.
func (c *ChatService) Export(s *domain.Session) string {
	s.Lock()
	defer s.Unlock()
	return s.Transcript.Export()
}

// ProviderHistory returns the turns the provider holds for the current chat.
// It may be ahead of the transcript when a call failed after the provider
// recorded it.
func (c *ChatService) ProviderHistory(s *domain.Session) ([]domain.ChatMessage, error) {
	s.Lock()
	defer s.Unlock()
	if s.Chat == nil {
		return nil, domain.Unavailable(domain.OpSendMessage, s.ChatErr)
	}
	return s.Chat.History()
}

// AskByVoice transcribes audio and asks the resulting text.
func (c *ChatService) AskByVoice(ctx context.Context, s *domain.Session, audio []byte) (domain.ChatMessage, error) {
	if c.transcriber == nil {
		return domain.ChatMessage{}, domain.ErrVoiceDisabled
	}
	text, err := c.transcriber.Transcribe(ctx, audio)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("transcribing question: %w", err)
	}
	return c.Ask(ctx, s, text)
}

// Speak synthesizes the latest successful assistant reply.
func (c *ChatService) Speak(ctx context.Context, s *domain.Session) ([]byte, error) {
	if c.synthesizer == nil {
		return nil, domain.ErrVoiceDisabled
	}
	s.Lock()
	last, ok := s.Transcript.Last(domain.AssistantRole)
	s.Unlock()
	if !ok || last.Failed() {
		return nil, domain.ErrNothingToSpeak
	}
	audio, err := c.synthesizer.Synthesize(ctx, last.Content)
	if err != nil {
		return nil, fmt.Errorf("synthesizing reply: %w", err)
	}
	return audio, nil
}

// appendTurn must be called with the session locked.
func (c *ChatService) appendTurn(ctx context.Context, s *domain.Session, turn domain.ChatMessage) {
	s.Transcript.Append(turn)
	turn.Image = nil
	c.publish(ctx, domain.TurnEvent{
		SessionID: s.ID,
		ChatID:    s.ChatID(),
		Index:     s.Transcript.Len() - 1,
		Turn:      turn,
	})
}

func (c *ChatService) publish(ctx context.Context, event domain.TurnEvent) {
	if c.broker == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.WithCtx(ctx).Error("encoding turn event", zap.Error(err))
		return
	}
	if err := c.broker.Publish(ctx, domain.TurnsTopic, event.SessionID, payload); err != nil {
		log.WithCtx(ctx).Warn("publishing turn event", zap.Error(err))
	}
}
