package usecase

import (
	"context"
	"errors"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/landuse-agentic/domain"
	"github.com/satriahrh/landuse-agentic/utils/log"
)

// Assistant wraps the model provider behind the three chat operations.
// It holds no per-conversation state; handles are owned by the caller.
type Assistant struct {
	processor domain.ImageProcessor
	prompts   domain.Prompts
	model     string
}

func NewAssistant(processor domain.ImageProcessor, prompts domain.Prompts, model string) *Assistant {
	if model == "" {
		model = domain.DefaultModel
	}
	return &Assistant{processor: processor, prompts: prompts, model: model}
}

// StartChat opens a conversation with an empty turn history.
func (a *Assistant) StartChat(ctx context.Context, llm domain.Llm) (domain.ChatSession, error) {
	if llm == nil {
		return nil, domain.Unavailable(domain.OpStartChat, nil)
	}
	start := time.Now()
	chat, err := llm.StartChat(ctx)
	if err == nil && chat == nil {
		err = errors.New("provider returned no chat")
	}
	if err != nil {
		derr := domain.NewError(domain.OpStartChat, err)
		a.logCall(ctx, "start_chat", start, derr)
		return nil, derr
	}
	a.logCall(ctx, "start_chat", start, nil, zap.String("chat_id", chat.ID()))
	return chat, nil
}

// SendMessage sends one text turn and returns the reply text.
func (a *Assistant) SendMessage(ctx context.Context, chat domain.ChatSession, text string) (string, error) {
	if chat == nil {
		return "", domain.Unavailable(domain.OpSendMessage, nil)
	}
	start := time.Now()
	reply, err := chat.SendMessage(ctx, domain.ChatMessage{
		Role:      domain.UserRole,
		Content:   text,
		Timestamp: start,
	})
	if err != nil {
		derr := domain.NewError(domain.OpSendMessage, err)
		a.logCall(ctx, "send_message", start, derr, zap.String("chat_id", chat.ID()))
		return "", derr
	}
	a.logCall(ctx, "send_message", start, nil, zap.String("chat_id", chat.ID()))
	return reply.Content, nil
}

// AnalyzeImage prepares img and sends it together with the site analysis
// prompt as a single turn.
func (a *Assistant) AnalyzeImage(ctx context.Context, chat domain.ChatSession, img image.Image) (string, error) {
	if chat == nil {
		return "", domain.Unavailable(domain.OpAnalyzeImage, nil)
	}
	start := time.Now()
	prepared, err := a.processor.Prepare(img)
	if err != nil {
		derr := domain.NewError(domain.OpAnalyzeImage, err)
		a.logCall(ctx, "analyze_image", start, derr, zap.String("chat_id", chat.ID()))
		return "", derr
	}

	reply, err := chat.SendMessage(ctx, domain.ChatMessage{
		Role:      domain.UserRole,
		Content:   a.prompts.SiteAnalysis,
		Image:     &prepared,
		Timestamp: start,
	})
	fields := []zap.Field{
		zap.String("chat_id", chat.ID()),
		zap.Int("width", prepared.Width),
		zap.Int("height", prepared.Height),
		zap.Int("bytes", len(prepared.Data)),
	}
	if err != nil {
		derr := domain.NewError(domain.OpAnalyzeImage, err)
		a.logCall(ctx, "analyze_image", start, derr, fields...)
		return "", derr
	}
	a.logCall(ctx, "analyze_image", start, nil, fields...)
	return reply.Content, nil
}

func (a *Assistant) logCall(ctx context.Context, call string, start time.Time, err *domain.Error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("call", call),
		zap.String("model", a.model),
		zap.Duration("latency", time.Since(start)),
	)
	if err != nil {
		fields = append(fields, zap.String("kind", string(err.Kind)), zap.Error(err))
		log.WithCtx(ctx).Warn("model call failed", fields...)
		return
	}
	log.WithCtx(ctx).Info("model call", fields...)
}
