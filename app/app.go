// Package app assembles the chat service from configuration. Both the HTTP
// server and the console build on it.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/landuse-agentic/adapters/hasher"
	"github.com/satriahrh/landuse-agentic/adapters/imageproc"
	"github.com/satriahrh/landuse-agentic/adapters/inmemory"
	"github.com/satriahrh/landuse-agentic/adapters/llm"
	"github.com/satriahrh/landuse-agentic/adapters/prompts"
	"github.com/satriahrh/landuse-agentic/adapters/speech"
	"github.com/satriahrh/landuse-agentic/adapters/tts"
	"github.com/satriahrh/landuse-agentic/config"
	"github.com/satriahrh/landuse-agentic/domain"
	"github.com/satriahrh/landuse-agentic/usecase"
	"github.com/satriahrh/landuse-agentic/utils/log"
)

// NewChatService wires the configured provider, prompt asset and optional
// voice clients. extra options are applied last.
func NewChatService(ctx context.Context, cfg *config.Config, extra ...usecase.Option) (*usecase.ChatService, error) {
	prompt, err := prompts.Load(cfg.PromptsPath)
	if err != nil {
		return nil, err
	}
	if err := prompts.Validate(prompt); err != nil {
		return nil, fmt.Errorf("prompts: %w", err)
	}

	processor := imageproc.New(imageproc.WithMaxPixels(cfg.MaxImagePixels))
	factory, opts := LlmFactory(ctx, cfg)
	opts = append(opts, VoiceOptions(ctx, cfg)...)
	opts = append(opts, extra...)
	return usecase.NewChatService(
		usecase.NewAssistant(processor, prompt, cfg.GeminiModel),
		factory,
		inmemory.NewSessionRepository(),
		processor,
		hasher.New(),
		opts...,
	), nil
}

// LlmFactory returns the configured provider factory and the options that
// release its per-credential clients.
func LlmFactory(ctx context.Context, cfg *config.Config) (domain.LlmFactory, []usecase.Option) {
	if cfg.LLMProvider == config.ProviderEcho {
		log.With().Warn("Using the offline echo provider")
		return llm.NewEchoClient("").For, nil
	}
	gemini := llm.NewGeminiFactory(ctx, llm.Config{
		APIKey:     cfg.GeminiAPIKey,
		Model:      cfg.GeminiModel,
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
	})
	return gemini.For, []usecase.Option{usecase.WithCredentialRelease(gemini.Release)}
}

// VoiceOptions enables whichever Google voice clients can be created.
func VoiceOptions(ctx context.Context, cfg *config.Config) []usecase.Option {
	var (
		transcriber domain.Transcriber
		synthesizer domain.Synthesizer
	)
	if cfg.SpeechEnabled {
		googleSpeech, err := speech.NewGoogleSpeech(ctx, speech.Config{
			LanguageCode:    cfg.SpeechLanguage,
			SampleRateHertz: cfg.SpeechSampleRate,
		})
		if err != nil {
			log.With().Warn("speech-to-text disabled", zap.Error(err))
		} else {
			transcriber = googleSpeech
		}
	}
	if cfg.TTSEnabled {
		googleTTS, err := tts.NewGoogleTTS(ctx, cfg.TTSLanguage)
		if err != nil {
			log.With().Warn("text-to-speech disabled", zap.Error(err))
		} else {
			synthesizer = googleTTS
		}
	}
	if transcriber == nil && synthesizer == nil {
		return nil
	}
	return []usecase.Option{usecase.WithVoice(transcriber, synthesizer)}
}
