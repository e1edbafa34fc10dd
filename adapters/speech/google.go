// Package speech transcribes recorded questions with Google Cloud Speech-to-Text.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/satriahrh/landuse-agentic/utils/log"
)

// Config selects the expected audio. Audio is raw LINEAR16 PCM.
type Config struct {
	LanguageCode    string
	SampleRateHertz int32
}

func (c Config) withDefaults() Config {
	if c.LanguageCode == "" {
		c.LanguageCode = "en-US"
	}
	if c.SampleRateHertz == 0 {
		c.SampleRateHertz = 16000
	}
	return c
}

type GoogleSpeech struct {
	client *speech.Client
	config Config
}

// NewGoogleSpeech uses application default credentials.
func NewGoogleSpeech(ctx context.Context, cfg Config) (*GoogleSpeech, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating Google speech client: %w", err)
	}
	return &GoogleSpeech{
		client: client,
		config: cfg.withDefaults(),
	}, nil
}

func (g *GoogleSpeech) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("empty audio")
	}
	resp, err := g.client.Recognize(ctx, recognizeRequest(g.config, audio))
	if err != nil {
		return "", fmt.Errorf("recognizing speech: %w", err)
	}
	text := transcript(resp)
	if text == "" {
		return "", errors.New("no speech recognized")
	}
	log.WithCtx(ctx).Debug("🎙️ Speech recognized",
		zap.Int("audio_bytes", len(audio)),
		zap.Int("results", len(resp.GetResults())))
	return text, nil
}

func (g *GoogleSpeech) Close() error {
	return g.client.Close()
}

func recognizeRequest(cfg Config, audio []byte) *speechpb.RecognizeRequest {
	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            cfg.SampleRateHertz,
			LanguageCode:               cfg.LanguageCode,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}
}

// transcript joins the top alternative of each result.
func transcript(resp *speechpb.RecognizeResponse) string {
	parts := make([]string, 0, len(resp.GetResults()))
	for _, result := range resp.GetResults() {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}
		if text := strings.TrimSpace(alternatives[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
