// Package tts speaks assistant replies with Google Cloud Text-to-Speech.
package tts

import (
	"context"
	"errors"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
)

// maxInputBytes is the service's limit on synthesis input.
const maxInputBytes = 5000

type GoogleTTS struct {
	client       *texttospeech.Client
	languageCode string
}

// NewGoogleTTS uses application default credentials. languageCode defaults
// to en-US.
func NewGoogleTTS(ctx context.Context, languageCode string) (*GoogleTTS, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating Google tts client: %w", err)
	}
	if languageCode == "" {
		languageCode = "en-US"
	}
	return &GoogleTTS{
		client:       client,
		languageCode: languageCode,
	}, nil
}

// Synthesize returns MP3 audio. Replies longer than the service accepts are
// truncated at a rune boundary.
func (g *GoogleTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("nothing to synthesize")
	}
	resp, err := g.client.SynthesizeSpeech(ctx, synthesizeRequest(g.languageCode, text))
	if err != nil {
		return nil, fmt.Errorf("synthesizing speech: %w", err)
	}

	return resp.GetAudioContent(), nil
}

func (g *GoogleTTS) Close() error {
	return g.client.Close()
}

func synthesizeRequest(languageCode, text string) *texttospeechpb.SynthesizeSpeechRequest {
	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{
				Text: truncate(text, maxInputBytes),
			},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: languageCode,
			SsmlGender:   texttospeechpb.SsmlVoiceGender_NEUTRAL,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	}
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := 0
	for i := range text {
		if i > limit {
			break
		}
		cut = i
	}
	return text[:cut]
}
