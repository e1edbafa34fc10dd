package speech

import (
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/stretchr/testify/assert"
)

func TestRecognizeRequest(t *testing.T) {
	req := recognizeRequest(Config{}.withDefaults(), []byte{1, 2})

	cfg := req.GetConfig()
	assert.Equal(t, speechpb.RecognitionConfig_LINEAR16, cfg.GetEncoding())
	assert.Equal(t, int32(16000), cfg.GetSampleRateHertz())
	assert.Equal(t, "en-US", cfg.GetLanguageCode())
	assert.Equal(t, []byte{1, 2}, req.GetAudio().GetContent())
}

func TestTranscriptJoinsTopAlternatives(t *testing.T) {
	resp := &speechpb.RecognizeResponse{
		Results: []*speechpb.SpeechRecognitionResult{
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "What is the max height "}, {Transcript: "ignored"}}},
			{},
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "in R-4?"}}},
		},
	}
	assert.Equal(t, "What is the max height in R-4?", transcript(resp))
	assert.Equal(t, "", transcript(&speechpb.RecognizeResponse{}))
}
