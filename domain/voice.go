package domain

import "context"

// Transcriber turns a recorded question into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Synthesizer renders a reply as speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
