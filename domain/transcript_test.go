package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptExport(t *testing.T) {
	tr := NewTranscript()
	tr.Append(
		ChatMessage{Role: UserRole, Content: "What is the max height in R-4?"},
		ChatMessage{Role: AssistantRole, Content: "30 feet."},
	)

	assert.Equal(t, "USER: What is the max height in R-4?\n\nASSISTANT: 30 feet.", tr.Export())
}

func TestTranscriptExportEmpty(t *testing.T) {
	assert.Equal(t, "", NewTranscript().Export())
}

func TestTranscriptDropsImagesAndCopiesTurns(t *testing.T) {
	tr := NewTranscript()
	tr.Append(ChatMessage{Role: UserRole, Content: "look", Image: &Image{Data: []byte{1}}})

	turns := tr.Turns()
	require.Len(t, turns, 1)
	assert.Nil(t, turns[0].Image)

	turns[0].Content = "mutated"
	assert.Equal(t, "look", tr.Turns()[0].Content)
}

func TestTranscriptLast(t *testing.T) {
	tr := NewTranscript()
	_, ok := tr.Last(AssistantRole)
	assert.False(t, ok)

	tr.Append(
		ChatMessage{Role: AssistantRole, Content: "first"},
		ChatMessage{Role: UserRole, Content: "q"},
		ChatMessage{Role: AssistantRole, Content: "second"},
		ChatMessage{Role: UserRole, Content: "q2"},
	)
	last, ok := tr.Last(AssistantRole)
	require.True(t, ok)
	assert.Equal(t, "second", last.Content)
	assert.Equal(t, 4, tr.Len())
}
