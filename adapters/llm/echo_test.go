package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/landuse-agentic/domain"
)

func TestEchoRepliesWithLastNonEmptyLine(t *testing.T) {
	chat, err := NewEchoClient("").StartChat(context.Background())
	require.NoError(t, err)

	reply, err := chat.SendMessage(context.Background(), domain.ChatMessage{Content: "first\n\nsecond\n  \n"})
	require.NoError(t, err)
	assert.Equal(t, "Echo: second", reply.Content)
	assert.Equal(t, domain.AssistantRole, reply.Role)

	reply, err = chat.SendMessage(context.Background(), domain.ChatMessage{Content: "\n\n"})
	require.NoError(t, err)
	assert.Equal(t, "Echo: <empty prompt>", reply.Content)

	history, err := chat.History()
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestEchoDescribesImages(t *testing.T) {
	chat, err := NewEchoClient("PFX").StartChat(context.Background())
	require.NoError(t, err)

	reply, err := chat.SendMessage(context.Background(), domain.ChatMessage{
		Content: "prompt\nReview this plan.",
		Image:   &domain.Image{MIMEType: "image/jpeg", Width: 4096, Height: 2048},
	})
	require.NoError(t, err)
	assert.Equal(t, "PFX [image/jpeg 4096x2048] Review this plan.", reply.Content)
}

func TestEchoHandlesAreDistinct(t *testing.T) {
	client := NewEchoClient("")
	a, _ := client.StartChat(context.Background())
	b, _ := client.StartChat(context.Background())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Same(t, client, client.For("ignored"))
}
