package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHubGroupsClientsBySession(t *testing.T) {
	hub := NewHub()
	a1 := NewClient(nil, "a", nil)
	a2 := NewClient(nil, "a", nil)
	b := NewClient(nil, "b", nil)

	assert.True(t, hub.Register(a1))
	assert.False(t, hub.Register(a2))
	assert.True(t, hub.Register(b))
	assert.Equal(t, 3, hub.ClientCount())

	assert.Equal(t, 2, hub.SendToSession("a", []byte("x")))
	assert.Equal(t, []byte("x"), <-a1.send)
	assert.Len(t, b.send, 0)

	hub.Broadcast([]byte("all"))
	assert.Len(t, b.send, 1)

	assert.False(t, hub.Unregister(a1))
	assert.True(t, a1.IsClosed())
	assert.False(t, hub.Unregister(a1))
	assert.True(t, hub.Unregister(a2))
	assert.False(t, hub.IsSessionConnected("a"))
	assert.True(t, hub.IsSessionConnected("b"))
	assert.Equal(t, 0, hub.SendToSession("a", []byte("x")))
}

func TestSendMessageDisconnectsSlowClient(t *testing.T) {
	c := NewClient(nil, "a", nil)
	for i := 0; i < cap(c.send); i++ {
		assert.NoError(t, c.SendMessage([]byte("x")))
	}
	assert.Error(t, c.SendMessage([]byte("overflow")))
	assert.True(t, c.IsClosed())
	assert.Error(t, c.SendMessage([]byte("after close")))
}
