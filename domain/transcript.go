package domain

import (
	"strings"
	"sync"
)

// Transcript is the rendered conversation log. It only grows by appending.
type Transcript struct {
	mu    sync.RWMutex
	turns []ChatMessage
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

func (t *Transcript) Append(turns ...ChatMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, turn := range turns {
		turn.Image = nil
		t.turns = append(t.turns, turn)
	}
}

// Turns returns a copy of the log in append order.
func (t *Transcript) Turns() []ChatMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ChatMessage, len(t.turns))
	copy(out, t.turns)
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Last returns the most recent turn with the given role.
func (t *Transcript) Last(role Role) (ChatMessage, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.turns) - 1; i >= 0; i-- {
		if t.turns[i].Role == role {
			return t.turns[i], true
		}
	}
	return ChatMessage{}, false
}

// Export renders the log as "<ROLE>: <content>" blocks separated by blank lines.
func (t *Transcript) Export() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	blocks := make([]string, len(t.turns))
	for i, turn := range t.turns {
		blocks[i] = strings.ToUpper(string(turn.Role)) + ": " + turn.Content
	}
	return strings.Join(blocks, "\n\n")
}
