package domain

import (
	"sync"
	"time"
)

type SessionState string

const (
	StateUninitialized SessionState = "uninitialized"
	StateReady         SessionState = "ready"
	StateDegraded      SessionState = "degraded"
)

// Session is the state owned by one interactive user. Actions on a session
// are serialised through Lock/Unlock; sessions never share state.
type Session struct {
	mu sync.Mutex

	ID        string
	CreatedAt time.Time

	// Llm is bound to Credential, the key the session was opened with.
	Llm        Llm
	Credential string
	// Chat is nil until opened, or when opening failed (see ChatErr).
	Chat    ChatSession
	ChatErr error

	Transcript *Transcript
	Upload     *UploadedImage
	Analyzed   bool
	opened     bool
}

func NewSession(id string, llm Llm) *Session {
	return &Session{
		ID:         id,
		CreatedAt:  time.Now(),
		Llm:        llm,
		Transcript: NewTranscript(),
	}
}

func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// Bind records the outcome of opening a conversation.
func (s *Session) Bind(chat ChatSession, err error) {
	s.opened = true
	s.Chat = chat
	s.ChatErr = err
	if err != nil {
		s.Chat = nil
	}
}

func (s *Session) State() SessionState {
	switch {
	case !s.opened:
		return StateUninitialized
	case s.Chat == nil:
		return StateDegraded
	default:
		return StateReady
	}
}

// ChatID returns the handle id, or "" when degraded.
func (s *Session) ChatID() string {
	if s.Chat == nil {
		return ""
	}
	return s.Chat.ID()
}

// SessionRepository keeps live sessions until they are closed or expire.
type SessionRepository interface {
	Save(session *Session) error
	Get(id string) (*Session, error)
	Delete(id string) error
	// Sweep removes and returns every session created before cutoff.
	Sweep(cutoff time.Time) []*Session
	Count() int
}
