package inmemory

import (
	"sync"
	"time"

	"github.com/satriahrh/landuse-agentic/domain"
)

// SessionRepository keeps sessions in a map until they are deleted or swept.
type SessionRepository struct {
	mutex    sync.RWMutex
	sessions map[string]*domain.Session
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]*domain.Session),
	}
}

func (r *SessionRepository) Save(session *domain.Session) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.sessions[session.ID] = session
	return nil
}

func (r *SessionRepository) Get(id string) (*domain.Session, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (r *SessionRepository) Delete(id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *SessionRepository) Sweep(cutoff time.Time) []*domain.Session {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var expired []*domain.Session
	for id, session := range r.sessions {
		if session.CreatedAt.Before(cutoff) {
			expired = append(expired, session)
			delete(r.sessions, id)
		}
	}
	return expired
}

func (r *SessionRepository) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.sessions)
}
