package websocket

import (
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/landuse-agentic/utils/log"
)

// Hub tracks connected clients grouped by session.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Client]struct{}
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]map[*Client]struct{}),
	}
}

// Register adds a client and reports whether it is the first one of its session.
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.sessions[client.sessionID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.sessions[client.sessionID] = clients
	}
	clients[client] = struct{}{}
	log.WithCtx(client.ctx).Debug("New client registered", zap.Int("session_clients", len(clients)))
	return !ok
}

// Unregister closes and removes a client, reporting whether its session has
// no clients left.
func (h *Hub) Unregister(client *Client) bool {
	client.Close()

	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.sessions[client.sessionID]
	if !ok {
		return false
	}
	if _, registered := clients[client]; !registered {
		return false
	}
	delete(clients, client)
	log.WithCtx(client.ctx).Debug("Client unregistered")
	if len(clients) == 0 {
		delete(h.sessions, client.sessionID)
		return true
	}
	return false
}

// SendToSession delivers message to every client of the session and
// returns how many accepted it.
func (h *Hub) SendToSession(sessionID string, message []byte) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.sessions[sessionID]))
	for client := range h.sessions[sessionID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, client := range targets {
		if client.SendMessage(message) == nil {
			delivered++
		}
	}
	return delivered
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(message []byte) {
	h.mu.RLock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.SendToSession(id, message)
	}
}

// IsSessionConnected checks if a session has at least one client
func (h *Hub) IsSessionConnected(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID]) > 0
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.sessions {
		n += len(clients)
	}
	return n
}
