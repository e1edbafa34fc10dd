package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/landuse-agentic/domain"
	"github.com/satriahrh/landuse-agentic/usecase"
	"github.com/satriahrh/landuse-agentic/utils/log"
)

// askQueueSize bounds the questions a client may have waiting.
const askQueueSize = 8

// Server streams each session's turns to its WebSocket clients and accepts
// questions over the same connection.
type Server struct {
	upgrader      websocket.Upgrader
	svc           *usecase.ChatService
	messageBroker domain.MessageBroker
	hub           *Hub

	// mu orders subscription changes with the first and last client of a session.
	mu sync.Mutex
}

func NewServer(svc *usecase.ChatService, messageBroker domain.MessageBroker) *Server {
	return &Server{
		upgrader:      websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		svc:           svc,
		messageBroker: messageBroker,
		hub:           NewHub(),
	}
}

func (s *Server) GetHub() *Hub {
	return s.hub
}

// attach registers client, subscribing to its session's turns when it is
// the first client of the session.
func (s *Server) attach(client *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hub.Register(client) {
		return nil
	}
	messages, err := s.messageBroker.Subscribe(client.ctx, domain.TurnsTopic, client.sessionID)
	if err != nil {
		s.hub.Unregister(client)
		return err
	}
	go s.forward(client.sessionID, messages)
	return nil
}

func (s *Server) detach(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hub.Unregister(client) {
		s.messageBroker.Unsubscribe(domain.TurnsTopic, client.sessionID)
	}
}

// forward relays turn events until the subscription is closed.
func (s *Server) forward(sessionID string, messages <-chan domain.Message) {
	ctx := log.WithSessionID(context.Background(), sessionID)
	log.WithCtx(ctx).Info("🎧 Streaming turns to WebSocket clients")

	for msg := range messages {
		frame, err := turnFrame(msg.Payload)
		if err != nil {
			log.WithCtx(ctx).Error("❌ Failed to decode turn event", zap.Error(err))
			continue
		}
		delivered := s.hub.SendToSession(sessionID, frame)
		log.WithCtx(ctx).Debug("📤 Turn sent to WebSocket clients", zap.Int("clients", delivered))
	}

	log.WithCtx(ctx).Info("🔒 Turn stream stopped")
}

func turnFrame(payload []byte) ([]byte, error) {
	var event domain.TurnEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	msg := Message{
		Type:      TypeTurn,
		SessionID: event.SessionID,
		ChatID:    event.ChatID,
		Timestamp: time.Now(),
	}
	if event.Cleared {
		msg.Type = TypeCleared
	} else {
		turn := event.Turn
		msg.Index = event.Index
		msg.Turn = &turn
		msg.Timestamp = turn.Timestamp
	}
	return json.Marshal(msg)
}

// enqueue accepts "message" frames into queue.
func (s *Server) enqueue(queue chan<- string) MessageHandler {
	return func(c *Client, msg Message) {
		switch msg.Type {
		case TypeMessage:
			select {
			case queue <- msg.Text:
			default:
				c.SendError("busy", "Too many pending questions", "")
			}
		default:
			c.SendError("unknown_type", "Unsupported frame type", msg.Type)
		}
	}
}

// askLoop answers queued questions one at a time, in arrival order. Turns
// reach the client through the broker; only rejected questions are
// answered here.
func (s *Server) askLoop(client *Client, session *domain.Session, queue <-chan string) {
	for {
		select {
		case text := <-queue:
			_, err := s.svc.Ask(client.ctx, session, text)
			if err != nil && domain.KindOf(err) == "" {
				client.SendError("rejected", err.Error(), "")
			}
		case <-client.ctx.Done():
			return
		}
	}
}
