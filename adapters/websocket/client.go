package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/landuse-agentic/domain"
	"github.com/satriahrh/landuse-agentic/utils/log"
)

// Message is one frame exchanged with a client.
//
// Inbound:  {"type":"message","text":"..."}
// Outbound: "turn", "cleared" and "error" frames.
type Message struct {
	Type      string              `json:"type"`
	SessionID string              `json:"session_id,omitempty"`
	ChatID    string              `json:"chat_id,omitempty"`
	Text      string              `json:"text,omitempty"`
	Index     int                 `json:"index,omitempty"`
	Turn      *domain.ChatMessage `json:"turn,omitempty"`
	Error     *ErrorResponse      `json:"error,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

const (
	TypeMessage = "message"
	TypeTurn    = "turn"
	TypeCleared = "cleared"
	TypeError   = "error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
)

// MessageHandler receives decoded inbound frames. It runs on the read
// goroutine and must not block on remote calls.
type MessageHandler func(c *Client, msg Message)

type Client struct {
	conn         *websocket.Conn
	sessionID    string
	send         chan []byte
	incomingPing chan string
	onMessage    MessageHandler
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.RWMutex
	closed       bool
}

// NewClient creates a new WebSocket client bound to a session
func NewClient(conn *websocket.Conn, sessionID string, onMessage MessageHandler) *Client {
	ctx, cancel := context.WithCancel(log.WithSessionID(context.Background(), sessionID))
	return &Client{
		conn:         conn,
		sessionID:    sessionID,
		send:         make(chan []byte, 256),
		incomingPing: make(chan string, 1),
		onMessage:    onMessage,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (c *Client) Run() {
	c.setupHandlers()

	go c.Ping()
	go c.readPump()
	go c.writePump()
}

func (c *Client) SessionID() string {
	return c.sessionID
}

// setupHandlers configures all WebSocket control handlers
func (c *Client) setupHandlers() {
	c.conn.SetCloseHandler(func(code int, text string) error {
		log.WithCtx(c.ctx).Debug("WebSocket connection closed", zap.Int("code", code), zap.String("text", text))
		c.Close()
		return nil
	})

	c.conn.SetPingHandler(func(appData string) error {
		log.WithCtx(c.ctx).Debug("Received ping from client", zap.String("appData", appData))
		select {
		case c.incomingPing <- appData:
		default:
		}
		return c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	c.conn.SetPongHandler(func(appData string) error {
		log.WithCtx(c.ctx).Debug("Received pong from client", zap.String("appData", appData))
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// Close gracefully closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	c.cancel()
	if c.conn != nil {
		c.conn.Close()
	}
	close(c.send)
}

// IsClosed returns true if the client connection is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Context returns the client's context
func (c *Client) Context() context.Context {
	return c.ctx
}

// Ping keeps the connection alive while the peer is idle.
func (c *Client) Ping() {
	for {
		select {
		case <-c.incomingPing:
		case <-time.After(pingPeriod):
			if c.IsClosed() {
				return
			}
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				log.WithCtx(c.ctx).Error("Failed to send ping", zap.Error(err))
				c.Close()
				return
			}
			log.WithCtx(c.ctx).Debug("Ping sent")
		case <-c.ctx.Done():
			return
		}
	}
}

// readPump decodes inbound frames and hands them to onMessage
func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithCtx(c.ctx).Error("WebSocket error", zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.SendError("bad_frame", "Frames must be JSON objects", err.Error())
			continue
		}
		if c.onMessage != nil {
			c.onMessage(c, msg)
		}
	}
}

// writePump is the only writer of data frames
func (c *Client) writePump() {
	defer c.Close()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.WithCtx(c.ctx).Error("Failed to write message", zap.Error(err))
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// SendMessage queues a frame without blocking. A client that cannot keep up
// is disconnected.
func (c *Client) SendMessage(message []byte) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return websocket.ErrCloseSent
	}
	select {
	case c.send <- message:
		c.mu.RUnlock()
		return nil
	default:
	}
	c.mu.RUnlock()

	c.Close()
	return websocket.ErrCloseSent
}

// SendJSON encodes and queues msg, stamping it when needed.
func (c *Client) SendJSON(msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.SessionID == "" {
		msg.SessionID = c.sessionID
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.SendMessage(payload)
}

func (c *Client) SendError(code, message, details string) {
	if err := c.SendJSON(Message{
		Type:  TypeError,
		Error: &ErrorResponse{Code: code, Message: message, Details: details},
	}); err != nil {
		log.WithCtx(c.ctx).Debug("dropping error frame", zap.Error(err))
	}
}
