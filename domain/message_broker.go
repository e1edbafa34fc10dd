package domain

import (
	"context"
	"time"
)

// TurnsTopic carries one TurnEvent per appended turn, routed by session id.
const TurnsTopic = "conversation.turns"

// MessageBroker defines the interface for message broker operations
type MessageBroker interface {
	// Publish sends a message to a specific topic/channel with a routing key
	Publish(ctx context.Context, topic string, routingKey string, message []byte) error

	// Subscribe listens for messages on a specific topic/channel and routing key
	Subscribe(ctx context.Context, topic string, routingKey string) (<-chan Message, error)

	// Unsubscribe releases the channel returned by Subscribe
	Unsubscribe(topic string, routingKey string)

	// Close closes the message broker connection
	Close() error
}

// Message represents a message received from the broker
type Message struct {
	Topic      string
	RoutingKey string
	Payload    []byte
	Timestamp  time.Time
}

// TurnEvent announces a turn appended to a session's transcript.
type TurnEvent struct {
	SessionID string      `json:"session_id"`
	ChatID    string      `json:"chat_id,omitempty"`
	Index     int         `json:"index"`
	Turn      ChatMessage `json:"turn"`
	Cleared   bool        `json:"cleared,omitempty"`
}
