package message_broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/landuse-agentic/domain"
	"github.com/satriahrh/landuse-agentic/utils/log"
)

const subscriptionBuffer = 100

// ChannelMessageBroker implements MessageBroker using Go channels.
// Each topic/routingKey pair has at most one subscriber.
type ChannelMessageBroker struct {
	topics map[string]chan domain.Message
	mu     sync.RWMutex
	closed bool
}

// NewChannelMessageBroker creates a new channel-based message broker
func NewChannelMessageBroker() *ChannelMessageBroker {
	return &ChannelMessageBroker{
		topics: make(map[string]chan domain.Message),
	}
}

// makeKey creates a unique key for topic and routingKey
func makeKey(topic, routingKey string) string {
	return topic + ":" + routingKey
}

// Publish delivers message to the subscriber of topic/routingKey without
// blocking. Messages with no subscriber are dropped.
func (b *ChannelMessageBroker) Publish(ctx context.Context, topic string, routingKey string, message []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("message broker is closed")
	}

	channel, exists := b.topics[makeKey(topic, routingKey)]
	if !exists {
		log.WithCtx(ctx).Debug("no subscriber, message dropped",
			zap.String("topic", topic),
			zap.String("routingKey", routingKey))
		return nil
	}

	msg := domain.Message{
		Topic:      topic,
		RoutingKey: routingKey,
		Payload:    message,
		Timestamp:  time.Now(),
	}

	select {
	case channel <- msg:
		log.WithCtx(ctx).Debug("📤 Message published to topic",
			zap.String("topic", topic),
			zap.String("routingKey", routingKey),
			zap.Int("payload_size", len(message)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("topic channel is full: %s:%s", topic, routingKey)
	}
}

// Subscribe returns the channel for topic/routingKey, creating it on first use.
func (b *ChannelMessageBroker) Subscribe(ctx context.Context, topic string, routingKey string) (<-chan domain.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("message broker is closed")
	}

	key := makeKey(topic, routingKey)
	channel, exists := b.topics[key]
	if !exists {
		channel = make(chan domain.Message, subscriptionBuffer)
		b.topics[key] = channel
	}

	log.WithCtx(ctx).Info("📡 Subscribed to topic", zap.String("topic", topic), zap.String("routingKey", routingKey))
	return channel, nil
}

// Unsubscribe closes the subscription channel of topic/routingKey.
func (b *ChannelMessageBroker) Unsubscribe(topic string, routingKey string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := makeKey(topic, routingKey)
	if channel, exists := b.topics[key]; exists {
		close(channel)
		delete(b.topics, key)
		log.With(zap.String("key", key)).Debug("📴 Unsubscribed")
	}
}

// Close closes the message broker and all topic channels
func (b *ChannelMessageBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true

	for key, channel := range b.topics {
		close(channel)
		log.With(zap.String("key", key)).Debug("🔒 Closed topic channel")
	}
	b.topics = make(map[string]chan domain.Message)

	log.With().Info("🔒 Message broker closed")
	return nil
}

// GetTopicCount returns the number of active subscriptions
func (b *ChannelMessageBroker) GetTopicCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics)
}

// IsClosed returns whether the broker is closed
func (b *ChannelMessageBroker) IsClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}
