package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Common errors
var (
	ErrBrokerClosed      = errors.New("broker is closed")
	ErrSubscriptionError = errors.New("error creating subscription")
)

// Message represents a generic message in the message queue
type Message struct {
	ID          string            `json:"id"`
	Topic       string            `json:"topic"`
	Payload     []byte            `json:"payload"`
	PublishedAt time.Time         `json:"published_at"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// MessageHandler is a function that processes messages
type MessageHandler func(context.Context, *Message) error

// MessageBroker defines an interface for a message broker
type MessageBroker interface {
	// Publish publishes a message to a topic
	Publish(ctx context.Context, topic string, payload []byte, attributes map[string]string) error

	// Subscribe subscribes to a topic with a handler function
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Close closes the message broker
	Close() error
}

// Subscription represents a subscription to a topic
type Subscription interface {
	ID() string
	Topic() string
	Unsubscribe() error
	IsClosed() bool
}

// InMemoryBroker delivers messages to in-process subscribers. It keeps the
// last queueSize messages per topic for inspection.
type InMemoryBroker struct {
	topics        map[string][]Message
	subscriptions map[string]map[string]MessageHandler
	mu            sync.RWMutex
	wg            sync.WaitGroup
	logger        *logrus.Logger
	queueSize     int
	closed        bool
}

type subscription struct {
	id     string
	topic  string
	broker *InMemoryBroker
	closed bool
}

// NewInMemoryBroker creates a new in-memory message broker
func NewInMemoryBroker(logger *logrus.Logger, queueSize int) *InMemoryBroker {
	if queueSize <= 0 {
		queueSize = 1000
	}
	return &InMemoryBroker{
		topics:        make(map[string][]Message),
		subscriptions: make(map[string]map[string]MessageHandler),
		logger:        logger,
		queueSize:     queueSize,
	}
}

// Publish publishes a message to a topic
func (b *InMemoryBroker) Publish(ctx context.Context, topic string, payload []byte, attributes map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}

	msg := Message{
		ID:          uuid.New().String(),
		Topic:       topic,
		Payload:     payload,
		PublishedAt: time.Now(),
		Attributes:  attributes,
	}

	retained := append(b.topics[topic], msg)
	if len(retained) > b.queueSize {
		retained = retained[len(retained)-b.queueSize:]
	}
	b.topics[topic] = retained

	for _, handler := range b.subscriptions[topic] {
		b.wg.Add(1)
		go b.processMessage(handler, msg)
	}

	return nil
}

// Subscribe subscribes to a topic
func (b *InMemoryBroker) Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}
	if handler == nil {
		return nil, ErrSubscriptionError
	}

	if _, exists := b.subscriptions[topic]; !exists {
		b.subscriptions[topic] = make(map[string]MessageHandler)
	}

	subID := uuid.New().String()
	b.subscriptions[topic][subID] = handler

	return &subscription{id: subID, topic: topic, broker: b}, nil
}

// Messages returns the retained messages of a topic, oldest first.
func (b *InMemoryBroker) Messages(topic string) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Message, len(b.topics[topic]))
	copy(out, b.topics[topic])
	return out
}

// Drain blocks until in-flight handlers have returned.
func (b *InMemoryBroker) Drain() {
	b.wg.Wait()
}

func (b *InMemoryBroker) processMessage(handler MessageHandler, msg Message) {
	defer b.wg.Done()

	// Handlers outlive the publishing request.
	if err := handler(context.Background(), &msg); err != nil {
		b.logger.WithError(err).
			WithField("message_id", msg.ID).
			WithField("topic", msg.Topic).
			Error("Error processing message")
	}
}

// Close closes the broker
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.topics = nil
	b.subscriptions = nil
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Topic() string {
	return s.topic
}

func (s *subscription) IsClosed() bool {
	s.broker.mu.RLock()
	defer s.broker.mu.RUnlock()
	return s.closed
}

func (s *subscription) Unsubscribe() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()

	if s.closed {
		return nil
	}
	if subs, ok := s.broker.subscriptions[s.topic]; ok {
		delete(subs, s.id)
	}
	s.closed = true
	return nil
}
