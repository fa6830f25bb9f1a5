package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// RabbitMQConfig describes the topic exchange events are routed through.
type RabbitMQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Exchange string
	// Queue is the durable queue subscriptions consume from; each Subscribe
	// binds it with the topic as routing key.
	Queue string
}

// RabbitMQBroker publishes to a durable topic exchange and reconnects in the
// background when the connection drops.
type RabbitMQBroker struct {
	cfg    RabbitMQConfig
	dsn    string
	logger *logrus.Logger

	mu        sync.RWMutex
	conn      *amqp.Connection
	ch        *amqp.Channel
	connClose chan *amqp.Error
	isClosed  atomic.Bool
}

// NewRabbitMQBroker dials RabbitMQ and declares the exchange.
func NewRabbitMQBroker(cfg RabbitMQConfig, logger *logrus.Logger) (*RabbitMQBroker, error) {
	if cfg.Exchange == "" {
		return nil, errors.New("rabbitmq exchange is required")
	}
	b := &RabbitMQBroker{
		cfg:    cfg,
		dsn:    fmt.Sprintf("amqp://%s:%s@%s:%d/", cfg.User, cfg.Password, cfg.Host, cfg.Port),
		logger: logger,
	}

	if err := b.connect(); err != nil {
		return nil, err
	}

	go b.reconnectLoop()
	return b, nil
}

func (b *RabbitMQBroker) connect() error {
	conn, err := amqp.Dial(b.dsn)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return errors.Join(conn.Close(), err)
	}

	err = ch.ExchangeDeclare(
		b.cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return errors.Join(conn.Close(), err)
	}

	connClose := make(chan *amqp.Error, 1)
	conn.NotifyClose(connClose)

	b.mu.Lock()
	b.conn = conn
	b.ch = ch
	b.connClose = connClose
	b.mu.Unlock()
	return nil
}

func (b *RabbitMQBroker) reconnectLoop() {
	for {
		b.mu.RLock()
		closeCh := b.connClose
		b.mu.RUnlock()

		<-closeCh
		if b.isClosed.Load() {
			return
		}
		b.logger.Warn("RabbitMQ connection lost, reconnecting")

		for !b.isClosed.Load() {
			if err := b.connect(); err != nil {
				b.logger.WithError(err).Warn("RabbitMQ reconnect failed")
				time.Sleep(3 * time.Second)
				continue
			}
			b.logger.Info("RabbitMQ reconnected")
			break
		}
	}
}

// Publish sends payload to the exchange with topic as routing key.
func (b *RabbitMQBroker) Publish(ctx context.Context, topic string, payload []byte, attributes map[string]string) error {
	if b.isClosed.Load() {
		return ErrBrokerClosed
	}

	headers := amqp.Table{}
	for k, v := range attributes {
		headers[k] = v
	}

	b.mu.RLock()
	ch := b.ch
	b.mu.RUnlock()

	return ch.PublishWithContext(ctx,
		b.cfg.Exchange,
		topic,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.New().String(),
			Timestamp:    time.Now(),
			Headers:      headers,
			Body:         payload,
		})
}

// Subscribe consumes topic through the configured queue on a dedicated
// channel. Deliveries are acked after the handler succeeds.
func (b *RabbitMQBroker) Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error) {
	if b.isClosed.Load() {
		return nil, ErrBrokerClosed
	}
	if handler == nil {
		return nil, ErrSubscriptionError
	}

	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubscriptionError, err)
	}

	queue := b.cfg.Queue
	if queue == "" {
		queue = topic
	}
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return nil, errors.Join(ch.Close(), err)
	}
	if err := ch.QueueBind(q.Name, topic, b.cfg.Exchange, false, nil); err != nil {
		return nil, errors.Join(ch.Close(), err)
	}

	tag := uuid.New().String()
	deliveries, err := ch.Consume(q.Name, tag, false, false, false, false, nil)
	if err != nil {
		return nil, errors.Join(ch.Close(), err)
	}

	sub := &rabbitSubscription{id: tag, topic: topic, ch: ch}
	go func() {
		for d := range deliveries {
			msg := &Message{
				ID:          d.MessageId,
				Topic:       d.RoutingKey,
				Payload:     d.Body,
				PublishedAt: d.Timestamp,
				Attributes:  stringHeaders(d.Headers),
			}
			if err := handler(context.Background(), msg); err != nil {
				b.logger.WithError(err).WithField("topic", topic).Error("Error processing message")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}()

	return sub, nil
}

// Close stops reconnecting and closes the connection.
func (b *RabbitMQBroker) Close() error {
	if b.isClosed.Swap(true) {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	b.logger.Info("RabbitMQ broker closed")
	return b.conn.Close()
}

func stringHeaders(t amqp.Table) map[string]string {
	out := make(map[string]string, len(t))
	for k, v := range t {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

type rabbitSubscription struct {
	id     string
	topic  string
	ch     *amqp.Channel
	closed atomic.Bool
}

func (s *rabbitSubscription) ID() string     { return s.id }
func (s *rabbitSubscription) Topic() string  { return s.topic }
func (s *rabbitSubscription) IsClosed() bool { return s.closed.Load() }

func (s *rabbitSubscription) Unsubscribe() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.ch.Cancel(s.id, false); err != nil {
		return errors.Join(s.ch.Close(), err)
	}
	return s.ch.Close()
}
