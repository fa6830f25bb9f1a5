package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Hari1275/sdp-sub000/internal/domain/events"
	"github.com/Hari1275/sdp-sub000/internal/infrastructure/cache"
	"github.com/Hari1275/sdp-sub000/pkg/broker"
	"github.com/Hari1275/sdp-sub000/pkg/config"
	"github.com/sirupsen/logrus"
)

// EventSystem holds the broker that tracking events flow through and the
// publisher the services write to.
type EventSystem struct {
	Broker       broker.MessageBroker
	Publisher    events.Publisher
	Logger       *logrus.Logger
	subscription broker.Subscription
}

// SetupEventSystem opens the configured broker and fans events out to it
// and, when Redis is up, to the live feed.
func SetupEventSystem(cfg *config.Config, liveFeed *cache.LiveFeed) (*EventSystem, error) {
	eventLogger := logrus.New()
	eventLogger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Server.Mode == "production" {
		eventLogger.SetLevel(logrus.InfoLevel)
	} else {
		eventLogger.SetLevel(logrus.DebugLevel)
	}

	var msgBroker broker.MessageBroker
	switch cfg.Broker.Driver {
	case "rabbitmq":
		rabbit, err := broker.NewRabbitMQBroker(broker.RabbitMQConfig{
			Host:     cfg.Broker.RabbitMQ.Host,
			Port:     cfg.Broker.RabbitMQ.Port,
			User:     cfg.Broker.RabbitMQ.User,
			Password: cfg.Broker.RabbitMQ.Password,
			Exchange: cfg.Broker.RabbitMQ.Exchange,
			Queue:    cfg.Broker.RabbitMQ.Queue,
		}, eventLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		msgBroker = rabbit
	default:
		msgBroker = broker.NewInMemoryBroker(eventLogger, cfg.Broker.QueueSize)
	}

	publishers := events.Fanout{events.NewBrokerPublisher(msgBroker)}
	if liveFeed != nil {
		publishers = append(publishers, liveFeed)
	}

	system := &EventSystem{
		Broker:    msgBroker,
		Publisher: publishers,
		Logger:    eventLogger,
	}

	sub, err := msgBroker.Subscribe(context.Background(), events.EventTypeMonitoringAlert, system.logAlert)
	if err != nil {
		msgBroker.Close()
		return nil, fmt.Errorf("failed to subscribe to alerts: %w", err)
	}
	system.subscription = sub

	return system, nil
}

func (s *EventSystem) logAlert(_ context.Context, msg *broker.Message) error {
	var event events.TrackingEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return err
	}
	s.Logger.WithFields(logrus.Fields{
		"user_id":    event.UserID,
		"session_id": event.SessionID,
		"details":    event.Details,
	}).Warn("Monitoring alert")
	return nil
}

// Shutdown stops the alert subscription and closes the broker.
func (s *EventSystem) Shutdown() {
	if s.subscription != nil {
		if err := s.subscription.Unsubscribe(); err != nil {
			s.Logger.WithError(err).Warn("Failed to unsubscribe from alerts")
		}
	}
	if err := s.Broker.Close(); err != nil {
		s.Logger.WithError(err).Error("Failed to close message broker")
	}
}
