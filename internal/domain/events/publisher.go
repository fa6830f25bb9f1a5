package events

import (
	"context"
	"errors"

	"github.com/Hari1275/sdp-sub000/pkg/broker"
)

// Publisher delivers tracking events to interested parties.
type Publisher interface {
	Publish(ctx context.Context, event TrackingEvent) error
}

// BrokerPublisher sends events to a message broker, one topic per event type.
type BrokerPublisher struct {
	broker broker.MessageBroker
}

func NewBrokerPublisher(b broker.MessageBroker) *BrokerPublisher {
	return &BrokerPublisher{broker: b}
}

func (p *BrokerPublisher) Publish(ctx context.Context, event TrackingEvent) error {
	payload, err := event.Payload()
	if err != nil {
		return err
	}
	return p.broker.Publish(ctx, event.EventType, payload, event.Attributes())
}

// Fanout publishes to every publisher and joins the failures.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event TrackingEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, TrackingEvent) error { return nil }
