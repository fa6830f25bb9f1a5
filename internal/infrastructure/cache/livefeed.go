package cache

import (
	"context"
	"encoding/json"

	"github.com/Hari1275/sdp-sub000/internal/domain/events"
	"go.uber.org/zap"
)

// LiveFeed carries tracking events between API instances over Redis
// pub/sub. Monitoring websockets subscribe to it.
type LiveFeed struct {
	client  *RedisClient
	channel string
	logger  *zap.Logger
}

func NewLiveFeed(client *RedisClient, logger *zap.Logger) *LiveFeed {
	return &LiveFeed{client: client, channel: events.LiveChannel, logger: logger}
}

// Publish implements events.Publisher.
func (f *LiveFeed) Publish(ctx context.Context, event events.TrackingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return f.client.GetClient().Publish(ctx, f.channel, data).Err()
}

// LiveUpdate is a decoded live event. Details stay raw so subscribers can
// forward them untouched.
type LiveUpdate struct {
	events.TrackingEvent
	Details json.RawMessage `json:"details,omitempty"`
}

// Subscribe streams live updates until ctx is done or the returned cancel
// func is called. The channel is closed afterwards.
func (f *LiveFeed) Subscribe(ctx context.Context) (<-chan LiveUpdate, func(), error) {
	pubsub := f.client.GetClient().Subscribe(ctx, f.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan LiveUpdate, 64)

	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var update LiveUpdate
				if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
					f.logger.Warn("Dropping malformed live update", zap.Error(err))
					continue
				}
				select {
				case out <- update:
				case <-ctx.Done():
					return
				default:
					// slow consumers lose updates rather than stall the feed
				}
			}
		}
	}()

	return out, cancel, nil
}
