package broker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryBrokerDelivers(t *testing.T) {
	b := NewInMemoryBroker(logrus.New(), 2)
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	sub, err := b.Subscribe(ctx, "tracking.session.opened", func(ctx context.Context, m *Message) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(m.Payload))
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "tracking.session.opened", []byte("a"), nil))
	require.NoError(t, b.Publish(ctx, "tracking.session.opened", []byte("b"), nil))
	require.NoError(t, b.Publish(ctx, "other", []byte("x"), nil))
	b.Drain()

	mu.Lock()
	assert.ElementsMatch(t, []string{"a", "b"}, got)
	mu.Unlock()

	require.NoError(t, sub.Unsubscribe())
	assert.True(t, sub.IsClosed())
	require.NoError(t, b.Publish(ctx, "tracking.session.opened", []byte("c"), nil))
	b.Drain()

	mu.Lock()
	assert.Len(t, got, 2)
	mu.Unlock()

	// retention is capped at the queue size
	retained := b.Messages("tracking.session.opened")
	require.Len(t, retained, 2)
	assert.Equal(t, "c", string(retained[1].Payload))
}

func TestInMemoryBrokerHandlerErrorsAreContained(t *testing.T) {
	b := NewInMemoryBroker(logrus.New(), 10)
	ctx := context.Background()

	_, err := b.Subscribe(ctx, "t", func(ctx context.Context, m *Message) error {
		return errors.New("handler failed")
	})
	require.NoError(t, err)
	assert.NoError(t, b.Publish(ctx, "t", []byte("{}"), nil))
	b.Drain()
}

func TestInMemoryBrokerClosed(t *testing.T) {
	b := NewInMemoryBroker(logrus.New(), 10)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(context.Background(), "t", nil, nil), ErrBrokerClosed)
	_, err := b.Subscribe(context.Background(), "t", func(context.Context, *Message) error { return nil })
	assert.ErrorIs(t, err, ErrBrokerClosed)
}
