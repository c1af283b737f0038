package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"credit-core.io/creditcore/internal/domain"
	"credit-core.io/creditcore/internal/pkg/logger"
)

// Handler consumes one decoded update message.
type Handler func(message domain.UpdateMessage)

// Subscriber bridges the Redis channel to the local WebSocket hub. It runs
// as one long-lived task per process and reconnects with exponential
// backoff on connection loss.
type Subscriber struct {
	client  redis.UniversalClient
	channel string
	handler Handler
}

// NewSubscriber creates a subscriber delivering messages to handler.
func NewSubscriber(client redis.UniversalClient, channel string, handler Handler) *Subscriber {
	return &Subscriber{client: client, channel: channel, handler: handler}
}

// Reconnect backoff bounds.
const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Run consumes the channel until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) {
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			logger.Info("Pub/sub subscriber stopping")
			return
		}

		if err := s.consume(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("Pub/sub subscriber connection lost, will retry",
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		// Clean exit resets the backoff before the next attempt.
		backoff = initialBackoff
	}
}

// consume subscribes and dispatches until the connection drops or ctx ends.
func (s *Subscriber) consume(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	logger.Info("Subscribed to update channel", zap.String("channel", s.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return redis.ErrClosed
			}
			s.dispatch(msg.Payload)
		}
	}
}

func (s *Subscriber) dispatch(payload string) {
	var message domain.UpdateMessage
	if err := json.Unmarshal([]byte(payload), &message); err != nil {
		logger.Error("Failed to decode pub/sub message",
			zap.String("payload", payload),
			zap.Error(err),
		)
		return
	}
	s.handler(message)
}
