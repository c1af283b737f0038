// Package pubsub carries application updates over a Redis channel.
//
// Every process publishes updates it produces and subscribes to the channel
// to feed its local WebSocket sessions, so an update reaches clients no
// matter which process performed the transition.
package pubsub

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"credit-core.io/creditcore/internal/domain"
	"credit-core.io/creditcore/internal/pkg/logger"
	"credit-core.io/creditcore/internal/pkg/metrics"
)

// Publisher emits application updates. Publishing is best-effort and
// advisory: a pub/sub outage is logged, counted, and never blocks or fails
// the state transition that produced the update.
type Publisher struct {
	client  redis.UniversalClient
	channel string
	metrics *metrics.Metrics
}

// NewPublisher creates a publisher on channel. metrics may be nil.
func NewPublisher(client redis.UniversalClient, channel string, m *metrics.Metrics) *Publisher {
	return &Publisher{client: client, channel: channel, metrics: m}
}

// PublishUpdate broadcasts an application_update message.
func (p *Publisher) PublishUpdate(ctx context.Context, app *domain.Application) {
	message := domain.NewUpdateMessage(app)
	payload, err := message.Encode()
	if err != nil {
		logger.Error("Failed to encode update message",
			zap.String("application_id", app.ID.String()),
			zap.Error(err),
		)
		p.count("encode_error")
		return
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		logger.Warn("Failed to publish application update",
			zap.String("application_id", app.ID.String()),
			zap.String("channel", p.channel),
			zap.Error(err),
		)
		p.count("failure")
		return
	}

	logger.Debug("Application update published",
		zap.String("application_id", app.ID.String()),
		zap.String("status", string(app.Status)),
	)
	p.count("success")
}

func (p *Publisher) count(status string) {
	if p.metrics != nil {
		p.metrics.BroadcastsTotal.WithLabelValues(status).Inc()
	}
}
