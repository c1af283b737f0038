package infrastructure

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"credit-core.io/creditcore/internal/config"
	"credit-core.io/creditcore/internal/pkg/logger"
)

// NewRedisClient connects the shared Redis client used for distributed
// locks and the update pub/sub channel.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.Info("Redis client connected", zap.String("addr", cfg.Addr))
	return client, nil
}
