package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"credit-core.io/creditcore/internal/pkg/logger"
)

// Start starts the background services: the River workers, the queue
// bridge, and the pub/sub subscriber feeding the WebSocket hub.
func (a *Application) Start(ctx context.Context) error {
	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Start(ctx); err != nil {
			return fmt.Errorf("start river client: %w", err)
		}
		logger.Info("River client started, jobs will now be consumed")
	}

	if err := a.Pools.SubmitDetached("general", a.Bridge.Run); err != nil {
		return fmt.Errorf("start queue bridge: %w", err)
	}
	if err := a.Pools.SubmitDetached("broadcast", a.subscriber.Run); err != nil {
		return fmt.Errorf("start pub/sub subscriber: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down all application components.
func (a *Application) Shutdown() {
	shutdownCtx := context.Background()

	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop river client", zap.Error(err))
		}
		logger.Info("River client stopped")
	}

	if a.Pools != nil {
		a.Pools.Shutdown()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
