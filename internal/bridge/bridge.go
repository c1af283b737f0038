// Package bridge moves pending_jobs rows into the work queue.
//
// The enqueue database trigger writes pending_jobs; this bridge is the only
// consumer of the pending state. Because the queue push and the
// pending → enqueued update commit in one transaction, a crash between them
// leaves the row pending and visible to the next tick: at-least-once, with
// the worker's lock and idempotent status checks absorbing duplicates.
package bridge

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"credit-core.io/creditcore/internal/jobs"
	"credit-core.io/creditcore/internal/pkg/logger"
	"credit-core.io/creditcore/internal/pkg/metrics"
	"credit-core.io/creditcore/internal/repository"
)

// Bridge drains pending_jobs into the work queue on a fixed cadence.
type Bridge struct {
	pool        *pgxpool.Pool
	riverClient *river.Client[pgx.Tx]
	repos       *repository.Repositories
	metrics     *metrics.Metrics

	interval  time.Duration
	batchSize int
}

// New creates a bridge. metrics may be nil.
func New(
	pool *pgxpool.Pool,
	riverClient *river.Client[pgx.Tx],
	repos *repository.Repositories,
	m *metrics.Metrics,
	interval time.Duration,
	batchSize int,
) *Bridge {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Bridge{
		pool:        pool,
		riverClient: riverClient,
		repos:       repos,
		metrics:     m,
		interval:    interval,
		batchSize:   batchSize,
	}
}

// Run ticks until ctx is cancelled. An immediate first tick drains any
// backlog left by a previous process.
func (b *Bridge) Run(ctx context.Context) {
	logger.Info("Queue bridge started",
		zap.Duration("interval", b.interval),
		zap.Int("batch_size", b.batchSize),
	)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		if enqueued, err := b.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				logger.Info("Queue bridge stopping")
				return
			}
			logger.Error("Queue bridge tick failed", zap.Error(err))
		} else if enqueued > 0 {
			logger.Info("Pending jobs pushed to work queue", zap.Int("count", enqueued))
		}

		select {
		case <-ctx.Done():
			logger.Info("Queue bridge stopping")
			return
		case <-ticker.C:
		}
	}
}

// Tick processes one batch: claim pending rows with SKIP LOCKED, push each
// to the work queue, record the queue handle, and commit everything
// together. Returns the number of rows enqueued.
func (b *Bridge) Tick(ctx context.Context) (int, error) {
	enqueued := 0

	err := pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		pending, err := b.repos.PendingJobs.ClaimPendingTx(ctx, tx, b.batchSize)
		if err != nil {
			return fmt.Errorf("claim pending jobs: %w", err)
		}

		for _, job := range pending {
			args := jobs.ProcessApplicationArgs{
				ApplicationID: job.ApplicationID.String(),
				PendingJobID:  job.ID.String(),
			}
			if country, ok := job.JobArgs["country"].(string); ok {
				args.Country = country
			}
			if triggeredBy, ok := job.JobArgs["triggered_by"].(string); ok {
				args.TriggeredBy = triggeredBy
			}
			if trace, ok := job.JobArgs["trace_context"].(map[string]interface{}); ok {
				args.TraceContext = stringMap(trace)
			}

			result, err := b.riverClient.InsertTx(ctx, tx, args, nil)
			if err != nil {
				return fmt.Errorf("insert queue job for pending job %s: %w", job.ID, err)
			}

			handle := strconv.FormatInt(result.Job.ID, 10)
			if err := b.repos.PendingJobs.MarkEnqueuedTx(ctx, tx, job.ID, handle); err != nil {
				return fmt.Errorf("mark pending job %s enqueued: %w", job.ID, err)
			}
			enqueued++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if b.metrics != nil && enqueued > 0 {
		b.metrics.PendingJobsEnqueued.Add(float64(enqueued))
	}
	return enqueued, nil
}

func stringMap(raw map[string]interface{}) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
