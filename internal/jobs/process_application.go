// Package jobs contains the River workers for the processing pipeline.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"credit-core.io/creditcore/internal/domain"
	"credit-core.io/creditcore/internal/lock"
	apperrors "credit-core.io/creditcore/internal/pkg/errors"
	"credit-core.io/creditcore/internal/pkg/logger"
	"credit-core.io/creditcore/internal/pkg/metrics"
	"credit-core.io/creditcore/internal/provider"
	"credit-core.io/creditcore/internal/pubsub"
	"credit-core.io/creditcore/internal/repository"
	"credit-core.io/creditcore/internal/strategy"
)

// ProcessApplicationArgs carries one process_credit_application task from
// the queue bridge to the worker pool.
type ProcessApplicationArgs struct {
	ApplicationID string `json:"application_id"`
	PendingJobID  string `json:"pending_job_id"`
	Country       string `json:"country"`
	TriggeredBy   string `json:"triggered_by,omitempty"`

	// TraceContext propagates the caller's trace identifiers when present
	// in the pending job metadata.
	TraceContext map[string]string `json:"trace_context,omitempty"`
}

// Kind returns the job kind identifier.
func (ProcessApplicationArgs) Kind() string { return domain.TaskProcessCreditApplication }

// InsertOpts returns default insert options for processing jobs.
func (ProcessApplicationArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 3,
	}
}

// ProcessApplicationWorker advances one application through the pipeline:
//
//  1. Acquire the per-application lock; abandon if another worker holds it
//  2. Short-circuit if the application is already past VALIDATING
//  3. PENDING → VALIDATING, broadcast
//  4. Validate the identity document; failure rejects the application
//  5. Fetch banking data through the breaker-wrapped gateway
//  6. Evaluate the country rules; map the recommendation to the new status
//  7. Persist results atomically, broadcast, finish the pending job
type ProcessApplicationWorker struct {
	river.WorkerDefaults[ProcessApplicationArgs]

	repos      *repository.Repositories
	locks      *lock.Service
	strategies *strategy.Registry
	providers  map[domain.CountryCode]provider.BankingProvider
	gateway    *provider.Gateway
	publisher  *pubsub.Publisher
	metrics    *metrics.Metrics

	taskTimeout time.Duration
	maxAttempts int
}

// NewProcessApplicationWorker wires the worker's collaborators.
func NewProcessApplicationWorker(
	repos *repository.Repositories,
	locks *lock.Service,
	strategies *strategy.Registry,
	providers map[domain.CountryCode]provider.BankingProvider,
	gateway *provider.Gateway,
	publisher *pubsub.Publisher,
	m *metrics.Metrics,
	taskTimeout time.Duration,
	maxAttempts int,
) *ProcessApplicationWorker {
	if taskTimeout <= 0 {
		taskTimeout = 5 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &ProcessApplicationWorker{
		repos:       repos,
		locks:       locks,
		strategies:  strategies,
		providers:   providers,
		gateway:     gateway,
		publisher:   publisher,
		metrics:     m,
		taskTimeout: taskTimeout,
		maxAttempts: maxAttempts,
	}
}

// Timeout bounds the whole task to the configured ceiling (default 5m).
func (w *ProcessApplicationWorker) Timeout(*river.Job[ProcessApplicationArgs]) time.Duration {
	return w.taskTimeout
}

// Work executes one processing task.
func (w *ProcessApplicationWorker) Work(ctx context.Context, job *river.Job[ProcessApplicationArgs]) error {
	start := time.Now()
	log := logger.With(
		zap.String("application_id", job.Args.ApplicationID),
		zap.String("pending_job_id", job.Args.PendingJobID),
		zap.Int("attempt", job.Attempt),
	)
	if tp, ok := job.Args.TraceContext["traceparent"]; ok {
		log = log.With(zap.String("traceparent", tp))
	}
	log.Info("Processing credit application")

	err := w.process(ctx, job, log)

	status := "success"
	if err != nil {
		status = "failure"
	}
	if w.metrics != nil {
		w.metrics.WorkerTasksTotal.WithLabelValues(domain.TaskProcessCreditApplication, status).Inc()
		w.metrics.WorkerTaskDuration.WithLabelValues(domain.TaskProcessCreditApplication).
			Observe(time.Since(start).Seconds())
	}
	return err
}

func (w *ProcessApplicationWorker) process(ctx context.Context, job *river.Job[ProcessApplicationArgs], log *zap.Logger) error {
	pendingJobID := w.parsePendingJobID(job.Args.PendingJobID)

	applicationID, err := uuid.Parse(job.Args.ApplicationID)
	if err != nil {
		return w.fail(ctx, job, pendingJobID,
			apperrors.Permanent(apperrors.KindInvalidApplicationID,
				"invalid application id %q", job.Args.ApplicationID))
	}

	if pendingJobID != nil {
		if err := w.repos.PendingJobs.MarkProcessing(ctx, *pendingJobID); err != nil {
			log.Warn("Failed to mark pending job processing", zap.Error(err))
		}
	}

	// Step 1: single-flight lock. Losing the race is not an error; another
	// worker is already advancing this application.
	lease, err := w.locks.Acquire(ctx, lock.ApplicationKey(job.Args.ApplicationID))
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			log.Info("Application locked by another worker, skipping")
			if pendingJobID != nil {
				_ = w.repos.PendingJobs.MarkCompleted(ctx, *pendingJobID, "skipped (already processing)")
			}
			return nil
		}
		return w.fail(ctx, job, pendingJobID,
			apperrors.Transient(apperrors.KindConnection, err, "acquire application lock"))
	}
	defer func() {
		// Release on every exit path; the context may already be cancelled.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := w.locks.Release(releaseCtx, lease); err != nil {
			log.Warn("Failed to release application lock", zap.Error(err))
		}
	}()

	err = w.advance(ctx, applicationID, pendingJobID, log)
	if err == nil {
		return nil
	}

	// Shutdown or deadline: leave the pending job observable for the
	// orphan sweep or immediate retry rather than dead-lettering it.
	if ctx.Err() != nil {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if pendingJobID != nil {
			_ = w.repos.PendingJobs.MarkPendingForRetry(cleanupCtx, *pendingJobID)
		}
		log.Warn("Task cancelled, pending job released for retry", zap.Error(ctx.Err()))
		return ctx.Err()
	}

	return w.fail(ctx, job, pendingJobID, err)
}

// advance runs the pipeline body under the held lock.
func (w *ProcessApplicationWorker) advance(ctx context.Context, applicationID uuid.UUID, pendingJobID *uuid.UUID, log *zap.Logger) error {
	app, err := w.repos.Applications.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.Permanent(apperrors.KindApplicationNotFound,
				"application %s not found", applicationID)
		}
		return err
	}

	// Step 2: at-least-once safety. A duplicate delivery for an application
	// that is already decided completes without touching it.
	if domain.IsTerminal(app.Status) || app.Status == domain.StatusUnderReview {
		log.Info("Application already processed, skipping",
			zap.String("status", string(app.Status)),
		)
		if pendingJobID != nil {
			_ = w.repos.PendingJobs.MarkCompleted(ctx, *pendingJobID,
				fmt.Sprintf("skipped (already %s)", app.Status))
		}
		return nil
	}

	// Step 3: PENDING → VALIDATING.
	app, err = w.repos.Applications.Transition(ctx, repository.TransitionParams{
		ApplicationID: applicationID,
		To:            domain.StatusValidating,
		ChangedBy:     "system",
		ChangeReason:  "processing started",
	})
	if err != nil {
		return err
	}
	w.publisher.PublishUpdate(ctx, app)

	countryStrategy, err := w.strategies.ForCountry(app.Country)
	if err != nil {
		// The country became unsupported between insert and pickup: park the
		// application for a human instead of leaving it VALIDATING forever.
		parked, parkErr := w.repos.Applications.Transition(ctx, repository.TransitionParams{
			ApplicationID:    applicationID,
			To:               domain.StatusUnderReview,
			ChangedBy:        "system",
			ChangeReason:     "country no longer supported",
			ValidationErrors: []string{fmt.Sprintf("country %q is not supported", app.Country)},
		})
		if parkErr == nil {
			w.publisher.PublishUpdate(ctx, parked)
		}
		return err
	}

	fullName, document, err := w.repos.Applications.DecryptPII(app)
	if err != nil {
		return apperrors.Permanent(apperrors.KindValidation, "decrypt PII: %v", err)
	}

	// Step 4: document validation. A bad document is a business rejection,
	// not a task failure.
	validation := countryStrategy.ValidateDocument(document)
	if !validation.Valid {
		app, err = w.repos.Applications.Transition(ctx, repository.TransitionParams{
			ApplicationID:    applicationID,
			To:               domain.StatusRejected,
			ChangedBy:        "system",
			ChangeReason:     "document validation failed",
			ValidationErrors: validation.Errors,
		})
		if err != nil {
			return err
		}
		w.publisher.PublishUpdate(ctx, app)
		if pendingJobID != nil {
			_ = w.repos.PendingJobs.MarkCompleted(ctx, *pendingJobID, "")
		}
		log.Info("Application rejected on document validation")
		return nil
	}

	// Step 5: banking data via the circuit breaker. Fallback data flows
	// through; only closed-circuit failures surface here for retry.
	prov, ok := w.providers[app.Country]
	if !ok {
		return apperrors.Permanent(apperrors.KindUnsupportedCountry,
			"no banking provider registered for %q", app.Country)
	}
	banking, err := w.gateway.Fetch(ctx, app.Country, prov, document, fullName)
	if err != nil {
		return err
	}

	// Step 6: evaluate. Fallback-derived results never auto-approve.
	assessment := countryStrategy.Evaluate(strategy.EvaluationInput{
		RequestedAmount:     app.RequestedAmount,
		MonthlyIncome:       app.MonthlyIncome,
		Banking:             banking,
		CountrySpecificData: app.CountrySpecificData,
	})
	recommendation := assessment.Recommendation
	if banking.IsFallback() && recommendation == domain.RecommendationApprove {
		recommendation = domain.RecommendationReview
	}
	newStatus := domain.MapRecommendation(recommendation)

	// Step 7: persist the decision atomically with the transition.
	riskScore := assessment.RiskScore
	riskLevel := assessment.RiskLevel
	app, err = w.repos.Applications.Transition(ctx, repository.TransitionParams{
		ApplicationID:    applicationID,
		To:               newStatus,
		ChangedBy:        "system",
		ChangeReason:     "automated evaluation",
		RiskScore:        &riskScore,
		BankingData:      banking.ToDocument(),
		ValidationErrors: assessment.Reasons,
		RiskLevel:        &riskLevel,
	})
	if err != nil {
		return err
	}
	w.publisher.PublishUpdate(ctx, app)

	if pendingJobID != nil {
		if err := w.repos.PendingJobs.MarkCompleted(ctx, *pendingJobID, ""); err != nil {
			log.Warn("Failed to mark pending job completed", zap.Error(err))
		}
	}

	log.Info("Application processing completed",
		zap.String("status", string(newStatus)),
		zap.String("risk_score", riskScore.StringFixed(2)),
	)
	return nil
}

// fail classifies err, records the dead letter when terminal, and tells
// River whether to retry.
func (w *ProcessApplicationWorker) fail(ctx context.Context, job *river.Job[ProcessApplicationArgs], pendingJobID *uuid.UUID, err error) error {
	proc := apperrors.ClassifyProcessing(err)
	retryable := proc.Kind.IsRetryable()
	lastAttempt := job.Attempt >= job.MaxAttempts

	logger.Error("Application processing failed",
		zap.String("application_id", job.Args.ApplicationID),
		zap.String("error_kind", string(proc.Kind)),
		zap.Bool("retryable", retryable),
		zap.Int("attempt", job.Attempt),
		zap.Error(err),
	)

	if retryable && !lastAttempt {
		// Leave the pending job in processing; River retries with backoff.
		return err
	}

	// Permanent failure or retries exhausted: dead-letter with full context.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	insert := repository.InsertParams{
		JobID:        strconv.FormatInt(job.ID, 10),
		TaskName:     domain.TaskProcessCreditApplication,
		JobArgs:      map[string]interface{}{"application_id": job.Args.ApplicationID, "country": job.Args.Country},
		ErrorType:    string(proc.Kind),
		ErrorMessage: proc.Message,
		RetryCount:   job.Attempt - 1,
		MaxRetries:   job.MaxAttempts,
		IsRetryable:  retryable,
		PendingJobID: pendingJobID,
	}
	if proc.Err != nil {
		insert.ErrorTraceback = proc.Err.Error()
	}
	if len(job.Args.TraceContext) > 0 {
		insert.JobKwargs = map[string]interface{}{"trace_context": job.Args.TraceContext}
	}
	if !retryable {
		insert.RetryCount = 0
	}

	if _, dlqErr := w.repos.FailedJobs.Insert(writeCtx, insert); dlqErr != nil {
		logger.Error("Failed to write dead letter record",
			zap.String("application_id", job.Args.ApplicationID),
			zap.Error(dlqErr),
		)
	}
	if pendingJobID != nil {
		_ = w.repos.PendingJobs.MarkFailed(writeCtx, *pendingJobID, proc.Error())
	}

	if !retryable {
		return river.JobCancel(proc)
	}
	return proc
}

func (w *ProcessApplicationWorker) parsePendingJobID(raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
