package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"credit-core.io/creditcore/internal/domain"
	apperrors "credit-core.io/creditcore/internal/pkg/errors"
	"credit-core.io/creditcore/internal/repository"
)

// ListFailedJobs handles GET /admin/failed-jobs.
func (s *Server) ListFailedJobs(c *gin.Context) {
	jobs, err := s.failedJobs.List(c.Request.Context(), intQuery(c, "limit", 20), intQuery(c, "offset", 0))
	if err != nil {
		_ = c.Error(err)
		return
	}

	items := make([]gin.H, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, failedJobItem(job))
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// ReviewFailedJob handles POST /admin/failed-jobs/:id/review, marking a
// dead letter reviewed or ignored.
func (s *Server) ReviewFailedJob(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.UnprocessableEntity(apperrors.CodeValidationFailed, err.Error()))
		return
	}

	status := domain.FailedJobStatus(req.Status)
	if status != domain.FailedJobReviewed && status != domain.FailedJobIgnored {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeValidationFailed,
			"status must be reviewed or ignored"))
		return
	}

	if err := s.failedJobs.UpdateStatus(c.Request.Context(), id, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = c.Error(apperrors.NotFound(apperrors.CodeFailedJobNotFound, "failed job not found"))
			return
		}
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "failed job updated", "status": string(status)})
}

// RetryFailedJob handles POST /admin/failed-jobs/:id/retry: writes a fresh
// pending_jobs row so the queue bridge re-dispatches the task, then marks
// the dead letter retried.
func (s *Server) RetryFailedJob(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	job, err := s.failedJobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = c.Error(apperrors.NotFound(apperrors.CodeFailedJobNotFound, "failed job not found"))
			return
		}
		_ = c.Error(err)
		return
	}

	rawID, _ := job.JobArgs["application_id"].(string)
	applicationID, err := uuid.Parse(rawID)
	if err != nil {
		_ = c.Error(apperrors.UnprocessableEntity(apperrors.CodeJobNotRetryable,
			"failed job has no application id to retry"))
		return
	}

	pending, err := s.pendingJobs.Insert(ctx, applicationID, job.TaskName, map[string]interface{}{
		"application_id": applicationID.String(),
		"triggered_by":   "manual_retry",
		"original_job":   job.JobID,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := s.failedJobs.UpdateStatus(ctx, id, domain.FailedJobRetried); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "failed job re-enqueued",
		"pending_job_id": pending.ID.String(),
	})
}

func failedJobItem(job *domain.FailedJob) gin.H {
	item := gin.H{
		"id":            job.ID.String(),
		"job_id":        job.JobID,
		"task_name":     job.TaskName,
		"error_type":    job.ErrorType,
		"error_message": job.ErrorMessage,
		"retry_count":   job.RetryCount,
		"max_retries":   job.MaxRetries,
		"status":        string(job.Status),
		"is_retryable":  job.IsRetryable,
		"created_at":    job.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if job.PendingJobID != nil {
		item["pending_job_id"] = job.PendingJobID.String()
	}
	return item
}
