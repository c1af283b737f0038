package jobs

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"credit-core.io/creditcore/internal/domain"
	"credit-core.io/creditcore/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

func TestProcessApplicationArgs_Kind(t *testing.T) {
	if got := (ProcessApplicationArgs{}).Kind(); got != "process_credit_application" {
		t.Errorf("Kind() = %q, want process_credit_application", got)
	}
}

func TestProcessApplicationArgs_InsertOpts(t *testing.T) {
	opts := ProcessApplicationArgs{}.InsertOpts()
	if opts.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", opts.MaxAttempts)
	}
}

func TestWorker_Timeout(t *testing.T) {
	w := NewProcessApplicationWorker(nil, nil, nil, nil, nil, nil, nil, 0, 0)
	if got := w.Timeout(nil); got != 5*time.Minute {
		t.Errorf("Timeout() = %s, want default 5m", got)
	}

	w = NewProcessApplicationWorker(nil, nil, nil, nil, nil, nil, nil, 90*time.Second, 3)
	if got := w.Timeout(nil); got != 90*time.Second {
		t.Errorf("Timeout() = %s, want configured 90s", got)
	}
}

func TestParsePendingJobID(t *testing.T) {
	w := NewProcessApplicationWorker(nil, nil, nil, nil, nil, nil, nil, 0, 0)

	if got := w.parsePendingJobID(""); got != nil {
		t.Error("empty pending job id should yield nil")
	}
	if got := w.parsePendingJobID("not-a-uuid"); got != nil {
		t.Error("malformed pending job id should yield nil")
	}

	id := uuid.New()
	got := w.parsePendingJobID(id.String())
	if got == nil || *got != id {
		t.Errorf("parsePendingJobID() = %v, want %s", got, id)
	}
}

func TestApplicationIDFromArgs(t *testing.T) {
	id := uuid.New()

	got, ok := applicationIDFromArgs(map[string]interface{}{"application_id": id.String()})
	if !ok || got != id {
		t.Errorf("applicationIDFromArgs() = %v, %v", got, ok)
	}

	if _, ok := applicationIDFromArgs(map[string]interface{}{}); ok {
		t.Error("missing application_id should not parse")
	}
	if _, ok := applicationIDFromArgs(map[string]interface{}{"application_id": 42}); ok {
		t.Error("non-string application_id should not parse")
	}
	if _, ok := applicationIDFromArgs(map[string]interface{}{"application_id": "nope"}); ok {
		t.Error("malformed application_id should not parse")
	}
}

func TestMaintenanceArgs_Kinds(t *testing.T) {
	kinds := map[string]string{
		PartitionAssuranceArgs{}.Kind():  "partition_assurance",
		WebhookCleanupArgs{}.Kind():     "webhook_events_cleanup",
		DLQRetryArgs{}.Kind():           "failed_jobs_retry",
		OrphanSweepArgs{}.Kind():        "pending_jobs_orphan_sweep",
		StalePendingCancelArgs{}.Kind(): "stale_pending_cancel",
	}
	for got, want := range kinds {
		if got != want {
			t.Errorf("Kind() = %q, want %q", got, want)
		}
	}
}

func TestWebhookRetentionMatchesPolicy(t *testing.T) {
	if domain.WebhookEventRetention != 30*24*time.Hour {
		t.Errorf("WebhookEventRetention = %s, want 30 days", domain.WebhookEventRetention)
	}
}
