package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/hemmy-platform/hemmy-authz/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeAuditRecord is the task type for writing audit trail entries.
	TaskTypeAuditRecord = "audit:record"
	// TaskTypeInvariantSweep is the task type for the periodic ledger
	// invariant check.
	TaskTypeInvariantSweep = "authz:invariant_sweep"
)

// NewAuditRecordTask constructs an Asynq task carrying one audit entry.
func NewAuditRecordTask(entry shared.AuditLog) (*asynq.Task, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditRecord, data), nil
}

// NewInvariantSweepTask constructs the parameterless sweep task.
func NewInvariantSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeInvariantSweep, nil)
}

// NewAuditRecordHandler returns the handler that persists audit entries.
func NewAuditRecordHandler(logger *shared.AuditLogger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var entry shared.AuditLog
		if err := json.Unmarshal(t.Payload(), &entry); err != nil {
			return asynq.SkipRetry
		}
		return logger.Record(ctx, entry)
	}
}
