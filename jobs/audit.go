package jobs

import (
	"context"

	"github.com/hemmy-platform/hemmy-authz/internal/shared"
)

// AuditEnqueuer satisfies shared.AuditRecorder by pushing entries onto the
// job queue instead of writing to the database on the request path. The
// worker drains the queue into audit_logs.
type AuditEnqueuer struct {
	client *Client
}

// NewAuditEnqueuer constructs an AuditEnqueuer.
func NewAuditEnqueuer(client *Client) *AuditEnqueuer {
	return &AuditEnqueuer{client: client}
}

// Record enqueues the entry for asynchronous persistence.
func (e *AuditEnqueuer) Record(ctx context.Context, entry shared.AuditLog) error {
	if e == nil || e.client == nil {
		return nil
	}
	_, err := e.client.EnqueueAuditRecord(ctx, entry)
	return err
}

var _ shared.AuditRecorder = (*AuditEnqueuer)(nil)
