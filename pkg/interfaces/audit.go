package interfaces

import (
	"context"

	"examhub/pkg/types"
)

// AuditSink accepts violation and lifecycle records for durable logging.
// Calls are fire-and-forget from the live path: a sink failure must
// never block or fail command handling. The aggregator's counter is the
// live signal; the sink is the historical one.
type AuditSink interface {
	RecordViolation(ctx context.Context, rec *types.ViolationRecord) error
	RecordLifecycle(ctx context.Context, rec *types.LifecycleRecord) error
	Close() error
}
