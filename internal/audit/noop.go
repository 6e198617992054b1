package audit

import (
	"context"

	"examhub/pkg/interfaces"
	"examhub/pkg/types"
)

// NoopSink discards every record; used in tests and deployments that
// disable local audit logging.
type NoopSink struct{}

// NewNoopSink creates a sink that accepts and drops everything.
func NewNoopSink() *NoopSink { return &NoopSink{} }

func (*NoopSink) RecordViolation(context.Context, *types.ViolationRecord) error { return nil }
func (*NoopSink) RecordLifecycle(context.Context, *types.LifecycleRecord) error { return nil }
func (*NoopSink) Close() error                                                  { return nil }

var _ interfaces.AuditSink = (*NoopSink)(nil)
