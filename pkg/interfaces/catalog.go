package interfaces

import (
	"context"
	"time"
)

// CatalogReader is the read-only contract consumed from the external
// catalog store: enough to evaluate the "tasks exist" start guard and to
// derive wait_room vs waiting_start from the scheduled start time.
type CatalogReader interface {
	TaskCount(ctx context.Context, examID string) (int, error)
	ScheduledStart(ctx context.Context, examID string) (time.Time, error)
}
