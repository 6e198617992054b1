package interfaces

import (
	"context"
	"time"

	"examhub/pkg/types"
)

// SessionStore is the single shared mutable resource: a key-value store
// with per-key expiry holding one record set per exam session. Any
// connection handler may read it at any time; writes happen only through
// the Exam State Machine's guarded transitions.
type SessionStore interface {
	// GetSession returns the session record, or types.ErrSessionNotFound
	// when no record exists (the wait_room/waiting_start derived states).
	GetSession(ctx context.Context, examID string) (*types.ExamSession, error)

	// CreateSession writes a brand-new record and fails with
	// types.ErrSessionExists if one is already present, so two racing
	// start commands cannot both create the session. Record expiry is a
	// property of the store configuration.
	CreateSession(ctx context.Context, session *types.ExamSession) error

	// UpdateSession is the compare-and-swap primitive guarding every
	// transition: mutate runs against the current record only if its
	// status is in expect; otherwise types.ErrStatusConflict is returned
	// and nothing is written. The updated record is returned on success.
	UpdateSession(ctx context.Context, examID string, expect []types.ExamStatus, mutate func(*types.ExamSession) error) (*types.ExamSession, error)

	// SetStudentMark and GetStudentMark manage per-student markers
	// (started, withdrawn, submitted). An absent mark reads as "".
	SetStudentMark(ctx context.Context, examID, studentID, mark string) error
	GetStudentMark(ctx context.Context, examID, studentID string) (string, error)

	// IncrViolations bumps the per-(exam, generation, student) counter
	// and returns the new count. Scoping by generation makes a restart
	// reset the live count without destroying history.
	IncrViolations(ctx context.Context, examID string, generation uint64, studentID string) (int64, error)
	GetViolations(ctx context.Context, examID string, generation uint64, studentID string) (int64, error)

	// SetLastChange and LastChange track the most recent state-affecting
	// write per exam, serving the snapshot/catch-up protocol.
	SetLastChange(ctx context.Context, examID string, t time.Time) error
	LastChange(ctx context.Context, examID string) (time.Time, error)

	// Ping reports store reachability for health checks.
	Ping(ctx context.Context) error

	Close() error
}
