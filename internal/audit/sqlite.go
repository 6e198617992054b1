// Package audit implements the audit-log sink collaborator: an
// append-only record of violations and lifecycle transitions. The live
// path treats it as fire-and-forget; a sink failure is logged, never
// propagated into command handling.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"examhub/pkg/interfaces"
	"examhub/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS violation_events (
	id             TEXT PRIMARY KEY,
	exam_id        TEXT NOT NULL,
	student_id     TEXT NOT NULL,
	email          TEXT,
	violation_type TEXT NOT NULL,
	count          INTEGER NOT NULL,
	generation     INTEGER NOT NULL,
	timestamp      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_violation_exam_student
	ON violation_events(exam_id, student_id);

CREATE TABLE IF NOT EXISTS lifecycle_events (
	id         TEXT PRIMARY KEY,
	exam_id    TEXT NOT NULL,
	command    TEXT NOT NULL,
	status     TEXT NOT NULL,
	generation INTEGER NOT NULL,
	issued_by  TEXT,
	timestamp  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lifecycle_exam
	ON lifecycle_events(exam_id);
`

// SQLiteSink appends audit records to a local sqlite database. All
// writes funnel through a single writer goroutine; sqlite tolerates
// concurrent readers but a single writer avoids lock contention.
type SQLiteSink struct {
	db       *sql.DB
	writeCh  chan writeOperation
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   bool
	mu       sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewSQLiteSink opens (or creates) the database and applies the schema.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply audit schema: %w", err)
	}

	s := &SQLiteSink{
		db:       db,
		writeCh:  make(chan writeOperation, 100),
		shutdown: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

func (s *SQLiteSink) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeCh:
			err := op.operation(s.db)
			if err != nil {
				// One retry after a short backoff covers transient
				// busy-database errors.
				time.Sleep(100 * time.Millisecond)
				err = op.operation(s.db)
			}
			op.result <- err
		case <-s.shutdown:
			// Drain queued writes before exiting.
			for {
				select {
				case op := <-s.writeCh:
					op.result <- op.operation(s.db)
				default:
					return
				}
			}
		}
	}
}

func (s *SQLiteSink) submit(ctx context.Context, operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrSinkClosed
	}
	s.mu.RUnlock()

	op := writeOperation{operation: operation, result: make(chan error, 1)}

	select {
	case s.writeCh <- op:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-op.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordViolation appends one proctoring event.
func (s *SQLiteSink) RecordViolation(ctx context.Context, rec *types.ViolationRecord) error {
	return s.submit(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO violation_events
				(id, exam_id, student_id, email, violation_type, count, generation, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.ExamID, rec.StudentID, rec.Email,
			rec.ViolationType, rec.Count, rec.Generation, rec.Timestamp.UTC())
		return err
	})
}

// RecordLifecycle appends one session transition.
func (s *SQLiteSink) RecordLifecycle(ctx context.Context, rec *types.LifecycleRecord) error {
	return s.submit(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO lifecycle_events
				(id, exam_id, command, status, generation, issued_by, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.ExamID, rec.Command, rec.Status,
			rec.Generation, rec.IssuedBy, rec.Timestamp.UTC())
		return err
	})
}

// Close drains pending writes and closes the database.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	log.Debug("audit sink closed")
	return s.db.Close()
}

var _ interfaces.AuditSink = (*SQLiteSink)(nil)
