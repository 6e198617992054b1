package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"examhub/pkg/types"
)

func newSink(t *testing.T) (*SQLiteSink, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	sink, err := NewSQLiteSink(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	return sink, path
}

func TestRecordViolationPersists(t *testing.T) {
	sink, path := newSink(t)
	ctx := context.Background()

	rec := &types.ViolationRecord{
		ID:            "v-1",
		ExamID:        "cs101",
		StudentID:     "alice",
		Email:         "alice@example.edu",
		ViolationType: "tab_switch",
		Count:         2,
		Generation:    1,
		Timestamp:     time.Now(),
	}
	require.NoError(t, sink.RecordViolation(ctx, rec))
	require.NoError(t, sink.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var examID, studentID, vtype string
	var count int64
	row := db.QueryRow(`SELECT exam_id, student_id, violation_type, count FROM violation_events WHERE id = ?`, "v-1")
	require.NoError(t, row.Scan(&examID, &studentID, &vtype, &count))
	require.Equal(t, "cs101", examID)
	require.Equal(t, "alice", studentID)
	require.Equal(t, "tab_switch", vtype)
	require.Equal(t, int64(2), count)
}

func TestRecordLifecyclePersists(t *testing.T) {
	sink, path := newSink(t)
	ctx := context.Background()

	rec := &types.LifecycleRecord{
		ID:         "l-1",
		ExamID:     "cs101",
		Command:    types.CmdStart,
		Status:     types.StatusActive,
		Generation: 1,
		IssuedBy:   "prof1",
		Timestamp:  time.Now(),
	}
	require.NoError(t, sink.RecordLifecycle(ctx, rec))
	require.NoError(t, sink.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var command, issuedBy string
	row := db.QueryRow(`SELECT command, issued_by FROM lifecycle_events WHERE id = ?`, "l-1")
	require.NoError(t, row.Scan(&command, &issuedBy))
	require.Equal(t, types.CmdStart, command)
	require.Equal(t, "prof1", issuedBy)
}

func TestWritesAfterCloseRejected(t *testing.T) {
	sink, _ := newSink(t)
	require.NoError(t, sink.Close())

	err := sink.RecordViolation(context.Background(), &types.ViolationRecord{ID: "v-2"})
	require.ErrorIs(t, err, ErrSinkClosed)
}

func TestCloseIsIdempotent(t *testing.T) {
	sink, _ := newSink(t)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
}

func TestReopenSeesExistingSchema(t *testing.T) {
	sink, path := newSink(t)
	require.NoError(t, sink.RecordViolation(context.Background(), &types.ViolationRecord{
		ID: "v-3", ExamID: "cs101", StudentID: "bob", ViolationType: "copy_paste",
		Count: 1, Generation: 1, Timestamp: time.Now(),
	}))
	require.NoError(t, sink.Close())

	reopened, err := NewSQLiteSink(path)
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, reopened.RecordViolation(context.Background(), &types.ViolationRecord{
		ID: "v-4", ExamID: "cs101", StudentID: "bob", ViolationType: "copy_paste",
		Count: 2, Generation: 1, Timestamp: time.Now(),
	}))
}
