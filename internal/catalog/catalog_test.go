package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUnknownExamDefaults(t *testing.T) {
	c := NewStatic()
	ctx := context.Background()

	count, err := c.TaskCount(ctx, "missing")
	require.NoError(t, err)
	require.Zero(t, count)

	sched, err := c.ScheduledStart(ctx, "missing")
	require.NoError(t, err)
	require.True(t, sched.IsZero())
}

func TestSetExam(t *testing.T) {
	c := NewStatic()
	sched := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	c.SetExam("cs101", ExamInfo{TaskCount: 7, ScheduledStart: sched})

	count, err := c.TaskCount(context.Background(), "cs101")
	require.NoError(t, err)
	require.Equal(t, 7, count)

	got, err := c.ScheduledStart(context.Background(), "cs101")
	require.NoError(t, err)
	require.Equal(t, sched, got)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	fixture := `{
		"cs101": {"task_count": 5, "scheduled_start": "2025-03-10T09:00:00Z"},
		"cs201": {"task_count": 3}
	}`
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)

	count, err := c.TaskCount(context.Background(), "cs101")
	require.NoError(t, err)
	require.Equal(t, 5, count)

	sched, err := c.ScheduledStart(context.Background(), "cs201")
	require.NoError(t, err)
	require.True(t, sched.IsZero())
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	_, err = LoadFile(path)
	require.Error(t, err)
}
