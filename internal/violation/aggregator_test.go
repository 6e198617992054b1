package violation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"examhub/internal/room"
	inmemorystore "examhub/internal/store/inmemory"
	"examhub/pkg/types"
)

// captureSink records handed-off violation records for assertions.
type captureSink struct {
	mu      sync.Mutex
	records []*types.ViolationRecord
}

func (c *captureSink) RecordViolation(_ context.Context, rec *types.ViolationRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return nil
}

func (c *captureSink) RecordLifecycle(context.Context, *types.LifecycleRecord) error { return nil }
func (c *captureSink) Close() error                                                 { return nil }

func (c *captureSink) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func TestReportIncrementsPerStudentCount(t *testing.T) {
	store := inmemorystore.NewStore(time.Hour)
	sink := &captureSink{}
	a := NewAggregator(store, room.NewManager(), sink, 0)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, a.Report(ctx, "cs101", 1, "alice", "alice@example.edu", "tab_switch"))

		count, err := a.Count(ctx, "cs101", 1, "alice")
		require.NoError(t, err)
		require.Equal(t, i, count)
	}

	// Another student's counter is independent.
	require.NoError(t, a.Report(ctx, "cs101", 1, "bob", "", "copy_paste"))
	count, err := a.Count(ctx, "cs101", 1, "bob")
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestReportCountsAreGenerationScoped(t *testing.T) {
	store := inmemorystore.NewStore(time.Hour)
	a := NewAggregator(store, room.NewManager(), &captureSink{}, 0)
	ctx := context.Background()

	require.NoError(t, a.Report(ctx, "cs101", 1, "alice", "", "tab_switch"))
	require.NoError(t, a.Report(ctx, "cs101", 1, "alice", "", "tab_switch"))
	require.NoError(t, a.Report(ctx, "cs101", 2, "alice", "", "tab_switch"))

	count, err := a.Count(ctx, "cs101", 2, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestReportHandsRecordToAuditSink(t *testing.T) {
	store := inmemorystore.NewStore(time.Hour)
	sink := &captureSink{}
	a := NewAggregator(store, room.NewManager(), sink, 0)

	require.NoError(t, a.Report(context.Background(), "cs101", 3, "alice", "alice@example.edu", "window_blur"))

	// The audit write is fire-and-forget off the live path.
	require.Eventually(t, func() bool { return sink.len() == 1 }, time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	rec := sink.records[0]
	sink.mu.Unlock()

	require.NotEmpty(t, rec.ID)
	require.Equal(t, "cs101", rec.ExamID)
	require.Equal(t, "alice", rec.StudentID)
	require.Equal(t, "window_blur", rec.ViolationType)
	require.Equal(t, int64(1), rec.Count)
	require.Equal(t, uint64(3), rec.Generation)
}

func TestRateLimitSuppressesAlertsNotCounting(t *testing.T) {
	store := inmemorystore.NewStore(time.Hour)
	a := NewAggregator(store, room.NewManager(), &captureSink{}, 2)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, a.Report(ctx, "cs101", 1, "alice", "", "tab_switch"))
	}

	// All five events were counted even though only two alerts could go
	// out this minute.
	count, err := a.Count(ctx, "cs101", 1, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(5), count)
}

func TestAlertLimiterWindow(t *testing.T) {
	l := newAlertLimiter(2)

	require.True(t, l.Allow("cs101/alice"))
	require.True(t, l.Allow("cs101/alice"))
	require.False(t, l.Allow("cs101/alice"))

	// Keys are independent.
	require.True(t, l.Allow("cs101/bob"))
}

func TestAlertLimiterResetsAfterWindow(t *testing.T) {
	l := newAlertLimiter(1)
	clock := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	require.True(t, l.Allow("cs101/alice"))
	require.False(t, l.Allow("cs101/alice"))

	clock = clock.Add(time.Minute)
	require.True(t, l.Allow("cs101/alice"))
}

func TestAlertLimiterPrunesStaleWindows(t *testing.T) {
	l := newAlertLimiter(1)
	clock := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	require.True(t, l.Allow("cs101/alice"))
	require.True(t, l.Allow("cs101/bob"))

	// Once their windows lapse, idle keys are dropped rather than
	// retained for the life of the process.
	clock = clock.Add(2 * time.Minute)
	require.True(t, l.Allow("cs101/carol"))

	l.mu.Lock()
	defer l.mu.Unlock()
	require.Len(t, l.windows, 1)
	require.Contains(t, l.windows, "cs101/carol")
}
