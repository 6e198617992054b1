package catchup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	inmemorystore "examhub/internal/store/inmemory"
	"examhub/pkg/types"
)

func TestSnapshotReturnsZeroBeforeAnyChange(t *testing.T) {
	svc := NewService(inmemorystore.NewStore(time.Hour))

	snap, err := svc.Snapshot(context.Background(), "cs101")
	require.NoError(t, err)
	require.Equal(t, types.EventChangesSnapshot, snap.Type)
	require.Equal(t, "cs101", snap.ExamID)
	require.True(t, snap.LastChange.IsZero())
}

func TestSnapshotReflectsLatestWrite(t *testing.T) {
	store := inmemorystore.NewStore(time.Hour)
	svc := NewService(store)
	ctx := context.Background()

	first := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetLastChange(ctx, "cs101", first))

	snap, err := svc.Snapshot(ctx, "cs101")
	require.NoError(t, err)
	require.Equal(t, first, snap.LastChange)

	second := first.Add(10 * time.Minute)
	require.NoError(t, store.SetLastChange(ctx, "cs101", second))

	snap, err = svc.Snapshot(ctx, "cs101")
	require.NoError(t, err)
	require.Equal(t, second, snap.LastChange)
}
