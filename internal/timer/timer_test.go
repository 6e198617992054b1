package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"examhub/pkg/types"
)

func TestBeginSetsActiveCountdown(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s := &types.ExamSession{ExamID: "midterm"}

	Begin(s, now, 60*time.Minute)

	require.Equal(t, types.StatusActive, s.Status)
	require.Equal(t, now.Add(60*time.Minute), s.EndTime)
	require.Equal(t, int64(3600), s.DurationSeconds)
	require.Equal(t, uint64(1), s.Generation)
	require.Equal(t, int64(60*60*1000), RemainingMs(s, now))
}

func TestBeginBumpsGeneration(t *testing.T) {
	now := time.Now()
	s := &types.ExamSession{ExamID: "midterm"}

	Begin(s, now, time.Hour)
	Complete(s, now.Add(time.Hour))
	Begin(s, now.Add(2*time.Hour), time.Hour)

	require.Equal(t, uint64(2), s.Generation)
}

func TestPauseResumePreservesRemaining(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s := &types.ExamSession{ExamID: "midterm"}
	Begin(s, start, 60*time.Minute)

	// 20 minutes in, pause for 15: remaining must be untouched.
	pauseAt := start.Add(20 * time.Minute)
	Pause(s, pauseAt)
	require.Equal(t, types.StatusPaused, s.Status)
	require.Equal(t, int64(40*60*1000), s.RemainingMs)
	require.True(t, s.EndTime.IsZero())

	// Remaining is frozen no matter how long the pause lasts.
	require.Equal(t, int64(40*60*1000), RemainingMs(s, pauseAt.Add(15*time.Minute)))

	resumeAt := pauseAt.Add(15 * time.Minute)
	Resume(s, resumeAt)
	require.Equal(t, types.StatusActive, s.Status)
	require.Equal(t, int64(40*60*1000), RemainingMs(s, resumeAt))
	require.Equal(t, resumeAt.Add(40*time.Minute), s.EndTime)
}

func TestExtendWhileActive(t *testing.T) {
	start := time.Now()
	s := &types.ExamSession{ExamID: "midterm"}
	Begin(s, start, 60*time.Minute)

	at := start.Add(30 * time.Minute)
	before := RemainingMs(s, at)
	Extend(s, at, 10*time.Minute)

	require.Equal(t, before+600000, RemainingMs(s, at))
	require.Equal(t, int64(70*60), s.DurationSeconds)
}

func TestExtendWhilePaused(t *testing.T) {
	start := time.Now()
	s := &types.ExamSession{ExamID: "midterm"}
	Begin(s, start, 60*time.Minute)
	Pause(s, start.Add(20*time.Minute))

	Extend(s, start.Add(25*time.Minute), 10*time.Minute)

	require.Equal(t, int64(50*60*1000), s.RemainingMs)
	require.Equal(t, int64(70*60), s.DurationSeconds)
}

func TestFullLifecycleScenario(t *testing.T) {
	// 60-minute exam: pause at 20, resume at 35, extend by 10 at 50.
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s := &types.ExamSession{ExamID: "final"}

	Begin(s, start, 60*time.Minute)
	Pause(s, start.Add(20*time.Minute))
	Resume(s, start.Add(35*time.Minute))
	Extend(s, start.Add(50*time.Minute), 10*time.Minute)

	// At wall-clock 50 minutes the student has worked 35; 25 remain of
	// the original 40 plus the 10-minute extension.
	require.Equal(t, int64(35*60*1000), RemainingMs(s, start.Add(50*time.Minute)))
	require.Equal(t, int64(70*60), s.DurationSeconds)
}

func TestRemainingNeverNegative(t *testing.T) {
	start := time.Now()
	s := &types.ExamSession{ExamID: "midterm"}
	Begin(s, start, time.Minute)

	require.Equal(t, int64(0), RemainingMs(s, start.Add(time.Hour)))
	require.True(t, Expired(s, start.Add(time.Hour)))
	require.False(t, Expired(s, start.Add(30*time.Second)))
}

func TestCompletedDerivesZero(t *testing.T) {
	start := time.Now()
	s := &types.ExamSession{ExamID: "midterm"}
	Begin(s, start, time.Hour)
	Complete(s, start.Add(10*time.Minute))

	require.Equal(t, types.StatusCompleted, s.Status)
	require.Equal(t, int64(0), RemainingMs(s, start.Add(10*time.Minute)))
	require.False(t, Expired(s, start.Add(2*time.Hour)))
}
