// Package timer owns the countdown arithmetic. The server never runs a
// countdown loop: it stores an absolute end time while active or a
// remaining-time snapshot while paused, and derives time left on demand.
// That avoids clock drift across processes and per-exam scheduled jobs.
package timer

import (
	"time"

	"examhub/pkg/types"
)

// Begin puts the session into active for a fresh run: used by both start
// and restart. The generation bump invalidates client timers from any
// previous run of the same exam identifier.
func Begin(s *types.ExamSession, now time.Time, duration time.Duration) {
	s.Status = types.StatusActive
	s.ActualStartTime = now
	s.EndTime = now.Add(duration)
	s.RemainingMs = 0
	s.DurationSeconds = int64(duration / time.Second)
	s.Generation++
	s.UpdatedAt = now
}

// Pause freezes the countdown: the remaining-time snapshot becomes the
// valid field and the absolute end time is cleared.
func Pause(s *types.ExamSession, now time.Time) {
	s.RemainingMs = remainingActiveMs(s, now)
	s.EndTime = time.Time{}
	s.Status = types.StatusPaused
	s.UpdatedAt = now
}

// Resume converts the frozen snapshot back into an absolute end time.
// Pause then resume with no extend between preserves remaining time.
func Resume(s *types.ExamSession, now time.Time) {
	s.EndTime = now.Add(time.Duration(s.RemainingMs) * time.Millisecond)
	s.RemainingMs = 0
	s.Status = types.StatusActive
	s.UpdatedAt = now
}

// Extend adds extra minutes to whichever timing field is valid for the
// current status: the absolute end time while active, the frozen
// snapshot while paused. Total duration grows in both cases.
func Extend(s *types.ExamSession, now time.Time, extra time.Duration) {
	switch s.Status {
	case types.StatusActive:
		s.EndTime = s.EndTime.Add(extra)
	case types.StatusPaused:
		s.RemainingMs += extra.Milliseconds()
	}
	s.DurationSeconds += int64(extra / time.Second)
	s.UpdatedAt = now
}

// Complete terminates the countdown; every subsequent read derives zero.
func Complete(s *types.ExamSession, now time.Time) {
	s.Status = types.StatusCompleted
	s.EndTime = time.Time{}
	s.RemainingMs = 0
	s.UpdatedAt = now
}

// RemainingMs derives the time left in milliseconds for any status.
// Stale reads show more elapsed time, never a negative value.
func RemainingMs(s *types.ExamSession, now time.Time) int64 {
	switch s.Status {
	case types.StatusActive:
		return remainingActiveMs(s, now)
	case types.StatusPaused:
		return s.RemainingMs
	default:
		return 0
	}
}

// Expired reports whether an active session's timer has run out; the
// caller transitions it to completed as a side effect of the read.
func Expired(s *types.ExamSession, now time.Time) bool {
	return s.Status == types.StatusActive && remainingActiveMs(s, now) <= 0
}

func remainingActiveMs(s *types.ExamSession, now time.Time) int64 {
	ms := s.EndTime.Sub(now).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
