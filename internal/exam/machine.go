// Package exam implements the lifecycle state machine. Every transition
// is applied through the Session Store's compare-and-swap update with an
// expected-status guard, so two racing professor commands on the same
// exam resolve to exactly one applied transition.
package exam

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"examhub/internal/timer"
	"examhub/pkg/interfaces"
	"examhub/pkg/types"
)

// Machine validates and applies lifecycle transitions, writing through
// the timer arithmetic and the Session Store.
type Machine struct {
	store   interfaces.SessionStore
	catalog interfaces.CatalogReader
	now     func() time.Time
}

// NewMachine creates a state machine over the given store and catalog.
func NewMachine(store interfaces.SessionStore, catalog interfaces.CatalogReader) *Machine {
	return &Machine{store: store, catalog: catalog, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// Start creates the session and begins the countdown. Valid only from
// the derived waiting_start state: no record yet and the scheduled start
// has passed. Requires at least one task in the catalog.
func (m *Machine) Start(ctx context.Context, examID string, duration time.Duration) (*types.DerivedState, error) {
	now := m.now()

	if _, err := m.store.GetSession(ctx, examID); err == nil {
		return nil, types.ErrInvalidTransition
	} else if !errors.Is(err, types.ErrSessionNotFound) {
		return nil, storeFailure(err)
	}

	sched, err := m.catalog.ScheduledStart(ctx, examID)
	if err != nil {
		return nil, storeFailure(err)
	}
	if now.Before(sched) {
		// wait_room: the exam is not open for starting yet.
		return nil, types.ErrInvalidTransition
	}

	if err := m.requireTasks(ctx, examID); err != nil {
		return nil, err
	}

	sess := &types.ExamSession{ExamID: examID}
	timer.Begin(sess, now, duration)

	if err := m.store.CreateSession(ctx, sess); err != nil {
		if errors.Is(err, types.ErrSessionExists) {
			// Lost the create race to a concurrent start.
			return nil, types.ErrInvalidTransition
		}
		return nil, storeFailure(err)
	}

	m.touchLastChange(ctx, examID, now)
	return m.derive(sess, now), nil
}

// Pause freezes the countdown of an active session. An active session
// whose timer already ran out completes instead, exactly as any other
// read would have completed it.
func (m *Machine) Pause(ctx context.Context, examID string) (*types.DerivedState, error) {
	return m.transition(ctx, examID, []types.ExamStatus{types.StatusActive},
		func(s *types.ExamSession, now time.Time) error {
			if timer.Expired(s, now) {
				timer.Complete(s, now)
				return nil
			}
			timer.Pause(s, now)
			return nil
		})
}

// Resume restarts the countdown of a paused session from its frozen
// remaining time.
func (m *Machine) Resume(ctx context.Context, examID string) (*types.DerivedState, error) {
	return m.transition(ctx, examID, []types.ExamStatus{types.StatusPaused},
		func(s *types.ExamSession, now time.Time) error {
			timer.Resume(s, now)
			return nil
		})
}

// Extend adds time to an active or paused session.
func (m *Machine) Extend(ctx context.Context, examID string, extra time.Duration) (*types.DerivedState, error) {
	if extra <= 0 {
		return nil, types.ErrInvalidMinutes
	}
	return m.transition(ctx, examID,
		[]types.ExamStatus{types.StatusActive, types.StatusPaused},
		func(s *types.ExamSession, now time.Time) error {
			if timer.Expired(s, now) {
				timer.Complete(s, now)
				return nil
			}
			timer.Extend(s, now, extra)
			return nil
		})
}

// End completes the session. Irrevocable short of restart.
func (m *Machine) End(ctx context.Context, examID string) (*types.DerivedState, error) {
	return m.transition(ctx, examID,
		[]types.ExamStatus{types.StatusActive, types.StatusPaused},
		func(s *types.ExamSession, now time.Time) error {
			timer.Complete(s, now)
			return nil
		})
}

// Restart revives a completed exam under a new generation with a fresh
// timer. Violation counters are generation-scoped, so the live counts
// start over; stale client timers are invalidated by the bump.
func (m *Machine) Restart(ctx context.Context, examID string, duration time.Duration) (*types.DerivedState, error) {
	if err := m.requireTasks(ctx, examID); err != nil {
		return nil, err
	}
	return m.transition(ctx, examID, []types.ExamStatus{types.StatusCompleted},
		func(s *types.ExamSession, now time.Time) error {
			timer.Begin(s, now, duration)
			return nil
		})
}

// Withdraw irrevocably removes one student from an active session.
// Session status is unaffected for everyone else.
func (m *Machine) Withdraw(ctx context.Context, examID, studentID string) error {
	mark, err := m.store.GetStudentMark(ctx, examID, studentID)
	if err != nil {
		return storeFailure(err)
	}
	if mark == types.MarkWithdrawn {
		return types.ErrAlreadyWithdrawn
	}

	if err := m.requireActive(ctx, examID); err != nil {
		return err
	}

	if err := m.store.SetStudentMark(ctx, examID, studentID, types.MarkWithdrawn); err != nil {
		return storeFailure(err)
	}
	m.touchLastChange(ctx, examID, m.now())
	return nil
}

// Submit records one student's final submission. Idempotent: repeat
// submits succeed without effect. A withdrawn student cannot submit.
func (m *Machine) Submit(ctx context.Context, examID, studentID string) error {
	mark, err := m.store.GetStudentMark(ctx, examID, studentID)
	if err != nil {
		return storeFailure(err)
	}
	switch mark {
	case types.MarkWithdrawn:
		return types.ErrAlreadyWithdrawn
	case types.MarkSubmitted:
		return nil
	}

	if err := m.requireActive(ctx, examID); err != nil {
		return err
	}

	if err := m.store.SetStudentMark(ctx, examID, studentID, types.MarkSubmitted); err != nil {
		return storeFailure(err)
	}
	m.touchLastChange(ctx, examID, m.now())
	return nil
}

// MarkStarted records a student's first join of an active session. Marks
// already holding a terminal value are left alone.
func (m *Machine) MarkStarted(ctx context.Context, examID, studentID string) error {
	mark, err := m.store.GetStudentMark(ctx, examID, studentID)
	if err != nil {
		return storeFailure(err)
	}
	if mark != "" {
		return nil
	}
	return storeFailureOrNil(m.store.SetStudentMark(ctx, examID, studentID, types.MarkStarted))
}

// StudentMark exposes the per-student marker for state queries.
func (m *Machine) StudentMark(ctx context.Context, examID, studentID string) (string, error) {
	mark, err := m.store.GetStudentMark(ctx, examID, studentID)
	if err != nil {
		return "", storeFailure(err)
	}
	return mark, nil
}

// DerivedState reads the session and derives status plus remaining time.
// With no record the state is wait_room before the scheduled start and
// waiting_start after it. An active session whose timer ran out is
// transitioned to completed as a side effect of this read; the caller
// broadcasts that exactly like an explicit end (JustCompleted).
func (m *Machine) DerivedState(ctx context.Context, examID string) (*types.DerivedState, error) {
	now := m.now()

	sess, err := m.store.GetSession(ctx, examID)
	if errors.Is(err, types.ErrSessionNotFound) {
		return m.deriveUnstarted(ctx, examID, now)
	}
	if err != nil {
		return nil, storeFailure(err)
	}

	if !timer.Expired(sess, now) {
		return m.derive(sess, now), nil
	}

	// Lazy completion. If the CAS loses, some other reader or an explicit
	// end got there first; either way the record is now authoritative.
	updated, err := m.store.UpdateSession(ctx, examID,
		[]types.ExamStatus{types.StatusActive},
		func(s *types.ExamSession) error {
			timer.Complete(s, now)
			return nil
		})
	if err != nil {
		if errors.Is(err, types.ErrStatusConflict) {
			if sess, err = m.store.GetSession(ctx, examID); err != nil {
				return nil, storeFailure(err)
			}
			return m.derive(sess, now), nil
		}
		return nil, storeFailure(err)
	}

	m.touchLastChange(ctx, examID, now)
	ds := m.derive(updated, now)
	ds.JustCompleted = true
	return ds, nil
}

// CheckGeneration rejects commands that reference a generation older
// than the session's current one, e.g. after a restart.
func (m *Machine) CheckGeneration(ctx context.Context, examID string, generation uint64) error {
	if generation == 0 {
		return nil
	}

	sess, err := m.store.GetSession(ctx, examID)
	if errors.Is(err, types.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return storeFailure(err)
	}
	if generation < sess.Generation {
		return types.ErrStaleGeneration
	}
	return nil
}

// transition applies one guarded lifecycle step: the expect list is the
// From column of the transition table, and a guard miss surfaces as an
// invalid-transition rejection for the issuer only.
func (m *Machine) transition(
	ctx context.Context, examID string, expect []types.ExamStatus,
	mutate func(*types.ExamSession, time.Time) error,
) (*types.DerivedState, error) {
	now := m.now()

	updated, err := m.store.UpdateSession(ctx, examID, expect,
		func(s *types.ExamSession) error {
			return mutate(s, now)
		})
	if err != nil {
		if errors.Is(err, types.ErrStatusConflict) || errors.Is(err, types.ErrSessionNotFound) {
			return nil, types.ErrInvalidTransition
		}
		return nil, storeFailure(err)
	}

	m.touchLastChange(ctx, examID, now)
	return m.derive(updated, now), nil
}

func (m *Machine) requireTasks(ctx context.Context, examID string) error {
	count, err := m.catalog.TaskCount(ctx, examID)
	if err != nil {
		return storeFailure(err)
	}
	if count <= 0 {
		return types.ErrNoTasks
	}
	return nil
}

func (m *Machine) requireActive(ctx context.Context, examID string) error {
	sess, err := m.store.GetSession(ctx, examID)
	if errors.Is(err, types.ErrSessionNotFound) {
		return types.ErrInvalidTransition
	}
	if err != nil {
		return storeFailure(err)
	}
	if sess.Status != types.StatusActive {
		return types.ErrInvalidTransition
	}
	return nil
}

func (m *Machine) deriveUnstarted(ctx context.Context, examID string, now time.Time) (*types.DerivedState, error) {
	sched, err := m.catalog.ScheduledStart(ctx, examID)
	if err != nil {
		return nil, storeFailure(err)
	}

	status := types.StatusWaitingStart
	if now.Before(sched) {
		status = types.StatusWaitRoom
	}
	return &types.DerivedState{ExamID: examID, Status: status}, nil
}

func (m *Machine) derive(sess *types.ExamSession, now time.Time) *types.DerivedState {
	return &types.DerivedState{
		ExamID:      sess.ExamID,
		Status:      sess.Status,
		RemainingMs: timer.RemainingMs(sess, now),
		Generation:  sess.Generation,
	}
}

// touchLastChange is advisory: the catch-up protocol tolerates a missed
// touch (the client simply skips one redundant refresh), so a failure is
// logged and never fails the command.
func (m *Machine) touchLastChange(ctx context.Context, examID string, now time.Time) {
	if err := m.store.SetLastChange(ctx, examID, now); err != nil {
		log.WithFields(log.Fields{"exam": examID}).
			Warnf("failed to record last change: %v", err)
	}
}

// storeFailure classifies unexpected store errors as the transient
// store-unavailable failure; domain sentinels pass through untouched.
func storeFailure(err error) error {
	switch {
	case errors.Is(err, types.ErrSessionNotFound),
		errors.Is(err, types.ErrSessionExists),
		errors.Is(err, types.ErrStatusConflict),
		errors.Is(err, types.ErrStaleGeneration):
		return err
	default:
		return fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}
}

func storeFailureOrNil(err error) error {
	if err == nil {
		return nil
	}
	return storeFailure(err)
}
