// Package inmemorystore implements the Session Store for single-process
// deployments and tests. Semantics mirror the redis implementation:
// per-record expiry, create-if-absent, and an expected-status guard on
// every update.
package inmemorystore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"examhub/pkg/interfaces"
	"examhub/pkg/types"
)

type entry struct {
	session *types.ExamSession
	expires time.Time
}

type store struct {
	mu         sync.RWMutex
	ttl        time.Duration
	sessions   map[string]*entry
	marks      map[string]map[string]string // examID -> studentID -> mark
	violations map[string]map[string]int64  // examID:gen -> studentID -> count
	lastChange map[string]time.Time
	closed     bool
}

// NewStore builds an empty store; ttl bounds the lifetime of every
// session record the same way redis key expiry does.
func NewStore(ttl time.Duration) interfaces.SessionStore {
	return &store{
		ttl:        ttl,
		sessions:   make(map[string]*entry),
		marks:      make(map[string]map[string]string),
		violations: make(map[string]map[string]int64),
		lastChange: make(map[string]time.Time),
	}
}

func violationsKey(examID string, generation uint64) string {
	return fmt.Sprintf("%s:%d", examID, generation)
}

func (s *store) GetSession(_ context.Context, examID string) (*types.ExamSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[examID]
	if !ok || time.Now().After(e.expires) {
		return nil, types.ErrSessionNotFound
	}

	// Copy out so callers never mutate the stored record directly.
	sess := *e.session
	return &sess, nil
}

func (s *store) CreateSession(_ context.Context, session *types.ExamSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[session.ExamID]; ok && time.Now().Before(e.expires) {
		return types.ErrSessionExists
	}

	sess := *session
	s.sessions[session.ExamID] = &entry{session: &sess, expires: time.Now().Add(s.ttl)}
	return nil
}

func (s *store) UpdateSession(
	_ context.Context, examID string, expect []types.ExamStatus,
	mutate func(*types.ExamSession) error,
) (*types.ExamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[examID]
	if !ok || time.Now().After(e.expires) {
		return nil, types.ErrSessionNotFound
	}
	if !statusIn(e.session.Status, expect) {
		return nil, types.ErrStatusConflict
	}

	sess := *e.session
	if err := mutate(&sess); err != nil {
		return nil, err
	}

	s.sessions[examID] = &entry{session: &sess, expires: time.Now().Add(s.ttl)}
	out := sess
	return &out, nil
}

func (s *store) SetStudentMark(_ context.Context, examID, studentID, mark string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.marks[examID] == nil {
		s.marks[examID] = make(map[string]string)
	}
	s.marks[examID][studentID] = mark
	return nil
}

func (s *store) GetStudentMark(_ context.Context, examID, studentID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.marks[examID][studentID], nil
}

func (s *store) IncrViolations(
	_ context.Context, examID string, generation uint64, studentID string,
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := violationsKey(examID, generation)
	if s.violations[key] == nil {
		s.violations[key] = make(map[string]int64)
	}
	s.violations[key][studentID]++
	return s.violations[key][studentID], nil
}

func (s *store) GetViolations(
	_ context.Context, examID string, generation uint64, studentID string,
) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.violations[violationsKey(examID, generation)][studentID], nil
}

func (s *store) SetLastChange(_ context.Context, examID string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastChange[examID] = t
	return nil
}

func (s *store) LastChange(_ context.Context, examID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastChange[examID], nil
}

func (s *store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.ErrStoreUnavailable
	}
	return nil
}

func (s *store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func statusIn(status types.ExamStatus, expect []types.ExamStatus) bool {
	for _, e := range expect {
		if status == e {
			return true
		}
	}
	return false
}
