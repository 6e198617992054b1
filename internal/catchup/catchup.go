// Package catchup answers the "what did I miss" query from clients that
// just (re)connected. Rather than replaying missed events, the reply
// carries the timestamp of the most recent state-affecting write; the
// client refetches full state through the read API only when that is
// newer than its last successful refresh.
package catchup

import (
	"context"
	"fmt"

	"examhub/pkg/interfaces"
	"examhub/pkg/types"
)

// Service serves snapshot queries from the Session Store.
type Service struct {
	store interfaces.SessionStore
}

// NewService creates the catch-up service.
func NewService(store interfaces.SessionStore) *Service {
	return &Service{store: store}
}

// Snapshot returns the last-change event for an exam. A zero LastChange
// means no state-affecting write has happened yet.
func (s *Service) Snapshot(ctx context.Context, examID string) (*types.ChangesSnapshotEvent, error) {
	t, err := s.store.LastChange(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
	}

	return &types.ChangesSnapshotEvent{
		Type:       types.EventChangesSnapshot,
		ExamID:     examID,
		LastChange: t,
	}, nil
}
