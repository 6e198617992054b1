// Package violation aggregates discrete proctoring signals into live
// professor alerts. The counter in the Session Store is the live
// signal; the audit sink holds the durable history. They are written
// independently, so transient disagreement under partial failure is
// tolerated, not corrected.
package violation

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"examhub/internal/room"
	"examhub/pkg/interfaces"
	"examhub/pkg/types"
)

const auditWriteTimeout = 10 * time.Second

// Aggregator counts violations per (exam, generation, student) and
// pushes one alert per event to the exam's monitoring professors.
type Aggregator struct {
	store   interfaces.SessionStore
	rooms   *room.Manager
	audit   interfaces.AuditSink
	limiter *alertLimiter
	now     func() time.Time
}

// NewAggregator wires the aggregator. alertsPerMinute caps alert
// fan-out per student; 0 disables the cap so every discrete event
// yields exactly one alert. The counter increments regardless.
func NewAggregator(
	store interfaces.SessionStore, rooms *room.Manager,
	audit interfaces.AuditSink, alertsPerMinute int,
) *Aggregator {
	var limiter *alertLimiter
	if alertsPerMinute > 0 {
		limiter = newAlertLimiter(alertsPerMinute)
	}
	return &Aggregator{store: store, rooms: rooms, audit: audit, limiter: limiter, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Report handles one proctoring event: increment the generation-scoped
// counter, alert the professors, and hand the record to the audit sink
// without blocking the live path. Errors never reach the reporting
// student.
func (a *Aggregator) Report(
	ctx context.Context, examID string, generation uint64,
	studentID, email, violationType string,
) error {
	count, err := a.store.IncrViolations(ctx, examID, generation, studentID)
	if err != nil {
		return err
	}

	now := a.now()
	rec := &types.ViolationRecord{
		ID:            uuid.New().String(),
		ExamID:        examID,
		StudentID:     studentID,
		Email:         email,
		ViolationType: violationType,
		Count:         count,
		Generation:    generation,
		Timestamp:     now,
	}

	go a.recordAudit(rec)

	if a.limiter != nil && !a.limiter.Allow(examID+"/"+studentID) {
		log.WithFields(log.Fields{"exam": examID, "student": studentID, "count": count}).
			Debug("violation alert suppressed by rate limit")
		return nil
	}

	a.rooms.BroadcastProfessors(examID, &types.ViolationAlertEvent{
		Type:          types.EventViolationAlert,
		ID:            rec.ID,
		ExamID:        examID,
		StudentID:     studentID,
		Email:         email,
		ViolationType: violationType,
		Count:         count,
		Timestamp:     now,
	})

	return nil
}

// Count exposes the live counter for the current generation.
func (a *Aggregator) Count(ctx context.Context, examID string, generation uint64, studentID string) (int64, error) {
	return a.store.GetViolations(ctx, examID, generation, studentID)
}

func (a *Aggregator) recordAudit(rec *types.ViolationRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()

	if err := a.audit.RecordViolation(ctx, rec); err != nil {
		log.WithFields(log.Fields{"exam": rec.ExamID, "student": rec.StudentID}).
			Warnf("audit write failed: %v", err)
	}
}
