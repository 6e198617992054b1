package types

import "time"

// Outbound event types pushed to room members.
const (
	EventExamState       = "exam_state"
	EventTimerSync       = "timer_sync"
	EventViolationAlert  = "violation_alert"
	EventStartError      = "exam_start_error"
	EventChangesSnapshot = "changes_snapshot"
	EventCommandRejected = "command_rejected"
	EventStudentStatus   = "student_status"
)

// ExamStateEvent is broadcast to the whole room on every transition and
// sent to a single connection on join so a fresh client is never stale.
type ExamStateEvent struct {
	Type        string     `json:"type"`
	ExamID      string     `json:"exam_id"`
	Status      ExamStatus `json:"status"`
	RemainingMs int64      `json:"remaining_ms"`
	Generation  uint64     `json:"generation"`
}

// NewExamStateEvent builds the broadcast payload for a derived state.
func NewExamStateEvent(ds *DerivedState) *ExamStateEvent {
	return &ExamStateEvent{
		Type:        EventExamState,
		ExamID:      ds.ExamID,
		Status:      ds.Status,
		RemainingMs: ds.RemainingMs,
		Generation:  ds.Generation,
	}
}

// TimerSyncEvent corrects client-side clock drift without implying a
// state change.
type TimerSyncEvent struct {
	Type        string `json:"type"`
	ExamID      string `json:"exam_id"`
	RemainingMs int64  `json:"remaining_ms"`
}

// NewTimerSyncEvent builds a drift-correction payload.
func NewTimerSyncEvent(examID string, remainingMs int64) *TimerSyncEvent {
	return &TimerSyncEvent{Type: EventTimerSync, ExamID: examID, RemainingMs: remainingMs}
}

// ViolationAlertEvent is pushed to every professor in the exam's room
// for each discrete proctoring event.
type ViolationAlertEvent struct {
	Type          string    `json:"type"`
	ID            string    `json:"id"`
	ExamID        string    `json:"exam_id"`
	StudentID     string    `json:"student_id"`
	Email         string    `json:"email"`
	ViolationType string    `json:"violation_type"`
	Count         int64     `json:"count"`
	Timestamp     time.Time `json:"timestamp"`
}

// StartErrorEvent is targeted at the issuing professor only, never
// broadcast.
type StartErrorEvent struct {
	Type   string `json:"type"`
	ExamID string `json:"exam_id"`
	Reason string `json:"reason"`
}

// NewStartErrorEvent builds a targeted start rejection.
func NewStartErrorEvent(examID, reason string) *StartErrorEvent {
	return &StartErrorEvent{Type: EventStartError, ExamID: examID, Reason: reason}
}

// ChangesSnapshotEvent answers request_changes_snapshot with the
// timestamp of the most recent state-affecting write; the client decides
// whether to refetch full state.
type ChangesSnapshotEvent struct {
	Type       string    `json:"type"`
	ExamID     string    `json:"exam_id"`
	LastChange time.Time `json:"last_change"`
}

// CommandRejectedEvent carries the specific rejection reason back to the
// issuing connection only.
type CommandRejectedEvent struct {
	Type    string `json:"type"`
	ExamID  string `json:"exam_id"`
	Command string `json:"command"`
	Reason  string `json:"reason"`
}

// NewCommandRejectedEvent builds a targeted rejection payload.
func NewCommandRejectedEvent(examID, command, reason string) *CommandRejectedEvent {
	return &CommandRejectedEvent{Type: EventCommandRejected, ExamID: examID, Command: command, Reason: reason}
}

// StudentStatusEvent informs monitoring professors that a student
// reached a per-student terminal state (withdrawn, submitted).
type StudentStatusEvent struct {
	Type      string `json:"type"`
	ExamID    string `json:"exam_id"`
	StudentID string `json:"student_id"`
	Status    string `json:"status"`
}
