package types

import (
	"time"
)

// ExamStatus is the lifecycle state of an exam session.
type ExamStatus string

const (
	// StatusWaitRoom and StatusWaitingStart are derived, never stored:
	// with no session record the status is wait_room before the scheduled
	// start and waiting_start after it.
	StatusWaitRoom     ExamStatus = "wait_room"
	StatusWaitingStart ExamStatus = "waiting_start"
	StatusActive       ExamStatus = "active"
	StatusPaused       ExamStatus = "paused"
	StatusCompleted    ExamStatus = "completed"
)

// Per-student marks. Withdrawn is terminal for that student regardless
// of session status.
const (
	MarkStarted   = "started"
	MarkWithdrawn = "withdrawn"
	MarkSubmitted = "submitted"
)

// Connection roles.
const (
	RoleStudent   = "student"
	RoleProfessor = "professor"
)

// Inbound command types.
const (
	CmdStart     = "start"
	CmdPause     = "pause"
	CmdResume    = "resume"
	CmdExtend    = "extend"
	CmdEnd       = "end"
	CmdRestart   = "restart"
	CmdJoinExam  = "join_exam"
	CmdLeave     = "leave_exam"
	CmdWithdraw  = "withdraw"
	CmdSubmit    = "submit"
	CmdViolation = "violation"
	CmdSnapshot  = "request_changes_snapshot"
	CmdTimerSync = "timer_sync"
)

// ExamSession is the shared session record, one per exam, owned by the
// Session Store. Exactly one of EndTime (active) or RemainingMs (paused)
// is valid at any time, determined by Status.
type ExamSession struct {
	ExamID          string     `json:"exam_id"`
	Status          ExamStatus `json:"status"`
	ActualStartTime time.Time  `json:"actual_start_time"`
	EndTime         time.Time  `json:"end_time"`
	RemainingMs     int64      `json:"remaining_ms"`
	DurationSeconds int64      `json:"duration_seconds"`
	Generation      uint64     `json:"generation"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DerivedState is a point-in-time view of a session: stored status plus
// remaining time computed from the stored timestamps. JustCompleted is
// set when the read itself detected an expired timer and transitioned
// the session to completed.
type DerivedState struct {
	ExamID        string     `json:"exam_id"`
	Status        ExamStatus `json:"status"`
	RemainingMs   int64      `json:"remaining_ms"`
	Generation    uint64     `json:"generation"`
	JustCompleted bool       `json:"-"`
}

// Command is an inbound client command addressed by exam identifier.
type Command struct {
	Type            string `json:"type"`
	ExamID          string `json:"exam_id"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	ExtraMinutes    int    `json:"extra_minutes,omitempty"`
	ViolationType   string `json:"violation_type,omitempty"`
	// Generation, when non-zero on a student command, is checked against
	// the current session generation so a client holding a timer from
	// before a restart is told to resync.
	Generation uint64 `json:"generation,omitempty"`
}

// ViolationRecord is the durable form of a proctoring event handed to
// the audit sink.
type ViolationRecord struct {
	ID            string    `json:"id"`
	ExamID        string    `json:"exam_id"`
	StudentID     string    `json:"student_id"`
	Email         string    `json:"email"`
	ViolationType string    `json:"violation_type"`
	Count         int64     `json:"count"`
	Generation    uint64    `json:"generation"`
	Timestamp     time.Time `json:"timestamp"`
}

// LifecycleRecord is the durable form of a session transition handed to
// the audit sink.
type LifecycleRecord struct {
	ID         string     `json:"id"`
	ExamID     string     `json:"exam_id"`
	Command    string     `json:"command"`
	Status     ExamStatus `json:"status"`
	Generation uint64     `json:"generation"`
	IssuedBy   string     `json:"issued_by"`
	Timestamp  time.Time  `json:"timestamp"`
}
