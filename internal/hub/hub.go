// Package hub routes inbound client commands to the lifecycle machine,
// the violation aggregator, and the catch-up service, and fans resulting
// events out through the room manager. A single dispatch goroutine
// consumes the command channel, so command handling itself needs no
// locking; the periodic timer-sync loop runs beside it.
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"examhub/internal/catchup"
	"examhub/internal/exam"
	"examhub/internal/room"
	"examhub/internal/violation"
	"examhub/internal/websocket"
	"examhub/pkg/interfaces"
	"examhub/pkg/types"
)

const (
	defaultCommandBuffer     = 1000
	defaultTimerSyncInterval = 15 * time.Second
	commandTimeout           = 10 * time.Second
	auditWriteTimeout        = 10 * time.Second
)

type envelope struct {
	cmd  *types.Command
	conn *websocket.Connection
}

// Hub is the command router. It implements websocket.CommandSink.
type Hub struct {
	machine    *exam.Machine
	rooms      *room.Manager
	violations *violation.Aggregator
	catchup    *catchup.Service
	audit      interfaces.AuditSink

	commandCh    chan envelope
	syncInterval time.Duration

	mu       sync.RWMutex
	running  bool
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// Options tunes hub behavior; zero values select the defaults.
type Options struct {
	CommandBuffer     int
	TimerSyncInterval time.Duration
}

// NewHub wires the hub over its collaborators.
func NewHub(
	machine *exam.Machine, rooms *room.Manager,
	violations *violation.Aggregator, catchupSvc *catchup.Service,
	audit interfaces.AuditSink, opts Options,
) *Hub {
	if opts.CommandBuffer <= 0 {
		opts.CommandBuffer = defaultCommandBuffer
	}
	if opts.TimerSyncInterval <= 0 {
		opts.TimerSyncInterval = defaultTimerSyncInterval
	}

	return &Hub{
		machine:      machine,
		rooms:        rooms,
		violations:   violations,
		catchup:      catchupSvc,
		audit:        audit,
		commandCh:    make(chan envelope, opts.CommandBuffer),
		syncInterval: opts.TimerSyncInterval,
	}
}

// Start launches the dispatch and timer-sync loops.
func (h *Hub) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdown = make(chan struct{})

	h.wg.Add(2)
	go h.dispatchLoop()
	go h.syncLoop()

	log.Info("hub started")
	return nil
}

// Stop halts both loops and waits for them to drain.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	h.mu.Unlock()

	h.wg.Wait()
	log.Info("hub stopped")
	return nil
}

// Submit queues one validated command. Non-blocking: a full channel is
// reported back to the caller rather than stalling the read pump.
func (h *Hub) Submit(cmd *types.Command, conn *websocket.Connection) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.running {
		return ErrHubNotRunning
	}

	select {
	case h.commandCh <- envelope{cmd: cmd, conn: conn}:
		return nil
	default:
		log.WithFields(log.Fields{"command": cmd.Type, "exam": cmd.ExamID}).
			Warn("command channel full, rejecting")
		return ErrCommandChannelFull
	}
}

// Disconnect removes the connection from its room, if any.
func (h *Hub) Disconnect(conn *websocket.Connection) {
	h.rooms.Leave(conn)
}

func (h *Hub) dispatchLoop() {
	defer h.wg.Done()

	for {
		select {
		case env := <-h.commandCh:
			h.dispatch(env.cmd, env.conn)
		case <-h.shutdown:
			return
		}
	}
}

func (h *Hub) dispatch(cmd *types.Command, conn *websocket.Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	log.WithFields(log.Fields{
		"command": cmd.Type,
		"exam":    cmd.ExamID,
		"user":    conn.GetUserID(),
		"role":    conn.GetRole(),
	}).Debug("dispatching command")

	if types.IsProfessorCommand(cmd.Type) {
		if conn.GetRole() != types.RoleProfessor {
			h.reject(conn, cmd, ErrRoleNotAllowed)
			return
		}
		h.handleLifecycle(ctx, cmd, conn)
		return
	}

	switch cmd.Type {
	case types.CmdJoinExam:
		h.handleJoin(ctx, cmd, conn)
	case types.CmdLeave:
		h.rooms.Leave(conn)
	case types.CmdWithdraw:
		h.handleStudentMark(ctx, cmd, conn, types.MarkWithdrawn)
	case types.CmdSubmit:
		h.handleStudentMark(ctx, cmd, conn, types.MarkSubmitted)
	case types.CmdViolation:
		h.handleViolation(ctx, cmd, conn)
	case types.CmdSnapshot:
		h.handleSnapshot(ctx, cmd, conn)
	case types.CmdTimerSync:
		h.handleTimerSync(ctx, cmd, conn)
	default:
		h.reject(conn, cmd, ErrUnknownCommand)
	}
}

// handleLifecycle applies a professor transition and broadcasts the
// resulting state to the whole room. Failures go back to the issuer
// only; the room never sees a rejected command.
func (h *Hub) handleLifecycle(ctx context.Context, cmd *types.Command, conn *websocket.Connection) {
	var (
		ds  *types.DerivedState
		err error
	)

	switch cmd.Type {
	case types.CmdStart:
		ds, err = h.machine.Start(ctx, cmd.ExamID, minutes(cmd.DurationMinutes))
	case types.CmdPause:
		ds, err = h.machine.Pause(ctx, cmd.ExamID)
	case types.CmdResume:
		ds, err = h.machine.Resume(ctx, cmd.ExamID)
	case types.CmdExtend:
		ds, err = h.machine.Extend(ctx, cmd.ExamID, minutes(cmd.ExtraMinutes))
	case types.CmdEnd:
		ds, err = h.machine.End(ctx, cmd.ExamID)
	case types.CmdRestart:
		ds, err = h.machine.Restart(ctx, cmd.ExamID, minutes(cmd.DurationMinutes))
	default:
		err = ErrUnknownCommand
	}

	if err != nil {
		if errors.Is(err, types.ErrNoTasks) {
			// Targeted start failure, never broadcast. The session record,
			// if any, is untouched.
			h.send(conn, types.NewStartErrorEvent(cmd.ExamID, err.Error()))
			return
		}
		h.reject(conn, cmd, err)
		return
	}

	h.rooms.Broadcast(cmd.ExamID, types.NewExamStateEvent(ds))
	go h.recordLifecycle(cmd, ds, conn.GetUserID())
}

// handleJoin subscribes the connection to the exam room and hands it an
// immediate state snapshot so it is never stale on arrival. A student
// joining an active exam gets the started marker on first join.
func (h *Hub) handleJoin(ctx context.Context, cmd *types.Command, conn *websocket.Connection) {
	ds, err := h.machine.DerivedState(ctx, cmd.ExamID)
	if err != nil {
		h.reject(conn, cmd, err)
		return
	}

	h.rooms.Join(cmd.ExamID, conn)

	if conn.GetRole() == types.RoleStudent && ds.Status == types.StatusActive {
		if err := h.machine.MarkStarted(ctx, cmd.ExamID, conn.GetUserID()); err != nil {
			log.WithFields(log.Fields{"exam": cmd.ExamID, "user": conn.GetUserID()}).
				Warnf("failed to mark student started: %v", err)
		}
	}

	h.send(conn, types.NewExamStateEvent(ds))
	if ds.JustCompleted {
		h.rooms.Broadcast(cmd.ExamID, types.NewExamStateEvent(ds))
	}
}

// handleStudentMark applies withdraw or submit and tells the monitoring
// professors about the student's new terminal state.
func (h *Hub) handleStudentMark(ctx context.Context, cmd *types.Command, conn *websocket.Connection, mark string) {
	if err := h.machine.CheckGeneration(ctx, cmd.ExamID, cmd.Generation); err != nil {
		h.reject(conn, cmd, err)
		return
	}

	var err error
	switch mark {
	case types.MarkWithdrawn:
		err = h.machine.Withdraw(ctx, cmd.ExamID, conn.GetUserID())
	case types.MarkSubmitted:
		err = h.machine.Submit(ctx, cmd.ExamID, conn.GetUserID())
	}
	if err != nil {
		h.reject(conn, cmd, err)
		return
	}

	h.rooms.BroadcastProfessors(cmd.ExamID, &types.StudentStatusEvent{
		Type:      types.EventStudentStatus,
		ExamID:    cmd.ExamID,
		StudentID: conn.GetUserID(),
		Status:    mark,
	})
}

// handleViolation reports a proctoring event. Deliberately silent toward
// the reporting client: acknowledging or rejecting would tell the
// proctored client whether its reports are landing.
func (h *Hub) handleViolation(ctx context.Context, cmd *types.Command, conn *websocket.Connection) {
	ds, err := h.machine.DerivedState(ctx, cmd.ExamID)
	if err != nil {
		log.WithFields(log.Fields{"exam": cmd.ExamID, "user": conn.GetUserID()}).
			Warnf("violation dropped, state unavailable: %v", err)
		return
	}
	if ds.JustCompleted {
		h.rooms.Broadcast(cmd.ExamID, types.NewExamStateEvent(ds))
	}
	if ds.Status != types.StatusActive {
		// Violations outside an active session carry no signal.
		return
	}

	if err := h.violations.Report(ctx, cmd.ExamID, ds.Generation,
		conn.GetUserID(), conn.GetEmail(), cmd.ViolationType); err != nil {
		log.WithFields(log.Fields{"exam": cmd.ExamID, "user": conn.GetUserID()}).
			Warnf("violation report failed: %v", err)
	}
}

func (h *Hub) handleSnapshot(ctx context.Context, cmd *types.Command, conn *websocket.Connection) {
	snap, err := h.catchup.Snapshot(ctx, cmd.ExamID)
	if err != nil {
		h.reject(conn, cmd, err)
		return
	}
	h.send(conn, snap)
}

func (h *Hub) handleTimerSync(ctx context.Context, cmd *types.Command, conn *websocket.Connection) {
	if err := h.machine.CheckGeneration(ctx, cmd.ExamID, cmd.Generation); err != nil {
		h.reject(conn, cmd, err)
		return
	}

	ds, err := h.machine.DerivedState(ctx, cmd.ExamID)
	if err != nil {
		h.reject(conn, cmd, err)
		return
	}
	if ds.JustCompleted {
		h.rooms.Broadcast(cmd.ExamID, types.NewExamStateEvent(ds))
		return
	}
	h.send(conn, types.NewTimerSyncEvent(cmd.ExamID, ds.RemainingMs))
}

// syncLoop periodically rebroadcasts authoritative remaining time to
// every room with listeners. One ticker covers all exams; per-exam
// timer goroutines would add nothing the derived read does not.
func (h *Hub) syncLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.syncRooms()
		case <-h.shutdown:
			return
		}
	}
}

func (h *Hub) syncRooms() {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	for _, examID := range h.rooms.ActiveExamIDs() {
		ds, err := h.machine.DerivedState(ctx, examID)
		if err != nil {
			log.WithFields(log.Fields{"exam": examID}).
				Warnf("timer sync read failed: %v", err)
			continue
		}

		switch {
		case ds.JustCompleted:
			// Expiry detected by the periodic read broadcasts exactly like
			// an explicit end.
			h.rooms.Broadcast(examID, types.NewExamStateEvent(ds))
		case ds.Status == types.StatusActive:
			h.rooms.Broadcast(examID, types.NewTimerSyncEvent(examID, ds.RemainingMs))
		}
	}
}

func (h *Hub) recordLifecycle(cmd *types.Command, ds *types.DerivedState, issuedBy string) {
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()

	rec := &types.LifecycleRecord{
		ID:         uuid.New().String(),
		ExamID:     ds.ExamID,
		Command:    cmd.Type,
		Status:     ds.Status,
		Generation: ds.Generation,
		IssuedBy:   issuedBy,
		Timestamp:  time.Now(),
	}
	if err := h.audit.RecordLifecycle(ctx, rec); err != nil {
		log.WithFields(log.Fields{"exam": ds.ExamID, "command": cmd.Type}).
			Warnf("audit write failed: %v", err)
	}
}

func (h *Hub) reject(conn *websocket.Connection, cmd *types.Command, err error) {
	h.send(conn, types.NewCommandRejectedEvent(cmd.ExamID, cmd.Type, err.Error()))
}

func (h *Hub) send(conn *websocket.Connection, event interface{}) {
	if err := conn.WriteJSON(event); err != nil {
		log.WithFields(log.Fields{"user": conn.GetUserID()}).
			Warnf("targeted send failed: %v", err)
	}
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
