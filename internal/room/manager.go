// Package room maintains, per exam, the set of currently subscribed
// connections and fans events out to them. Membership is ephemeral,
// per-instance state: rooms are created on first join, discarded when
// empty, and rebuilt from explicit join commands after reconnects.
// Sessions live on in the store with no listeners.
package room

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"examhub/internal/websocket"
	"examhub/pkg/types"
)

// Manager owns the exam -> connection-set mapping, partitioned by role
// for professor-only fan-out.
type Manager struct {
	mu         sync.RWMutex
	professors map[string]map[string]*websocket.Connection // examID -> userID -> conn
	students   map[string]map[string]*websocket.Connection // examID -> userID -> conn
}

// NewManager creates an empty room manager.
func NewManager() *Manager {
	return &Manager{
		professors: make(map[string]map[string]*websocket.Connection),
		students:   make(map[string]map[string]*websocket.Connection),
	}
}

// Join adds the connection to the exam's room. Idempotent: re-joining
// refreshes membership; a second connection for the same user replaces
// the first, which is closed asynchronously to avoid holding the lock
// across a socket close.
func (m *Manager) Join(examID string, conn *websocket.Connection) {
	if conn == nil {
		return
	}
	userID := conn.GetUserID()

	m.mu.Lock()
	defer m.mu.Unlock()

	// A connection moving between exams leaves its old room first;
	// SetExamID below would otherwise orphan the old membership.
	if prev := conn.GetExamID(); prev != "" && prev != examID {
		m.removeLocked(prev, conn)
	}

	byRole := m.roleMap(conn.GetRole())
	if byRole[examID] == nil {
		byRole[examID] = make(map[string]*websocket.Connection)
	}
	if existing, ok := byRole[examID][userID]; ok && existing != conn {
		go func() {
			if err := existing.Close(); err != nil {
				log.Warnf("failed to close replaced connection for %s: %v", userID, err)
			}
		}()
	}
	byRole[examID][userID] = conn
	conn.SetExamID(examID)
}

// Leave removes the connection from its room. Idempotent, and only the
// registered connection instance is removed so an old connection's
// deferred cleanup cannot evict its replacement. Empty rooms are
// discarded.
func (m *Manager) Leave(conn *websocket.Connection) {
	if conn == nil {
		return
	}
	examID := conn.GetExamID()
	if examID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.removeLocked(examID, conn) {
		return
	}
	conn.SetExamID("")
}

// removeLocked deletes the connection from one room, instance-matched,
// discarding the room when it empties. Caller holds the lock.
func (m *Manager) removeLocked(examID string, conn *websocket.Connection) bool {
	userID := conn.GetUserID()

	byRole := m.roleMap(conn.GetRole())
	members, ok := byRole[examID]
	if !ok {
		return false
	}
	if registered, ok := members[userID]; !ok || registered != conn {
		return false
	}

	delete(members, userID)
	if len(members) == 0 {
		delete(byRole, examID)
	}
	return true
}

// Broadcast delivers event to every member of the exam's room.
// Best-effort: individual send failures are logged, never propagated —
// a member mid-reconnect catches up through the snapshot protocol.
func (m *Manager) Broadcast(examID string, event interface{}) {
	for _, conn := range m.Connections(examID) {
		if err := conn.WriteJSON(event); err != nil {
			log.WithFields(log.Fields{"exam": examID, "user": conn.GetUserID()}).
				Warnf("broadcast delivery failed: %v", err)
		}
	}
}

// BroadcastProfessors delivers event to the professor members only.
func (m *Manager) BroadcastProfessors(examID string, event interface{}) {
	for _, conn := range m.Professors(examID) {
		if err := conn.WriteJSON(event); err != nil {
			log.WithFields(log.Fields{"exam": examID, "user": conn.GetUserID()}).
				Warnf("alert delivery failed: %v", err)
		}
	}
}

// Connections returns every live member of the exam's room.
func (m *Manager) Connections(examID string) []*websocket.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var conns []*websocket.Connection
	for _, conn := range m.professors[examID] {
		conns = append(conns, conn)
	}
	for _, conn := range m.students[examID] {
		conns = append(conns, conn)
	}
	return conns
}

// ConnectionCount reports room size without materializing the slice.
func (m *Manager) ConnectionCount(examID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.professors[examID]) + len(m.students[examID])
}

// Professors returns the professor members of the exam's room.
func (m *Manager) Professors(examID string) []*websocket.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var conns []*websocket.Connection
	for _, conn := range m.professors[examID] {
		conns = append(conns, conn)
	}
	return conns
}

// ActiveExamIDs lists exams that currently have at least one member;
// the hub's timer-sync loop iterates these instead of every stored
// session.
func (m *Manager) ActiveExamIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for examID := range m.professors {
		seen[examID] = struct{}{}
	}
	for examID := range m.students {
		seen[examID] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for examID := range seen {
		ids = append(ids, examID)
	}
	return ids
}

// Stats reports membership counts for the health endpoint.
func (m *Manager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	professors, students := 0, 0
	seen := make(map[string]struct{})
	for examID, members := range m.professors {
		professors += len(members)
		seen[examID] = struct{}{}
	}
	for examID, members := range m.students {
		students += len(members)
		seen[examID] = struct{}{}
	}

	return map[string]int{
		"rooms":      len(seen),
		"professors": professors,
		"students":   students,
	}
}

func (m *Manager) roleMap(role string) map[string]map[string]*websocket.Connection {
	if role == types.RoleProfessor {
		return m.professors
	}
	return m.students
}
