package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection wraps a WebSocket connection with a single writer
// goroutine so concurrent event fan-out never races on the socket.
type Connection struct {
	conn      *websocket.Conn
	writeCh   chan []byte
	userID    string
	role      string
	email     string
	examID    string // exam room currently joined, "" when none
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	mu        sync.RWMutex
}

const (
	writeBuffer  = 100
	writeTimeout = 5 * time.Second
)

// NewConnection wraps conn and starts its writer goroutine.
func NewConnection(conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:    conn,
		writeCh: make(chan []byte, writeBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the sole socket writer. It never closes writeCh: on any
// exit path it cancels the connection context instead, so a concurrent
// WriteJSON racing the loop's death fails through ctx.Done rather than
// sending on a closed channel. The channel itself is garbage-collected
// with the connection.
func (c *Connection) writeLoop() {
	defer c.cancel()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues v for delivery. Best-effort: a full buffer or closed
// connection returns an error the caller logs and moves past.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close shuts the connection down exactly once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed when the connection is shut down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// SetIdentity records the validated identity from the upgrade request.
func (c *Connection) SetIdentity(userID, role, email string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.role = role
	c.email = email
}

// SetExamID records the room this connection has joined.
func (c *Connection) SetExamID(examID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.examID = examID
}

func (c *Connection) GetUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connection) GetRole() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Connection) GetEmail() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.email
}

func (c *Connection) GetExamID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.examID
}
