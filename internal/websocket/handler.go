package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"examhub/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is the deployment proxy's job.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

const (
	readTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// CommandSink consumes parsed inbound commands; the hub implements it.
// Disconnect is invoked once per connection when its read pump exits.
type CommandSink interface {
	Submit(cmd *types.Command, conn *Connection) error
	Disconnect(conn *Connection)
}

// Handler upgrades HTTP requests and pumps inbound commands into the
// sink. Identity arrives as query parameters; a production deployment
// fronts this with the (out-of-scope) auth layer.
type Handler struct {
	sink CommandSink
}

// NewHandler creates a WebSocket handler feeding the given sink.
func NewHandler(sink CommandSink) *Handler {
	return &Handler{sink: sink}
}

// HandleWebSocket validates identity parameters, upgrades, and runs the
// connection's read pump.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	role := r.URL.Query().Get("role")
	email := r.URL.Query().Get("email")

	if !types.IsValidID(userID) {
		http.Error(w, "Invalid or missing user_id", http.StatusBadRequest)
		return
	}
	if !types.IsValidRole(role) {
		http.Error(w, "Invalid role: must be 'student' or 'professor'", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn)
	wsConn.SetIdentity(userID, role, email)

	log.WithFields(log.Fields{"user": userID, "role": role}).Info("client connected")

	go h.handleConnection(wsConn)
}

// handleConnection owns the read pump and heartbeat for one client.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.sink.Disconnect(conn)
		_ = conn.Close()
		log.WithFields(log.Fields{"user": conn.GetUserID()}).Info("client disconnected")
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(10 * time.Second)
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnf("websocket read error for %s: %v", conn.GetUserID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var cmd types.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.reject(conn, "", "", "malformed command JSON")
			continue
		}
		if err := cmd.Validate(); err != nil {
			h.reject(conn, cmd.ExamID, cmd.Type, err.Error())
			continue
		}

		if err := h.sink.Submit(&cmd, conn); err != nil {
			h.reject(conn, cmd.ExamID, cmd.Type, err.Error())
		}
	}
}

func (h *Handler) reject(conn *Connection, examID, command, reason string) {
	evt := types.NewCommandRejectedEvent(examID, command, reason)
	if err := conn.WriteJSON(evt); err != nil {
		log.Warnf("failed to send rejection to %s: %v", conn.GetUserID(), err)
	}
}
