package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// socketPair dials a real WebSocket against a throwaway server and hands
// back the client side plus the server side wrapped in a Connection.
func socketPair(t *testing.T) (*websocket.Conn, *Connection) {
	t.Helper()

	upgraded := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		upgraded <- raw
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	var raw *websocket.Conn
	select {
	case raw = <-upgraded:
	case <-time.After(time.Second):
		t.Fatal("server side never upgraded")
	}

	conn := NewConnection(raw)
	t.Cleanup(func() { _ = conn.Close() })
	return client, conn
}

func TestConnectionIdentity(t *testing.T) {
	c := NewConnection(nil)
	defer c.Close()

	c.SetIdentity("alice", "student", "alice@example.edu")
	require.Equal(t, "alice", c.GetUserID())
	require.Equal(t, "student", c.GetRole())
	require.Equal(t, "alice@example.edu", c.GetEmail())

	require.Empty(t, c.GetExamID())
	c.SetExamID("cs101")
	require.Equal(t, "cs101", c.GetExamID())
}

func TestWriteAfterCloseRejected(t *testing.T) {
	c := NewConnection(nil)
	require.NoError(t, c.Close())

	require.ErrorIs(t, c.WriteJSON(map[string]string{"type": "exam_state"}), ErrConnectionClosed)

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := NewConnection(nil)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestDeadSocketFailsLaterWritesCleanly(t *testing.T) {
	client, conn := socketPair(t)

	// Kill the transport under the writer, then queue one write so the
	// writer loop observes the dead socket and exits.
	require.NoError(t, client.Close())
	require.NoError(t, conn.conn.Close())
	_ = conn.WriteJSON(map[string]string{"type": "timer_sync"})

	require.Eventually(t, func() bool {
		select {
		case <-conn.Done():
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	// Subsequent fan-out to the dead connection must surface an error,
	// never panic the broadcasting goroutine.
	require.ErrorIs(t,
		conn.WriteJSON(map[string]string{"type": "exam_state"}),
		ErrConnectionClosed)
}

func TestDeliveryOverLiveSocket(t *testing.T) {
	client, conn := socketPair(t)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "timer_sync"}))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
	var evt map[string]string
	require.NoError(t, client.ReadJSON(&evt))
	require.Equal(t, "timer_sync", evt["type"])
}

func TestWriteRejectsUnmarshalableValue(t *testing.T) {
	c := NewConnection(nil)
	defer c.Close()

	require.ErrorIs(t, c.WriteJSON(make(chan int)), ErrInvalidJSON)
}
