package ws

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialTestConn spins up a websocket echo endpoint and returns the server-side
// Conn plus the client socket talking to it.
func dialTestConn(t *testing.T) (*Conn, *websocket.Conn) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	connCh := make(chan *Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sock, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conn := NewConn(sock, logger)
		connCh <- conn
		go conn.WritePump()
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	conn := <-connCh
	t.Cleanup(conn.Close)
	return conn, client
}

func TestConn_SendReachesPeer(t *testing.T) {
	conn, client := dialTestConn(t)

	require.NoError(t, conn.Send([]byte(`{"type":"status"}`)))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"status"}`, string(data))
}

func TestConn_SendAfterCloseReturnsErrPeerGone(t *testing.T) {
	conn, _ := dialTestConn(t)

	conn.Close()
	assert.ErrorIs(t, conn.Send([]byte("late")), ErrPeerGone)
}

func TestConn_ReadLoopDeliversFramesUntilClose(t *testing.T) {
	conn, client := dialTestConn(t)

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	go func() {
		conn.ReadLoop(func(data []byte) {
			mu.Lock()
			got = append(got, string(data))
			mu.Unlock()
		})
		close(done)
	}()

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("one")))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("two")))
	require.NoError(t, client.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not exit after close")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	conn, _ := dialTestConn(t)
	conn.Close()
	conn.Close()
}
