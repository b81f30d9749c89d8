// Package ws carries frames over gorilla/websocket connections. Each
// connection owns a reader goroutine and a serialized writer goroutine; all
// sends funnel through a bounded channel so concurrent callers never
// interleave writes on the socket.
package ws

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 1 << 20
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBuffer     = 256
)

// ErrPeerGone is returned by Send once the connection is closed or its send
// buffer is saturated; callers treat it as "peer unreachable".
var ErrPeerGone = errors.New("peer connection gone")

// Conn wraps one live websocket. It satisfies domain.LivePeer.
type Conn struct {
	sock   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	closer sync.Once
	logger *slog.Logger
}

func NewConn(sock *websocket.Conn, logger *slog.Logger) *Conn {
	return &Conn{
		sock:   sock,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Send queues one frame for delivery. It never blocks: if the connection is
// closed or the writer has fallen too far behind, the frame is dropped and
// ErrPeerGone returned.
func (c *Conn) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrPeerGone
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrPeerGone
	default:
		return ErrPeerGone
	}
}

// Close stops the writer and closes the socket. Safe to call multiple times
// and from any goroutine.
func (c *Conn) Close() {
	c.closer.Do(func() {
		close(c.done)
		c.sock.Close()
	})
}

// WritePump drains the send channel onto the socket, enforcing write
// deadlines and keeping the connection alive with pings. It runs until Close
// or a write failure.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("Websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// ReadLoop reads frames until the transport closes, handing each payload to
// handle. Read deadlines are refreshed on every pong.
func (c *Conn) ReadLoop(handle func(data []byte)) {
	defer c.Close()

	c.sock.SetReadLimit(maxMessageSize)
	c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		c.sock.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("Websocket read failed", "error", err)
			}
			return
		}
		handle(data)
	}
}
