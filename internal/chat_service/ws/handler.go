package ws

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/chat_service/app"
)

// Handler upgrades HTTP requests to websocket connections and runs their
// frame loops against the hub.
type Handler struct {
	hub      *app.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler builds a websocket handler. allowedOrigin restricts upgrade
// requests by Origin header; empty allows any origin.
func NewHandler(hub *app.Hub, allowedOrigin string, logger *slog.Logger) *Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if allowedOrigin != "" {
		upgrader.CheckOrigin = func(r *http.Request) bool {
			return r.Header.Get("Origin") == allowedOrigin
		}
	} else {
		upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		hub:      hub,
		upgrader: upgrader,
		logger:   logger.With("component", "ws_handler"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	conn := NewConn(sock, h.logger)
	session := h.hub.NewSession(conn)
	ctx := r.Context()

	go conn.WritePump()

	conn.ReadLoop(func(data []byte) {
		h.hub.HandleFrame(ctx, session, data)
	})

	// Read loop exited: transport closed. The request context may already be
	// done, and the offline transition still has to persist.
	h.hub.HandleClose(context.WithoutCancel(ctx), session)
	conn.Close()
}
