package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/chat_service/domain"
)

// UnreadReconciler reconciles authoritative query results with locally
// observed live state before counts become externally visible.
type UnreadReconciler interface {
	ObserveAuthoritative(owner, correspondent string, count int)
	Report(owner, correspondent string) int
}

// UserHandler exposes the per-correspondent unread counts for a user.
type UserHandler struct {
	messages   domain.MessageRepository
	reconciler UnreadReconciler
	logger     *slog.Logger
}

func NewUserHandler(messages domain.MessageRepository, reconciler UnreadReconciler, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		messages:   messages,
		reconciler: reconciler,
		logger:     logger.With("handler", "user"),
	}
}

// RegisterRoutes registers user routes with the given router.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Get("/user/unread-messages/{userID}", h.handleUnreadMessages)
}

func (h *UserHandler) handleUnreadMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.jsonError(w, logger, "user id required", http.StatusBadRequest)
		return
	}

	counts, err := h.messages.UnreadByCorrespondent(ctx, userID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to query unread counts", "error", err, "owner", userID)
		h.jsonError(w, logger, "Database error", http.StatusInternalServerError)
		return
	}

	// Merge the authoritative results through the reconciler so the response
	// never regresses below what live events have already reported.
	reconciled := make([]domain.UnreadCount, 0, len(counts))
	for _, c := range counts {
		h.reconciler.ObserveAuthoritative(userID, c.FriendID, c.Count)
		reconciled = append(reconciled, domain.UnreadCount{
			FriendID: c.FriendID,
			Count:    h.reconciler.Report(userID, c.FriendID),
		})
	}
	h.writeJSON(w, http.StatusOK, reconciled)
}

func (h *UserHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	writeJSON(w, h.logger, status, body)
}

func (h *UserHandler) jsonError(w http.ResponseWriter, logger *slog.Logger, message string, status int) {
	writeJSON(w, logger, status, errorResponse{Error: message})
}
