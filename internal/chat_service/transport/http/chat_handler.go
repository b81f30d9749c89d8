package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/chat_service/domain"
)

const maxUploadBytes = 32 << 20

// LiveNotifier is the slice of hub behavior the HTTP surface needs: pushing
// live notifications after durable state has already been written.
type LiveNotifier interface {
	MarkConversationRead(ctx context.Context, reader, sender string) []int64
	DeliverChat(ctx context.Context, msg *domain.Message)
}

// ChatHandler exposes the thin HTTP wrappers over the chat core:
// mark-a-conversation-read, fetch-messages-between and submit-a-message.
type ChatHandler struct {
	messages domain.MessageRepository
	media    domain.MediaStore
	notifier LiveNotifier
	logger   *slog.Logger
}

func NewChatHandler(messages domain.MessageRepository, media domain.MediaStore, notifier LiveNotifier, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		messages: messages,
		media:    media,
		notifier: notifier,
		logger:   logger.With("handler", "chat"),
	}
}

// RegisterRoutes registers chat routes with the given router.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/message/mark-read", h.handleMarkRead)
	r.Post("/message/chats", h.handleChats)
	r.Post("/message/store-message", h.handleStoreMessage)
}

func (h *ChatHandler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, logger, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if req.ReaderID == "" || req.SenderID == "" {
		h.jsonError(w, logger, "readerId and senderId required", http.StatusBadRequest)
		return
	}

	ids := h.notifier.MarkConversationRead(ctx, req.ReaderID, req.SenderID)
	logger.InfoContext(ctx, "Conversation marked read", "reader", req.ReaderID, "sender", req.SenderID, "count", len(ids))
	h.writeJSON(w, http.StatusOK, MarkReadResponse{Status: "success", ChatIDs: ids})
}

func (h *ChatHandler) handleChats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req ChatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, logger, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if req.User == "" || req.Friend == "" {
		h.jsonError(w, logger, "Sender or Receiver is required", http.StatusBadRequest)
		return
	}

	messages, err := h.messages.GetBetween(ctx, req.User, req.Friend)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load conversation", "error", err, "user", req.User, "friend", req.Friend)
		h.jsonError(w, logger, "Database error", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	h.writeJSON(w, http.StatusOK, messages)
}

// handleStoreMessage is the durable half of message submission: persist
// first, and only then invoke live forwarding and the unread push. A failed
// persistence reports the failure to the caller; peers are never notified of
// a message that does not durably exist.
func (h *ChatHandler) handleStoreMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.jsonError(w, logger, "Invalid multipart payload", http.StatusBadRequest)
		return
	}

	senderID := r.FormValue("senderId")
	receiverID := r.FormValue("receiverId")
	if senderID == "" || receiverID == "" {
		h.jsonError(w, logger, "senderId and receiverId required", http.StatusBadRequest)
		return
	}

	msg := &domain.Message{
		Sender:   senderID,
		Receiver: receiverID,
		SentAt:   time.Now().UTC(),
		Status:   domain.StatusSent,
	}
	if text := r.FormValue("messageText"); text != "" {
		msg.Body = &text
	}

	h.resolveReply(ctx, logger, r.FormValue("replayTo"), msg)

	hasFile, err := h.attachUpload(r, msg)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to store uploaded file", "error", err)
		h.jsonError(w, logger, "File handling failed", http.StatusInternalServerError)
		return
	}

	if msg.Body == nil && !hasFile {
		h.jsonError(w, logger, domain.ErrEmptyMessage.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.messages.Insert(ctx, msg)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to persist message", "error", err, "sender", senderID, "receiver", receiverID)
		h.jsonError(w, logger, "Failed to store message", http.StatusInternalServerError)
		return
	}
	msg.ID = id
	logger.InfoContext(ctx, "Message persisted", "chat_id", id, "sender", senderID, "receiver", receiverID)

	h.notifier.DeliverChat(ctx, msg)

	h.writeJSON(w, http.StatusOK, StoreMessageResponse{
		ChatID:       msg.ID,
		Message:      msg.Body,
		ImageURL:     msg.ImageURL,
		VideoURL:     msg.VideoURL,
		VoiceURL:     msg.VoiceURL,
		ReplyTo:      msg.ReplyTo,
		ReplyMessage: msg.ReplyBody,
		ReplyImage:   msg.ReplyImageURL,
		Status:       msg.Status,
	})
}

// resolveReply snapshots the replied message's body and image onto the new
// message. An unresolvable reply target degrades to a plain message.
func (h *ChatHandler) resolveReply(ctx context.Context, logger *slog.Logger, replyTo string, msg *domain.Message) {
	if replyTo == "" {
		return
	}
	id, err := strconv.ParseInt(replyTo, 10, 64)
	if err != nil {
		logger.WarnContext(ctx, "Ignoring non-numeric reply reference", "replay_to", replyTo)
		return
	}
	target, err := h.messages.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrMessageNotFound) {
			logger.WarnContext(ctx, "Failed to resolve reply target", "error", err, "chat_id", id)
		}
		return
	}
	msg.ReplyTo = &id
	msg.ReplyBody = target.Body
	msg.ReplyImageURL = target.ImageURL
}

// attachUpload stores an optional uploaded file and buckets its URL by MIME
// type: image, video or voice. It reports whether a file was attached.
func (h *ChatHandler) attachUpload(r *http.Request, msg *domain.Message) (bool, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return false, nil
		}
		return false, err
	}
	defer file.Close()

	url, err := h.media.Store(header.Filename, file)
	if err != nil {
		return false, err
	}

	contentType := header.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "image/"):
		msg.ImageURL = &url
	case strings.HasPrefix(contentType, "video/"):
		msg.VideoURL = &url
	case strings.HasPrefix(contentType, "audio/"):
		msg.VoiceURL = &url
	default:
		// Unrecognized attachments ride in the image bucket, as the original
		// upload path treats them.
		msg.ImageURL = &url
	}
	return true, nil
}

func (h *ChatHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	writeJSON(w, h.logger, status, body)
}

func (h *ChatHandler) jsonError(w http.ResponseWriter, logger *slog.Logger, message string, status int) {
	writeJSON(w, logger, status, errorResponse{Error: message})
}
