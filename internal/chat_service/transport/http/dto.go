package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/chat_service/domain"
)

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// MarkReadRequest DTO for POST /message/mark-read.
type MarkReadRequest struct {
	ReaderID string `json:"readerId"`
	SenderID string `json:"senderId"`
}

// MarkReadResponse DTO.
type MarkReadResponse struct {
	Status  string  `json:"status"`
	ChatIDs []int64 `json:"chatIds"`
}

// ChatsRequest DTO for POST /message/chats.
type ChatsRequest struct {
	User   string `json:"user"`
	Friend string `json:"friend"`
}

// StoreMessageResponse DTO for POST /message/store-message.
type StoreMessageResponse struct {
	ChatID       int64                 `json:"chatId"`
	Message      *string               `json:"message,omitempty"`
	ImageURL     *string               `json:"imageUrl,omitempty"`
	VideoURL     *string               `json:"videoUrl,omitempty"`
	VoiceURL     *string               `json:"voiceUrl,omitempty"`
	ReplyTo      *int64                `json:"replyTo,omitempty"`
	ReplyMessage *string               `json:"replyMessage,omitempty"`
	ReplyImage   *string               `json:"replyImageUrl,omitempty"`
	Status       domain.DeliveryStatus `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}
