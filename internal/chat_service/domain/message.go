package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMessageNotFound is returned when a referenced message does not exist.
	ErrMessageNotFound = errors.New("message not found")
	// ErrEmptyMessage is returned when a submission carries neither text nor media.
	ErrEmptyMessage = errors.New("empty message and no file provided")
)

// DeliveryStatus is the lifecycle stage of a message.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// rank orders statuses so that transitions can only move forward.
func (s DeliveryStatus) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is one of the known lifecycle statuses.
func (s DeliveryStatus) Valid() bool { return s.rank() > 0 }

// CanAdvanceTo reports whether moving from s to next strictly advances the
// lifecycle. Equal or backwards transitions are rejected so that "delivered"
// can never overwrite "read".
func (s DeliveryStatus) CanAdvanceTo(next DeliveryStatus) bool {
	return next.Valid() && next.rank() > s.rank()
}

// DeletedMessagePlaceholder replaces the cached reply snippet of any message
// whose reply target was deleted.
const DeletedMessagePlaceholder = "Original message deleted"

// Message is a durable chat record between two users. At most one of
// ImageURL, VideoURL and VoiceURL is set.
type Message struct {
	ID            int64          `json:"chatId"`
	Sender        string         `json:"sender"`
	Receiver      string         `json:"receiver"`
	Body          *string        `json:"message,omitempty"`
	ImageURL      *string        `json:"imageUrl,omitempty"`
	VideoURL      *string        `json:"videoUrl,omitempty"`
	VoiceURL      *string        `json:"voiceUrl,omitempty"`
	SentAt        time.Time      `json:"date"`
	Status        DeliveryStatus `json:"status"`
	ReplyTo       *int64         `json:"replyTo,omitempty"`
	ReplyBody     *string        `json:"replyMessage,omitempty"`
	ReplyImageURL *string        `json:"replyImageUrl,omitempty"`
}

// MediaURL returns the message's single attached media reference, if any.
func (m *Message) MediaURL() *string {
	switch {
	case m.ImageURL != nil:
		return m.ImageURL
	case m.VideoURL != nil:
		return m.VideoURL
	case m.VoiceURL != nil:
		return m.VoiceURL
	}
	return nil
}

// fingerprintBodyLen bounds how much of the body participates in the
// optimistic fingerprint.
const fingerprintBodyLen = 50

// Fingerprint identifies a message for deduplication. Persisted messages are
// keyed by their durable identifier; optimistic entries awaiting confirmation
// are keyed by sender, timestamp and a truncated body so a later
// server-confirmed echo of the same message collapses onto them.
func (m *Message) Fingerprint() string {
	if m.ID != 0 {
		return fmt.Sprintf("id:%d", m.ID)
	}
	body := ""
	if m.Body != nil {
		body = *m.Body
	}
	if len(body) > fingerprintBodyLen {
		body = body[:fingerprintBodyLen]
	}
	return fmt.Sprintf("tmp:%s:%d:%s", m.Sender, m.SentAt.Unix(), body)
}

// UnreadCount is the authoritative number of not-yet-read messages a
// correspondent has sent to the owner of the query.
type UnreadCount struct {
	FriendID string `json:"friendId"`
	Count    int    `json:"count"`
}

// DeliveryReceipt records one sent→delivered transition applied during
// reconnect catch-up, so the original sender can be notified.
type DeliveryReceipt struct {
	ChatID int64
	Sender string
}
