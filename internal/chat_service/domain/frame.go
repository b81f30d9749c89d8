package domain

import "time"

// FrameType discriminates the events exchanged over a live connection.
// The set is closed: the router dispatches exhaustively over these values and
// discards anything else.
type FrameType string

const (
	FrameIdentify         FrameType = "identify"
	FrameChat             FrameType = "chat"
	FrameTyping           FrameType = "typing"
	FrameStopTyping       FrameType = "stop-typing"
	FrameDelivered        FrameType = "delivered"
	FrameRead             FrameType = "read"
	FrameDelete           FrameType = "delete"
	FrameFriendListUpdate FrameType = "friend-list-update"

	// Server→client only.
	FrameStatus            FrameType = "status"
	FrameUnreadCountUpdate FrameType = "unread-count-update"
)

// Known reports whether t is part of the wire vocabulary.
func (t FrameType) Known() bool {
	switch t {
	case FrameIdentify, FrameChat, FrameTyping, FrameStopTyping,
		FrameDelivered, FrameRead, FrameDelete, FrameFriendListUpdate,
		FrameStatus, FrameUnreadCountUpdate:
		return true
	}
	return false
}

// Presence values carried by status frames.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// Frame is one discrete typed event on the wire: a single JSON object whose
// fields beyond Type vary by case.
type Frame struct {
	Type FrameType `json:"type"`

	// identify / status
	UserID   string         `json:"userId,omitempty"`
	Status   PresenceStatus `json:"status,omitempty"`
	LastSeen *time.Time     `json:"lastSeen,omitempty"`

	// addressed frames (typing, delivered, read, delete, friend-list-update)
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	ChatID int64  `json:"chatId,omitempty"`

	// chat
	Message *Message `json:"message,omitempty"`

	// unread-count-update
	FriendID string `json:"friendId,omitempty"`
	Count    int    `json:"count,omitempty"`
}
