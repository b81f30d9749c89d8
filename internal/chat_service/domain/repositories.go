package domain

import (
	"context"
	"io"
	"time"
)

// MessageRepository is the durable-storage collaborator for chat records.
// Storage is the sole owner of durable state; the core only reads and
// requests transitions.
type MessageRepository interface {
	// Insert persists a new message in status "sent" and returns the
	// storage-assigned identifier.
	Insert(ctx context.Context, msg *Message) (int64, error)

	// GetByID returns the message with the given id, or ErrMessageNotFound.
	GetByID(ctx context.Context, id int64) (*Message, error)

	// GetBetween returns all messages exchanged between the two identities,
	// ordered by timestamp ascending.
	GetBetween(ctx context.Context, a, b string) ([]Message, error)

	// AdvanceStatus requests a lifecycle transition for a single message.
	// It reports whether the transition was applied; a request that does not
	// strictly advance the persisted status is a no-op, not an error.
	AdvanceStatus(ctx context.Context, id int64, next DeliveryStatus) (bool, error)

	// DeliverPending bulk-advances every message addressed to receiver that
	// is still in "sent" status to "delivered", returning one receipt per
	// affected message.
	DeliverPending(ctx context.Context, receiver string) ([]DeliveryReceipt, error)

	// MarkConversationRead advances all of sender's non-read messages to
	// reader into "read", returning the affected identifiers.
	MarkConversationRead(ctx context.Context, reader, sender string) ([]int64, error)

	// CountUnread returns the number of correspondent-authored messages to
	// owner not yet in "read" status.
	CountUnread(ctx context.Context, owner, correspondent string) (int, error)

	// UnreadByCorrespondent returns owner's unread counts grouped per
	// correspondent.
	UnreadByCorrespondent(ctx context.Context, owner string) ([]UnreadCount, error)

	// Delete tombstones a message (body and media nulled) and rewrites any
	// messages replying to it so their cached snippet becomes the deletion
	// placeholder. It returns the media URL the tombstoned row carried, if
	// any, so the caller can remove the underlying file.
	Delete(ctx context.Context, id int64, sender, receiver string) (mediaURL *string, err error)
}

// PresenceRepository persists per-identity online/offline state.
type PresenceRepository interface {
	SetPresence(ctx context.Context, identity string, status PresenceStatus, lastSeen time.Time) error
}

// MediaStore resolves uploaded files to stable URL paths and removes them
// when their message is deleted.
type MediaStore interface {
	// Store writes the upload under a sanitized name and returns its URL path.
	Store(filename string, contents io.Reader) (string, error)
	// Remove deletes the file behind a URL path. A missing file is not an error.
	Remove(urlPath string) error
}

// LivePeer is one live client connection reachable through the registry.
// Send is best-effort: a failure means the peer is unreachable.
type LivePeer interface {
	Send(frame []byte) error
	Close()
}
