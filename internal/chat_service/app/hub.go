package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/chat_service/domain"
	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/chat_service/registry"
)

// NATS subjects on which chat events are published for the rest of the backend.
const (
	SubjectMessagePersisted = "chat.message.persisted"
	SubjectMessageStatus    = "chat.message.status"
	SubjectPresence         = "chat.presence"
)

// EventPublisher publishes chat events to the message broker. Publish
// failures are logged and never block frame handling.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// ClientSession is the per-connection state the hub tracks: the peer handle
// and, once an identify frame arrived, the bound identity and its registry
// session token.
type ClientSession struct {
	peer     domain.LivePeer
	identity string
	session  registry.Session
}

// Identity returns the identity bound to the session, empty until identified.
func (s *ClientSession) Identity() string { return s.identity }

// Hub routes typed frames between live connections, announces presence
// transitions and drives the delivery-state machine. It owns no durable
// state; storage is always written before any live notification goes out.
type Hub struct {
	registry   *registry.Registry
	messages   domain.MessageRepository
	presence   domain.PresenceRepository
	media      domain.MediaStore
	reconciler *Reconciler
	events     EventPublisher
	logger     *slog.Logger
}

func NewHub(
	reg *registry.Registry,
	messages domain.MessageRepository,
	presence domain.PresenceRepository,
	media domain.MediaStore,
	reconciler *Reconciler,
	events EventPublisher,
	logger *slog.Logger,
) *Hub {
	return &Hub{
		registry:   reg,
		messages:   messages,
		presence:   presence,
		media:      media,
		reconciler: reconciler,
		events:     events,
		logger:     logger.With("component", "hub"),
	}
}

// NewSession creates the session state for a freshly opened connection.
func (h *Hub) NewSession(peer domain.LivePeer) *ClientSession {
	return &ClientSession{peer: peer}
}

// HandleFrame classifies one inbound frame and dispatches it. Malformed or
// unrecognized frames are discarded with a log entry; no error here ever
// terminates the connection.
func (h *Hub) HandleFrame(ctx context.Context, s *ClientSession, data []byte) {
	var frame domain.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		framesDroppedCounter.WithLabelValues("malformed").Inc()
		h.logger.WarnContext(ctx, "Discarding malformed frame", "error", err, "identity", s.identity)
		return
	}

	if !frame.Type.Known() {
		framesDroppedCounter.WithLabelValues("unknown_type").Inc()
		h.logger.WarnContext(ctx, "Discarding frame of unknown type", "type", string(frame.Type), "identity", s.identity)
		return
	}
	framesReceivedCounter.WithLabelValues(string(frame.Type)).Inc()

	if frame.Type != domain.FrameIdentify && s.identity == "" {
		framesDroppedCounter.WithLabelValues("unidentified").Inc()
		h.logger.WarnContext(ctx, "Discarding frame from unidentified connection", "type", string(frame.Type))
		return
	}

	switch frame.Type {
	case domain.FrameIdentify:
		h.handleIdentify(ctx, s, &frame)
	case domain.FrameChat:
		h.handleChat(ctx, s, &frame, data)
	case domain.FrameTyping, domain.FrameStopTyping, domain.FrameFriendListUpdate:
		// Ephemeral, forward-only: never persisted, last write wins.
		h.forwardRaw(ctx, frame.To, data)
	case domain.FrameDelivered:
		h.handleDelivered(ctx, &frame)
	case domain.FrameRead:
		h.handleRead(ctx, &frame)
	case domain.FrameDelete:
		h.handleDelete(ctx, &frame)
	case domain.FrameStatus, domain.FrameUnreadCountUpdate:
		// Server→client types; a client sending one is a no-op.
		h.logger.DebugContext(ctx, "Ignoring server-only frame type from client", "type", string(frame.Type), "identity", s.identity)
	}
}

// HandleClose runs when a connection's transport closes. Registry removal is
// token-guarded so a connection that was already replaced does not tear down
// its successor's presence.
func (h *Hub) HandleClose(ctx context.Context, s *ClientSession) {
	if s.identity == "" {
		return
	}
	if !h.registry.Remove(s.identity, s.session) {
		h.logger.DebugContext(ctx, "Skipping offline transition for superseded connection", "identity", s.identity)
		return
	}
	connectedClientsGauge.Set(float64(h.registry.Len()))
	h.reconciler.SetActiveConversation(s.identity, "")

	lastSeen := time.Now().UTC()
	if err := h.presence.SetPresence(ctx, s.identity, domain.PresenceOffline, lastSeen); err != nil {
		h.logger.ErrorContext(ctx, "Failed to persist offline presence", "error", err, "identity", s.identity)
	}
	h.broadcastStatus(ctx, s.identity, domain.PresenceOffline, &lastSeen)
	h.publishPresence(ctx, s.identity, domain.PresenceOffline, &lastSeen)
}

func (h *Hub) handleIdentify(ctx context.Context, s *ClientSession, frame *domain.Frame) {
	if frame.UserID == "" {
		framesDroppedCounter.WithLabelValues("malformed").Inc()
		h.logger.WarnContext(ctx, "Identify frame without user id")
		return
	}

	s.identity = frame.UserID
	s.session = h.registry.Register(s.identity, s.peer)
	connectedClientsGauge.Set(float64(h.registry.Len()))
	h.logger.InfoContext(ctx, "Connection identified", "identity", s.identity)

	now := time.Now().UTC()
	if err := h.presence.SetPresence(ctx, s.identity, domain.PresenceOnline, now); err != nil {
		h.logger.ErrorContext(ctx, "Failed to persist online presence", "error", err, "identity", s.identity)
	}
	h.broadcastStatus(ctx, s.identity, domain.PresenceOnline, nil)
	h.publishPresence(ctx, s.identity, domain.PresenceOnline, nil)

	// Catch-up: everything still "sent" to this identity becomes "delivered",
	// and each live sender hears about it once per message.
	h.deliverPending(ctx, s.identity)
}

// handleChat forwards a chat frame verbatim to the receiver's connection if
// one is live. An absent receiver is not an error: the unread path is the
// offline substitute. Durable submission happens on the store-message path
// before the client emits this frame; the forward here is an at-most-once
// best-effort live notification.
func (h *Hub) handleChat(ctx context.Context, s *ClientSession, frame *domain.Frame, raw []byte) {
	if frame.Message == nil {
		framesDroppedCounter.WithLabelValues("malformed").Inc()
		h.logger.WarnContext(ctx, "Chat frame without message payload", "identity", s.identity)
		return
	}
	receiver := frame.Message.Receiver
	if receiver == "" {
		receiver = frame.To
	}
	h.reconciler.ObserveLiveMessage(receiver, frame.Message)
	h.forwardRaw(ctx, receiver, raw)
}

func (h *Hub) handleDelivered(ctx context.Context, frame *domain.Frame) {
	if frame.ChatID == 0 || frame.From == "" || frame.To == "" {
		framesDroppedCounter.WithLabelValues("malformed").Inc()
		return
	}
	applied, err := h.messages.AdvanceStatus(ctx, frame.ChatID, domain.StatusDelivered)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to persist delivered transition", "error", err, "chat_id", frame.ChatID)
		return
	}
	if !applied {
		// Already delivered or read; the monotonic guard makes this a no-op.
		return
	}
	deliveryTransitionsCounter.WithLabelValues(string(domain.StatusDelivered)).Inc()
	h.publishStatus(ctx, frame.ChatID, domain.StatusDelivered)

	h.sendFrame(ctx, frame.To, &domain.Frame{
		Type:   domain.FrameDelivered,
		ChatID: frame.ChatID,
		From:   frame.From,
		To:     frame.To,
	})
}

func (h *Hub) handleRead(ctx context.Context, frame *domain.Frame) {
	if frame.From == "" || frame.To == "" {
		framesDroppedCounter.WithLabelValues("malformed").Inc()
		return
	}
	h.MarkConversationRead(ctx, frame.From, frame.To)
}

// MarkConversationRead advances all of sender's non-read messages to reader
// into "read" and notifies the sender once per affected message if live. It
// is shared between the read frame and the HTTP mark-read operation.
func (h *Hub) MarkConversationRead(ctx context.Context, reader, sender string) []int64 {
	ids, err := h.messages.MarkConversationRead(ctx, reader, sender)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to persist read transition", "error", err, "reader", reader, "sender", sender)
		return nil
	}
	h.reconciler.MarkRead(reader, sender)
	// The client marks read exactly when a conversation is open in front of the
	// user, so this pair stays pinned to zero until they disconnect or read
	// another conversation.
	h.reconciler.SetActiveConversation(reader, sender)
	for _, id := range ids {
		deliveryTransitionsCounter.WithLabelValues(string(domain.StatusRead)).Inc()
		h.publishStatus(ctx, id, domain.StatusRead)
		h.sendFrame(ctx, sender, &domain.Frame{
			Type:   domain.FrameRead,
			ChatID: id,
			From:   reader,
			To:     sender,
		})
	}
	return ids
}

func (h *Hub) handleDelete(ctx context.Context, frame *domain.Frame) {
	if frame.ChatID == 0 || frame.From == "" || frame.To == "" {
		framesDroppedCounter.WithLabelValues("malformed").Inc()
		return
	}
	mediaURL, err := h.messages.Delete(ctx, frame.ChatID, frame.From, frame.To)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to delete message", "error", err, "chat_id", frame.ChatID)
		return
	}

	notice := &domain.Frame{Type: domain.FrameDelete, ChatID: frame.ChatID}
	h.sendFrame(ctx, frame.From, notice)
	h.sendFrame(ctx, frame.To, notice)

	if mediaURL != nil {
		if err := h.media.Remove(*mediaURL); err != nil {
			h.logger.WarnContext(ctx, "Failed to remove media file for deleted message",
				"error", err, "chat_id", frame.ChatID, "url", *mediaURL)
		}
	}
}

// DeliverChat is the live-forwarding half of message submission: after the
// message has been durably persisted, push it to the receiver's connection
// if live, merge it into the receiver's reconciliation state, and push a
// fresh unread count.
func (h *Hub) DeliverChat(ctx context.Context, msg *domain.Message) {
	h.reconciler.ObserveLiveMessage(msg.Receiver, msg)
	h.sendFrame(ctx, msg.Receiver, &domain.Frame{Type: domain.FrameChat, Message: msg})

	if payload, err := json.Marshal(msg); err == nil {
		h.publish(ctx, SubjectMessagePersisted, payload)
	}

	h.PushUnread(ctx, msg.Receiver, msg.Sender)
}

// PushUnread reconciles the authoritative unread count for (owner,
// correspondent) with locally observed state and pushes the result to the
// owner's connection if live.
func (h *Hub) PushUnread(ctx context.Context, owner, correspondent string) {
	count, err := h.messages.CountUnread(ctx, owner, correspondent)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to query unread count", "error", err, "owner", owner, "correspondent", correspondent)
	} else {
		h.reconciler.ObserveAuthoritative(owner, correspondent, count)
	}

	reported := h.reconciler.Report(owner, correspondent)
	peer, ok := h.registry.Lookup(owner)
	if !ok {
		return
	}
	payload, err := json.Marshal(&domain.Frame{
		Type:     domain.FrameUnreadCountUpdate,
		FriendID: correspondent,
		Count:    reported,
	})
	if err != nil {
		return
	}
	if err := peer.Send(payload); err != nil {
		h.logger.WarnContext(ctx, "Failed to push unread count", "error", err, "owner", owner)
		return
	}
	unreadPushesCounter.Inc()
}

// deliverPending bulk-advances the reconnecting receiver's "sent" messages
// and notifies each live sender once per affected message.
func (h *Hub) deliverPending(ctx context.Context, receiver string) {
	receipts, err := h.messages.DeliverPending(ctx, receiver)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to bulk-advance pending messages", "error", err, "receiver", receiver)
		return
	}
	for _, receipt := range receipts {
		deliveryTransitionsCounter.WithLabelValues(string(domain.StatusDelivered)).Inc()
		h.publishStatus(ctx, receipt.ChatID, domain.StatusDelivered)
		h.sendFrame(ctx, receipt.Sender, &domain.Frame{
			Type:   domain.FrameDelivered,
			ChatID: receipt.ChatID,
			From:   receiver,
			To:     receipt.Sender,
		})
	}
	if len(receipts) > 0 {
		h.logger.InfoContext(ctx, "Advanced pending messages to delivered", "receiver", receiver, "count", len(receipts))
	}
}

// broadcastStatus announces a presence transition to every other registered
// connection. Best-effort: a failed send to one peer is logged and skipped,
// never blocking delivery to the rest.
func (h *Hub) broadcastStatus(ctx context.Context, identity string, status domain.PresenceStatus, lastSeen *time.Time) {
	payload, err := json.Marshal(&domain.Frame{
		Type:     domain.FrameStatus,
		UserID:   identity,
		Status:   status,
		LastSeen: lastSeen,
	})
	if err != nil {
		return
	}
	h.registry.ForEach(func(peerIdentity string, peer domain.LivePeer) {
		if peerIdentity == identity {
			return
		}
		if err := peer.Send(payload); err != nil {
			broadcastSendFailuresCounter.Inc()
			h.logger.WarnContext(ctx, "Failed to broadcast status frame", "error", err, "to", peerIdentity)
		}
	})
}

// forwardRaw passes inbound bytes through to the addressed connection
// unchanged. An absent or unreachable peer is not an error.
func (h *Hub) forwardRaw(ctx context.Context, to string, raw []byte) {
	if to == "" {
		return
	}
	peer, ok := h.registry.Lookup(to)
	if !ok {
		return
	}
	if err := peer.Send(raw); err != nil {
		h.logger.WarnContext(ctx, "Peer unreachable during forward", "error", err, "to", to)
	}
}

func (h *Hub) sendFrame(ctx context.Context, to string, frame *domain.Frame) {
	peer, ok := h.registry.Lookup(to)
	if !ok {
		return
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	if err := peer.Send(payload); err != nil {
		h.logger.WarnContext(ctx, "Peer unreachable during send", "error", err, "to", to, "type", string(frame.Type))
	}
}

type statusEvent struct {
	ChatID int64                 `json:"chatId"`
	Status domain.DeliveryStatus `json:"status"`
}

type presenceEvent struct {
	UserID   string                `json:"userId"`
	Status   domain.PresenceStatus `json:"status"`
	LastSeen *time.Time            `json:"lastSeen,omitempty"`
}

func (h *Hub) publishStatus(ctx context.Context, chatID int64, status domain.DeliveryStatus) {
	payload, err := json.Marshal(statusEvent{ChatID: chatID, Status: status})
	if err != nil {
		return
	}
	h.publish(ctx, SubjectMessageStatus, payload)
}

func (h *Hub) publishPresence(ctx context.Context, identity string, status domain.PresenceStatus, lastSeen *time.Time) {
	payload, err := json.Marshal(presenceEvent{UserID: identity, Status: status, LastSeen: lastSeen})
	if err != nil {
		return
	}
	h.publish(ctx, SubjectPresence, payload)
}

func (h *Hub) publish(ctx context.Context, subject string, payload []byte) {
	if h.events == nil {
		return
	}
	if err := h.events.Publish(ctx, subject, payload); err != nil {
		h.logger.WarnContext(ctx, "Failed to publish event", "error", err, "subject", subject)
	}
}
