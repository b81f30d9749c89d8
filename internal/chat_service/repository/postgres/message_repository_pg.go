package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/chat_service/domain"
)

// PgxIface is the subset of pgxpool.Pool the repositories need; pgxmock
// satisfies it in tests.
type PgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const messageColumns = `chat_id, sender, receiver, message, image_url, video_url, voice_url, sent_at, status, reply_to, reply_message, reply_image_url`

type PgMessageRepository struct {
	db     PgxIface
	logger *slog.Logger
}

func NewPgMessageRepository(db PgxIface, logger *slog.Logger) *PgMessageRepository {
	return &PgMessageRepository{db: db, logger: logger.With("component", "message_repository_pg")}
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	err := row.Scan(
		&m.ID,
		&m.Sender,
		&m.Receiver,
		&m.Body,
		&m.ImageURL,
		&m.VideoURL,
		&m.VoiceURL,
		&m.SentAt,
		&m.Status,
		&m.ReplyTo,
		&m.ReplyBody,
		&m.ReplyImageURL,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Insert persists a new message in status "sent" and returns the assigned id.
func (r *PgMessageRepository) Insert(ctx context.Context, msg *domain.Message) (int64, error) {
	query := `
		INSERT INTO chat (sender, receiver, message, image_url, video_url, voice_url, sent_at, status, reply_to, reply_message, reply_image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING chat_id`

	var id int64
	err := r.db.QueryRow(ctx, query,
		msg.Sender,
		msg.Receiver,
		msg.Body,
		msg.ImageURL,
		msg.VideoURL,
		msg.VoiceURL,
		msg.SentAt,
		domain.StatusSent,
		msg.ReplyTo,
		msg.ReplyBody,
		msg.ReplyImageURL,
	).Scan(&id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error inserting chat message", "error", err, "sender", msg.Sender, "receiver", msg.Receiver)
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return id, nil
}

func (r *PgMessageRepository) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM chat WHERE chat_id = $1`
	msg, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting message by id", "error", err, "chat_id", id)
		return nil, fmt.Errorf("get message %d: %w", id, err)
	}
	return msg, nil
}

// GetBetween returns the full ordered conversation between two identities.
func (r *PgMessageRepository) GetBetween(ctx context.Context, a, b string) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM chat
		WHERE (sender = $1 AND receiver = $2) OR (sender = $2 AND receiver = $1)
		ORDER BY sent_at ASC`

	rows, err := r.db.Query(ctx, query, a, b)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error querying messages between users", "error", err, "a", a, "b", b)
		return nil, fmt.Errorf("get messages between: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return messages, nil
}

// AdvanceStatus applies a transition only when it strictly advances the
// persisted status. The WHERE clause lists the statuses the transition may
// overwrite, so concurrent delivered/read events for the same message settle
// as the same monotonic sequence regardless of arrival order.
func (r *PgMessageRepository) AdvanceStatus(ctx context.Context, id int64, next domain.DeliveryStatus) (bool, error) {
	var tag pgconn.CommandTag
	var err error
	switch next {
	case domain.StatusDelivered:
		tag, err = r.db.Exec(ctx,
			`UPDATE chat SET status = $2 WHERE chat_id = $1 AND status = $3`,
			id, domain.StatusDelivered, domain.StatusSent)
	case domain.StatusRead:
		tag, err = r.db.Exec(ctx,
			`UPDATE chat SET status = $2 WHERE chat_id = $1 AND status <> $2`,
			id, domain.StatusRead)
	default:
		return false, fmt.Errorf("status %q is not a forward transition target", next)
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "Error advancing message status", "error", err, "chat_id", id, "next", string(next))
		return false, fmt.Errorf("advance status of %d to %s: %w", id, next, err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeliverPending is the reconnect catch-up: one statement advances all of
// receiver's messages still in "sent" and reports who to notify.
func (r *PgMessageRepository) DeliverPending(ctx context.Context, receiver string) ([]domain.DeliveryReceipt, error) {
	query := `UPDATE chat SET status = $2 WHERE receiver = $1 AND status = $3 RETURNING chat_id, sender`

	rows, err := r.db.Query(ctx, query, receiver, domain.StatusDelivered, domain.StatusSent)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error bulk-delivering pending messages", "error", err, "receiver", receiver)
		return nil, fmt.Errorf("deliver pending for %s: %w", receiver, err)
	}
	defer rows.Close()

	var receipts []domain.DeliveryReceipt
	for rows.Next() {
		var rec domain.DeliveryReceipt
		if err := rows.Scan(&rec.ChatID, &rec.Sender); err != nil {
			return nil, fmt.Errorf("scan delivery receipt: %w", err)
		}
		receipts = append(receipts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery receipts: %w", err)
	}
	return receipts, nil
}

// MarkConversationRead advances every non-read message from sender to reader
// and returns the affected ids for per-message notifications.
func (r *PgMessageRepository) MarkConversationRead(ctx context.Context, reader, sender string) ([]int64, error) {
	query := `UPDATE chat SET status = $3 WHERE sender = $1 AND receiver = $2 AND status <> $3 RETURNING chat_id`

	rows, err := r.db.Query(ctx, query, sender, reader, domain.StatusRead)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error marking conversation read", "error", err, "reader", reader, "sender", sender)
		return nil, fmt.Errorf("mark conversation read: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan read chat id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate read chat ids: %w", err)
	}
	return ids, nil
}

func (r *PgMessageRepository) CountUnread(ctx context.Context, owner, correspondent string) (int, error) {
	query := `SELECT COUNT(*) FROM chat WHERE sender = $1 AND receiver = $2 AND status <> $3`

	var count int
	if err := r.db.QueryRow(ctx, query, correspondent, owner, domain.StatusRead).Scan(&count); err != nil {
		r.logger.ErrorContext(ctx, "Error counting unread messages", "error", err, "owner", owner, "correspondent", correspondent)
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (r *PgMessageRepository) UnreadByCorrespondent(ctx context.Context, owner string) ([]domain.UnreadCount, error) {
	query := `SELECT sender, COUNT(*) FROM chat WHERE receiver = $1 AND status <> $2 GROUP BY sender`

	rows, err := r.db.Query(ctx, query, owner, domain.StatusRead)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error querying unread counts", "error", err, "owner", owner)
		return nil, fmt.Errorf("unread by correspondent: %w", err)
	}
	defer rows.Close()

	var counts []domain.UnreadCount
	for rows.Next() {
		var c domain.UnreadCount
		if err := rows.Scan(&c.FriendID, &c.Count); err != nil {
			return nil, fmt.Errorf("scan unread count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unread counts: %w", err)
	}
	return counts, nil
}

// Delete tombstones the message and rewrites replies that reference it. The
// sender/receiver arguments scope the tombstone so one participant cannot
// delete rows of an unrelated conversation. Runs in one transaction; the
// returned media URL lets the caller remove the underlying file afterwards.
func (r *PgMessageRepository) Delete(ctx context.Context, id int64, sender, receiver string) (*string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var imageURL, videoURL, voiceURL *string
	err = tx.QueryRow(ctx,
		`SELECT image_url, video_url, voice_url FROM chat WHERE chat_id = $1 AND sender = $2 AND receiver = $3`,
		id, sender, receiver,
	).Scan(&imageURL, &videoURL, &voiceURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		r.logger.ErrorContext(ctx, "Error loading message for delete", "error", err, "chat_id", id)
		return nil, fmt.Errorf("load message %d for delete: %w", id, err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE chat SET message = NULL, image_url = NULL, video_url = NULL, voice_url = NULL WHERE chat_id = $1`,
		id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error tombstoning message", "error", err, "chat_id", id)
		return nil, fmt.Errorf("tombstone message %d: %w", id, err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE chat SET reply_to = NULL, reply_message = $2, reply_image_url = NULL WHERE reply_to = $1`,
		id, domain.DeletedMessagePlaceholder)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error rewriting replies of deleted message", "error", err, "chat_id", id)
		return nil, fmt.Errorf("rewrite replies of %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit delete tx: %w", err)
	}

	switch {
	case imageURL != nil:
		return imageURL, nil
	case videoURL != nil:
		return videoURL, nil
	case voiceURL != nil:
		return voiceURL, nil
	}
	return nil, nil
}
