package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/chat_service/domain"
)

type PgPresenceRepository struct {
	db     PgxIface
	logger *slog.Logger
}

func NewPgPresenceRepository(db PgxIface, logger *slog.Logger) *PgPresenceRepository {
	return &PgPresenceRepository{db: db, logger: logger.With("component", "presence_repository_pg")}
}

// SetPresence records the identity's live status and last-seen timestamp on
// its user row. The core is the sole writer of these transitions, but the
// user record itself belongs to the account service.
func (r *PgPresenceRepository) SetPresence(ctx context.Context, identity string, status domain.PresenceStatus, lastSeen time.Time) error {
	query := `UPDATE users SET status = $2, last_login = $3 WHERE uuid = $1`

	tag, err := r.db.Exec(ctx, query, identity, status, lastSeen)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error persisting presence", "error", err, "identity", identity, "status", string(status))
		return fmt.Errorf("set presence of %s: %w", identity, err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Presence update matched no user row", "identity", identity)
	}
	return nil
}
