package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/chat_service/domain"
)

func setupMessageRepoTest(t *testing.T) (*PgMessageRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := NewPgMessageRepository(mockPool, logger)
	return repo, mockPool
}

func TestPgMessageRepository_Insert(t *testing.T) {
	repo, mockPool := setupMessageRepoTest(t)
	defer mockPool.Close()

	body := "hello"
	msg := &domain.Message{
		Sender:   "alice",
		Receiver: "bob",
		Body:     &body,
		SentAt:   time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		Status:   domain.StatusSent,
	}

	mockPool.ExpectQuery(regexp.QuoteMeta(`INSERT INTO chat`)).
		WithArgs(msg.Sender, msg.Receiver, msg.Body, msg.ImageURL, msg.VideoURL, msg.VoiceURL,
			msg.SentAt, domain.StatusSent, msg.ReplyTo, msg.ReplyBody, msg.ReplyImageURL).
		WillReturnRows(mockPool.NewRows([]string{"chat_id"}).AddRow(int64(42)))

	id, err := repo.Insert(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgMessageRepository_AdvanceStatus(t *testing.T) {
	t.Run("delivered only overwrites sent", func(t *testing.T) {
		repo, mockPool := setupMessageRepoTest(t)
		defer mockPool.Close()

		mockPool.ExpectExec(regexp.QuoteMeta(`UPDATE chat SET status = $2 WHERE chat_id = $1 AND status = $3`)).
			WithArgs(int64(7), domain.StatusDelivered, domain.StatusSent).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		applied, err := repo.AdvanceStatus(context.Background(), 7, domain.StatusDelivered)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("delivered after read is a no-op", func(t *testing.T) {
		repo, mockPool := setupMessageRepoTest(t)
		defer mockPool.Close()

		mockPool.ExpectExec(regexp.QuoteMeta(`UPDATE chat SET status = $2 WHERE chat_id = $1 AND status = $3`)).
			WithArgs(int64(7), domain.StatusDelivered, domain.StatusSent).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		applied, err := repo.AdvanceStatus(context.Background(), 7, domain.StatusDelivered)
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("read overwrites anything but read", func(t *testing.T) {
		repo, mockPool := setupMessageRepoTest(t)
		defer mockPool.Close()

		mockPool.ExpectExec(regexp.QuoteMeta(`UPDATE chat SET status = $2 WHERE chat_id = $1 AND status <> $2`)).
			WithArgs(int64(9), domain.StatusRead).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		applied, err := repo.AdvanceStatus(context.Background(), 9, domain.StatusRead)
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("sent is not a transition target", func(t *testing.T) {
		repo, mockPool := setupMessageRepoTest(t)
		defer mockPool.Close()

		_, err := repo.AdvanceStatus(context.Background(), 9, domain.StatusSent)
		assert.Error(t, err)
	})
}

func TestPgMessageRepository_DeliverPending(t *testing.T) {
	repo, mockPool := setupMessageRepoTest(t)
	defer mockPool.Close()

	rows := mockPool.NewRows([]string{"chat_id", "sender"}).
		AddRow(int64(1), "alice").
		AddRow(int64(2), "alice").
		AddRow(int64(3), "carol")

	mockPool.ExpectQuery(regexp.QuoteMeta(`UPDATE chat SET status = $2 WHERE receiver = $1 AND status = $3 RETURNING chat_id, sender`)).
		WithArgs("bob", domain.StatusDelivered, domain.StatusSent).
		WillReturnRows(rows)

	receipts, err := repo.DeliverPending(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, receipts, 3)
	assert.Equal(t, domain.DeliveryReceipt{ChatID: 1, Sender: "alice"}, receipts[0])
	assert.Equal(t, domain.DeliveryReceipt{ChatID: 3, Sender: "carol"}, receipts[2])
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgMessageRepository_MarkConversationRead(t *testing.T) {
	repo, mockPool := setupMessageRepoTest(t)
	defer mockPool.Close()

	rows := mockPool.NewRows([]string{"chat_id"}).AddRow(int64(11)).AddRow(int64(12))

	mockPool.ExpectQuery(regexp.QuoteMeta(`UPDATE chat SET status = $3 WHERE sender = $1 AND receiver = $2 AND status <> $3 RETURNING chat_id`)).
		WithArgs("alice", "bob", domain.StatusRead).
		WillReturnRows(rows)

	ids, err := repo.MarkConversationRead(context.Background(), "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, []int64{11, 12}, ids)
}

func TestPgMessageRepository_CountUnread(t *testing.T) {
	repo, mockPool := setupMessageRepoTest(t)
	defer mockPool.Close()

	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM chat WHERE sender = $1 AND receiver = $2 AND status <> $3`)).
		WithArgs("alice", "bob", domain.StatusRead).
		WillReturnRows(mockPool.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountUnread(context.Background(), "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestPgMessageRepository_UnreadByCorrespondent(t *testing.T) {
	repo, mockPool := setupMessageRepoTest(t)
	defer mockPool.Close()

	rows := mockPool.NewRows([]string{"sender", "count"}).
		AddRow("alice", 2).
		AddRow("carol", 5)

	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT sender, COUNT(*) FROM chat WHERE receiver = $1 AND status <> $2 GROUP BY sender`)).
		WithArgs("bob", domain.StatusRead).
		WillReturnRows(rows)

	counts, err := repo.UnreadByCorrespondent(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, []domain.UnreadCount{
		{FriendID: "alice", Count: 2},
		{FriendID: "carol", Count: 5},
	}, counts)
}

func TestPgMessageRepository_Delete(t *testing.T) {
	t.Run("tombstones and rewrites replies", func(t *testing.T) {
		repo, mockPool := setupMessageRepoTest(t)
		defer mockPool.Close()

		imageURL := "/uploads/photo.png"

		mockPool.ExpectBegin()
		mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT image_url, video_url, voice_url FROM chat WHERE chat_id = $1 AND sender = $2 AND receiver = $3`)).
			WithArgs(int64(33), "alice", "bob").
			WillReturnRows(mockPool.NewRows([]string{"image_url", "video_url", "voice_url"}).AddRow(&imageURL, nil, nil))
		mockPool.ExpectExec(regexp.QuoteMeta(`UPDATE chat SET message = NULL, image_url = NULL, video_url = NULL, voice_url = NULL WHERE chat_id = $1`)).
			WithArgs(int64(33)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mockPool.ExpectExec(regexp.QuoteMeta(`UPDATE chat SET reply_to = NULL, reply_message = $2, reply_image_url = NULL WHERE reply_to = $1`)).
			WithArgs(int64(33), domain.DeletedMessagePlaceholder).
			WillReturnResult(pgxmock.NewResult("UPDATE", 2))
		mockPool.ExpectCommit()

		mediaURL, err := repo.Delete(context.Background(), 33, "alice", "bob")
		require.NoError(t, err)
		require.NotNil(t, mediaURL)
		assert.Equal(t, imageURL, *mediaURL)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("unknown message", func(t *testing.T) {
		repo, mockPool := setupMessageRepoTest(t)
		defer mockPool.Close()

		mockPool.ExpectBegin()
		mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT image_url, video_url, voice_url FROM chat`)).
			WithArgs(int64(99), "alice", "bob").
			WillReturnError(errors.New("no rows in result set"))
		mockPool.ExpectRollback()

		_, err := repo.Delete(context.Background(), 99, "alice", "bob")
		assert.Error(t, err)
	})
}

func TestPgMessageRepository_GetBetween(t *testing.T) {
	repo, mockPool := setupMessageRepoTest(t)
	defer mockPool.Close()

	body := "hey"
	sentAt := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	rows := mockPool.NewRows([]string{
		"chat_id", "sender", "receiver", "message", "image_url", "video_url", "voice_url",
		"sent_at", "status", "reply_to", "reply_message", "reply_image_url",
	}).AddRow(int64(1), "alice", "bob", &body, nil, nil, nil, sentAt, domain.StatusRead, nil, nil, nil)

	mockPool.ExpectQuery(`SELECT .+ FROM chat`).
		WithArgs("alice", "bob").
		WillReturnRows(rows)

	messages, err := repo.GetBetween(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "alice", messages[0].Sender)
	assert.Equal(t, domain.StatusRead, messages[0].Status)
	require.NotNil(t, messages[0].Body)
	assert.Equal(t, "hey", *messages[0].Body)
}
