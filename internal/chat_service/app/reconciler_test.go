package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/chat_service/domain"
)

func liveMessage(id int64, sender, body string, at time.Time) *domain.Message {
	return &domain.Message{
		ID:     id,
		Sender: sender,
		Body:   &body,
		SentAt: at,
		Status: domain.StatusSent,
	}
}

func TestReconciler_ReportIsMaxOfSources(t *testing.T) {
	r := NewReconciler()
	now := time.Now()

	r.ObserveAuthoritative("bob", "alice", 2)
	assert.Equal(t, 2, r.Report("bob", "alice"))

	// Two live messages lift the accumulator past the authoritative value.
	assert.True(t, r.ObserveLiveMessage("bob", liveMessage(10, "alice", "hi", now)))
	assert.True(t, r.ObserveLiveMessage("bob", liveMessage(11, "alice", "there", now)))
	assert.True(t, r.ObserveLiveMessage("bob", liveMessage(12, "alice", "again", now)))
	assert.Equal(t, 3, r.Report("bob", "alice"))

	// A stale authoritative query must not drag the report back down.
	r.ObserveAuthoritative("bob", "alice", 1)
	assert.Equal(t, 3, r.Report("bob", "alice"))
}

func TestReconciler_ReportNeverRegresses(t *testing.T) {
	r := NewReconciler()

	r.ObserveAuthoritative("bob", "alice", 5)
	first := r.Report("bob", "alice")

	r.ObserveAuthoritative("bob", "alice", 0)
	second := r.Report("bob", "alice")

	assert.Equal(t, 5, first)
	assert.GreaterOrEqual(t, second, first)
}

func TestReconciler_DeduplicatesOptimisticEcho(t *testing.T) {
	r := NewReconciler()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// Optimistic local entry: no durable identifier yet.
	optimistic := liveMessage(0, "alice", "hello bob", at)
	assert.True(t, r.ObserveLiveMessage("bob", optimistic))

	// The server-confirmed echo of the same message now carries an id but
	// shares sender, timestamp and body.
	echo := liveMessage(42, "alice", "hello bob", at)
	assert.False(t, r.ObserveLiveMessage("bob", echo))

	assert.Equal(t, 1, r.Report("bob", "alice"))

	t.Run("repeat of the confirmed id is also dropped", func(t *testing.T) {
		assert.False(t, r.ObserveLiveMessage("bob", liveMessage(42, "alice", "hello bob", at)))
		assert.Equal(t, 1, r.Report("bob", "alice"))
	})
}

func TestReconciler_ActiveConversationReportsZero(t *testing.T) {
	r := NewReconciler()
	now := time.Now()

	r.SetActiveConversation("bob", "alice")
	assert.True(t, r.ObserveLiveMessage("bob", liveMessage(1, "alice", "hi", now)))
	assert.Equal(t, 0, r.Report("bob", "alice"))

	// Messages from someone else still count.
	assert.True(t, r.ObserveLiveMessage("bob", liveMessage(2, "carol", "hey", now)))
	assert.Equal(t, 1, r.Report("bob", "carol"))

	r.SetActiveConversation("bob", "")
	assert.True(t, r.ObserveLiveMessage("bob", liveMessage(3, "alice", "more", now)))
	assert.Equal(t, 1, r.Report("bob", "alice"))
}

func TestReconciler_MarkReadResetsPair(t *testing.T) {
	r := NewReconciler()
	now := time.Now()

	r.ObserveAuthoritative("bob", "alice", 4)
	assert.Equal(t, 4, r.Report("bob", "alice"))

	r.MarkRead("bob", "alice")
	assert.Equal(t, 0, r.Report("bob", "alice"))

	// New traffic after the reset counts from zero again.
	assert.True(t, r.ObserveLiveMessage("bob", liveMessage(9, "alice", "new", now)))
	assert.Equal(t, 1, r.Report("bob", "alice"))
}
