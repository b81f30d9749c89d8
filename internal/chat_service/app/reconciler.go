package app

import (
	"sync"

	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/chat_service/domain"
)

type pairKey struct {
	owner         string
	correspondent string
}

type pairState struct {
	reported      int
	authoritative int
	accumulator   int
	seen          map[string]struct{}
}

// Reconciler merges per-correspondent unread counts from two independent
// sources: authoritative queries against durable storage and a locally
// accumulated tally of live inbound messages. The reported value for a pair
// is the maximum of everything observed so far and never regresses, except
// through an explicit read transition or while the conversation is the one
// actively being viewed (always reported as zero).
type Reconciler struct {
	mu     sync.Mutex
	pairs  map[pairKey]*pairState
	active map[string]string // owner → correspondent currently viewed
}

func NewReconciler() *Reconciler {
	return &Reconciler{
		pairs:  make(map[pairKey]*pairState),
		active: make(map[string]string),
	}
}

func (r *Reconciler) pair(owner, correspondent string) *pairState {
	k := pairKey{owner: owner, correspondent: correspondent}
	p, ok := r.pairs[k]
	if !ok {
		p = &pairState{seen: make(map[string]struct{})}
		r.pairs[k] = p
	}
	return p
}

// ObserveAuthoritative records the result of a durable-storage unread query
// for the pair. Older query results never lower the stored value.
func (r *Reconciler) ObserveAuthoritative(owner, correspondent string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.pair(owner, correspondent)
	if count > p.authoritative {
		p.authoritative = count
	}
}

// ObserveLiveMessage merges one inbound live message from the correspondent
// into owner's local sequence. Duplicates, identified by the message
// fingerprint, are dropped: an optimistic entry and its later
// server-confirmed echo count once. The accumulator only grows when the
// conversation is not the one actively viewed. It reports whether the
// message was counted as a new entry.
func (r *Reconciler) ObserveLiveMessage(owner string, msg *domain.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.pair(owner, msg.Sender)

	fp := msg.Fingerprint()
	if _, dup := p.seen[fp]; dup {
		return false
	}
	p.seen[fp] = struct{}{}

	// A confirmed echo of an optimistic entry shares its tmp fingerprint;
	// record the durable key too so neither form is counted again.
	if msg.ID != 0 {
		optimistic := domain.Message{Sender: msg.Sender, Body: msg.Body, SentAt: msg.SentAt}
		tmpFP := optimistic.Fingerprint()
		if _, dup := p.seen[tmpFP]; dup && tmpFP != fp {
			return false
		}
		p.seen[tmpFP] = struct{}{}
	}

	if r.active[owner] != msg.Sender {
		p.accumulator++
	}
	return true
}

// SetActiveConversation marks the conversation owner is currently viewing.
// Pass an empty correspondent to clear it.
func (r *Reconciler) SetActiveConversation(owner, correspondent string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if correspondent == "" {
		delete(r.active, owner)
		return
	}
	r.active[owner] = correspondent
}

// MarkRead resets the pair after an explicit read transition, the one
// sanctioned way a count decreases.
func (r *Reconciler) MarkRead(owner, correspondent string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.pair(owner, correspondent)
	p.reported = 0
	p.authoritative = 0
	p.accumulator = 0
}

// Report returns the externally visible unread count for the pair:
// max(last reported, authoritative, accumulator), or zero when the
// conversation is the active one.
func (r *Reconciler) Report(owner, correspondent string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[owner] == correspondent {
		return 0
	}
	p := r.pair(owner, correspondent)
	v := p.reported
	if p.authoritative > v {
		v = p.authoritative
	}
	if p.accumulator > v {
		v = p.accumulator
	}
	p.reported = v
	return v
}
