// Package registry maps user identities to their single active live
// connection. It is an explicitly owned service instance handed to every
// component that routes frames, not process-wide state.
package registry

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/DilshanX09/convo-websocket-messenger-electron-application-v1/internal/chat_service/domain"
)

// Session is a monotonic token identifying one registration of an identity.
// A connection holds the token it was registered under; operations carrying a
// token older than the stored one are stale and rejected.
type Session uint64

const shardCount = 32

type entry struct {
	peer    domain.LivePeer
	session Session
}

type shard struct {
	mu    sync.RWMutex
	conns map[string]entry
}

// Registry supports concurrent register/lookup/remove across independent
// connection lifecycles. Locking is sharded by identity so unrelated traffic
// is never serialized behind a single lock.
type Registry struct {
	shards [shardCount]shard
	next   atomic.Uint64
	size   atomic.Int64
}

func New() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].conns = make(map[string]entry)
	}
	return r
}

func (r *Registry) shardFor(identity string) *shard {
	h := fnv.New32a()
	h.Write([]byte(identity))
	return &r.shards[h.Sum32()%shardCount]
}

// Register binds identity to peer under a fresh session token, replacing any
// prior connection for that identity. The newest connection wins; the
// replaced one is not closed here, it is simply no longer reachable.
func (r *Registry) Register(identity string, peer domain.LivePeer) Session {
	token := Session(r.next.Add(1))
	s := r.shardFor(identity)
	s.mu.Lock()
	if _, replaced := s.conns[identity]; !replaced {
		r.size.Add(1)
	}
	s.conns[identity] = entry{peer: peer, session: token}
	s.mu.Unlock()
	return token
}

// Lookup returns the live connection for identity, if any.
func (r *Registry) Lookup(identity string) (domain.LivePeer, bool) {
	s := r.shardFor(identity)
	s.mu.RLock()
	e, ok := s.conns[identity]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.peer, true
}

// Remove unbinds identity only when the stored session matches the caller's
// token. This guards the race where a newer connection has already replaced
// the old one before the old connection's close event fires. It reports
// whether the entry was removed.
func (r *Registry) Remove(identity string, session Session) bool {
	s := r.shardFor(identity)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.conns[identity]
	if !ok || e.session != session {
		return false
	}
	delete(s.conns, identity)
	r.size.Add(-1)
	return true
}

// ForEach invokes fn for every registered identity/connection pair. The
// snapshot per shard is taken under the read lock but fn runs outside it, so
// fn may itself call back into the registry.
func (r *Registry) ForEach(fn func(identity string, peer domain.LivePeer)) {
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		snapshot := make(map[string]domain.LivePeer, len(s.conns))
		for id, e := range s.conns {
			snapshot[id] = e.peer
		}
		s.mu.RUnlock()
		for id, peer := range snapshot {
			fn(id, peer)
		}
	}
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	return int(r.size.Load())
}
