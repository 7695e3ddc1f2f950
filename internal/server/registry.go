package server

import "sync"

// PresenceRegistry maps canonical usernames to their live sessions. A user
// is online iff they appear here; at most one session exists per username.
type PresenceRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewPresenceRegistry creates an empty registry.
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		sessions: make(map[string]*Session),
	}
}

// Register inserts a session, returning the evicted previous session for
// the same user if one existed. The caller notifies and closes the old one.
func (r *PresenceRegistry) Register(sess *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.sessions[sess.Folded]
	r.sessions[sess.Folded] = sess
	return old
}

// Unregister removes the session only if it is still the current one for
// its user. Reports whether the map changed, so an evicted session's
// cleanup never removes its replacement.
func (r *PresenceRegistry) Unregister(sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[sess.Folded] != sess {
		return false
	}
	delete(r.sessions, sess.Folded)
	return true
}

// Get returns the live session for a canonical username.
func (r *PresenceRegistry) Get(folded string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[folded]
	return sess, ok
}

// List snapshots all live sessions.
func (r *PresenceRegistry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}

// Count returns the number of live sessions.
func (r *PresenceRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
