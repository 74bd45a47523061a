package channel

import "sync"

// Registry tracks live admin sessions. One instance is created by the
// server at startup, passed to every supervisor, and drained at shutdown;
// there is deliberately no package-level singleton.
//
// Register and unregister are O(1) under a single mutex. ForEach snapshots
// the session list under the lock and invokes the callback outside it, so
// callbacks may block or call back into sessions without holding the lock.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register adds a session.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
}

// Unregister removes a session by id. Removing an unknown id is a no-op.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ForEach calls fn for every live session. The callback runs outside the
// registry lock; sessions registered or removed concurrently may or may not
// be visited.
func (r *Registry) ForEach(fn func(*Session)) {
	r.mu.Lock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.Unlock()

	for _, s := range snapshot {
		fn(s)
	}
}

// Drain asks every live session to close with the given reason. Used at
// server shutdown.
func (r *Registry) Drain(reason CloseReason) {
	r.ForEach(func(s *Session) {
		s.RequestClose(reason)
	})
}
