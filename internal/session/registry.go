package session

import (
	"sort"
	"sync"
)

// Registry maps channel ids to their live session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Lookup returns the session for channelID, if any.
func (r *Registry) Lookup(channelID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[channelID]
	return s, ok
}

// Put stores s, replacing any existing entry for its channel. Callers tear
// down the previous session first.
func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ChannelID] = s
}

// Remove deletes the entry for channelID. Removing a missing entry is a no-op.
func (r *Registry) Remove(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, channelID)
}

// CompareAndRemove deletes the entry for s.ChannelID only if it is still s.
func (r *Registry) CompareAndRemove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.ChannelID]; ok && cur == s {
		delete(r.sessions, s.ChannelID)
		return true
	}
	return false
}

// List returns a snapshot of all sessions ordered by channel id.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
