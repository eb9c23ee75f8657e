package server

import (
	"sync"

	"github.com/m2tx/gemini_chat/internal/chat"
)

// Registry tracks the sessions opened through the HTTP API.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*chat.Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*chat.Session)}
}

func (r *Registry) Put(s *chat.Session) {
	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (*chat.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete removes a session and reports whether it existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
