package controller

import (
	"context"
	"sync"
	"time"

	"advisory-apply/internal/models"
	"advisory-apply/internal/wizard/token"
)

// Manager owns one Session per drafting client and expires idle ones. Each
// session gets its own token service so session-scoped token state never
// leaks between clients.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	base       Deps
	newTokens  func() *token.Service
	sessionTTL time.Duration
}

// NewManager builds a manager around shared dependencies. The Tokens field
// of base is ignored; a fresh token service is minted per session.
func NewManager(base Deps, sessionTTL time.Duration) *Manager {
	m := &Manager{
		sessions:   make(map[string]*Session),
		base:       base,
		sessionTTL: sessionTTL,
	}
	m.newTokens = func() *token.Service {
		return token.NewService(base.Cache)
	}
	return m
}

// Session returns the client's session, creating it on first use.
func (m *Manager) Session(clientID string, advisor models.Advisor) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[clientID]; ok {
		return s
	}
	deps := m.base
	deps.Tokens = m.newTokens()
	s := NewSession(clientID, advisor, deps)
	m.sessions[clientID] = s
	return s
}

// Sweep drops sessions idle longer than the TTL. Run it on a ticker.
func (m *Manager) Sweep() int {
	if m.sessionTTL <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-m.sessionTTL)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.LastTouched().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps on an interval until the context is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
