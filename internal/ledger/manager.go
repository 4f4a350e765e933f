package ledger

import (
	"context"
	"sync"
)

// SessionFactory constructs a fully wired session for an identity. The empty
// identity denotes the anonymous local session (no remote sync).
type SessionFactory func(identity string) *Session

// Manager owns the current session and drives the identity lifecycle: a
// ledger instance exists per signed-in identity, constructed on sign-in and
// torn down on sign-out, never shared or merged across identities. The
// process starts with the anonymous session.
type Manager struct {
	mu      sync.Mutex
	factory SessionFactory
	current *Session
}

// NewManager builds a manager and starts the anonymous session, hydrating it
// from the local cache slot.
func NewManager(ctx context.Context, factory SessionFactory) *Manager {
	m := &Manager{factory: factory}
	m.current = factory("")
	m.current.Bootstrap(ctx)
	return m
}

// Current returns the active session.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SignIn switches the agent to identity. Signing in as the identity already
// active is a no-op. Otherwise the previous session is closed (its queued
// side effects drain first) and a fresh session is bootstrapped: cache load,
// remote merge, initial push. State is never merged across identities: the
// shared cache slot is cleared on a switch between two signed-in accounts.
// Coming from the anonymous session the slot is kept, so points earned
// before signing in are claimed by the account (the bootstrap push uploads
// them).
func (m *Manager) SignIn(ctx context.Context, identity string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.Identity() == identity {
		return m.current
	}
	if m.current != nil {
		m.current.Close()
		if m.current.Identity() != "" {
			m.current.ClearCache()
		}
		m.current.Ledger().Reset()
	}

	m.current = m.factory(identity)
	m.current.Bootstrap(ctx)
	return m.current
}

// SignOut tears down the signed-in session and returns to an empty anonymous
// local session. The cache slot is cleared so the account's history does not
// leak into the anonymous ledger. A sign-out while already anonymous is a
// no-op.
func (m *Manager) SignOut(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		if m.current.Identity() == "" {
			return
		}
		m.current.Close()
		m.current.ClearCache()
		m.current.Ledger().Reset()
	}

	m.current = m.factory("")
	m.current.Bootstrap(ctx)
}

// Close shuts down the active session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
}
