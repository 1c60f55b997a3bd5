package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager keeps the live sessions of the service, keyed by id.
type Manager struct {
	Deps Deps
	// OnCreate runs before a new session is handed out.
	OnCreate func(id string)
	// OnClose runs after a session is torn down.
	OnClose func(id string)

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(deps Deps) *Manager {
	return &Manager{Deps: deps, sessions: make(map[string]*Session)}
}

// Create starts a session for userID (may be empty for anonymous use).
func (m *Manager) Create(userID string) *Session {
	s := NewSession(uuid.New().String(), userID, m.Deps)
	if m.OnCreate != nil {
		m.OnCreate(s.ID())
	}
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	m.Deps.Log.Info().Str("session_id", s.ID()).Bool("anonymous", userID == "").Msg("session created")
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close tears down and forgets one session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	m.teardown(s)
	return nil
}

// CloseAll tears down every session (shutdown).
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		m.teardown(s)
	}
}

// Sweep closes sessions idle for longer than maxIdle. Sessions with an
// analysis in progress are kept.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	now := m.now()
	var stale []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.State().Busy() {
			continue
		}
		if now.Sub(s.IdleSince()) > maxIdle {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		m.teardown(s)
	}
	if len(stale) > 0 {
		m.Deps.Log.Info().Int("closed", len(stale)).Msg("idle sessions swept")
	}
	return len(stale)
}

// StartJanitor sweeps idle sessions every interval until ctx is done.
func (m *Manager) StartJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	if interval <= 0 || maxIdle <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep(maxIdle)
			}
		}
	}()
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) teardown(s *Session) {
	s.Close()
	if m.OnClose != nil {
		m.OnClose(s.ID())
	}
}

func (m *Manager) now() time.Time {
	if m.Deps.Clock == nil {
		return time.Now()
	}
	return m.Deps.Clock.Now()
}
