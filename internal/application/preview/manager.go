package preview

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
)

// Manager owns the preview handles of one orchestration session. Every
// handle it creates is released exactly once, by Revoke or RevokeAll.
type Manager struct {
	store ecg.PreviewStore
	log   zerolog.Logger

	mu   sync.Mutex
	live map[string]struct{}
}

func NewManager(store ecg.PreviewStore, log zerolog.Logger) *Manager {
	return &Manager{store: store, log: log, live: make(map[string]struct{})}
}

// Attach returns a copy of f carrying a preview handle when f is an image.
// Non-image files come back unchanged.
func (m *Manager) Attach(f ecg.CandidateFile) (ecg.CandidateFile, error) {
	if !f.IsImage() || f.PreviewURI != "" {
		return f, nil
	}
	uri, err := m.store.Create(f)
	if err != nil {
		return f, fmt.Errorf("create preview for %s: %w", f.Name, err)
	}

	m.mu.Lock()
	m.live[uri] = struct{}{}
	m.mu.Unlock()

	f.PreviewURI = uri
	return f, nil
}

// Revoke releases f's handle and returns a copy without it. Calling it on a
// file with no handle, or with an already released one, is a no-op.
func (m *Manager) Revoke(f ecg.CandidateFile) ecg.CandidateFile {
	uri := f.PreviewURI
	f.PreviewURI = ""
	if uri == "" {
		return f
	}

	m.mu.Lock()
	_, ok := m.live[uri]
	delete(m.live, uri)
	m.mu.Unlock()

	if ok {
		m.release(uri)
	}
	return f
}

// RevokeAll releases every live handle (session teardown).
func (m *Manager) RevokeAll() int {
	m.mu.Lock()
	uris := make([]string, 0, len(m.live))
	for uri := range m.live {
		uris = append(uris, uri)
	}
	m.live = make(map[string]struct{})
	m.mu.Unlock()

	for _, uri := range uris {
		m.release(uri)
	}
	return len(uris)
}

// release hands uri back to the store. The handle already left live, so a
// failure is only logged.
func (m *Manager) release(uri string) {
	if err := m.store.Revoke(uri); err != nil {
		m.log.Warn().Err(err).Str("preview", uri).Msg("release preview")
	}
}

// Live returns the number of handles not yet released.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}
