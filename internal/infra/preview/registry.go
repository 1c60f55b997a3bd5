package preview

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
)

// PathPrefix is where the HTTP layer serves previews.
const PathPrefix = "/previews/"

var ErrNotFound = errors.New("preview not found")

type entry struct {
	data     []byte
	mimeType string
}

// Registry is an in-memory PreviewStore. Handles are uuids exposed as
// /previews/{handle} and stay readable until revoked.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Create implementasi PreviewStore
func (r *Registry) Create(f ecg.CandidateFile) (string, error) {
	handle := uuid.New().String()
	r.mu.Lock()
	r.entries[handle] = entry{data: f.Data, mimeType: f.MimeType}
	r.mu.Unlock()
	return PathPrefix + handle, nil
}

// Revoke implementasi PreviewStore
func (r *Registry) Revoke(uri string) error {
	handle := strings.TrimPrefix(uri, PathPrefix)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[handle]; !ok {
		return ErrNotFound
	}
	delete(r.entries, handle)
	return nil
}

// Open returns the bytes and media type behind a handle.
func (r *Registry) Open(handle string) ([]byte, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[handle]
	if !ok {
		return nil, "", ErrNotFound
	}
	return e.data, e.mimeType, nil
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
