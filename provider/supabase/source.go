package supabase

import (
	"os"
	"sync"

	"github.com/condovalle/go-auth"
)

// SessionSource is where the issued session lives between runs: a file, a
// cookie jar, a keychain. Content is an opaque blob from the source's point
// of view; decoding and corruption policy belong to the caller.
type SessionSource interface {
	Load() ([]byte, error)
	Store(raw []byte) error
	Clear() error
}

// MemorySessionSource keeps the session for the process lifetime only.
type MemorySessionSource struct {
	mu  sync.Mutex
	raw []byte
}

func (m *MemorySessionSource) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raw == nil {
		return nil, nil
	}
	out := make([]byte, len(m.raw))
	copy(out, m.raw)
	return out, nil
}

func (m *MemorySessionSource) Store(raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = make([]byte, len(raw))
	copy(m.raw, raw)
	return nil
}

func (m *MemorySessionSource) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = nil
	return nil
}

// FileSessionSource persists the session blob to a single file.
type FileSessionSource struct {
	Path string
}

func (f FileSessionSource) Load() ([]byte, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return raw, nil
}

func (f FileSessionSource) Store(raw []byte) error {
	return os.WriteFile(f.Path, raw, 0o600)
}

func (f FileSessionSource) Clear() error {
	err := os.Remove(f.Path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ScrubStoredSession drops a persisted session blob that no longer decodes.
// Run it at startup so a half-written or legacy blob cannot keep wedging
// every restore. Absent and healthy blobs are left alone.
func ScrubStoredSession(source SessionSource) error {
	if source == nil {
		return nil
	}

	raw, err := source.Load()
	if err != nil || len(raw) == 0 {
		return err
	}

	if _, err := auth.DecodeStoredSession(raw); auth.IsSessionCorrupted(err) {
		return source.Clear()
	}
	return nil
}
