// internal/cache/store.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jason-s-yu/tabletop/internal/models"
)

var (
	// ErrSessionNotFound is returned when no session is stored under the id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrVersionConflict is returned by Save when the stored version moved on.
	ErrVersionConflict = errors.New("session version conflict")
)

// Store persists sessions with optimistic versioning. Every successful write bumps
// Session.Version by one; a write conditioned on a stale version fails with
// ErrVersionConflict and changes nothing.
type Store interface {
	// Load returns a private copy of the stored session.
	Load(ctx context.Context, id string) (*models.Session, error)

	// Create stores s at version 1 unless the id already exists. It reports whether
	// it created the record.
	Create(ctx context.Context, s *models.Session) (bool, error)

	// Save writes s if the stored version still equals expected.
	Save(ctx context.Context, s *models.Session, expected int64) error

	// Delete removes the session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
}

// MemoryStore is a process-local Store. Sessions are kept serialized so callers never
// share state with the store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	versions map[string]int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

func (m *MemoryStore) Load(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	raw, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("load %s: %w", id, ErrSessionNotFound)
	}
	return decodeSession(raw)
}

func (m *MemoryStore) Create(_ context.Context, s *models.Session) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return false, nil
	}
	raw, err := encodeSession(s, 1)
	if err != nil {
		return false, err
	}
	m.sessions[s.ID] = raw
	m.versions[s.ID] = 1
	s.Version = 1
	return true, nil
}

func (m *MemoryStore) Save(_ context.Context, s *models.Session, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.versions[s.ID]
	if !ok {
		return fmt.Errorf("save %s: %w", s.ID, ErrSessionNotFound)
	}
	if current != expected {
		return fmt.Errorf("save %s at version %d (stored %d): %w", s.ID, expected, current, ErrVersionConflict)
	}
	raw, err := encodeSession(s, expected+1)
	if err != nil {
		return err
	}
	m.sessions[s.ID] = raw
	m.versions[s.ID] = expected + 1
	s.Version = expected + 1
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.versions, id)
	return nil
}

// encodeSession serializes s as it will be stored at version.
func encodeSession(s *models.Session, version int64) ([]byte, error) {
	cp := *s
	cp.Version = version
	raw, err := json.Marshal(&cp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session %s: %w", s.ID, err)
	}
	return raw, nil
}

func decodeSession(raw []byte) (*models.Session, error) {
	var s models.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}
