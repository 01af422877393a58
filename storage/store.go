// Package storage persists the engine's durable state: per-session
// auto-compaction flags and the compaction audit trail. Conversation
// content itself stays in memory with the session store.
package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/ctxgate/ctxgate/compaction"
)

// ErrNotFound indicates the requested session has no stored state.
var ErrNotFound = errors.New("storage: not found")

// Store is the persistence interface. Implementations must be safe for
// concurrent use.
type Store interface {
	// GetAutoCompaction returns the stored auto-compaction flag for a
	// session. found is false when the session has no stored preference.
	GetAutoCompaction(ctx context.Context, sessionID string) (enabled, found bool, err error)

	// SetAutoCompaction stores the auto-compaction flag for a session.
	SetAutoCompaction(ctx context.Context, sessionID string, enabled bool) error

	// AppendCompactionRecord appends one audit entry.
	AppendCompactionRecord(ctx context.Context, record compaction.Record) error

	// GetCompactionHistory returns a session's audit entries, oldest first.
	GetCompactionHistory(ctx context.Context, sessionID string) ([]compaction.Record, error)

	// Close releases underlying resources.
	Close() error
}

// MemoryStore is an in-process Store. State is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	auto    map[string]bool
	history map[string][]compaction.Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auto:    make(map[string]bool),
		history: make(map[string][]compaction.Record),
	}
}

func (s *MemoryStore) GetAutoCompaction(_ context.Context, sessionID string) (bool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enabled, found := s.auto[sessionID]
	return enabled, found, nil
}

func (s *MemoryStore) SetAutoCompaction(_ context.Context, sessionID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auto[sessionID] = enabled
	return nil
}

func (s *MemoryStore) AppendCompactionRecord(_ context.Context, record compaction.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[record.SessionID] = append(s.history[record.SessionID], record)
	return nil
}

func (s *MemoryStore) GetCompactionHistory(_ context.Context, sessionID string) ([]compaction.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.history[sessionID]
	out := make([]compaction.Record, len(records))
	copy(out, records)
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
