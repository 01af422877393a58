// Package session holds per-session conversation state in memory and
// serializes the operations that rewrite it. Reads hand out deep-copied
// snapshots so previews and applicability checks never contend with an
// in-flight compaction.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/ctxgate/ctxgate/types"
)

// ErrNotFound indicates an unknown session ID.
var ErrNotFound = errors.New("session not found")

// Session is the in-memory state of one conversation.
type Session struct {
	ID string

	// Model is the model name from the most recent request. The
	// auto-compaction path uses it to resolve the context window.
	Model string

	// Messages is the current conversation as last seen or compacted.
	Messages []types.Message

	// Tokens is the most recent token count for Messages.
	Tokens int

	// TokensEstimated marks Tokens as a heuristic rather than an exact
	// tokenizer count.
	TokensEstimated bool

	// CompactionCount is the number of compactions applied so far.
	CompactionCount int

	UpdatedAt time.Time
}

// clone returns a deep copy safe to hand outside the store.
func (s Session) clone() Session {
	out := s
	out.Messages = types.CloneMessages(s.Messages)
	return out
}

// Commit is the state swap a WithExclusive callback asks for, typically a
// completed compaction. Nil fields keep the current value; a non-nil
// Messages swap bumps CompactionCount.
type Commit struct {
	Messages []types.Message
	Tokens   *int
}

type entry struct {
	mu   sync.Mutex
	sess Session
}

// Store owns all sessions. All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry), now: time.Now}
}

func (s *Store) entryFor(sessionID string) *entry {
	s.mu.RLock()
	e, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[sessionID]; ok {
		return e
	}
	e = &entry{sess: Session{ID: sessionID, UpdatedAt: s.now()}}
	s.entries[sessionID] = e
	return e
}

// Snapshot returns a deep copy of the session state. The second return is
// false for sessions never seen.
func (s *Store) Snapshot(sessionID string) (Session, bool) {
	s.mu.RLock()
	e, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok {
		return Session{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.clone(), true
}

// SetMessages replaces the session's conversation with a deep copy of
// messages, creating the session if needed.
func (s *Store) SetMessages(sessionID, model string, messages []types.Message) {
	e := s.entryFor(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.Model = model
	e.sess.Messages = types.CloneMessages(messages)
	e.sess.UpdatedAt = s.now()
}

// UpdateTokens records the latest token count for the session.
func (s *Store) UpdateTokens(sessionID string, total int, estimated bool) {
	e := s.entryFor(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.Tokens = total
	e.sess.TokensEstimated = estimated
	e.sess.UpdatedAt = s.now()
}

// WithExclusive runs fn with the session lock held, passing a deep copy of
// the current state. When fn returns a non-nil Commit the store swaps the
// state in; on error or a nil Commit nothing changes. A second caller for
// the same session blocks until the first finishes.
func (s *Store) WithExclusive(sessionID string, fn func(Session) (*Commit, error)) error {
	e := s.entryFor(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()

	commit, err := fn(e.sess.clone())
	if err != nil {
		return err
	}
	if commit == nil {
		return nil
	}

	if commit.Messages != nil {
		e.sess.Messages = types.CloneMessages(commit.Messages)
		e.sess.CompactionCount++
	}
	if commit.Tokens != nil {
		e.sess.Tokens = *commit.Tokens
		e.sess.TokensEstimated = false
	}
	e.sess.UpdatedAt = s.now()
	return nil
}
