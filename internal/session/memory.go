package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/varsilias/askdesk/pkg/types"
)

var ErrEmptySessionID = errors.New("empty session id")

// Store keeps conversation history per session id.
type Store interface {
	Append(sessionID string, m types.Message) error
	Get(sessionID string) ([]types.Message, error)
	Clear(sessionID string) error
}

// Lister is implemented by stores that can enumerate their sessions.
type Lister interface {
	List() ([]Summary, error)
	Touch(sessionID string) error
}

type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string][]types.Message
	updated map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:    make(map[string][]types.Message),
		updated: make(map[string]time.Time),
	}
}

func (s *MemoryStore) Append(sessionID string, m types.Message) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = append(s.data[sessionID], m)
	s.updated[sessionID] = time.Now()
	return nil
}

func (s *MemoryStore) Get(sessionID string) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.data[sessionID]
	out := make([]types.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Clear drops the history but keeps the session listed.
func (s *MemoryStore) Clear(sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = nil
	s.updated[sessionID] = time.Now()
	return nil
}

// List returns lightweight session summaries (best effort).
type Summary struct {
	ID      string
	Title   string
	Updated time.Time
}

func (s *MemoryStore) List() ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.data))
	for id, msgs := range s.data {
		out = append(out, Summary{ID: id, Title: titleFrom(msgs), Updated: s.updated[id]})
	}
	return out, nil
}

// Touch ensures a session exists in the list.
func (s *MemoryStore) Touch(sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[sessionID]; !ok {
		s.data[sessionID] = nil
	}
	s.updated[sessionID] = time.Now()
	return nil
}

func titleFrom(msgs []types.Message) string {
	for _, m := range msgs {
		if m.Role == types.RoleUser {
			return clip(words(m.Content), 8)
		}
	}
	return ""
}

func words(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	parts := strings.Fields(s)
	if len(parts) <= 12 {
		return strings.Join(parts, " ")
	}
	return strings.Join(parts[:12], " ")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n*2 {
		return s
	}
	return string(r[:n*2]) + "…"
}
