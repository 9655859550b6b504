package relay

import (
	"sync"

	"github.com/AnshuAditya03/Anshu-backend/pkg/types"
)

// Session holds the ordered conversation history for one logical caller.
// The full history is passed to every generation call; appends happen only
// after a turn fully succeeded and are serialized by the session's own mutex,
// so concurrent turns on distinct sessions never interleave.
type Session struct {
	mu       sync.Mutex
	id       string
	limit    int
	messages []types.Message
}

// NewSession creates a session. limit caps the retained history in messages
// (a user/assistant exchange is two messages); 0 means unbounded, which
// matches the historical behaviour and is a known resource trade-off.
func NewSession(id string, limit int) *Session {
	return &Session{id: id, limit: limit}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Snapshot returns a copy of the current history. The copy is safe to hand to
// a generation call while other turns append.
func (s *Session) Snapshot() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Append records one completed exchange. When a limit is set, the oldest
// messages are dropped to stay within it.
func (s *Session) Append(userText, assistantText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages,
		types.Message{Role: "user", Content: userText},
		types.Message{Role: "assistant", Content: assistantText},
	)
	if s.limit > 0 && len(s.messages) > s.limit {
		drop := len(s.messages) - s.limit
		s.messages = append(s.messages[:0:0], s.messages[drop:]...)
	}
}

// Len returns the number of retained messages.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// SessionManager hands out sessions by identifier, creating them on first
// use. Safe for concurrent use.
type SessionManager struct {
	mu       sync.Mutex
	limit    int
	sessions map[string]*Session
}

// NewSessionManager creates a manager whose sessions use the given history
// limit (0 = unbounded).
func NewSessionManager(limit int) *SessionManager {
	return &SessionManager{
		limit:    limit,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id, creating it if needed. An empty id returns
// nil: the caller asked for a stateless turn.
func (m *SessionManager) Get(id string) *Session {
	if id == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := NewSession(id, m.limit)
	m.sessions[id] = s
	return s
}

// Remove drops the session for id, if any. Used when a streaming connection
// that owned the session goes away.
func (m *SessionManager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
