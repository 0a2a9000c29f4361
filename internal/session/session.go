// Package session holds per-user chat state for the lifetime of the process.
package session

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/sqlchat/internal/agent"
	"github.com/ashureev/sqlchat/internal/dbconn"
	"github.com/ashureev/sqlchat/internal/domain"
)

// Session is one user tab's connected state: the database handle, the schema
// hint, the displayed message log and the exportable history. Nothing here
// survives a restart.
type Session struct {
	UserID    string
	ID        string
	Desc      dbconn.Descriptor
	DB        *sql.DB
	Tables    []string
	LLM       agent.LLM
	CreatedAt time.Time

	mu         sync.Mutex
	messages   []domain.Message
	records    []domain.Record
	lastActive time.Time
}

// newSession seeds the message log with the greeting.
func newSession(userID, sessionID string, desc dbconn.Descriptor, db *sql.DB, tables []string, llm agent.LLM) *Session {
	now := time.Now()
	return &Session{
		UserID:     userID,
		ID:         sessionID,
		Desc:       desc,
		DB:         db,
		Tables:     tables,
		LLM:        llm,
		CreatedAt:  now,
		messages:   domain.NewGreeting(),
		lastActive: now,
	}
}

// Messages returns a copy of the displayed message log.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.messages...)
}

// AppendMessage appends to the displayed message log.
func (s *Session) AppendMessage(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, domain.Message{Role: role, Content: content})
	s.lastActive = time.Now()
}

// ClearMessages resets the displayed log to the single greeting. The history
// records are untouched: clear affects only what is shown, never the export.
func (s *Session) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = domain.NewGreeting()
	s.lastActive = time.Now()
}

// AppendRecord appends one exchange to the export history.
func (s *Session) AppendRecord(rec domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	s.lastActive = time.Now()
}

// Records returns a copy of the export history.
func (s *Session) Records() []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Record(nil), s.records...)
}

// Touch marks the session active.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
}

// LastActive reports when the session last saw traffic.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) close() {
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			slog.Warn("failed to close session database handle",
				"user_id", s.UserID, "session_id", s.ID, "error", err)
		}
	}
}

// Manager tracks connected sessions keyed by user and tab session ID.
type Manager struct {
	mu     sync.RWMutex
	active map[string]map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{active: make(map[string]map[string]*Session)}
}

// Get returns the session for a user and tab, or nil.
func (m *Manager) Get(userID, sessionID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[userID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Create replaces any existing session for the user/tab, closing the old
// database handle.
func (m *Manager) Create(userID, sessionID string, desc dbconn.Descriptor, db *sql.DB, tables []string, llm agent.LLM) *Session {
	sess := newSession(userID, sessionID, desc, db, tables, llm)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[userID]; !ok {
		m.active[userID] = make(map[string]*Session)
	}
	if old, ok := m.active[userID][sessionID]; ok {
		old.close()
	}
	m.active[userID][sessionID] = sess
	slog.Info("Chat session created", "user_id", userID, "session_id", sessionID, "target", desc.Redacted())
	return sess
}

// Remove drops a session and closes its handle.
func (m *Manager) Remove(userID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, ok := m.active[userID]
	if !ok {
		return
	}
	if sess, ok := sessions[sessionID]; ok {
		sess.close()
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(m.active, userID)
		}
		slog.Info("Chat session removed", "user_id", userID, "session_id", sessionID)
	}
}

// CloseIdle removes every session idle longer than ttl and returns the count.
func (m *Manager) CloseIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	closed := 0
	for userID, sessions := range m.active {
		for sessionID, sess := range sessions {
			if sess.LastActive().Before(cutoff) {
				sess.close()
				delete(sessions, sessionID)
				closed++
				slog.Info("Idle chat session closed", "user_id", userID, "session_id", sessionID)
			}
		}
		if len(sessions) == 0 {
			delete(m.active, userID)
		}
	}
	return closed
}

// CloseAll shuts every session down, for graceful shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sessions := range m.active {
		for _, sess := range sessions {
			sess.close()
		}
	}
	m.active = make(map[string]map[string]*Session)
}
