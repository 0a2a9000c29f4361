// Package trace streams the agent's intermediate reasoning to the UI sidebar
// over WebSocket.
package trace

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/sqlchat/internal/agent"
	"github.com/coder/websocket"
)

const publishTimeout = 5 * time.Second

// Registry tracks active trace connections for users.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]map[string]*websocket.Conn)}
}

// GetActive returns the active connection for a user and session.
func (r *Registry) GetActive(userID, sessionID string) *websocket.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sessions, ok := r.active[userID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Register adds a new trace connection for a user/session.
func (r *Registry) Register(userID, sessionID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[userID]; !exists {
		r.active[userID] = make(map[string]*websocket.Conn)
	}

	if existing, exists := r.active[userID][sessionID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}

	r.active[userID][sessionID] = conn
	slog.Info("Trace stream registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes a trace connection for a user/session.
func (r *Registry) Unregister(userID, sessionID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessions, ok := r.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(r.active, userID)
			}
			slog.Info("Trace stream unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

// Publish pushes one reasoning step to the session's trace connection, if
// any. Delivery is best-effort: a missing or broken connection never fails
// the chat interaction.
func (r *Registry) Publish(userID, sessionID string, event *agent.StepEvent) {
	conn := r.GetActive(userID, sessionID)
	if conn == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal trace event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("trace write failed", "user_id", userID, "session_id", sessionID, "error", err)
	}
}
