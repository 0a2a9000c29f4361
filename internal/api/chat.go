package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/sqlchat/internal/agent"
	"github.com/ashureev/sqlchat/internal/domain"
	"github.com/ashureev/sqlchat/internal/history"
	"github.com/ashureev/sqlchat/internal/identity"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// ChatRequest is one user question.
type ChatRequest struct {
	Message string `json:"message"`
}

// HandleChat handles POST /api/chat requests. The agent's reasoning steps
// and the final answer are streamed back as SSE events; steps are also
// mirrored to the trace WebSocket.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sess := h.sessions.Get(userID, sessionID)
	if sess == nil {
		Error(w, http.StatusBadRequest, "no database connected")
		return
	}

	if !h.rateLimiter.Allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.SSE.MaxRequestBodySize)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	reqID := chiMiddleware.GetReqID(r.Context())
	prompt := agent.FormatPrompt(req.Message, sess.Tables)

	slog.Info("Chat request",
		"user_id", userID,
		"session_id", sessionID,
		"target", sess.Desc.Redacted(),
		"message_length", len(req.Message),
	)
	h.convLog.Log(agent.ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    "chat_http",
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: req.Message,
		Meta:       map[string]any{"request_id": reqID},
	})

	sess.AppendMessage(domain.RoleUser, req.Message)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	if h.cfg.SSE.RetryDelay > 0 {
		fmt.Fprintf(w, "retry: %d\n\n", h.cfg.SSE.RetryDelay.Milliseconds())
		flusher.Flush()
	}

	a := agent.New(sess.LLM, h.cfg.Agent.MaxSteps, h.cfg.Agent.MaxRows)

	var answer strings.Builder
	steps := 0
	started := time.Now()

	for ev, err := range a.Ask(r.Context(), sess.DB, prompt) {
		if err != nil {
			slog.Error("Agent stream failed", "user_id", userID, "error", err)
			h.logAssistantMessage(userID, sessionID, answer.String(), steps, true, err.Error(), reqID)
			if writeErr := writeSSE(w, "error", err.Error()); writeErr != nil {
				slog.Warn("failed to write SSE error event", "error", writeErr)
				return
			}
			flusher.Flush()
			return
		}

		steps = ev.Step
		if ev.Type == agent.EventAnswer {
			answer.WriteString(ev.Content)
		} else {
			// Intermediate reasoning goes to the sidebar too.
			h.traces.Publish(userID, sessionID, ev)
		}

		data, err := json.Marshal(ev)
		if err != nil {
			slog.Warn("failed to marshal step event", "error", err)
			continue
		}
		if err := writeSSE(w, "step", string(data)); err != nil {
			slog.Warn("failed to write SSE step event", "error", err)
			h.logAssistantMessage(userID, sessionID, answer.String(), steps, true, err.Error(), reqID)
			return
		}
		flusher.Flush()
	}

	response := answer.String()
	sess.AppendMessage(domain.RoleAssistant, response)
	sess.AppendRecord(domain.Record{
		Timestamp: time.Now(),
		UserQuery: req.Message,
		SQLQuery:  prompt,
		Response:  response,
	})
	h.logAssistantMessage(userID, sessionID, response, steps, false, "", reqID)

	done := fmt.Sprintf(`{"steps":%d,"elapsed_ms":%d}`, steps, time.Since(started).Milliseconds())
	if err := writeSSE(w, "done", done); err != nil {
		slog.Warn("failed to write SSE done event", "error", err)
		return
	}
	flusher.Flush()
}

func (h *Handler) logAssistantMessage(userID, sessionID, content string, steps int, partial bool, streamErrMsg, requestID string) {
	h.convLog.Log(agent.ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    "chat_http",
		Direction:  "inbound",
		EventType:  "chat_assistant_message",
		ContentRaw: content,
		Meta: map[string]any{
			"steps":        steps,
			"partial":      partial,
			"stream_error": streamErrMsg,
			"request_id":   requestID,
		},
	})
}

// HandleClear handles POST /api/clear: it resets the displayed message log
// to the greeting. The export history is untouched.
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())

	sess := h.sessions.Get(userID, sessionID)
	if sess == nil {
		Error(w, http.StatusBadRequest, "no database connected")
		return
	}

	sess.ClearMessages()
	slog.Info("Message history cleared", "user_id", userID, "session_id", sessionID)
	JSON(w, http.StatusOK, map[string]interface{}{"messages": sess.Messages()})
}

// HandleExport handles GET /api/export: it streams the full history as a
// CSV download.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())

	sess := h.sessions.Get(userID, sessionID)
	if sess == nil {
		Error(w, http.StatusBadRequest, "no database connected")
		return
	}

	data, err := history.ExportCSV(sess.Records())
	if err != nil {
		slog.Error("History export failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to export history")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+history.ExportFileName+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write export response", "error", err)
	}
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
