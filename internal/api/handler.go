// Package api provides HTTP handlers for the SQL chat API.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ashureev/sqlchat/internal/agent"
	"github.com/ashureev/sqlchat/internal/config"
	"github.com/ashureev/sqlchat/internal/session"
	"github.com/ashureev/sqlchat/internal/trace"
	"github.com/go-chi/chi/v5"
)

// LLMFactory builds an LLM client for one session's API key. Swappable so
// tests can script the model.
type LLMFactory func(ctx context.Context, apiKey, model string) (agent.LLM, error)

// Handler holds the API's shared dependencies.
type Handler struct {
	cfg         *config.Config
	sessions    *session.Manager
	traces      *trace.Registry
	convLog     agent.ConversationLogger
	rateLimiter *RateLimiter
	newLLM      LLMFactory
}

// NewHandler creates the API handler.
func NewHandler(cfg *config.Config, sessions *session.Manager, traces *trace.Registry, convLog agent.ConversationLogger, newLLM LLMFactory) *Handler {
	if convLog == nil {
		convLog = agent.NoopConversationLogger()
	}
	if newLLM == nil {
		newLLM = func(ctx context.Context, apiKey, model string) (agent.LLM, error) {
			return agent.NewGeminiLLM(ctx, apiKey, model)
		}
	}
	return &Handler{
		cfg:         cfg,
		sessions:    sessions,
		traces:      traces,
		convLog:     convLog,
		rateLimiter: NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration),
		newLLM:      newLLM,
	}
}

// RegisterRoutes registers the chat API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/databases", h.HandleListDatabases)
		r.Post("/connect", h.HandleConnect)
		r.Get("/session", h.HandleSessionInfo)
		r.Post("/chat", h.HandleChat)
		r.Post("/clear", h.HandleClear)
		r.Get("/export", h.HandleExport)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
