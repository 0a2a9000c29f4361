package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/sqlchat/internal/dbconn"
	"github.com/ashureev/sqlchat/internal/identity"
)

// Connection modes offered by the sidebar.
const (
	ModeLocal     = "local"
	ModeNetworked = "networked"
)

// ConnectRequest carries the sidebar's selection.
type ConnectRequest struct {
	Mode string `json:"mode"`

	// Local mode.
	File string `json:"file,omitempty"`

	// Networked mode.
	Driver   string `json:"driver,omitempty"`
	Host     string `json:"host,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Database string `json:"database,omitempty"`

	// Optional per-session override of the server's LLM API key.
	APIKey string `json:"api_key,omitempty"`
}

// HandleListDatabases handles GET /api/databases.
func (h *Handler) HandleListDatabases(w http.ResponseWriter, r *http.Request) {
	files, err := dbconn.DiscoverLocal(h.cfg.DataDir)
	if err != nil {
		if errors.Is(err, dbconn.ErrNoDatabases) {
			Error(w, http.StatusNotFound, err.Error())
			return
		}
		slog.Error("Database discovery failed", "dir", h.cfg.DataDir, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list local databases")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"databases": files})
}

// HandleConnect handles POST /api/connect: it validates the selection, opens
// the database, introspects the schema and creates the chat session. Every
// validation or driver failure halts the interaction with a user-visible
// message.
func (h *Handler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.SSE.MaxRequestBodySize)
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		desc dbconn.Descriptor
		err  error
	)
	switch req.Mode {
	case ModeLocal:
		var path string
		path, err = dbconn.ResolveLocal(h.cfg.DataDir, req.File)
		if err == nil {
			desc, err = dbconn.NewLocal(path)
		}
	case ModeNetworked:
		desc, err = dbconn.NewNetworked(req.Driver, req.Host, req.User, req.Password, req.Database)
	default:
		err = dbconn.ErrNoSelection
	}
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = h.cfg.LLM.APIKey
	}
	if apiKey == "" {
		Error(w, http.StatusBadRequest, "LLM API key is required")
		return
	}

	llm, err := h.newLLM(r.Context(), apiKey, h.cfg.LLM.Model)
	if err != nil {
		slog.Error("Failed to create LLM client", "user_id", userID, "error", err)
		Error(w, http.StatusBadGateway, "failed to initialize language model client")
		return
	}

	db, err := dbconn.Open(r.Context(), desc)
	if err != nil {
		slog.Warn("Database connection failed",
			"user_id", userID, "target", desc.Redacted(), "error", err)
		Error(w, http.StatusBadGateway, "connection failed: "+err.Error())
		return
	}

	// Introspection failure is non-fatal: the agent runs without a hint.
	tables, err := dbconn.TableNames(r.Context(), db, desc)
	if err != nil {
		slog.Warn("Schema introspection failed",
			"user_id", userID, "target", desc.Redacted(), "error", err)
		tables = nil
	}

	sess := h.sessions.Create(userID, sessionID, desc, db, tables, llm)

	slog.Info("Database connected",
		"user_id", userID, "session_id", sessionID,
		"target", desc.Redacted(), "tables", len(tables), "read_only", desc.ReadOnly())

	JSON(w, http.StatusOK, map[string]interface{}{
		"target":    desc.Redacted(),
		"read_only": desc.ReadOnly(),
		"tables":    tables,
		"messages":  sess.Messages(),
	})
}

// HandleSessionInfo handles GET /api/session for page reloads.
func (h *Handler) HandleSessionInfo(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())

	sess := h.sessions.Get(userID, sessionID)
	if sess == nil {
		JSON(w, http.StatusOK, map[string]interface{}{"connected": false})
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"connected": true,
		"target":    sess.Desc.Redacted(),
		"read_only": sess.Desc.ReadOnly(),
		"tables":    sess.Tables,
		"messages":  sess.Messages(),
	})
}
