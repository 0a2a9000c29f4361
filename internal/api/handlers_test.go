package api

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/sqlchat/internal/agent"
	"github.com/ashureev/sqlchat/internal/config"
	"github.com/ashureev/sqlchat/internal/identity"
	"github.com/ashureev/sqlchat/internal/session"
	"github.com/ashureev/sqlchat/internal/trace"
	"github.com/go-chi/chi/v5"
	_ "modernc.org/sqlite"
)

const testAnonID = "anon_0123456789abcdef0123456789abcdef"

// scriptedLLM replays canned replies, one per Generate call.
type scriptedLLM struct {
	replies []string
}

func (s *scriptedLLM) Generate(context.Context, []agent.Turn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if len(s.replies) == 0 {
			yield("", context.Canceled)
			return
		}
		reply := s.replies[0]
		s.replies = s.replies[1:]
		yield(reply, nil)
	}
}

func testConfig(dataDir string) *config.Config {
	return &config.Config{
		Port:    "8080",
		DataDir: dataDir,
		LLM:     config.LLMConfig{APIKey: "test-key", Model: "test-model"},
		Agent:   config.AgentConfig{MaxSteps: 4, MaxRows: 10},
		RateLimit: config.RateLimitConfig{
			RequestsPerWindow: 100,
			WindowDuration:    time.Minute,
		},
		SSE: config.SSEConfig{MaxRequestBodySize: 1 << 20},
	}
}

// newTestRouter wires the handler behind the identity middleware the way
// main does.
func newTestRouter(t *testing.T, cfg *config.Config, llm agent.LLM) (chi.Router, *session.Manager) {
	t.Helper()

	sessions := session.NewManager()
	t.Cleanup(sessions.CloseAll)

	factory := func(context.Context, string, string) (agent.LLM, error) { return llm, nil }
	h := NewHandler(cfg, sessions, trace.NewRegistry(), nil, factory)

	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	h.RegisterRoutes(r)
	return r, sessions
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.AddCookie(&http.Cookie{Name: identity.AnonCookieName, Value: testAnonID})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func seedDataDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "chinook.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Exec(`CREATE TABLE albums (id INTEGER PRIMARY KEY, title TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO albums (title) VALUES ('A'), ('B')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return dir
}

func TestListDatabasesEmptyDirectoryFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r, _ := newTestRouter(t, testConfig(dir), &scriptedLLM{})

	rec := doJSON(t, r, http.MethodGet, "/api/databases", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListDatabases(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, testConfig(seedDataDir(t)), &scriptedLLM{})

	rec := doJSON(t, r, http.MethodGet, "/api/databases", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Databases []string `json:"databases"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Databases) != 1 || resp.Databases[0] != "chinook.db" {
		t.Errorf("unexpected databases: %v", resp.Databases)
	}
}

func TestConnectLocal(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, testConfig(seedDataDir(t)), &scriptedLLM{})

	rec := doJSON(t, r, http.MethodPost, "/api/connect", `{"mode":"local","file":"chinook.db"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Target   string   `json:"target"`
		ReadOnly bool     `json:"read_only"`
		Tables   []string `json:"tables"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.ReadOnly {
		t.Error("local connection should be read-only")
	}
	if len(resp.Tables) != 1 || resp.Tables[0] != "albums" {
		t.Errorf("unexpected tables: %v", resp.Tables)
	}
	if !strings.HasPrefix(resp.Target, "sqlite://") {
		t.Errorf("unexpected target: %q", resp.Target)
	}
}

func TestConnectRejectsBadHost(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, testConfig(t.TempDir()), &scriptedLLM{})

	rec := doJSON(t, r, http.MethodPost, "/api/connect",
		`{"mode":"networked","driver":"mysql","host":"root@db.example.com","user":"root","password":"x","database":"shop"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "@") {
		t.Errorf("expected host validation message, got %s", rec.Body.String())
	}
}

func TestConnectRejectsMissingFields(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, testConfig(t.TempDir()), &scriptedLLM{})

	rec := doJSON(t, r, http.MethodPost, "/api/connect",
		`{"mode":"networked","driver":"mysql","host":"db.example.com","user":"root","password":"","database":"shop"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestConnectRequiresAPIKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig(seedDataDir(t))
	cfg.LLM.APIKey = ""
	r, _ := newTestRouter(t, cfg, &scriptedLLM{})

	rec := doJSON(t, r, http.MethodPost, "/api/connect", `{"mode":"local","file":"chinook.db"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "API key") {
		t.Errorf("expected API key message, got %s", rec.Body.String())
	}
}

func TestChatWithoutConnectionFails(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, testConfig(t.TempDir()), &scriptedLLM{})

	rec := doJSON(t, r, http.MethodPost, "/api/chat", `{"message":"hi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestChatStreamsAgentAndRecordsHistory(t *testing.T) {
	t.Parallel()

	llm := &scriptedLLM{replies: []string{
		"```sql\nSELECT COUNT(*) AS n FROM albums\n```",
		"Final Answer: there are 2 albums.",
	}}
	r, _ := newTestRouter(t, testConfig(seedDataDir(t)), llm)

	if rec := doJSON(t, r, http.MethodPost, "/api/connect", `{"mode":"local","file":"chinook.db"}`); rec.Code != http.StatusOK {
		t.Fatalf("connect failed: %d %s", rec.Code, rec.Body.String())
	}

	rec := doJSON(t, r, http.MethodPost, "/api/chat", `{"message":"how many albums?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat failed: %d %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type: %q", ct)
	}
	if !strings.Contains(body, `"type":"sql"`) {
		t.Errorf("expected sql step in stream: %s", body)
	}
	if !strings.Contains(body, "there are 2 albums.") {
		t.Errorf("expected answer in stream: %s", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Errorf("expected done event: %s", body)
	}

	// The exchange must land in the export history.
	rec = doJSON(t, r, http.MethodGet, "/api/export", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export failed: %d %s", rec.Code, rec.Body.String())
	}
	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("export is not valid CSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 record, got %d rows", len(rows))
	}
	if rows[1][1] != "how many albums?" {
		t.Errorf("unexpected exported question: %q", rows[1][1])
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "chat_history.csv") {
		t.Errorf("unexpected disposition: %q", got)
	}
}

func TestClearResetsMessagesButNotHistory(t *testing.T) {
	t.Parallel()

	llm := &scriptedLLM{replies: []string{"Final Answer: two."}}
	r, _ := newTestRouter(t, testConfig(seedDataDir(t)), llm)

	if rec := doJSON(t, r, http.MethodPost, "/api/connect", `{"mode":"local","file":"chinook.db"}`); rec.Code != http.StatusOK {
		t.Fatalf("connect failed: %d %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, r, http.MethodPost, "/api/chat", `{"message":"count?"}`); rec.Code != http.StatusOK {
		t.Fatalf("chat failed: %d %s", rec.Code, rec.Body.String())
	}

	rec := doJSON(t, r, http.MethodPost, "/api/clear", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("clear failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Role != "assistant" {
		t.Errorf("expected greeting-only log, got %v", resp.Messages)
	}

	// History export still has the cleared exchange.
	rec = doJSON(t, r, http.MethodGet, "/api/export", "")
	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("export is not valid CSV: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected history to survive clear, got %d rows", len(rows))
	}
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2, time.Minute)
	if !rl.Allow("u") || !rl.Allow("u") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("u") {
		t.Error("third request within window should be throttled")
	}
	if !rl.Allow("other") {
		t.Error("different user should not be throttled")
	}
}
