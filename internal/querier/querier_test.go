package querier

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func openSeeded(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "q.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Exec(`CREATE TABLE tracks (id INTEGER PRIMARY KEY, name TEXT, plays INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO tracks (name, plays) VALUES ('So What', 120), ('Naima', NULL), ('Footprints', 47)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return db
}

func TestRunCollectsRows(t *testing.T) {
	t.Parallel()

	db := openSeeded(t)
	res, err := Run(context.Background(), db, `SELECT name, plays FROM tracks ORDER BY id`, 10)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Columns) != 2 || res.Columns[0] != "name" {
		t.Errorf("unexpected columns: %v", res.Columns)
	}
	if len(res.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(res.Rows))
	}
	if res.Rows[1][1] != "NULL" {
		t.Errorf("expected NULL rendering, got %q", res.Rows[1][1])
	}
	if res.Truncated {
		t.Error("result should not be truncated")
	}
}

func TestRunTruncatesAtRowCap(t *testing.T) {
	t.Parallel()

	db := openSeeded(t)
	res, err := Run(context.Background(), db, `SELECT name FROM tracks ORDER BY id`, 2)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	if !res.Truncated {
		t.Error("expected truncation flag")
	}
}

func TestRunBadSQLFails(t *testing.T) {
	t.Parallel()

	db := openSeeded(t)
	if _, err := Run(context.Background(), db, `SELECT nothing FROM nowhere`, 10); err == nil {
		t.Fatal("expected query error")
	}
}

func TestRenderTable(t *testing.T) {
	t.Parallel()

	db := openSeeded(t)
	res, err := Run(context.Background(), db, `SELECT name, plays FROM tracks WHERE plays > 100`, 10)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	out := RenderTable(res)
	if !strings.HasPrefix(out, "```") || !strings.HasSuffix(out, "```") {
		t.Errorf("expected fenced output, got %q", out)
	}
	if !strings.Contains(out, "So What") {
		t.Errorf("expected row content in table: %q", out)
	}
	if !strings.Contains(out, "name") {
		t.Errorf("expected header in table: %q", out)
	}
}

func TestRenderTableEmpty(t *testing.T) {
	t.Parallel()

	out := RenderTable(&Result{})
	if !strings.Contains(out, "No results.") {
		t.Errorf("expected empty placeholder, got %q", out)
	}
}
