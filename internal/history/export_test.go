package history

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/sqlchat/internal/domain"
)

func TestExportCSVEmptyHistory(t *testing.T) {
	t.Parallel()

	out, err := ExportCSV(nil)
	if err != nil {
		t.Fatalf("ExportCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected header-only output, got %d lines", len(lines))
	}
	if lines[0] != "timestamp,user_query,sql_query,response" {
		t.Errorf("unexpected header: %q", lines[0])
	}
}

func TestExportCSVFieldOrder(t *testing.T) {
	t.Parallel()

	records := []domain.Record{
		{
			Timestamp: time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
			UserQuery: "how many albums?",
			SQLQuery:  "Database schema includes tables: albums.\nAnswer the question: how many albums?",
			Response:  "There are 347 albums.",
		},
		{
			Timestamp: time.Date(2024, 3, 1, 10, 31, 0, 0, time.UTC),
			UserQuery: `who sang "Hey Jude"?`,
			SQLQuery:  "prompt two",
			Response:  "The Beatles",
		},
	}

	out, err := ExportCSV(records)
	if err != nil {
		t.Fatalf("ExportCSV failed: %v", err)
	}

	r := csv.NewReader(bytes.NewReader(out))
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("export is not valid CSV: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("expected header + 2 records, got %d rows", len(rows))
	}
	if rows[1][0] != "2024-03-01 10:30:00" {
		t.Errorf("unexpected timestamp: %q", rows[1][0])
	}
	if rows[1][1] != "how many albums?" {
		t.Errorf("unexpected user_query: %q", rows[1][1])
	}
	if !strings.Contains(rows[1][2], "Answer the question") {
		t.Errorf("unexpected sql_query field: %q", rows[1][2])
	}
	if rows[2][3] != "The Beatles" {
		t.Errorf("unexpected response: %q", rows[2][3])
	}
	// Quoted question must round-trip through CSV escaping.
	if rows[2][1] != `who sang "Hey Jude"?` {
		t.Errorf("quoted field did not round-trip: %q", rows[2][1])
	}
}
