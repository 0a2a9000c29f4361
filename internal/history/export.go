// Package history serializes chat history records for download.
package history

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/ashureev/sqlchat/internal/domain"
)

// ExportFileName is the suggested download name for the CSV export.
const ExportFileName = "chat_history.csv"

// csvHeader lists the exported fields in declared order.
var csvHeader = []string{"timestamp", "user_query", "sql_query", "response"}

// ExportCSV renders the history records as CSV: a header row plus one row
// per record, in append order. The output is produced on demand and never
// written to disk by the server.
func ExportCSV(records []domain.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.Timestamp.Format(time.DateTime),
			rec.UserQuery,
			rec.SQLQuery,
			rec.Response,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
