// Package querier executes SQL against a live handle and renders results.
package querier

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Result holds one query's tabular output.
type Result struct {
	Columns   []string
	Rows      [][]string
	Truncated bool // true when the row cap cut the result short
	Elapsed   time.Duration
}

// Run executes a single query and collects up to maxRows rows as strings.
func Run(ctx context.Context, db *sql.DB, query string, maxRows int) (*Result, error) {
	start := time.Now()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	res := &Result{Columns: cols}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if maxRows > 0 && len(res.Rows) >= maxRows {
			res.Truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return res, fmt.Errorf("scan row: %w", err)
		}
		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = format(v)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return res, fmt.Errorf("row traversal: %w", err)
	}

	res.Elapsed = time.Since(start)
	return res, nil
}

func format(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

// RenderTable renders a result in the psql style inside a fenced block.
func RenderTable(res *Result) string {
	var b strings.Builder
	b.WriteString("```\n")

	if res == nil || len(res.Columns) == 0 {
		b.WriteString("No results.\n")
		b.WriteString("```")
		return b.String()
	}

	table := tablewriter.NewWriter(&b)
	table.SetBorder(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(res.Columns)
	table.AppendBulk(res.Rows)
	table.Render()

	if res.Truncated {
		fmt.Fprintf(&b, "(output truncated at %d rows)\n", len(res.Rows))
	}
	b.WriteString("```")
	return b.String()
}
