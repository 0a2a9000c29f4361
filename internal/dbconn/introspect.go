package dbconn

import (
	"context"
	"database/sql"
	"fmt"
)

// TableNames queries the connected database for its list of tables. Callers
// treat failure as non-fatal: the agent still runs, just without a schema
// hint.
func TableNames(ctx context.Context, db *sql.DB, d Descriptor) ([]string, error) {
	var query string
	switch {
	case d.Kind == KindLocal:
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	case d.Driver == DriverMySQL:
		query = `SHOW TABLES`
	case d.Driver == DriverPostgres:
		query = `SELECT tablename FROM pg_catalog.pg_tables WHERE schemaname = 'public' ORDER BY tablename`
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, d.Driver)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return tables, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return tables, fmt.Errorf("list tables: %w", err)
	}

	return tables, nil
}
