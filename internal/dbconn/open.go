package dbconn

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"path/filepath"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	_ "modernc.org/sqlite"             // pure-Go sqlite driver
)

const connectTimeout = 10 * time.Second

// Open turns a validated descriptor into a live handle and verifies it with
// a ping. Local files are opened read-only so the agent cannot mutate data;
// networked connections have no such enforcement.
func Open(ctx context.Context, d Descriptor) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch d.Kind {
	case KindLocal:
		abs, pathErr := filepath.Abs(d.Path)
		if pathErr != nil {
			return nil, fmt.Errorf("resolve database path: %w", pathErr)
		}
		db, err = sql.Open("sqlite", "file:"+abs+"?mode=ro")
	case KindNetworked:
		switch d.Driver {
		case DriverMySQL:
			mc := gomysql.NewConfig()
			mc.User = d.User
			mc.Passwd = d.Password
			mc.Net = "tcp"
			mc.Addr = net.JoinHostPort(d.Host, d.Port)
			mc.DBName = d.Database
			mc.Timeout = connectTimeout
			db, err = sql.Open("mysql", mc.FormatDSN())
		case DriverPostgres:
			db, err = sql.Open("pgx", d.URI())
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, d.Driver)
		}
	default:
		return nil, ErrNoSelection
	}

	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			err = fmt.Errorf("%w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("connect to %s: %w", d.Redacted(), err)
	}

	return db, nil
}
