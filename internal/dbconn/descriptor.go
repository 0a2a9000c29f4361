// Package dbconn builds and opens database connections from user-facing
// selections: a local SQLite file or a networked MySQL/PostgreSQL server.
package dbconn

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Networked driver names accepted from the UI.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Default ports substituted when the host string carries none.
const (
	defaultMySQLPort    = "3306"
	defaultPostgresPort = "5432"
)

// Configuration errors. All of them halt the interaction before any
// connection attempt is made.
var (
	ErrNoSelection    = errors.New("no database selected")
	ErrMissingField   = errors.New("all connection fields are required")
	ErrHostContainsAt = errors.New("host cannot contain '@'")
	ErrInvalidPort    = errors.New("port must be numeric")
	ErrUnknownDriver  = errors.New("unknown database driver")
)

// Kind distinguishes the two descriptor variants.
type Kind int

const (
	// KindLocal selects a read-only SQLite file.
	KindLocal Kind = iota + 1
	// KindNetworked selects a MySQL or PostgreSQL server.
	KindNetworked
)

// Descriptor is the resolved, validated description of which database to
// connect to. Exactly one variant is populated.
type Descriptor struct {
	Kind Kind

	// Local variant.
	Path string

	// Networked variant.
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

// NewLocal builds a descriptor for a local SQLite file.
func NewLocal(path string) (Descriptor, error) {
	if strings.TrimSpace(path) == "" {
		return Descriptor{}, ErrNoSelection
	}
	return Descriptor{Kind: KindLocal, Path: path}, nil
}

// NewNetworked validates the free-text credential fields and resolves the
// host/port split. The host may embed a port as "host:port"; a non-numeric
// embedded port is rejected, a missing one is replaced by the driver default.
func NewNetworked(driver, host, user, password, database string) (Descriptor, error) {
	host = strings.TrimSpace(host)
	if host == "" || user == "" || password == "" || database == "" {
		return Descriptor{}, ErrMissingField
	}

	var defaultPort string
	switch driver {
	case DriverMySQL:
		defaultPort = defaultMySQLPort
	case DriverPostgres:
		defaultPort = defaultPostgresPort
	default:
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	if strings.Contains(host, "@") {
		return Descriptor{}, ErrHostContainsAt
	}

	port := defaultPort
	if i := strings.LastIndex(host, ":"); i >= 0 {
		port = host[i+1:]
		host = host[:i]
		if !isNumeric(port) {
			return Descriptor{}, fmt.Errorf("%w: %q", ErrInvalidPort, port)
		}
	}

	return Descriptor{
		Kind:     KindNetworked,
		Driver:   driver,
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		Database: database,
	}, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// URI assembles the connection string. Credentials go through url.URL's
// userinfo encoding: reserved characters are percent-encoded, and a space
// becomes %20 rather than QueryEscape's '+', which pgx would not decode
// back to a space.
func (d Descriptor) URI() string {
	switch d.Kind {
	case KindLocal:
		return "sqlite://" + d.Path
	case KindNetworked:
		u := url.URL{
			Scheme: d.Driver,
			User:   url.UserPassword(d.User, d.Password),
			Host:   net.JoinHostPort(d.Host, d.Port),
			Path:   "/" + d.Database,
		}
		return u.String()
	}
	return ""
}

// Redacted returns the connection target safe for display. The networked
// password is masked; echoing the assembled string with credentials to the
// UI is an information leak, so only this form is ever surfaced.
func (d Descriptor) Redacted() string {
	switch d.Kind {
	case KindLocal:
		return "sqlite://" + d.Path
	case KindNetworked:
		return fmt.Sprintf("%s://%s:****@%s:%s/%s",
			d.Driver, d.User, d.Host, d.Port, d.Database)
	}
	return ""
}

// ReadOnly reports whether the opened handle refuses writes. Local files are
// opened read-only; networked connections are not.
func (d Descriptor) ReadOnly() bool {
	return d.Kind == KindLocal
}
