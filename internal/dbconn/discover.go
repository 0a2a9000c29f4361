package dbconn

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoDatabases is returned when the local directory holds no database files.
var ErrNoDatabases = errors.New("no SQLite databases found")

// Recognized SQLite file suffixes.
var localSuffixes = []string{".db", ".sqlite", ".sqlite3"}

// DiscoverLocal lists database files directly under dir, sorted by name.
// It fails with ErrNoDatabases when nothing matches, which halts local-mode
// selection before any connection is attempted.
func DiscoverLocal(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w in %s", ErrNoDatabases, dir)
		}
		return nil, fmt.Errorf("read database directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, suffix := range localSuffixes {
			if ext == suffix {
				files = append(files, e.Name())
				break
			}
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDatabases, dir)
	}

	sort.Strings(files)
	return files, nil
}

// ResolveLocal maps a discovered file name back to its path under dir,
// rejecting names that escape the directory.
func ResolveLocal(dir, name string) (string, error) {
	if name == "" {
		return "", ErrNoSelection
	}
	if name != filepath.Base(name) {
		return "", fmt.Errorf("invalid database file name: %q", name)
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("database file not found: %w", err)
	}
	return path, nil
}
