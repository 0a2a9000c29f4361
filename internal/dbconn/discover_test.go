package dbconn

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDiscoverLocalMatchesSuffixes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, dir, "chinook.db")
	touch(t, dir, "sales.sqlite")
	touch(t, dir, "staging.sqlite3")
	touch(t, dir, "notes.txt")
	if err := os.Mkdir(filepath.Join(dir, "backup.db"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	files, err := DiscoverLocal(dir)
	if err != nil {
		t.Fatalf("DiscoverLocal failed: %v", err)
	}

	want := []string{"chinook.db", "sales.sqlite", "staging.sqlite3"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("unexpected discovery result: got %v, want %v", files, want)
	}
}

func TestDiscoverLocalEmptyDirectoryFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, dir, "readme.md")

	if _, err := DiscoverLocal(dir); !errors.Is(err, ErrNoDatabases) {
		t.Fatalf("expected ErrNoDatabases, got %v", err)
	}
}

func TestDiscoverLocalMissingDirectoryFails(t *testing.T) {
	t.Parallel()

	if _, err := DiscoverLocal(filepath.Join(t.TempDir(), "nope")); !errors.Is(err, ErrNoDatabases) {
		t.Fatalf("expected ErrNoDatabases, got %v", err)
	}
}

func TestResolveLocalRejectsTraversal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, dir, "chinook.db")

	if _, err := ResolveLocal(dir, "../chinook.db"); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
	if _, err := ResolveLocal(dir, ""); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}

	path, err := ResolveLocal(dir, "chinook.db")
	if err != nil {
		t.Fatalf("ResolveLocal failed: %v", err)
	}
	if path != filepath.Join(dir, "chinook.db") {
		t.Errorf("unexpected path: %q", path)
	}
}
