// Package db opens the workspace-local SQLite database. All state lives under
// <workspace>/.voxcollect so a workspace can be moved or wiped as a unit.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	stateDir = ".voxcollect"
	dbFile   = "voxcollect.db"
)

type Config struct {
	Workspace string
}

// EnsureWorkspace creates the workspace state directory if missing and
// returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(workspace, stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Open opens the workspace database. Foreign keys are enforced and WAL mode
// keeps readers unblocked while the engine writes; the busy timeout covers
// the brief writer contention WAL still allows.
func Open(cfg Config) (*sql.DB, error) {
	ws := cfg.Workspace
	if ws == "" {
		ws = "."
	}
	dir, err := EnsureWorkspace(ws)
	if err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		filepath.Join(dir, dbFile))
	return sql.Open("sqlite", dsn)
}
