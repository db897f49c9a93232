// Package snapshot stores the last-known-synced state per workspace
// file.
//
// The store is a local SQLite database (.codeverse/snapshot.db) opened
// in WAL mode. The sync engine is the only writer; every entry commit
// is its own transaction so an interrupted sync pass leaves the store
// at the last successfully applied entry.
package snapshot

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the snapshot database.
type Store struct {
	conn *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS files (
    path       TEXT PRIMARY KEY,
    local_hash TEXT NOT NULL,
    remote_hash TEXT NOT NULL,
    size       INTEGER NOT NULL,
    mtime_unix INTEGER NOT NULL,
    revision   INTEGER NOT NULL,
    tombstone  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_files_tombstone ON files(tombstone);
`

// Open creates or opens the snapshot database at path.
//
// The caller must Close() the store when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping snapshot database: %w", err)
	}

	// Single writer; WAL lets status queries read during a sync pass.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn, path: path}
	if err := s.initSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("initialize snapshot schema: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}
