package snapshot

import (
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no entry exists for the path.
	ErrNotFound = errors.New("snapshot entry not found")

	// ErrStaleRevision is returned when a write carries a revision
	// that does not advance the stored one. Revisions only move
	// forward.
	ErrStaleRevision = errors.New("stale snapshot revision")
)

// Entry records the last-synced state of one workspace file.
type Entry struct {
	// Path is the slash-separated path relative to the workspace root.
	Path string

	// LocalHash is the content hash at the last successful sync.
	LocalHash string

	// RemoteHash is the remote content hash at the last common state.
	// Equal to LocalHash after a clean push or pull.
	RemoteHash string

	Size      int64
	MtimeUnix int64

	// Revision increases by one for every applied change to the path.
	Revision int64

	// Tombstone marks a local deletion not yet acknowledged remotely.
	// Tombstoned entries keep their revision so a full resync does not
	// resurrect the file.
	Tombstone bool
}

// Get returns the entry for path, or ErrNotFound.
func (s *Store) Get(path string) (*Entry, error) {
	row := s.conn.QueryRow(
		`SELECT path, local_hash, remote_hash, size, mtime_unix, revision, tombstone
		 FROM files WHERE path = ?`, path)

	var e Entry
	var tombstone int
	err := row.Scan(&e.Path, &e.LocalHash, &e.RemoteHash, &e.Size, &e.MtimeUnix, &e.Revision, &tombstone)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot entry %s: %w", path, err)
	}
	e.Tombstone = tombstone != 0
	return &e, nil
}

// Put commits one entry. The revision must be strictly greater than
// any stored revision for the path; otherwise ErrStaleRevision.
// Each Put is a single transaction.
func (s *Store) Put(e *Entry) error {
	cur, err := s.Get(e.Path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if cur != nil && e.Revision <= cur.Revision {
		return fmt.Errorf("%w: %s revision %d <= %d", ErrStaleRevision, e.Path, e.Revision, cur.Revision)
	}

	tombstone := 0
	if e.Tombstone {
		tombstone = 1
	}
	_, err = s.conn.Exec(
		`INSERT INTO files (path, local_hash, remote_hash, size, mtime_unix, revision, tombstone)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   local_hash = excluded.local_hash,
		   remote_hash = excluded.remote_hash,
		   size = excluded.size,
		   mtime_unix = excluded.mtime_unix,
		   revision = excluded.revision,
		   tombstone = excluded.tombstone`,
		e.Path, e.LocalHash, e.RemoteHash, e.Size, e.MtimeUnix, e.Revision, tombstone)
	if err != nil {
		return fmt.Errorf("write snapshot entry %s: %w", e.Path, err)
	}
	return nil
}

// NextRevision returns the revision a new write to path must carry.
func (s *Store) NextRevision(path string) (int64, error) {
	cur, err := s.Get(path)
	if errors.Is(err, ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return cur.Revision + 1, nil
}

// MarkDeleted tombstones the entry for path. The tombstone stays until
// the deletion is acknowledged remotely and Purge is called.
func (s *Store) MarkDeleted(path string) error {
	cur, err := s.Get(path)
	if errors.Is(err, ErrNotFound) {
		return nil // never synced, nothing to tombstone
	}
	if err != nil {
		return err
	}
	cur.Tombstone = true
	cur.Revision++
	return s.forcePut(cur)
}

// Purge removes the entry for path entirely. Called after a remote
// delete ack, or when pruning a pulled-then-deleted file.
func (s *Store) Purge(path string) error {
	if _, err := s.conn.Exec(`DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("purge snapshot entry %s: %w", path, err)
	}
	return nil
}

// All returns every entry ordered by path, tombstones included.
func (s *Store) All() ([]Entry, error) {
	rows, err := s.conn.Query(
		`SELECT path, local_hash, remote_hash, size, mtime_unix, revision, tombstone
		 FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("list snapshot entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var tombstone int
		if err := rows.Scan(&e.Path, &e.LocalHash, &e.RemoteHash, &e.Size, &e.MtimeUnix, &e.Revision, &tombstone); err != nil {
			return nil, fmt.Errorf("scan snapshot entry: %w", err)
		}
		e.Tombstone = tombstone != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Tombstones returns pending local deletions not yet applied remotely.
func (s *Store) Tombstones() ([]Entry, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range all {
		if e.Tombstone {
			out = append(out, e)
		}
	}
	return out, nil
}

// Reset drops all entries. Used by `codeverse sync --reset`.
func (s *Store) Reset() error {
	if _, err := s.conn.Exec(`DELETE FROM files`); err != nil {
		return fmt.Errorf("reset snapshot: %w", err)
	}
	return nil
}

// forcePut writes without the monotonic check; internal use only for
// transitions that already advanced the revision.
func (s *Store) forcePut(e *Entry) error {
	tombstone := 0
	if e.Tombstone {
		tombstone = 1
	}
	_, err := s.conn.Exec(
		`INSERT INTO files (path, local_hash, remote_hash, size, mtime_unix, revision, tombstone)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   local_hash = excluded.local_hash,
		   remote_hash = excluded.remote_hash,
		   size = excluded.size,
		   mtime_unix = excluded.mtime_unix,
		   revision = excluded.revision,
		   tombstone = excluded.tombstone`,
		e.Path, e.LocalHash, e.RemoteHash, e.Size, e.MtimeUnix, e.Revision, tombstone)
	if err != nil {
		return fmt.Errorf("write snapshot entry %s: %w", e.Path, err)
	}
	return nil
}
