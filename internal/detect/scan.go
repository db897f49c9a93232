package detect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ibda-ai/codeverse/internal/ignore"
	"github.com/ibda-ai/codeverse/internal/snapshot"
)

// Scanner performs one-shot change detection against the snapshot.
type Scanner struct {
	root        string
	matcher     *ignore.Matcher
	snap        *snapshot.Store
	maxFileSize int64
}

// NewScanner returns a scanner for the workspace at root. maxFileSize
// of zero disables the size ceiling.
func NewScanner(root string, matcher *ignore.Matcher, snap *snapshot.Store, maxFileSize int64) *Scanner {
	return &Scanner{root: root, matcher: matcher, snap: snap, maxFileSize: maxFileSize}
}

// ScanResult is the outcome of one scan pass.
type ScanResult struct {
	// Files maps relative path to current on-disk state for every
	// file that participates in sync.
	Files map[string]LocalFile

	// Events lists the changes relative to the snapshot, ordered by
	// path. A deleted path and a created path with identical content
	// collapse into one Renamed event.
	Events []ChangeEvent

	// Skipped lists paths excluded from the scan with reasons.
	Skipped []SkippedFile
}

// Scan walks the tree, hashes candidate files, and diffs against the
// snapshot. Hashing is skipped when size and mtime match the stored
// entry. The scan is restartable: it holds no state between calls.
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	known := make(map[string]snapshot.Entry)
	entries, err := s.snap.All()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	for _, e := range entries {
		known[e.Path] = e
	}

	result := &ScanResult{Files: make(map[string]LocalFile)}

	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil // unreadable subtree, keep walking
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if s.matcher.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			result.Skipped = append(result.Skipped, SkippedFile{Path: rel, Reason: SkipSymlink})
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedFile{Path: rel, Reason: SkipUnreadable})
			return nil
		}
		if s.maxFileSize > 0 && info.Size() > s.maxFileSize {
			result.Skipped = append(result.Skipped, SkippedFile{Path: rel, Reason: SkipTooLarge})
			return nil
		}

		lf := LocalFile{
			Path:      rel,
			Size:      info.Size(),
			MtimeUnix: info.ModTime().Unix(),
		}

		// Fast path: unchanged size+mtime reuses the stored hash.
		if prev, ok := known[rel]; ok && !prev.Tombstone && prev.Size == lf.Size && prev.MtimeUnix == lf.MtimeUnix {
			lf.Hash = prev.LocalHash
		} else {
			hash, err := HashFile(path)
			if err != nil {
				result.Skipped = append(result.Skipped, SkippedFile{Path: rel, Reason: SkipUnreadable})
				return nil
			}
			lf.Hash = hash
		}

		result.Files[rel] = lf
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Events = diff(known, result.Files)
	return result, nil
}

// diff computes ordered change events between the snapshot and the
// current state, collapsing matched delete+create pairs into renames.
func diff(known map[string]snapshot.Entry, current map[string]LocalFile) []ChangeEvent {
	now := time.Now()
	var created, modified, deleted []ChangeEvent

	for path, lf := range current {
		prev, ok := known[path]
		switch {
		case !ok || prev.Tombstone:
			created = append(created, ChangeEvent{Kind: Created, Path: path, Time: now})
		case prev.LocalHash != lf.Hash:
			modified = append(modified, ChangeEvent{Kind: Modified, Path: path, Time: now})
		}
	}
	for path, prev := range known {
		if prev.Tombstone {
			continue
		}
		if _, ok := current[path]; !ok {
			deleted = append(deleted, ChangeEvent{Kind: Deleted, Path: path, Time: now})
		}
	}

	// Rename collapse: a deletion and a creation with the same content
	// hash are one move.
	hashOf := func(path string) string {
		if lf, ok := current[path]; ok {
			return lf.Hash
		}
		return ""
	}
	deletedHash := make(map[string]string) // hash -> old path
	for _, ev := range deleted {
		deletedHash[known[ev.Path].LocalHash] = ev.Path
	}

	var events []ChangeEvent
	usedFrom := make(map[string]bool)
	for _, ev := range created {
		if from, ok := deletedHash[hashOf(ev.Path)]; ok && !usedFrom[from] {
			usedFrom[from] = true
			events = append(events, ChangeEvent{Kind: Renamed, Path: ev.Path, From: from, Time: now})
			continue
		}
		events = append(events, ev)
	}
	events = append(events, modified...)
	for _, ev := range deleted {
		if !usedFrom[ev.Path] {
			events = append(events, ev)
		}
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	return events
}

// HashFile returns the hex SHA-256 of the file content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the hex SHA-256 of content already in memory.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
