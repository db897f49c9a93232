// Package detect discovers local file changes for the sync engine.
//
// Two modes exist: a one-shot scan that diffs a directory walk against
// the snapshot store, and a continuous fsnotify watcher that coalesces
// bursts of events within a debounce window. Events for one path are
// never reordered relative to each other; events across independent
// paths carry no ordering guarantee.
package detect

import "time"

// ChangeKind is the variant tag of a ChangeEvent.
type ChangeKind int

const (
	// Created indicates a path not present at the last sync.
	Created ChangeKind = iota
	// Modified indicates content changed since the last sync.
	Modified
	// Deleted indicates a previously synced path no longer exists.
	Deleted
	// Renamed indicates a path moved; From carries the old path.
	Renamed
)

// String returns a human-readable representation of the kind.
func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// ChangeEvent is one detected filesystem change, keyed by the
// slash-separated path relative to the workspace root.
type ChangeEvent struct {
	Kind ChangeKind
	Path string
	// From is set for Renamed events only.
	From string
	Time time.Time
}

// LocalFile describes the current on-disk state of one file.
type LocalFile struct {
	Path      string
	Hash      string
	Size      int64
	MtimeUnix int64
}

// SkipReason explains why a path was left out of a scan.
type SkipReason int

const (
	// SkipSymlink marks symbolic links, which are never synced.
	SkipSymlink SkipReason = iota
	// SkipTooLarge marks files above the configured size ceiling.
	SkipTooLarge
	// SkipUnreadable marks files that could not be opened or hashed.
	SkipUnreadable
)

func (r SkipReason) String() string {
	switch r {
	case SkipSymlink:
		return "symlink"
	case SkipTooLarge:
		return "too large"
	case SkipUnreadable:
		return "unreadable"
	default:
		return "unknown"
	}
}

// SkippedFile records a path excluded from a scan, with the reason.
// Skips are reported, not treated as errors.
type SkippedFile struct {
	Path   string
	Reason SkipReason
}
