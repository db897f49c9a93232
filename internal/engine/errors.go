package engine

import (
	"errors"
	"fmt"
)

// ConflictError reports a path changed on both sides since the last
// common snapshot. The local file is kept in place and the remote
// version is written to Sibling; nothing is merged.
type ConflictError struct {
	Path       string
	LocalHash  string
	RemoteHash string
	// Sibling is the conflict-marked path holding the remote version.
	Sibling     string
	LocalMtime  int64
	RemoteMtime int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: local and remote both changed; remote version saved as %s", e.Path, e.Sibling)
}

// IsConflict reports whether err is a sync conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// PartialApplyError reports a transfer plan that failed part-way
// through. Applied entries are already committed to the snapshot and
// are not retransmitted; a retry re-attempts Failed and Remaining.
type PartialApplyError struct {
	Applied   []Action
	Failed    Action
	Remaining []Action
	Err       error
}

func (e *PartialApplyError) Error() string {
	return fmt.Sprintf("sync applied %d of %d entries, failed at %s %s: %v",
		len(e.Applied), len(e.Applied)+1+len(e.Remaining), e.Failed.Kind, e.Failed.Path, e.Err)
}

func (e *PartialApplyError) Unwrap() error { return e.Err }

// IsPartial reports whether err is a partially applied plan.
func IsPartial(err error) bool {
	var pe *PartialApplyError
	return errors.As(err, &pe)
}
