package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ibda-ai/codeverse/internal/api"
	"github.com/ibda-ai/codeverse/internal/detect"
	"github.com/ibda-ai/codeverse/internal/snapshot"
)

// ActionKind is one transfer plan decision.
type ActionKind int

const (
	// Push uploads the local version to the remote workspace.
	Push ActionKind = iota
	// Pull downloads the remote version over the local file.
	Pull
	// Delete propagates a local deletion to the remote workspace.
	Delete
	// DeleteLocal removes a file the remote side deleted.
	DeleteLocal
	// Skip records a path that needs no transfer but whose snapshot
	// entry must converge (identical independent edits, or a deletion
	// on both sides).
	Skip
	// Conflict preserves both versions: local stays, remote lands in
	// a conflict-marked sibling file.
	Conflict
)

func (k ActionKind) String() string {
	switch k {
	case Push:
		return "push"
	case Pull:
		return "pull"
	case Delete:
		return "delete"
	case DeleteLocal:
		return "delete-local"
	case Skip:
		return "skip"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Action is one per-path decision in a transfer plan.
type Action struct {
	Kind ActionKind
	Path string

	// LocalHash and RemoteHash are the current content hashes on each
	// side; empty when the side has no file. Conflict actions carry
	// both so the caller can present the divergence.
	LocalHash  string
	RemoteHash string

	LocalSize   int64
	LocalMtime  int64
	RemoteMtime int64
}

// TransferPlan is the ordered outcome of one reconciliation pass.
// Each path appears at most once; actions are sorted by path.
type TransferPlan struct {
	Actions []Action
}

// Empty reports whether the plan contains no work at all.
func (p *TransferPlan) Empty() bool {
	return len(p.Actions) == 0
}

// Summary renders a one-line count of the plan's decisions.
func (p *TransferPlan) Summary() string {
	counts := make(map[ActionKind]int)
	for _, a := range p.Actions {
		counts[a.Kind]++
	}
	parts := make([]string, 0, len(counts))
	for _, k := range []ActionKind{Push, Pull, Delete, DeleteLocal, Conflict, Skip} {
		if n := counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, k))
		}
	}
	if len(parts) == 0 {
		return "nothing to sync"
	}
	return strings.Join(parts, ", ")
}

// buildPlan reconciles the three views of the workspace: current
// local files, the last-synced snapshot, and the remote manifest.
// Paths unchanged on both sides are omitted, so a plan built right
// after a clean pass is empty.
func buildPlan(local map[string]detect.LocalFile, entries []snapshot.Entry, manifest map[string]api.RemoteFile) *TransferPlan {
	known := make(map[string]snapshot.Entry, len(entries))
	paths := make(map[string]struct{})
	for _, e := range entries {
		known[e.Path] = e
		paths[e.Path] = struct{}{}
	}
	for p := range local {
		paths[p] = struct{}{}
	}
	for p := range manifest {
		paths[p] = struct{}{}
	}

	plan := &TransferPlan{}
	for path := range paths {
		if a, ok := decide(path, local, known, manifest); ok {
			plan.Actions = append(plan.Actions, a)
		}
	}
	sort.Slice(plan.Actions, func(i, j int) bool {
		return plan.Actions[i].Path < plan.Actions[j].Path
	})
	return plan
}

func decide(path string, local map[string]detect.LocalFile, known map[string]snapshot.Entry, manifest map[string]api.RemoteFile) (Action, bool) {
	lf, hasLocal := local[path]
	rf, hasRemote := manifest[path]
	ent, hasEnt := known[path]

	a := Action{Path: path}
	if hasLocal {
		a.LocalHash = lf.Hash
		a.LocalSize = lf.Size
		a.LocalMtime = lf.MtimeUnix
	}
	if hasRemote {
		a.RemoteHash = rf.Hash
		a.RemoteMtime = rf.MtimeUnix
	}

	// A tombstone is a local deletion awaiting remote acknowledgement.
	// A reappearing file supersedes it and is treated as untracked.
	if hasEnt && ent.Tombstone {
		if hasLocal {
			hasEnt = false
		} else if hasRemote && rf.Hash != ent.RemoteHash {
			// Remote changed after the local delete; the edit wins
			// over the deletion.
			a.Kind = Pull
			return a, true
		} else if hasRemote {
			a.Kind = Delete
			return a, true
		} else {
			// Deleted on both sides; just drop the tombstone.
			a.Kind = Skip
			return a, true
		}
	}

	if !hasEnt {
		switch {
		case hasLocal && !hasRemote:
			a.Kind = Push
		case !hasLocal && hasRemote:
			a.Kind = Pull
		case lf.Hash == rf.Hash:
			// Independently created with identical content; adopt.
			a.Kind = Skip
		default:
			a.Kind = Conflict
		}
		return a, true
	}

	localChanged := !hasLocal || lf.Hash != ent.LocalHash
	remoteChanged := !hasRemote || rf.Hash != ent.RemoteHash

	switch {
	case !localChanged && !remoteChanged:
		return Action{}, false
	case localChanged && !remoteChanged:
		if !hasLocal {
			a.Kind = Delete
		} else {
			a.Kind = Push
		}
	case !localChanged && remoteChanged:
		if !hasRemote {
			a.Kind = DeleteLocal
		} else {
			a.Kind = Pull
		}
	default: // both changed
		switch {
		case !hasLocal && !hasRemote:
			a.Kind = Skip
		case !hasLocal:
			a.Kind = Pull
		case !hasRemote:
			a.Kind = Push
		case lf.Hash == rf.Hash:
			a.Kind = Skip
		default:
			a.Kind = Conflict
		}
	}
	return a, true
}
