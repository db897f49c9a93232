// Package engine reconciles the local workspace with its remote
// counterpart. It exclusively owns the snapshot store: sync passes,
// watch-mode batches, and remote-origin file applies all run under a
// single mutex so two call sites never interleave on the same path.
//
// The engine never discards user data. Divergent edits surface as
// conflicts with both versions preserved, and plan application
// commits one snapshot entry at a time so an interrupted pass resumes
// where it stopped.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ibda-ai/codeverse/internal/api"
	"github.com/ibda-ai/codeverse/internal/detect"
	"github.com/ibda-ai/codeverse/internal/snapshot"
)

// Remote is the slice of the platform API the engine transfers
// through. *api.Client satisfies it.
type Remote interface {
	Manifest(ctx context.Context, workspace string) (map[string]api.RemoteFile, error)
	Upload(ctx context.Context, workspace, path string, content []byte) error
	Download(ctx context.Context, workspace, path string) ([]byte, error)
	Delete(ctx context.Context, workspace, path string) error
}

// Config holds engine construction parameters.
type Config struct {
	// Root is the absolute workspace directory.
	Root string

	// Workspace is the remote workspace name.
	Workspace string

	Snapshot *snapshot.Store
	Scanner  *detect.Scanner
	Remote   Remote
	Logger   *log.Logger

	// Now overrides the clock, used for conflict file naming.
	Now func() time.Time
}

// Engine reconciles local and remote workspace state.
type Engine struct {
	mu sync.Mutex

	root      string
	workspace string
	snap      *snapshot.Store
	scanner   *detect.Scanner
	remote    Remote
	logger    *log.Logger
	now       func() time.Time
}

// New creates an engine over the given workspace.
func New(cfg Config) (*Engine, error) {
	if cfg.Root == "" {
		return nil, errors.New("engine: root is required")
	}
	if cfg.Snapshot == nil || cfg.Scanner == nil || cfg.Remote == nil {
		return nil, errors.New("engine: snapshot, scanner, and remote are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		root:      cfg.Root,
		workspace: cfg.Workspace,
		snap:      cfg.Snapshot,
		scanner:   cfg.Scanner,
		remote:    cfg.Remote,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

// ApplyResult summarizes one applied transfer plan.
type ApplyResult struct {
	Pushed  int
	Pulled  int
	Deleted int
	Skipped int

	// Conflicts lists paths preserved on both sides. Conflicts do not
	// abort the pass; the plan continues past them.
	Conflicts []*ConflictError

	// SkippedFiles lists paths the scan excluded (symlinks, oversize).
	SkippedFiles []detect.SkippedFile
}

// Plan computes the transfer plan for a full sync pass without
// applying anything. Used by dry runs.
func (e *Engine) Plan(ctx context.Context) (*TransferPlan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	plan, _, err := e.buildFullPlan(ctx)
	return plan, err
}

// Sync runs one full reconciliation pass: scan, plan, apply. On a
// mid-plan failure it returns a PartialApplyError; entries already
// applied are committed and a retry picks up from the failure.
func (e *Engine) Sync(ctx context.Context) (*ApplyResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	plan, skipped, err := e.buildFullPlan(ctx)
	if err != nil {
		return nil, err
	}
	res, err := e.apply(ctx, plan)
	if res != nil {
		res.SkippedFiles = skipped
	}
	return res, err
}

// SyncPaths runs a reconciliation pass restricted to the given
// relative paths. Watch mode uses this to avoid full-tree rescans.
func (e *Engine) SyncPaths(ctx context.Context, paths []string) (*ApplyResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(paths) == 0 {
		return &ApplyResult{}, nil
	}
	want := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		want[p] = struct{}{}
	}

	local := e.localState(want)

	manifest, err := e.remote.Manifest(ctx, e.workspace)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	for p := range manifest {
		if _, ok := want[p]; !ok {
			delete(manifest, p)
		}
	}

	var entries []snapshot.Entry
	for p := range want {
		ent, err := e.snap.Get(p)
		if err != nil {
			if errors.Is(err, snapshot.ErrNotFound) {
				continue
			}
			return nil, err
		}
		entries = append(entries, *ent)
	}

	return e.apply(ctx, buildPlan(local, entries, manifest))
}

// ApplyRemote applies a remote-origin file change, the entry point
// for streamed file-apply frames. When the local copy diverged from
// the last common state the file is left untouched, the remote
// content lands in a conflict sibling, and a *ConflictError is
// returned; the change still counts as delivered.
func (e *Engine) ApplyRemote(ctx context.Context, relPath string, content []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	hash := detect.HashBytes(content)

	ent, err := e.snap.Get(relPath)
	if err != nil && !errors.Is(err, snapshot.ErrNotFound) {
		return err
	}

	abs := filepath.Join(e.root, filepath.FromSlash(relPath))
	localHash := ""
	if data, rerr := os.ReadFile(abs); rerr == nil {
		localHash = detect.HashBytes(data)
	}

	base := ""
	if ent != nil && !ent.Tombstone {
		base = ent.LocalHash
	}

	diverged := localHash != "" && localHash != base && localHash != hash
	if diverged {
		sibling := conflictCopyPath(e.root, relPath, e.now())
		if err := e.writeFile(sibling, content); err != nil {
			return err
		}
		if err := e.commit(relPath, localHash, hash, int64(len(content)), e.now().Unix()); err != nil {
			return err
		}
		return &ConflictError{
			Path:       relPath,
			LocalHash:  localHash,
			RemoteHash: hash,
			Sibling:    sibling,
		}
	}

	if err := e.writeFile(relPath, content); err != nil {
		return err
	}
	return e.commit(relPath, hash, hash, int64(len(content)), e.now().Unix())
}

// Watch consumes debounced event batches and runs a targeted sync
// pass per batch. Transfer failures are logged and the loop keeps
// going; the next batch or a manual sync retries them. Returns when
// ctx is done or the channel closes.
func (e *Engine) Watch(ctx context.Context, events <-chan []detect.ChangeEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			paths := make([]string, 0, len(batch))
			for _, ev := range batch {
				paths = append(paths, ev.Path)
				if ev.Kind == detect.Renamed && ev.From != "" {
					paths = append(paths, ev.From)
				}
			}
			res, err := e.SyncPaths(ctx, paths)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				e.logger.Printf("watch sync failed: %v", err)
				continue
			}
			for _, c := range res.Conflicts {
				e.logger.Printf("watch: %v", c)
			}
		}
	}
}

func (e *Engine) buildFullPlan(ctx context.Context) (*TransferPlan, []detect.SkippedFile, error) {
	scan, err := e.scanner.Scan(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("scan workspace: %w", err)
	}
	manifest, err := e.remote.Manifest(ctx, e.workspace)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch manifest: %w", err)
	}
	entries, err := e.snap.All()
	if err != nil {
		return nil, nil, err
	}
	return buildPlan(scan.Files, entries, manifest), scan.Skipped, nil
}

// localState gathers current on-disk state for just the given paths,
// reusing the stored hash when size and mtime are unchanged.
func (e *Engine) localState(want map[string]struct{}) map[string]detect.LocalFile {
	out := make(map[string]detect.LocalFile, len(want))
	for p := range want {
		abs := filepath.Join(e.root, filepath.FromSlash(p))
		fi, err := os.Lstat(abs)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		lf := detect.LocalFile{
			Path:      p,
			Size:      fi.Size(),
			MtimeUnix: fi.ModTime().Unix(),
		}
		if ent, err := e.snap.Get(p); err == nil &&
			!ent.Tombstone && ent.Size == lf.Size && ent.MtimeUnix == lf.MtimeUnix {
			lf.Hash = ent.LocalHash
		} else {
			hash, herr := detect.HashFile(abs)
			if herr != nil {
				e.logger.Printf("hash %s: %v", p, herr)
				continue
			}
			lf.Hash = hash
		}
		out[p] = lf
	}
	return out
}

func (e *Engine) apply(ctx context.Context, plan *TransferPlan) (*ApplyResult, error) {
	res := &ApplyResult{}
	for i, act := range plan.Actions {
		if err := e.applyOne(ctx, act, res); err != nil {
			return res, &PartialApplyError{
				Applied:   plan.Actions[:i],
				Failed:    act,
				Remaining: plan.Actions[i+1:],
				Err:       err,
			}
		}
	}
	return res, nil
}

func (e *Engine) applyOne(ctx context.Context, act Action, res *ApplyResult) error {
	switch act.Kind {
	case Push:
		abs := filepath.Join(e.root, filepath.FromSlash(act.Path))
		data, err := os.ReadFile(abs)
		if err != nil {
			return fmt.Errorf("read %s: %w", act.Path, err)
		}
		if err := e.remote.Upload(ctx, e.workspace, act.Path, data); err != nil {
			return err
		}
		if err := e.commit(act.Path, act.LocalHash, act.LocalHash, act.LocalSize, act.LocalMtime); err != nil {
			return err
		}
		res.Pushed++

	case Pull:
		data, err := e.remote.Download(ctx, e.workspace, act.Path)
		if err != nil {
			return err
		}
		if err := e.writeFile(act.Path, data); err != nil {
			return err
		}
		hash := detect.HashBytes(data)
		if err := e.commit(act.Path, hash, hash, int64(len(data)), e.now().Unix()); err != nil {
			return err
		}
		res.Pulled++

	case Delete:
		// Tombstone before the network call so an interrupted pass
		// cannot resurrect the file on the next full resync.
		if err := e.snap.MarkDeleted(act.Path); err != nil {
			return err
		}
		if err := e.remote.Delete(ctx, e.workspace, act.Path); err != nil {
			return err
		}
		if err := e.snap.Purge(act.Path); err != nil {
			return err
		}
		res.Deleted++

	case DeleteLocal:
		abs := filepath.Join(e.root, filepath.FromSlash(act.Path))
		if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", act.Path, err)
		}
		if err := e.snap.Purge(act.Path); err != nil {
			return err
		}
		res.Deleted++

	case Skip:
		if act.LocalHash == "" && act.RemoteHash == "" {
			// Gone on both sides; drop the entry.
			if err := e.snap.Purge(act.Path); err != nil {
				return err
			}
		} else if err := e.commit(act.Path, act.LocalHash, act.RemoteHash, act.LocalSize, act.LocalMtime); err != nil {
			return err
		}
		res.Skipped++

	case Conflict:
		data, err := e.remote.Download(ctx, e.workspace, act.Path)
		if err != nil {
			return err
		}
		sibling := conflictCopyPath(e.root, act.Path, e.now())
		if err := e.writeFile(sibling, data); err != nil {
			return err
		}
		// Record both sides so the next pass is quiet; the sibling
		// file carries the remote version until the user resolves it.
		if err := e.commit(act.Path, act.LocalHash, act.RemoteHash, act.LocalSize, act.LocalMtime); err != nil {
			return err
		}
		res.Conflicts = append(res.Conflicts, &ConflictError{
			Path:        act.Path,
			LocalHash:   act.LocalHash,
			RemoteHash:  act.RemoteHash,
			Sibling:     sibling,
			LocalMtime:  act.LocalMtime,
			RemoteMtime: act.RemoteMtime,
		})

	default:
		return fmt.Errorf("unknown plan action %d for %s", act.Kind, act.Path)
	}
	return nil
}

// commit records one applied entry, advancing its revision.
func (e *Engine) commit(path, localHash, remoteHash string, size, mtime int64) error {
	rev, err := e.snap.NextRevision(path)
	if err != nil {
		return err
	}
	return e.snap.Put(&snapshot.Entry{
		Path:       path,
		LocalHash:  localHash,
		RemoteHash: remoteHash,
		Size:       size,
		MtimeUnix:  mtime,
		Revision:   rev,
	})
}

// writeFile writes content under the workspace root via a temp file
// and rename, creating parent directories as needed.
func (e *Engine) writeFile(relPath string, data []byte) error {
	abs := filepath.Join(e.root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", relPath, err)
	}
	tmp := abs + ".codeverse-tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", relPath, err)
	}
	if err := os.Rename(tmp, abs); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", relPath, err)
	}
	return nil
}
