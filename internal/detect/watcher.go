package detect

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig configures the continuous change detector.
type WatcherConfig struct {
	// Root is the workspace root to watch recursively.
	Root string

	// Matcher filters ignored paths.
	Matcher interface{ Match(string) bool }

	// Debounce is the coalescing window for events on the same path.
	Debounce time.Duration

	// MaxFileSize mirrors the scanner's size ceiling; larger files
	// are dropped from the event stream. Zero disables the ceiling.
	MaxFileSize int64

	// QueueSize bounds the batch channel. A full queue blocks the
	// flush loop rather than dropping events.
	QueueSize int

	// Logger for watcher activity.
	Logger *log.Logger
}

// pendingChange tracks the first and last raw operation seen for a
// path within the current debounce window.
type pendingChange struct {
	firstCreate bool
	lastDelete  bool
}

// Watcher emits debounced batches of ChangeEvents until cancelled.
type Watcher struct {
	cfg     WatcherConfig
	watcher *fsnotify.Watcher

	events chan []ChangeEvent
	errs   chan error

	mu      sync.Mutex
	pending map[string]*pendingChange

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewWatcher creates a watcher. Start must be called before events
// flow.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 300 * time.Millisecond
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[watch] ", log.LstdFlags)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		cfg:     cfg,
		watcher: fsw,
		events:  make(chan []ChangeEvent, cfg.QueueSize),
		errs:    make(chan error, 10),
		pending: make(map[string]*pendingChange),
	}, nil
}

// Start registers the directory tree and begins emitting batches.
// The watcher stops when ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	err := filepath.WalkDir(w.cfg.Root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.cfg.Root, path)
		if err != nil {
			return nil
		}
		if rel != "." && w.cfg.Matcher.Match(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.cfg.Logger.Printf("failed to watch %s: %v", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("register watch tree: %w", err)
	}

	w.wg.Add(2)
	go w.eventLoop(ctx)
	go w.flushLoop(ctx)
	return nil
}

// Stop cancels the watcher and waits for its goroutines to exit.
func (w *Watcher) Stop() error {
	var err error
	w.once.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		err = w.watcher.Close()
		w.wg.Wait()
		close(w.events)
		close(w.errs)
	})
	return err
}

// Events returns the channel of debounced event batches. Within one
// batch each path appears at most once. The channel closes on Stop.
func (w *Watcher) Events() <-chan []ChangeEvent {
	return w.events
}

// Errors returns the channel of watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
				w.cfg.Logger.Printf("watcher error dropped: %v", err)
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.cfg.Root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if w.cfg.Matcher.Match(rel) {
		return
	}

	// New directories join the watch set immediately so files created
	// inside them are not missed.
	if event.Has(fsnotify.Create) {
		if info, err := os.Lstat(event.Name); err == nil {
			if info.IsDir() {
				if err := w.watcher.Add(event.Name); err != nil {
					w.cfg.Logger.Printf("failed to watch new directory %s: %v", event.Name, err)
				}
				return
			}
			if info.Mode()&fs.ModeSymlink != 0 {
				w.cfg.Logger.Printf("skipping symlink %s", rel)
				return
			}
			if w.cfg.MaxFileSize > 0 && info.Size() > w.cfg.MaxFileSize {
				w.cfg.Logger.Printf("skipping %s: exceeds size ceiling", rel)
				return
			}
		}
	}

	var isCreate, isDelete bool
	switch {
	case event.Has(fsnotify.Create):
		isCreate = true
	case event.Has(fsnotify.Write):
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// A rename delivers Remove for the old name and Create for the
		// new one; the one-shot scan later collapses the pair.
		isDelete = true
	default:
		return // chmod etc.
	}

	w.mu.Lock()
	p, ok := w.pending[rel]
	if !ok {
		p = &pendingChange{firstCreate: isCreate}
		w.pending[rel] = p
	}
	p.lastDelete = isDelete
	w.mu.Unlock()
}

func (w *Watcher) flushLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch := w.drain()
			if len(batch) == 0 {
				continue
			}
			select {
			case w.events <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}

// drain converts the pending map into one net event per path.
// Coalescing rules: create followed by delete cancels out; anything
// ending in delete is a deletion; a window that began with create is a
// creation; everything else is one modification.
func (w *Watcher) drain() []ChangeEvent {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]*pendingChange)
	w.mu.Unlock()

	now := time.Now()
	var batch []ChangeEvent
	for path, p := range pending {
		switch {
		case p.firstCreate && p.lastDelete:
			// Appeared and vanished within the window: no-op.
		case p.lastDelete:
			batch = append(batch, ChangeEvent{Kind: Deleted, Path: path, Time: now})
		case p.firstCreate:
			batch = append(batch, ChangeEvent{Kind: Created, Path: path, Time: now})
		default:
			batch = append(batch, ChangeEvent{Kind: Modified, Path: path, Time: now})
		}
	}
	return batch
}
