package detect

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type allowAll struct{}

func (allowAll) Match(string) bool { return false }

type denyDotGit struct{}

func (denyDotGit) Match(p string) bool { return strings.HasPrefix(p, ".git") }

func startTestWatcher(t *testing.T, root string) *Watcher {
	t.Helper()

	w, err := NewWatcher(WatcherConfig{
		Root:     root,
		Matcher:  denyDotGit{},
		Debounce: 100 * time.Millisecond,
		Logger:   log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { w.Stop() })
	return w
}

// collectBatch waits for the next non-empty batch or times out.
func collectBatch(t *testing.T, w *Watcher, timeout time.Duration) []ChangeEvent {
	t.Helper()
	select {
	case batch := <-w.Events():
		return batch
	case <-time.After(timeout):
		return nil
	}
}

func TestWatcher_CreateEvent(t *testing.T) {
	root := t.TempDir()
	w := startTestWatcher(t, root)

	if err := os.WriteFile(filepath.Join(root, "new.txt"), []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}

	batch := collectBatch(t, w, 2*time.Second)
	if len(batch) != 1 {
		t.Fatalf("batch = %v, want one event", batch)
	}
	if batch[0].Kind != Created || batch[0].Path != "new.txt" {
		t.Errorf("event = %+v, want Created new.txt", batch[0])
	}
}

func TestWatcher_DebounceCoalescesModifies(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "busy.txt")
	if err := os.WriteFile(path, []byte("v0"), 0644); err != nil {
		t.Fatal(err)
	}

	w := startTestWatcher(t, root)

	// Three rapid writes inside one debounce window.
	for _, v := range []string{"v1", "v2", "v3"} {
		if err := os.WriteFile(path, []byte(v), 0644); err != nil {
			t.Fatal(err)
		}
	}

	batch := collectBatch(t, w, 2*time.Second)
	count := 0
	for _, ev := range batch {
		if ev.Path == "busy.txt" {
			count++
			if ev.Kind != Modified {
				t.Errorf("event = %+v, want Modified", ev)
			}
		}
	}
	if count != 1 {
		t.Errorf("busy.txt produced %d events in batch, want exactly 1", count)
	}
}

func TestWatcher_CreateThenDeleteIsNoop(t *testing.T) {
	root := t.TempDir()
	w := startTestWatcher(t, root)

	path := filepath.Join(root, "flash.txt")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	// Either no batch arrives, or any batch that does must not carry
	// an event for the transient path.
	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case batch := <-w.Events():
			for _, ev := range batch {
				if ev.Path == "flash.txt" {
					t.Fatalf("transient file produced event %+v", ev)
				}
			}
		case <-deadline:
			return
		}
	}
}

func TestWatcher_IgnoredPathsFiltered(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0755); err != nil {
		t.Fatal(err)
	}

	w := startTestWatcher(t, root)

	if err := os.WriteFile(filepath.Join(root, ".git", "HEAD"), []byte("ref"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "tracked.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	batch := collectBatch(t, w, 2*time.Second)
	for _, ev := range batch {
		if strings.HasPrefix(ev.Path, ".git") {
			t.Errorf("ignored path produced event %+v", ev)
		}
	}
	if _, ok := findEvent(batch, "tracked.txt"); !ok {
		t.Error("tracked.txt event missing")
	}
}

func TestWatcher_NewDirectoryPicksUpFiles(t *testing.T) {
	root := t.TempDir()
	w := startTestWatcher(t, root)

	sub := filepath.Join(root, "sub")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to register the new directory.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(sub, "inner.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case batch := <-w.Events():
			if _, ok := findEvent(batch, "sub/inner.txt"); ok {
				return
			}
		case <-deadline:
			t.Fatal("never saw event for file in new directory")
		}
	}
}

func findEvent(batch []ChangeEvent, path string) (ChangeEvent, bool) {
	for _, ev := range batch {
		if ev.Path == path {
			return ev, true
		}
	}
	return ChangeEvent{}, false
}
