package detect

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ibda-ai/codeverse/internal/ignore"
	"github.com/ibda-ai/codeverse/internal/snapshot"
)

func setupScanner(t *testing.T) (string, *snapshot.Store, *Scanner) {
	t.Helper()

	root := t.TempDir()
	snap, err := snapshot.Open(filepath.Join(t.TempDir(), "snapshot.db"))
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	t.Cleanup(func() { snap.Close() })

	matcher, err := ignore.NewMatcher(root, nil, nil)
	if err != nil {
		t.Fatalf("compile matcher: %v", err)
	}

	return root, snap, NewScanner(root, matcher, snap, 1<<20)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func eventByPath(events []ChangeEvent, path string) (ChangeEvent, bool) {
	for _, ev := range events {
		if ev.Path == path {
			return ev, true
		}
	}
	return ChangeEvent{}, false
}

func TestScanner_FreshWorkspace(t *testing.T) {
	root, _, scanner := setupScanner(t)
	writeFile(t, root, "main.go", "package main")
	writeFile(t, root, "docs/readme.md", "# hi")
	writeFile(t, root, "notes.log", "ignored by defaults")

	result, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}

	if len(result.Files) != 2 {
		t.Errorf("Files = %d entries, want 2: %v", len(result.Files), result.Files)
	}
	if len(result.Events) != 2 {
		t.Fatalf("Events = %v, want 2 creations", result.Events)
	}
	for _, ev := range result.Events {
		if ev.Kind != Created {
			t.Errorf("event %v, want Created", ev)
		}
	}
}

func TestScanner_ModifyAndDelete(t *testing.T) {
	root, snap, scanner := setupScanner(t)
	writeFile(t, root, "a.txt", "v1")
	writeFile(t, root, "b.txt", "keep")

	// Record both in the snapshot as synced.
	for rev, rel := range []string{"a.txt", "b.txt"} {
		hash, err := HashFile(filepath.Join(root, rel))
		if err != nil {
			t.Fatal(err)
		}
		info, _ := os.Stat(filepath.Join(root, rel))
		if err := snap.Put(&snapshot.Entry{
			Path: rel, LocalHash: hash, RemoteHash: hash,
			Size: info.Size(), MtimeUnix: info.ModTime().Unix(), Revision: int64(rev + 1),
		}); err != nil {
			t.Fatal(err)
		}
	}

	writeFile(t, root, "a.txt", "v2-now-longer")
	writeFile(t, root, "c.txt", "new")
	if err := os.Remove(filepath.Join(root, "b.txt")); err != nil {
		t.Fatal(err)
	}

	result, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}

	if ev, ok := eventByPath(result.Events, "a.txt"); !ok || ev.Kind != Modified {
		t.Errorf("a.txt event = %+v, want Modified", ev)
	}
	if ev, ok := eventByPath(result.Events, "b.txt"); !ok || ev.Kind != Deleted {
		t.Errorf("b.txt event = %+v, want Deleted", ev)
	}
	if ev, ok := eventByPath(result.Events, "c.txt"); !ok || ev.Kind != Created {
		t.Errorf("c.txt event = %+v, want Created", ev)
	}
}

func TestScanner_RenameCollapse(t *testing.T) {
	root, snap, scanner := setupScanner(t)
	writeFile(t, root, "old.txt", "same content")

	hash, err := HashFile(filepath.Join(root, "old.txt"))
	if err != nil {
		t.Fatal(err)
	}
	info, _ := os.Stat(filepath.Join(root, "old.txt"))
	if err := snap.Put(&snapshot.Entry{
		Path: "old.txt", LocalHash: hash, RemoteHash: hash,
		Size: info.Size(), MtimeUnix: info.ModTime().Unix(), Revision: 1,
	}); err != nil {
		t.Fatal(err)
	}

	if err := os.Rename(filepath.Join(root, "old.txt"), filepath.Join(root, "new.txt")); err != nil {
		t.Fatal(err)
	}

	result, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}

	if len(result.Events) != 1 {
		t.Fatalf("Events = %v, want one Renamed", result.Events)
	}
	ev := result.Events[0]
	if ev.Kind != Renamed || ev.Path != "new.txt" || ev.From != "old.txt" {
		t.Errorf("event = %+v, want Renamed old.txt -> new.txt", ev)
	}
}

func TestScanner_SkipsSymlinksAndLargeFiles(t *testing.T) {
	root, snap, _ := setupScanner(t)
	writeFile(t, root, "small.txt", "ok")
	writeFile(t, root, "big.txt", "this file exceeds the tiny ceiling used below")
	if err := os.Symlink(filepath.Join(root, "small.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	matcher, err := ignore.NewMatcher(root, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	scanner := NewScanner(root, matcher, snap, 10)

	result, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}

	if _, ok := result.Files["small.txt"]; !ok {
		t.Error("small.txt should be scanned")
	}
	if _, ok := result.Files["big.txt"]; ok {
		t.Error("big.txt should be skipped")
	}

	reasons := make(map[string]SkipReason)
	for _, sk := range result.Skipped {
		reasons[sk.Path] = sk.Reason
	}
	if reasons["big.txt"] != SkipTooLarge {
		t.Errorf("big.txt reason = %v, want too large", reasons["big.txt"])
	}
	if reasons["link.txt"] != SkipSymlink {
		t.Errorf("link.txt reason = %v, want symlink", reasons["link.txt"])
	}
}

func TestScanner_TombstoneNotResurrected(t *testing.T) {
	root, snap, scanner := setupScanner(t)

	if err := snap.Put(&snapshot.Entry{Path: "gone.txt", LocalHash: "h", RemoteHash: "h", Revision: 1}); err != nil {
		t.Fatal(err)
	}
	if err := snap.MarkDeleted("gone.txt"); err != nil {
		t.Fatal(err)
	}

	result, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}

	// The tombstoned path no longer exists locally; it must not be
	// reported as deleted again.
	if ev, ok := eventByPath(result.Events, "gone.txt"); ok {
		t.Errorf("tombstoned path produced event %+v", ev)
	}

	// If the path reappears it is a fresh creation.
	writeFile(t, root, "gone.txt", "back")
	result, err = scanner.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ev, ok := eventByPath(result.Events, "gone.txt"); !ok || ev.Kind != Created {
		t.Errorf("reappeared path event = %+v, want Created", ev)
	}
}
