package snapshot

import (
	"errors"
	"path/filepath"
	"testing"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "snapshot.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_PutGet(t *testing.T) {
	store := setupTestStore(t)

	want := &Entry{
		Path:       "src/main.go",
		LocalHash:  "abc",
		RemoteHash: "abc",
		Size:       120,
		MtimeUnix:  1700000000,
		Revision:   1,
	}
	if err := store.Put(want); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	got, err := store.Get("src/main.go")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.LocalHash != "abc" || got.Revision != 1 || got.Size != 120 {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestStore_GetMissing(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() = %v, want ErrNotFound", err)
	}
}

func TestStore_RevisionMonotonic(t *testing.T) {
	store := setupTestStore(t)

	e := &Entry{Path: "a.txt", LocalHash: "h1", RemoteHash: "h1", Revision: 1}
	if err := store.Put(e); err != nil {
		t.Fatalf("Put() rev 1 failed: %v", err)
	}

	// Same revision is rejected.
	e.LocalHash = "h2"
	if err := store.Put(e); !errors.Is(err, ErrStaleRevision) {
		t.Errorf("Put() with same revision = %v, want ErrStaleRevision", err)
	}

	// Lower revision is rejected.
	e.Revision = 0
	if err := store.Put(e); !errors.Is(err, ErrStaleRevision) {
		t.Errorf("Put() with lower revision = %v, want ErrStaleRevision", err)
	}

	// Advancing succeeds.
	e.Revision = 2
	if err := store.Put(e); err != nil {
		t.Fatalf("Put() rev 2 failed: %v", err)
	}

	got, err := store.Get("a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if got.Revision != 2 || got.LocalHash != "h2" {
		t.Errorf("entry = %+v, want revision 2 hash h2", got)
	}
}

func TestStore_NextRevision(t *testing.T) {
	store := setupTestStore(t)

	rev, err := store.NextRevision("new.txt")
	if err != nil {
		t.Fatal(err)
	}
	if rev != 1 {
		t.Errorf("NextRevision() for new path = %d, want 1", rev)
	}

	if err := store.Put(&Entry{Path: "new.txt", LocalHash: "h", RemoteHash: "h", Revision: 4}); err != nil {
		t.Fatal(err)
	}
	rev, err = store.NextRevision("new.txt")
	if err != nil {
		t.Fatal(err)
	}
	if rev != 5 {
		t.Errorf("NextRevision() = %d, want 5", rev)
	}
}

func TestStore_Tombstones(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Put(&Entry{Path: "gone.txt", LocalHash: "h", RemoteHash: "h", Revision: 3}); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkDeleted("gone.txt"); err != nil {
		t.Fatalf("MarkDeleted() failed: %v", err)
	}

	got, err := store.Get("gone.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Tombstone {
		t.Error("entry should be tombstoned")
	}
	if got.Revision != 4 {
		t.Errorf("tombstone revision = %d, want 4", got.Revision)
	}

	pending, err := store.Tombstones()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Path != "gone.txt" {
		t.Errorf("Tombstones() = %v, want [gone.txt]", pending)
	}

	if err := store.Purge("gone.txt"); err != nil {
		t.Fatalf("Purge() failed: %v", err)
	}
	if _, err := store.Get("gone.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Purge() = %v, want ErrNotFound", err)
	}
}

func TestStore_MarkDeletedUnknownPath(t *testing.T) {
	store := setupTestStore(t)

	// Deleting a never-synced path leaves no tombstone.
	if err := store.MarkDeleted("never-seen.txt"); err != nil {
		t.Fatalf("MarkDeleted() failed: %v", err)
	}
	pending, err := store.Tombstones()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("Tombstones() = %v, want none", pending)
	}
}

func TestStore_AllOrdered(t *testing.T) {
	store := setupTestStore(t)

	for i, p := range []string{"z.txt", "a.txt", "m/n.txt"} {
		if err := store.Put(&Entry{Path: p, LocalHash: "h", RemoteHash: "h", Revision: int64(i + 1)}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("All() returned %d entries, want 3", len(all))
	}
	if all[0].Path != "a.txt" || all[1].Path != "m/n.txt" || all[2].Path != "z.txt" {
		t.Errorf("All() order = %v", []string{all[0].Path, all[1].Path, all[2].Path})
	}
}
