package credential

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStore_SaveLoad(t *testing.T) {
	store := NewStore(t.TempDir())

	want := &Credential{
		AccessToken:  "tok-abc",
		RefreshToken: "ref-xyz",
		ExpiresAt:    time.Now().Add(time.Hour).UTC(),
		Host:         "example.com",
		Port:         443,
		Username:     "dev",
	}
	if err := store.Save("example.com_443", want); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := store.Load("example.com_443")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
	if got.Username != "dev" || got.Host != "example.com" {
		t.Errorf("identity fields lost: %+v", got)
	}
}

func TestStore_EncryptedAtRest(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	cred := &Credential{AccessToken: "super-secret-token", Host: "h", Port: 1}
	if err := store.Save("h_1", cred); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "h_1.cred"))
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if bytes.Contains(raw, []byte("super-secret-token")) {
		t.Error("token stored in plaintext")
	}

	info, err := os.Stat(filepath.Join(dir, "h_1.cred"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("record mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestStore_NotFound(t *testing.T) {
	store := NewStore(t.TempDir())

	if _, err := store.Load("missing_443"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() = %v, want ErrNotFound", err)
	}
}

func TestStore_InsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	if err := store.Save("h_1", &Credential{AccessToken: "t"}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := os.Chmod(filepath.Join(dir, "h_1.cred"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := store.Load("h_1")
	if !errors.Is(err, ErrInsecurePermissions) {
		t.Errorf("Load() with 0644 record = %v, want ErrInsecurePermissions", err)
	}
}

func TestStore_Token(t *testing.T) {
	store := NewStore(t.TempDir())
	now := time.Now()

	if err := store.Save("h_1", &Credential{
		AccessToken: "live",
		ExpiresAt:   now.Add(time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	tok, err := store.Token("h_1", now)
	if err != nil {
		t.Fatalf("Token() failed: %v", err)
	}
	if tok != "live" {
		t.Errorf("Token() = %q, want live", tok)
	}

	// Past expiry.
	if err := store.Save("h_1", &Credential{
		AccessToken: "stale",
		ExpiresAt:   now.Add(-time.Minute),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Token("h_1", now); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Token() past expiry = %v, want ErrTokenExpired", err)
	}

	// Within the skew margin counts as expired.
	if err := store.Save("h_1", &Credential{
		AccessToken: "closing",
		ExpiresAt:   now.Add(10 * time.Second),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Token("h_1", now); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Token() within skew = %v, want ErrTokenExpired", err)
	}
}

func TestStore_Clear(t *testing.T) {
	store := NewStore(t.TempDir())

	if err := store.Save("h_1", &Credential{AccessToken: "t"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear("h_1"); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	if _, err := store.Load("h_1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after Clear() = %v, want ErrNotFound", err)
	}

	// Clearing again is idempotent.
	if err := store.Clear("h_1"); err != nil {
		t.Errorf("second Clear() failed: %v", err)
	}
}

func TestStore_CorruptRecord(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	if err := store.Save("h_1", &Credential{AccessToken: "t"}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "h_1.cred"), []byte("garbage"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Load("h_1"); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Load() of garbage = %v, want ErrCorrupt", err)
	}
}
