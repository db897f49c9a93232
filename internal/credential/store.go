// Package credential persists authentication tokens encrypted at rest.
//
// One record exists per server identity (host:port). Records are
// sealed with ChaCha20-Poly1305 under a key derived via scrypt from a
// machine-scoped random key file. Both the key file and record files
// are owner-only; a store that finds looser permissions refuses to
// load rather than silently treating the credential as absent.
package credential

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// expirySkew is subtracted from the stored expiry so callers refresh
// slightly before the server would reject the token.
const expirySkew = 30 * time.Second

var (
	// ErrNotFound is returned when no credential exists for the server.
	ErrNotFound = errors.New("no stored credential")

	// ErrTokenExpired is returned when the stored access token is past
	// its expiry. Callers should run the refresh flow.
	ErrTokenExpired = errors.New("access token expired")

	// ErrInsecurePermissions is returned when the credential or key
	// file is readable by group or others.
	ErrInsecurePermissions = errors.New("credential storage has insecure permissions")

	// ErrCorrupt is returned when a credential file cannot be
	// decrypted or decoded.
	ErrCorrupt = errors.New("credential file corrupt")
)

// Credential is one stored authentication record.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Host         string    `json:"host"`
	Port         int       `json:"port"`
	Username     string    `json:"username,omitempty"`
}

// Expired reports whether the access token is past its expiry,
// applying a small skew margin. A zero expiry never expires.
func (c *Credential) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return now.After(c.ExpiresAt.Add(-expirySkew))
}

// Store reads and writes encrypted credential records under dir.
// Writes are serialized so a concurrent read never observes a
// half-written record.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore returns a store rooted at dir (created on first write).
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) recordPath(serverID string) string {
	return filepath.Join(s.dir, serverID+".cred")
}

func (s *Store) keyPath() string {
	return filepath.Join(s.dir, ".key")
}

// Save encrypts and writes the credential for serverID. The record is
// written to a temp file and renamed so readers never see a partial
// write.
func (s *Store) Save(serverID string, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}

	key, err := s.loadOrCreateKey()
	if err != nil {
		return err
	}

	plaintext, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	sealed, err := seal(key, plaintext)
	if err != nil {
		return err
	}

	path := s.recordPath(serverID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0600); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit credential: %w", err)
	}
	return nil
}

// Load decrypts the credential for serverID. Returns ErrNotFound if
// absent and ErrInsecurePermissions if the file mode allows access
// beyond the owner.
func (s *Store) Load(serverID string) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(serverID)
}

func (s *Store) load(serverID string) (*Credential, error) {
	path := s.recordPath(serverID)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat credential: %w", err)
	}
	if info.Mode().Perm()&0077 != 0 {
		return nil, fmt.Errorf("%w: %s mode %v", ErrInsecurePermissions, path, info.Mode().Perm())
	}

	key, err := s.loadKey()
	if err != nil {
		return nil, err
	}

	sealed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credential: %w", err)
	}

	plaintext, err := open(key, sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var cred Credential
	if err := json.Unmarshal(plaintext, &cred); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &cred, nil
}

// Token returns a currently valid access token for serverID, or
// ErrTokenExpired when the stored token is stale.
func (s *Store) Token(serverID string, now time.Time) (string, error) {
	cred, err := s.Load(serverID)
	if err != nil {
		return "", err
	}
	if cred.Expired(now) {
		return "", ErrTokenExpired
	}
	return cred.AccessToken, nil
}

// Clear removes the credential for serverID. Removing an absent
// credential is not an error.
func (s *Store) Clear(serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.recordPath(serverID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credential: %w", err)
	}
	return nil
}

// loadOrCreateKey returns the sealing key, generating the key file on
// first use.
func (s *Store) loadOrCreateKey() ([]byte, error) {
	key, err := s.loadKey()
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate key material: %w", err)
	}
	if err := os.WriteFile(s.keyPath(), seed, 0600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return deriveKey(seed)
}

func (s *Store) loadKey() ([]byte, error) {
	path := s.keyPath()

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm()&0077 != 0 {
		return nil, fmt.Errorf("%w: %s mode %v", ErrInsecurePermissions, path, info.Mode().Perm())
	}

	seed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return deriveKey(seed)
}

// deriveKey stretches the stored seed into a cipher key. The salt is
// fixed: the seed itself is random and local, scrypt here only makes
// offline guessing of a leaked-but-truncated seed harder.
func deriveKey(seed []byte) ([]byte, error) {
	key, err := scrypt.Key(seed, []byte("codeverse-credential-v1"), 1<<15, 8, 1, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return append(nonce, aead.Seal(nil, nonce, plaintext, nil)...), nil
}

func open(key, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("record too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}
