package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// WorkspaceFileName is the workspace configuration file looked up in
// the workspace root.
const WorkspaceFileName = ".codeverse.toml"

// Workspace holds per-workspace sync and agent configuration, read
// from .codeverse.toml. A missing file yields DefaultWorkspace.
type Workspace struct {
	Name  string         `toml:"name"`
	Sync  SyncConfig     `toml:"sync"`
	Agent AgentConfig    `toml:"agent"`
}

// SyncConfig controls what the sync engine transfers.
type SyncConfig struct {
	// Include holds glob patterns re-including paths excluded by
	// ignore rules. Exclude holds additional exclusion patterns.
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`

	// MaxFileSize is the per-file size ceiling in bytes. Files above
	// it are skipped, not errored. Zero means the built-in default.
	MaxFileSize int64 `toml:"max_file_size"`

	// DebounceMS is the watch-mode debounce window in milliseconds.
	DebounceMS int `toml:"debounce_ms"`

	// Auto enables watch-mode sync during chat sessions.
	Auto bool `toml:"auto"`
}

// AgentConfig selects the default agent for chat and run.
type AgentConfig struct {
	Default string `toml:"default"`
}

// DefaultWorkspace returns the built-in workspace configuration used
// when no .codeverse.toml exists.
func DefaultWorkspace(name string) *Workspace {
	return &Workspace{
		Name: name,
		Sync: SyncConfig{
			MaxFileSize: 1 << 20, // 1 MiB
			DebounceMS:  300,
		},
		Agent: AgentConfig{Default: "general"},
	}
}

// LoadWorkspace reads the workspace config from root. Unknown keys and
// type mismatches are ConfigErrors; absence is not an error.
func LoadWorkspace(root string) (*Workspace, error) {
	path := filepath.Join(root, WorkspaceFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultWorkspace(filepath.Base(root)), nil
		}
		return nil, &ConfigError{Path: path, Err: err}
	}

	ws := DefaultWorkspace(filepath.Base(root))
	meta, err := toml.Decode(string(data), ws)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, &ConfigError{
			Path: path,
			Err:  fmt.Errorf("unknown key %q", undecoded[0].String()),
		}
	}

	if ws.Sync.MaxFileSize < 0 {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("sync.max_file_size must not be negative")}
	}
	if ws.Sync.DebounceMS < 0 {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("sync.debounce_ms must not be negative")}
	}

	return ws, nil
}

// SaveWorkspace writes a starter workspace config to root. Used by
// `codeverse init`. Fails if the file already exists.
func SaveWorkspace(root string, ws *Workspace) error {
	path := filepath.Join(root, WorkspaceFileName)

	if _, err := os.Stat(path); err == nil {
		return &ConfigError{Path: path, Err: fmt.Errorf("workspace already initialized")}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create workspace config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(ws); err != nil {
		return fmt.Errorf("encode workspace config: %w", err)
	}
	return nil
}
