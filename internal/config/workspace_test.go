package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeWorkspaceFile(t *testing.T, root, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, WorkspaceFileName), []byte(content), 0644); err != nil {
		t.Fatalf("write workspace config: %v", err)
	}
}

func TestLoadWorkspace_Missing(t *testing.T) {
	root := t.TempDir()

	ws, err := LoadWorkspace(root)
	if err != nil {
		t.Fatalf("LoadWorkspace() with no file failed: %v", err)
	}
	if ws.Name != filepath.Base(root) {
		t.Errorf("Name = %q, want directory name", ws.Name)
	}
	if ws.Agent.Default != "general" {
		t.Errorf("Agent.Default = %q, want general", ws.Agent.Default)
	}
	if ws.Sync.MaxFileSize != 1<<20 {
		t.Errorf("Sync.MaxFileSize = %d, want 1 MiB", ws.Sync.MaxFileSize)
	}
}

func TestLoadWorkspace_Full(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, `
name = "my-project"

[sync]
include = ["docs/**"]
exclude = ["*.log", "tmp/"]
max_file_size = 2048
debounce_ms = 150
auto = true

[agent]
default = "backend"
`)

	ws, err := LoadWorkspace(root)
	if err != nil {
		t.Fatalf("LoadWorkspace() failed: %v", err)
	}
	if ws.Name != "my-project" {
		t.Errorf("Name = %q", ws.Name)
	}
	if len(ws.Sync.Exclude) != 2 || ws.Sync.Exclude[0] != "*.log" {
		t.Errorf("Sync.Exclude = %v", ws.Sync.Exclude)
	}
	if ws.Sync.MaxFileSize != 2048 {
		t.Errorf("Sync.MaxFileSize = %d", ws.Sync.MaxFileSize)
	}
	if !ws.Sync.Auto {
		t.Error("Sync.Auto should be true")
	}
	if ws.Agent.Default != "backend" {
		t.Errorf("Agent.Default = %q", ws.Agent.Default)
	}
}

func TestLoadWorkspace_UnknownKey(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, "nam = \"typo\"\n")

	_, err := LoadWorkspace(root)
	if err == nil {
		t.Fatal("LoadWorkspace() should reject unknown keys")
	}
	if !IsConfigError(err) {
		t.Errorf("error should be a ConfigError, got %T", err)
	}
}

func TestLoadWorkspace_MalformedTOML(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, "[sync\ninclude = 3\n")

	if _, err := LoadWorkspace(root); !IsConfigError(err) {
		t.Errorf("malformed TOML should be a ConfigError, got %v", err)
	}
}

func TestSaveWorkspace(t *testing.T) {
	root := t.TempDir()

	ws := DefaultWorkspace("demo")
	if err := SaveWorkspace(root, ws); err != nil {
		t.Fatalf("SaveWorkspace() failed: %v", err)
	}

	// Second init must refuse to clobber.
	if err := SaveWorkspace(root, ws); err == nil {
		t.Fatal("SaveWorkspace() should fail when file exists")
	}

	got, err := LoadWorkspace(root)
	if err != nil {
		t.Fatalf("LoadWorkspace() after save failed: %v", err)
	}
	if got.Name != "demo" {
		t.Errorf("Name = %q, want demo", got.Name)
	}
}
