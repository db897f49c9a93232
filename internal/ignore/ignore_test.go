package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ibda-ai/codeverse/internal/config"
)

func newTestMatcher(t *testing.T, root string, excludes, includes []string) *Matcher {
	t.Helper()
	m, err := NewMatcher(root, excludes, includes)
	if err != nil {
		t.Fatalf("NewMatcher() failed: %v", err)
	}
	return m
}

func TestMatcher_Defaults(t *testing.T) {
	m := newTestMatcher(t, t.TempDir(), nil, nil)

	tests := []struct {
		path string
		want bool
	}{
		{"main.go", false},
		{"src/app.py", false},
		{".git/config", true},
		{"node_modules/left-pad/index.js", true},
		{"build/out.bin", true},
		{"cache.pyc", true},
		{"notes.log", true},
		{".codeverse/snapshot.db", true},
		{".codeverse.toml", true},
		{".DS_Store", true},
	}
	for _, tt := range tests {
		if got := m.Match(tt.path); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestMatcher_GitignoreAndWorkspaceRules(t *testing.T) {
	root := t.TempDir()
	gitignore := "# generated\n*.gen.go\nsecrets/\n"
	if err := os.WriteFile(filepath.Join(root, ".gitignore"), []byte(gitignore), 0644); err != nil {
		t.Fatal(err)
	}

	m := newTestMatcher(t, root, []string{"docs/**"}, []string{"docs/keep.md"})

	tests := []struct {
		path string
		want bool
	}{
		{"api.gen.go", true},
		{"secrets/key.pem", true},
		{"docs/guide.md", true},
		{"docs/keep.md", false}, // include negation wins over exclude
		{"main.go", false},
	}
	for _, tt := range tests {
		if got := m.Match(tt.path); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestMatcher_IncludeCannotResurrectStateDir(t *testing.T) {
	m := newTestMatcher(t, t.TempDir(), nil, []string{".codeverse/**"})

	if !m.Match(".codeverse/snapshot.db") {
		t.Error("state directory must stay ignored regardless of includes")
	}
}

func TestMatcher_Deterministic(t *testing.T) {
	m := newTestMatcher(t, t.TempDir(), []string{"*.bak"}, nil)

	paths := []string{"a.bak", "a.go", "sub/b.bak", ".git/HEAD"}
	first := make(map[string]bool, len(paths))
	for _, p := range paths {
		first[p] = m.Match(p)
	}
	// Re-evaluating in a different order yields identical verdicts.
	for i := len(paths) - 1; i >= 0; i-- {
		p := paths[i]
		if got := m.Match(p); got != first[p] {
			t.Errorf("Match(%q) changed across evaluations: %v then %v", p, first[p], got)
		}
	}
}

func TestMatcher_MalformedPatterns(t *testing.T) {
	tests := []struct {
		name     string
		excludes []string
	}{
		{"unclosed class", []string{"src/[abc.go"}},
		{"empty negation", []string{"!"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMatcher(t.TempDir(), tt.excludes, nil)
			if err == nil {
				t.Fatal("NewMatcher() should reject malformed pattern")
			}
			if !config.IsConfigError(err) {
				t.Errorf("error should be a ConfigError, got %T", err)
			}
		})
	}
}

func TestMatcher_MalformedGitignore(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".gitignore"), []byte("[broken\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewMatcher(root, nil, nil); !config.IsConfigError(err) {
		t.Errorf("malformed .gitignore pattern should be a ConfigError, got %v", err)
	}
}
