// Package ignore decides which workspace paths participate in sync.
//
// Rules merge in a fixed order: built-in defaults, then .gitignore
// lines, then workspace excludes, then workspace includes (expressed
// as negations so they re-include paths an earlier rule excluded).
// Later sources only add rules; they never drop base ignores.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/ibda-ai/codeverse/internal/config"
)

// StateDirName is the workspace-local state directory, always ignored.
const StateDirName = ".codeverse"

// DefaultPatterns are always excluded regardless of other rules.
var DefaultPatterns = []string{
	".git/",
	".hg/",
	".svn/",
	"node_modules/",
	"vendor/",
	"dist/",
	"build/",
	"target/",
	"__pycache__/",
	"*.pyc",
	".venv/",
	".env",
	".DS_Store",
	"*.log",
	"*.tmp",
	"*.codeverse-tmp",
	".idea/",
	".vscode/",
	StateDirName + "/",
	config.WorkspaceFileName,
}

// Matcher answers whether a relative path is excluded from sync.
// A compiled matcher is immutable and safe for concurrent use.
type Matcher struct {
	parser gitignore.IgnoreParser
}

// NewMatcher compiles the merged rule set for the workspace at root.
// excludes and includes come from the workspace config. A malformed
// pattern is a ConfigError naming the pattern and its source.
func NewMatcher(root string, excludes, includes []string) (*Matcher, error) {
	patterns := make([]string, 0, len(DefaultPatterns)+len(excludes)+len(includes)+16)
	patterns = append(patterns, DefaultPatterns...)

	gitignorePath := filepath.Join(root, ".gitignore")
	lines, err := readPatternFile(gitignorePath)
	if err != nil {
		return nil, err
	}
	patterns = append(patterns, lines...)

	for _, p := range excludes {
		if err := validatePattern(p); err != nil {
			return nil, &config.ConfigError{
				Path: filepath.Join(root, config.WorkspaceFileName),
				Err:  fmt.Errorf("sync.exclude pattern %q: %w", p, err),
			}
		}
		patterns = append(patterns, p)
	}
	for _, p := range includes {
		if err := validatePattern(p); err != nil {
			return nil, &config.ConfigError{
				Path: filepath.Join(root, config.WorkspaceFileName),
				Err:  fmt.Errorf("sync.include pattern %q: %w", p, err),
			}
		}
		patterns = append(patterns, "!"+strings.TrimPrefix(p, "!"))
	}

	// The state directory is re-excluded last so no include rule can
	// resurrect it.
	patterns = append(patterns, StateDirName+"/")

	return &Matcher{parser: gitignore.CompileIgnoreLines(patterns...)}, nil
}

// Match reports whether relPath is excluded. The verdict depends only
// on the compiled rule set and the path.
func (m *Matcher) Match(relPath string) bool {
	return m.parser.MatchesPath(filepath.ToSlash(relPath))
}

// readPatternFile loads ignore lines from path, skipping comments and
// blanks. Each pattern is validated; absence of the file is fine.
func readPatternFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &config.ConfigError{Path: path, Err: err}
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := validatePattern(line); err != nil {
			return nil, &config.ConfigError{
				Path: path,
				Err:  fmt.Errorf("pattern %q: %w", line, err),
			}
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, &config.ConfigError{Path: path, Err: err}
	}
	return lines, nil
}

// validatePattern rejects patterns the glob compiler would otherwise
// swallow silently.
func validatePattern(p string) error {
	body := strings.TrimPrefix(p, "!")
	if strings.TrimSuffix(body, "/") == "" {
		return fmt.Errorf("empty pattern")
	}

	// filepath.Match flags unclosed character classes and trailing
	// escapes. Collapse ** first; it is valid ignore syntax but not
	// valid for Match.
	probe := strings.ReplaceAll(strings.TrimSuffix(body, "/"), "**", "*")
	if _, err := filepath.Match(probe, "probe"); err != nil {
		return fmt.Errorf("malformed glob: %w", err)
	}
	return nil
}
