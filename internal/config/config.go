// Package config loads and persists CLI and workspace configuration.
//
// Two layers exist:
//
//  1. Global config (~/.codeverse/config.yaml) — server identity,
//     timeouts, retry limits. Loaded through viper with CODEVERSE_*
//     environment overrides.
//  2. Workspace config (.codeverse.toml in the workspace root) —
//     sync globs, default agent, auto-sync. See workspace.go.
//
// Configuration problems are fatal and reported before any network
// activity begins.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global holds the CLI-wide configuration.
type Global struct {
	Host        string        `mapstructure:"host" yaml:"host"`
	Port        int           `mapstructure:"port" yaml:"port"`
	UseTLS      bool          `mapstructure:"use_tls" yaml:"use_tls"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"`
	LogLevel    string        `mapstructure:"log_level" yaml:"log_level"`
	StateDirRaw string        `mapstructure:"state_dir" yaml:"state_dir,omitempty"`
}

// DefaultGlobal returns the built-in global configuration.
func DefaultGlobal() *Global {
	return &Global{
		Host:       "userapi-codeverse.ibda.me",
		Port:       443,
		UseTLS:     true,
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		LogLevel:   "info",
	}
}

// DefaultStateDir returns ~/.codeverse.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codeverse"
	}
	return filepath.Join(home, ".codeverse")
}

// StateDir returns the configured state directory, falling back to
// ~/.codeverse.
func (g *Global) StateDir() string {
	if g.StateDirRaw != "" {
		return g.StateDirRaw
	}
	return DefaultStateDir()
}

// BaseURL returns the HTTP base URL for the configured server.
func (g *Global) BaseURL() string {
	scheme := "http"
	if g.UseTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, g.Host, g.Port)
}

// WebSocketURL returns the streaming base URL for the configured
// server. The session client appends its endpoint path.
func (g *Global) WebSocketURL() string {
	scheme := "ws"
	if g.UseTLS {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, g.Host, g.Port)
}

// ServerID identifies the server for credential storage.
func (g *Global) ServerID() string {
	return fmt.Sprintf("%s_%d", g.Host, g.Port)
}

// LoadGlobal reads the global configuration from path. A missing file
// yields defaults; a malformed file is a ConfigError. Environment
// variables of the form CODEVERSE_HOST, CODEVERSE_TIMEOUT etc.
// override file values.
func LoadGlobal(path string) (*Global, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("codeverse")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultGlobal()
	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("use_tls", def.UseTLS)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("max_retries", def.MaxRetries)
	v.SetDefault("log_level", def.LogLevel)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, &ConfigError{Path: path, Err: err}
			}
		}
	}

	var g Global
	if err := v.Unmarshal(&g); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	if g.Port <= 0 || g.Port > 65535 {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("port %d out of range", g.Port)}
	}
	if g.Timeout <= 0 {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("timeout must be positive")}
	}
	if g.MaxRetries < 0 {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("max_retries must not be negative")}
	}

	return &g, nil
}

// SaveGlobal writes the global configuration to path with owner-only
// permissions, creating parent directories as needed.
func SaveGlobal(path string, g *Global) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// GlobalPath returns the default global config file location under
// the state directory.
func GlobalPath() string {
	return filepath.Join(DefaultStateDir(), "config.yaml")
}
