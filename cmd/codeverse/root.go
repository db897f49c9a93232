package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibda-ai/codeverse/internal/api"
	"github.com/ibda-ai/codeverse/internal/config"
	"github.com/ibda-ai/codeverse/internal/credential"
	"github.com/ibda-ai/codeverse/internal/logging"
	"github.com/ibda-ai/codeverse/internal/ui"
)

var (
	flagConfig  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "codeverse",
	Short: "CLI client for the CodeVerse agent platform",
	Long: `codeverse connects a local workspace to the CodeVerse cloud platform:
authenticate, sync files bidirectionally, and stream chat or agent
tasks against your code.

Start with:
  codeverse login
  codeverse init
  codeverse chat`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "global config file (default ~/.codeverse/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "mirror debug logging to stderr")
}

// fatal prints a styled error and exits non-zero. Command Run funcs
// use it for anything unrecoverable.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderFail("Error:"), fmt.Sprintf(format, args...))
	os.Exit(1)
}

func loadGlobal() *config.Global {
	path := flagConfig
	if path == "" {
		path = config.GlobalPath()
	}
	g, err := config.LoadGlobal(path)
	if err != nil {
		fatal("loading config: %v", err)
	}
	return g
}

func newLogger(g *config.Global, prefix string) *log.Logger {
	return logging.New(prefix, logging.Options{
		Dir:     filepath.Join(g.StateDir(), "logs"),
		Verbose: flagVerbose || g.LogLevel == "debug",
	})
}

func credStore(g *config.Global) *credential.Store {
	return credential.NewStore(filepath.Join(g.StateDir(), "credentials"))
}

func retryConfig(g *config.Global) api.RetryConfig {
	r := api.DefaultRetryConfig()
	if g.MaxRetries > 0 {
		r.MaxAttempts = g.MaxRetries
	}
	return r
}

// newAPIClient builds the HTTP client with the stored token and an
// auto-refresh hook. The hook uses a hook-free client so a rejected
// refresh token cannot recurse.
func newAPIClient(g *config.Global, logger *log.Logger) *api.Client {
	store := credStore(g)
	serverID := g.ServerID()
	token, _ := store.Token(serverID, time.Now())

	bare := api.New(api.Config{
		BaseURL: g.BaseURL(),
		Timeout: g.Timeout,
		Retry:   retryConfig(g),
		Logger:  logger,
	})

	refresh := func(ctx context.Context) (string, error) {
		cred, err := store.Load(serverID)
		if err != nil || cred.RefreshToken == "" {
			return "", api.ErrUnauthorized
		}
		result, err := bare.Refresh(ctx, cred.RefreshToken)
		if err != nil {
			return "", err
		}
		cred.AccessToken = result.AccessToken
		if result.RefreshToken != "" {
			cred.RefreshToken = result.RefreshToken
		}
		cred.ExpiresAt = result.ExpiresAt
		if err := store.Save(serverID, cred); err != nil {
			logger.Printf("saving refreshed credential: %v", err)
		}
		return result.AccessToken, nil
	}

	return api.New(api.Config{
		BaseURL: g.BaseURL(),
		Token:   token,
		Timeout: g.Timeout,
		Retry:   retryConfig(g),
		Refresh: refresh,
		Logger:  logger,
	})
}

// sessionToken returns the token source for streaming dials: stored
// token when fresh, refresh flow when expired.
func sessionToken(g *config.Global, logger *log.Logger) func(ctx context.Context) (string, error) {
	store := credStore(g)
	serverID := g.ServerID()
	client := newAPIClient(g, logger)

	return func(ctx context.Context) (string, error) {
		token, err := store.Token(serverID, time.Now())
		if err == nil {
			return token, nil
		}
		// Expired or missing; the verify round-trip forces the
		// refresh hook and updates the stored credential.
		if verr := client.Verify(ctx); verr != nil {
			return "", fmt.Errorf("not logged in (run `codeverse login`): %w", verr)
		}
		return client.Token(), nil
	}
}

func workspaceRoot() string {
	root, err := os.Getwd()
	if err != nil {
		fatal("resolving working directory: %v", err)
	}
	return root
}
