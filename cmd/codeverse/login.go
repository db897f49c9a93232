package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ibda-ai/codeverse/internal/credential"
	"github.com/ibda-ai/codeverse/internal/ui"
)

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the CodeVerse platform",
	Long: `Log in and store an encrypted credential for this server.

Without flags an interactive form prompts for username and password.
The password flag is meant for scripting only; prefer the prompt.`,
	Run: func(cmd *cobra.Command, args []string) {
		g := loadGlobal()
		logger := newLogger(g, "login")

		username, password := loginUsername, loginPassword
		if username == "" || password == "" {
			var err error
			username, password, err = promptCredentials(username)
			if err != nil {
				fatal("reading credentials: %v", err)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
		defer cancel()

		client := newAPIClient(g, logger)
		result, err := client.Login(ctx, username, password)
		if err != nil {
			fatal("login failed: %v", err)
		}

		expires := result.ExpiresAt
		if expires.IsZero() {
			expires = time.Now().Add(time.Hour)
		}
		cred := &credential.Credential{
			AccessToken:  result.AccessToken,
			RefreshToken: result.RefreshToken,
			ExpiresAt:    expires,
			Host:         g.Host,
			Port:         g.Port,
			Username:     result.Username,
		}
		if cred.Username == "" {
			cred.Username = username
		}
		if err := credStore(g).Save(g.ServerID(), cred); err != nil {
			fatal("storing credential: %v", err)
		}

		fmt.Printf("%s Logged in to %s as %s\n", ui.RenderPass("✓"), g.Host, cred.Username)
	},
}

// promptCredentials asks for username and password, with a plain
// line-based fallback when stdin is not a terminal.
func promptCredentials(username string) (string, string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		reader := bufio.NewReader(os.Stdin)
		if username == "" {
			line, err := reader.ReadString('\n')
			if err != nil {
				return "", "", err
			}
			username = strings.TrimSpace(line)
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		return username, strings.TrimSpace(line), nil
	}

	var password string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Username").
			Value(&username).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("username is required")
				}
				return nil
			}),
		huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&password).
			Validate(func(s string) error {
				if s == "" {
					return fmt.Errorf("password is required")
				}
				return nil
			}),
	))
	if err := form.Run(); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(username), password, nil
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "account username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "account password (prefer the interactive prompt)")
	rootCmd.AddCommand(loginCmd)
}
