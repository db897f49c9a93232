package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/ibda-ai/codeverse/internal/ui"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a new CodeVerse account",
	Run: func(cmd *cobra.Command, args []string) {
		g := loadGlobal()
		logger := newLogger(g, "register")

		var username, email, password, confirm string
		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Username").Value(&username).
				Validate(required("username")),
			huh.NewInput().Title("Email").Value(&email).
				Validate(func(s string) error {
					if !strings.Contains(s, "@") {
						return fmt.Errorf("not a valid email address")
					}
					return nil
				}),
			huh.NewInput().Title("Password").
				EchoMode(huh.EchoModePassword).Value(&password).
				Validate(required("password")),
			huh.NewInput().Title("Confirm password").
				EchoMode(huh.EchoModePassword).Value(&confirm),
		))
		if err := form.Run(); err != nil {
			fatal("reading registration: %v", err)
		}
		if password != confirm {
			fatal("passwords do not match")
		}

		ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
		defer cancel()

		client := newAPIClient(g, logger)
		if err := client.Register(ctx, strings.TrimSpace(username), strings.TrimSpace(email), password); err != nil {
			fatal("registration failed: %v", err)
		}

		fmt.Printf("%s Account created. Run %s to authenticate.\n",
			ui.RenderPass("✓"), ui.RenderAccent("codeverse login"))
	},
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func init() {
	rootCmd.AddCommand(registerCmd)
}
