package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ibda-ai/codeverse/internal/ui"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the server token and remove the stored credential",
	Run: func(cmd *cobra.Command, args []string) {
		g := loadGlobal()
		logger := newLogger(g, "logout")

		ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
		defer cancel()

		// Revocation is best effort; the local credential goes away
		// regardless.
		client := newAPIClient(g, logger)
		if err := client.RevokeToken(ctx); err != nil {
			logger.Printf("token revocation failed: %v", err)
		}

		if err := credStore(g).Clear(g.ServerID()); err != nil {
			fatal("removing credential: %v", err)
		}
		fmt.Printf("%s Logged out of %s\n", ui.RenderPass("✓"), g.Host)
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
