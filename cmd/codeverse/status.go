package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibda-ai/codeverse/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show platform health and the local login state",
	Run: func(cmd *cobra.Command, args []string) {
		g := loadGlobal()
		logger := newLogger(g, "status")

		ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
		defer cancel()

		client := newAPIClient(g, logger)
		status, err := client.Status(ctx)
		if err != nil {
			fatal("platform unreachable at %s: %v", g.BaseURL(), err)
		}

		health := ui.RenderPass(status.Status)
		if status.Status != "healthy" && status.Status != "ok" {
			health = ui.RenderWarn(status.Status)
		}
		fmt.Printf("%s\n", ui.RenderHeader("CodeVerse Platform"))
		fmt.Printf("  Server:        %s\n", g.Host)
		fmt.Printf("  Status:        %s\n", health)
		fmt.Printf("  Version:       %s\n", status.Version)
		fmt.Printf("  Active agents: %d\n", status.ActiveAgents)
		for name, state := range status.Infrastructure {
			fmt.Printf("  %-14s %s\n", name+":", state)
		}

		if err := status.CheckCLIVersion(version); err != nil {
			fmt.Printf("%s %v\n", ui.RenderWarn("!"), err)
		}

		// Login state, without touching the network again.
		store := credStore(g)
		cred, err := store.Load(g.ServerID())
		switch {
		case err != nil:
			fmt.Printf("  Login:         %s\n", ui.RenderDim("not logged in"))
		case cred.Expired(time.Now()):
			fmt.Printf("  Login:         %s\n", ui.RenderWarn(cred.Username+" (token expired)"))
		default:
			fmt.Printf("  Login:         %s\n", ui.RenderPass(cred.Username))
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
