package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ibda-ai/codeverse/internal/ui"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agents available on the platform",
	Run: func(cmd *cobra.Command, args []string) {
		g := loadGlobal()
		logger := newLogger(g, "agents")

		ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
		defer cancel()

		agents, err := newAPIClient(g, logger).Agents(ctx)
		if err != nil {
			fatal("listing agents: %v", err)
		}
		if len(agents) == 0 {
			fmt.Println("No agents available")
			return
		}

		fmt.Printf("%-24s %-14s %-10s %s\n",
			ui.RenderHeader("AGENT"), ui.RenderHeader("TYPE"),
			ui.RenderHeader("STATUS"), ui.RenderHeader("DESCRIPTION"))
		for _, a := range agents {
			status := a.Status
			if status == "active" {
				status = ui.RenderPass(status)
			} else {
				status = ui.RenderDim(status)
			}
			fmt.Printf("%-24s %-14s %-10s %s\n", ui.RenderBold(a.Name), a.Type, status, a.Description)
		}
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}
