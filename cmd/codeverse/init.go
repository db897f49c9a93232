package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ibda-ai/codeverse/internal/config"
	"github.com/ibda-ai/codeverse/internal/ui"
)

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Initialize the current directory as a CodeVerse workspace",
	Long: `Write a starter .codeverse.toml and register the workspace with the
platform. The workspace name defaults to the directory name.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		g := loadGlobal()
		logger := newLogger(g, "init")
		root := workspaceRoot()

		name := filepath.Base(root)
		if len(args) == 1 {
			name = args[0]
		}

		ws := config.DefaultWorkspace(name)
		if err := config.SaveWorkspace(root, ws); err != nil {
			fatal("%v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
		defer cancel()
		client := newAPIClient(g, logger)
		if err := client.RegisterWorkspace(ctx, name); err != nil {
			fmt.Printf("%s workspace config written, but remote registration failed: %v\n", ui.RenderWarn("!"), err)
			fmt.Printf("  Run %s once the server is reachable.\n", ui.RenderAccent("codeverse sync"))
			return
		}

		fmt.Printf("%s Workspace %s initialized\n", ui.RenderPass("✓"), ui.RenderBold(name))
		fmt.Printf("  Edit %s to adjust sync rules, then run %s.\n",
			ui.RenderAccent(config.WorkspaceFileName), ui.RenderAccent("codeverse sync"))
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
