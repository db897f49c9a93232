package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibda-ai/codeverse/internal/config"
	"github.com/ibda-ai/codeverse/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run <agent> <task...>",
	Short: "Dispatch one task to a specific agent",
	Long: `Invoke a named agent directly with a task description and stream its
output. Unlike chat, the agent is addressed explicitly and the session
ends when the task completes.

Example:
  codeverse run code-reviewer "review the changes in internal/engine"`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		g := loadGlobal()
		logger := newLogger(g, "run")
		root := workspaceRoot()

		ws, err := config.LoadWorkspace(root)
		if err != nil {
			fatal("%v", err)
		}
		agent := args[0]
		task := strings.Join(args[1:], " ")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		eng, snap, _ := buildEngine(g, logger, root, ws)
		defer snap.Close()

		h := newChatHandler(logger)
		client, err := session.New(session.Config{
			BaseURL:        g.WebSocketURL(),
			Workspace:      ws.Name,
			Agent:          agent,
			Token:          sessionToken(g, logger),
			Handler:        h,
			Applier:        eng,
			Logger:         logger,
			MaxAttachBytes: ws.Sync.MaxFileSize,
		})
		if err != nil {
			fatal("%v", err)
		}

		runDone := make(chan error, 1)
		go func() { runDone <- client.Run(ctx) }()
		if err := waitConnected(client, runDone, 15*time.Second); err != nil {
			fatal("connecting session: %v", err)
		}

		sendAndWait(ctx, client, h, runDone, func() error {
			return client.Task(ctx, agent, task)
		})
		client.Close()
		<-runDone
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
