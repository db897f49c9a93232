package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibda-ai/codeverse/internal/config"
	"github.com/ibda-ai/codeverse/internal/detect"
	"github.com/ibda-ai/codeverse/internal/engine"
	"github.com/ibda-ai/codeverse/internal/ignore"
	"github.com/ibda-ai/codeverse/internal/snapshot"
	"github.com/ibda-ai/codeverse/internal/ui"
)

var (
	syncWatch  bool
	syncDryRun bool
	syncReset  bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the workspace with its remote counterpart",
	Long: `Reconcile local files against the remote workspace: push local
changes, pull remote ones, propagate deletions, and surface conflicts
without ever merging. With --watch the command keeps running and syncs
each debounced batch of filesystem changes.`,
	Run: func(cmd *cobra.Command, args []string) {
		g := loadGlobal()
		logger := newLogger(g, "sync")
		root := workspaceRoot()

		ws, err := config.LoadWorkspace(root)
		if err != nil {
			fatal("%v", err)
		}

		eng, snap, matcher := buildEngine(g, logger, root, ws)
		defer snap.Close()

		if syncReset {
			if err := snap.Reset(); err != nil {
				fatal("resetting snapshot: %v", err)
			}
			fmt.Printf("%s Snapshot reset; next pass re-evaluates every file\n", ui.RenderWarn("!"))
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if syncDryRun {
			plan, err := eng.Plan(ctx)
			if err != nil {
				fatal("planning: %v", err)
			}
			printPlan(plan)
			return
		}

		runSyncPass(ctx, eng)

		if syncWatch {
			watchLoop(ctx, eng, matcher, root, ws, logger)
		}
	},
}

func buildEngine(g *config.Global, logger *log.Logger, root string, ws *config.Workspace) (*engine.Engine, *snapshot.Store, *ignore.Matcher) {
	matcher, err := ignore.NewMatcher(root, ws.Sync.Exclude, ws.Sync.Include)
	if err != nil {
		fatal("%v", err)
	}

	stateDir := filepath.Join(root, ignore.StateDirName)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		fatal("creating state directory: %v", err)
	}
	snap, err := snapshot.Open(filepath.Join(stateDir, "snapshot.db"))
	if err != nil {
		fatal("opening snapshot: %v", err)
	}

	eng, err := engine.New(engine.Config{
		Root:      root,
		Workspace: ws.Name,
		Snapshot:  snap,
		Scanner:   detect.NewScanner(root, matcher, snap, ws.Sync.MaxFileSize),
		Remote:    newAPIClient(g, logger),
		Logger:    logger,
	})
	if err != nil {
		snap.Close()
		fatal("building sync engine: %v", err)
	}
	return eng, snap, matcher
}

// runSyncPass executes one full pass and renders the outcome. Partial
// failures and conflicts are reported; conflicts do not change the
// exit code, transfer failures do.
func runSyncPass(ctx context.Context, eng *engine.Engine) {
	res, err := eng.Sync(ctx)
	if err != nil {
		var pe *engine.PartialApplyError
		if errors.As(err, &pe) {
			reportResult(res)
			fmt.Printf("%s %v\n", ui.RenderFail("✗"), pe)
			fmt.Printf("  Re-run %s to resume; completed entries are not retransmitted.\n",
				ui.RenderAccent("codeverse sync"))
			os.Exit(1)
		}
		fatal("sync failed: %v", err)
	}
	reportResult(res)
}

func reportResult(res *engine.ApplyResult) {
	if res == nil {
		return
	}
	if res.Pushed+res.Pulled+res.Deleted+len(res.Conflicts) == 0 {
		fmt.Printf("%s Workspace up to date\n", ui.RenderPass("✓"))
	} else {
		fmt.Printf("%s Synced: %d pushed, %d pulled, %d deleted\n",
			ui.RenderPass("✓"), res.Pushed, res.Pulled, res.Deleted)
	}
	for _, s := range res.SkippedFiles {
		fmt.Printf("  %s skipped %s (%s)\n", ui.RenderDim("-"), s.Path, s.Reason)
	}
	for _, c := range res.Conflicts {
		fmt.Printf("%s Conflict: %s — remote version saved as %s\n",
			ui.RenderWarn("!"), ui.RenderBold(c.Path), c.Sibling)
	}
}

func printPlan(plan *engine.TransferPlan) {
	if plan.Empty() {
		fmt.Printf("%s Nothing to sync\n", ui.RenderPass("✓"))
		return
	}
	for _, a := range plan.Actions {
		var marker string
		switch a.Kind {
		case engine.Push:
			marker = ui.RenderAccent("↑ push")
		case engine.Pull:
			marker = ui.RenderAccent("↓ pull")
		case engine.Delete, engine.DeleteLocal:
			marker = ui.RenderWarn("✗ " + a.Kind.String())
		case engine.Conflict:
			marker = ui.RenderFail("! conflict")
		default:
			marker = ui.RenderDim("- " + a.Kind.String())
		}
		fmt.Printf("  %s %s\n", marker, a.Path)
	}
	fmt.Printf("%s\n", ui.RenderBold(plan.Summary()))
}

func watchLoop(ctx context.Context, eng *engine.Engine, matcher *ignore.Matcher, root string, ws *config.Workspace, logger *log.Logger) {
	watcher, err := detect.NewWatcher(detect.WatcherConfig{
		Root:        root,
		Matcher:     matcher,
		Debounce:    time.Duration(ws.Sync.DebounceMS) * time.Millisecond,
		MaxFileSize: ws.Sync.MaxFileSize,
		Logger:      logger,
	})
	if err != nil {
		fatal("starting watcher: %v", err)
	}
	if err := watcher.Start(ctx); err != nil {
		fatal("starting watcher: %v", err)
	}
	defer watcher.Stop()

	fmt.Printf("%s Watching for changes (Ctrl-C to stop)\n", ui.RenderAccent("⏱"))
	if err := eng.Watch(ctx, watcher.Events()); err != nil && !errors.Is(err, context.Canceled) {
		fatal("watch loop: %v", err)
	}
	fmt.Printf("\n%s Watch stopped\n", ui.RenderPass("✓"))
}

func init() {
	syncCmd.Flags().BoolVarP(&syncWatch, "watch", "w", false, "keep running and sync on filesystem changes")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "print the transfer plan without applying it")
	syncCmd.Flags().BoolVar(&syncReset, "reset", false, "discard the local snapshot before syncing")
	rootCmd.AddCommand(syncCmd)
}
