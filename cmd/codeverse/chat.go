package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibda-ai/codeverse/internal/config"
	"github.com/ibda-ai/codeverse/internal/detect"
	"github.com/ibda-ai/codeverse/internal/engine"
	"github.com/ibda-ai/codeverse/internal/session"
	"github.com/ibda-ai/codeverse/internal/ui"
)

var (
	chatMessage string
	chatFiles   []string
	chatAgent   string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the platform's agents about this workspace",
	Long: `Open a streaming session against the remote platform. With -m the
message is sent once and the command exits after the response; without
it an interactive loop starts. Context files attach with -f. Code
changes streamed back by the agent land in the workspace, never
overwriting local edits (divergent files get a conflict sibling).`,
	Run: func(cmd *cobra.Command, args []string) {
		g := loadGlobal()
		logger := newLogger(g, "chat")
		root := workspaceRoot()

		ws, err := config.LoadWorkspace(root)
		if err != nil {
			fatal("%v", err)
		}
		agent := chatAgent
		if agent == "" {
			agent = ws.Agent.Default
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		eng, snap, matcher := buildEngine(g, logger, root, ws)
		defer snap.Close()

		if ws.Sync.Auto {
			startAutoSync(ctx, eng, matcher, root, ws, logger)
		}

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

		if len(chatFiles) > 0 {
			atts, err := session.BuildAttachments(root, chatFiles, ws.Sync.MaxFileSize)
			if err != nil {
				fatal("%v", err)
			}
			if err := client.Attach(ctx, atts); err != nil {
				fatal("attaching files: %v", err)
			}
			fmt.Printf("%s Attached %d file(s)\n", ui.RenderDim("·"), len(atts))
		}

		if chatMessage != "" {
			sendAndWait(ctx, client, h, runDone, func() error {
				return client.Chat(ctx, chatMessage)
			})
			client.Close()
			<-runDone
			return
		}

		interactiveLoop(ctx, client, h, runDone)
	},
}

// chatHandler renders inbound frames and signals turn boundaries.
type chatHandler struct {
	logger *log.Logger
	turns  chan struct{}
}

func newChatHandler(logger *log.Logger) *chatHandler {
	return &chatHandler{logger: logger, turns: make(chan struct{}, 1)}
}

func (h *chatHandler) OnToken(text string) {
	fmt.Print(text)
}

func (h *chatHandler) OnStatus(event, detail string) {
	if event == "turn_complete" {
		fmt.Println()
		select {
		case h.turns <- struct{}{}:
		default:
		}
		return
	}
	fmt.Printf("\n%s\n", ui.RenderDim(fmt.Sprintf("[%s] %s", event, detail)))
}

func (h *chatHandler) OnFileApplied(path string, err error) {
	switch {
	case err == nil:
		fmt.Printf("\n%s applied %s\n", ui.RenderAccent("✎"), path)
	case engine.IsConflict(err):
		fmt.Printf("\n%s %v\n", ui.RenderWarn("!"), err)
	default:
		fmt.Printf("\n%s applying %s: %v\n", ui.RenderFail("✗"), path, err)
	}
}

func (h *chatHandler) OnSessionReset() {
	fmt.Printf("\n%s Session reset: the server could not resume, conversation context was lost\n", ui.RenderWarn("!"))
}

func (h *chatHandler) OnError(code, message string) {
	fmt.Printf("\n%s %s: %s\n", ui.RenderFail("✗"), code, message)
	select {
	case h.turns <- struct{}{}:
	default:
	}
}

// waitConnected blocks until the session hello arrives or Run gives
// up.
func waitConnected(client *session.Client, runDone <-chan error, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for client.SessionID() == "" {
		select {
		case err := <-runDone:
			if err == nil {
				err = errors.New("session closed before hello")
			}
			return err
		case <-time.After(20 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			return errors.New("timed out waiting for the session")
		}
	}
	return nil
}

// sendAndWait runs one outbound turn and blocks until the server
// marks it complete or the session ends.
func sendAndWait(ctx context.Context, client *session.Client, h *chatHandler, runDone <-chan error, send func() error) {
	if err := send(); err != nil {
		fatal("sending: %v", err)
	}
	select {
	case <-h.turns:
	case err := <-runDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			fatal("session ended: %v", err)
		}
	case <-ctx.Done():
		client.Cancel(context.Background())
	}
}

func interactiveLoop(ctx context.Context, client *session.Client, h *chatHandler, runDone <-chan error) {
	fmt.Printf("%s Interactive session (type %s to leave)\n",
		ui.RenderHeader("codeverse chat"), ui.RenderAccent("exit"))

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Print(ui.RenderBold("you> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		sendAndWait(ctx, client, h, runDone, func() error {
			return client.Chat(ctx, line)
		})
		if ctx.Err() != nil {
			break
		}
	}

	client.Close()
	<-runDone
	fmt.Printf("%s Session closed\n", ui.RenderPass("✓"))
}

// startAutoSync runs watch-mode sync in the background for the life
// of the chat session.
func startAutoSync(ctx context.Context, eng *engine.Engine, matcher interface{ Match(string) bool }, root string, ws *config.Workspace, logger *log.Logger) {
	watcher, err := detect.NewWatcher(detect.WatcherConfig{
		Root:        root,
		Matcher:     matcher,
		Debounce:    time.Duration(ws.Sync.DebounceMS) * time.Millisecond,
		MaxFileSize: ws.Sync.MaxFileSize,
		Logger:      logger,
	})
	if err != nil {
		logger.Printf("auto-sync unavailable: %v", err)
		return
	}
	if err := watcher.Start(ctx); err != nil {
		logger.Printf("auto-sync unavailable: %v", err)
		return
	}
	go func() {
		defer watcher.Stop()
		if err := eng.Watch(ctx, watcher.Events()); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("auto-sync stopped: %v", err)
		}
	}()
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "send one message and exit after the response")
	chatCmd.Flags().StringArrayVarP(&chatFiles, "file", "f", nil, "attach a workspace file as context (repeatable)")
	chatCmd.Flags().StringVarP(&chatAgent, "agent", "a", "", "agent to address (default from .codeverse.toml)")
	rootCmd.AddCommand(chatCmd)
}
