// Package session maintains one authenticated streaming channel to
// the platform. Outbound frames carry chat turns, attached context
// files, agent tasks, acks, and cancels; inbound frames are
// demultiplexed in server order to a Handler. A gap in the sequence
// numbers forces a reconnect-and-resume, never a silent continue.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

var (
	// ErrSequenceGap is returned when an inbound frame skips a
	// sequence number. The channel is closed and resumed rather than
	// risk applying frames out of order.
	ErrSequenceGap = errors.New("inbound sequence gap")

	// ErrNotConnected is returned for sends before Run establishes
	// the channel.
	ErrNotConnected = errors.New("session not connected")
)

// Handler receives demultiplexed inbound frames, in server order,
// from the Run goroutine.
type Handler interface {
	// OnToken appends one streamed text delta to the current response.
	OnToken(text string)

	// OnStatus reports an agent or tool transition.
	OnStatus(event, detail string)

	// OnFileApplied reports the outcome of one remote-origin file
	// change. err may be a sync conflict; the frame is still acked.
	OnFileApplied(path string, err error)

	// OnSessionReset fires exactly once when a reconnect could not
	// resume and a fresh session replaced the old one.
	OnSessionReset()

	// OnError reports a server-side error frame.
	OnError(code, message string)
}

// Applier lands remote-origin file changes in the workspace. The sync
// engine satisfies it.
type Applier interface {
	ApplyRemote(ctx context.Context, path string, content []byte) error
}

// TokenFunc supplies a fresh access token for each dial, so a
// reconnect after token expiry re-authenticates.
type TokenFunc func(ctx context.Context) (string, error)

// ReconnectConfig bounds the reconnection backoff.
type ReconnectConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultReconnectConfig returns the backoff used for dropped
// sessions.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxAttempts: 5,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     15 * time.Second,
		Multiplier:  2.0,
	}
}

// Config holds session construction parameters.
type Config struct {
	// BaseURL is the websocket endpoint base, ws:// or wss://.
	BaseURL   string
	Workspace string
	Agent     string

	Token     TokenFunc
	Handler   Handler
	Applier   Applier
	Logger    *log.Logger
	Reconnect ReconnectConfig

	// MaxAttachBytes caps the total size of attached context files.
	// Zero means 1 MiB.
	MaxAttachBytes int64
}

// Client is one streaming session. Create with New, drive with Run,
// send turns from other goroutines while Run is live.
type Client struct {
	cfg      Config
	logger   *log.Logger
	clientID string

	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
	lastSeq   int64
	cancelled bool
}

// New creates a session client. It does not dial; Run does.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("session: base URL is required")
	}
	if cfg.Token == nil || cfg.Handler == nil {
		return nil, errors.New("session: token source and handler are required")
	}
	if cfg.Reconnect.MaxAttempts == 0 {
		cfg.Reconnect = DefaultReconnectConfig()
	}
	if cfg.MaxAttachBytes == 0 {
		cfg.MaxAttachBytes = 1 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}
	return &Client{cfg: cfg, logger: cfg.Logger, clientID: uuid.NewString()}, nil
}

// SessionID returns the server-assigned id of the current session,
// empty before the first hello.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Run dials, reads inbound frames until the server sends done, and
// transparently reconnects on transport failures or sequence gaps.
// It returns nil on done or cancel, ctx.Err() on context
// cancellation, and the last dial error once reconnection attempts
// are exhausted.
func (c *Client) Run(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}
	for {
		err := c.readLoop(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.isCancelled() {
			return nil
		}
		c.logger.Printf("session interrupted: %v", err)
		if rerr := c.reconnect(ctx); rerr != nil {
			return fmt.Errorf("session lost: %w", rerr)
		}
	}
}

// Chat sends one user turn.
func (c *Client) Chat(ctx context.Context, message string) error {
	return c.send(ctx, frame{Type: frameChat, Message: message, Agent: c.cfg.Agent})
}

// Task dispatches a direct agent invocation.
func (c *Client) Task(ctx context.Context, agent, message string) error {
	return c.send(ctx, frame{Type: frameAgentTask, Agent: agent, Message: message})
}

// Attach sends context files for subsequent turns.
func (c *Client) Attach(ctx context.Context, files []AttachedFile) error {
	return c.send(ctx, frame{Type: frameAttach, Files: files})
}

// Cancel aborts the in-flight request: the outbound half closes
// immediately and no further inbound frames are applied. Changes
// already applied locally stay applied.
func (c *Client) Cancel(ctx context.Context) error {
	c.mu.Lock()
	c.cancelled = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	// Best effort; the server may already be gone.
	writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_ = wsjson.Write(writeCtx, conn, frame{Type: frameCancel})
	return conn.CloseNow()
}

// Close tears the channel down without the cancel frame.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
	if c.conn == nil {
		return nil
	}
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

func (c *Client) isCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

func (c *Client) send(ctx context.Context, f frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return wsjson.Write(ctx, conn, f)
}

// connect dials, authenticates, and consumes the hello frame. When a
// resume was requested and the server declined, the handler gets one
// session-reset notice and the cursor starts over.
func (c *Client) connect(ctx context.Context) error {
	token, err := c.cfg.Token(ctx)
	if err != nil {
		return fmt.Errorf("session auth: %w", err)
	}

	c.mu.Lock()
	afterSeq := c.lastSeq
	c.mu.Unlock()

	q := url.Values{}
	q.Set("client_id", c.clientID)
	if c.cfg.Workspace != "" {
		q.Set("workspace", c.cfg.Workspace)
	}
	if c.cfg.Agent != "" {
		q.Set("agent", c.cfg.Agent)
	}
	resume := afterSeq > 0
	if resume {
		q.Set("after_seq", strconv.FormatInt(afterSeq, 10))
	}

	u := c.cfg.BaseURL + "/api/session"
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}

	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + token}},
	})
	if err != nil {
		return fmt.Errorf("dial session: %w", err)
	}

	var hello frame
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		conn.Close(websocket.StatusProtocolError, "no hello")
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Type != frameHello {
		conn.Close(websocket.StatusProtocolError, "bad hello")
		return fmt.Errorf("expected hello frame, got %q", hello.Type)
	}

	c.mu.Lock()
	c.conn = conn
	c.sessionID = hello.SessionID
	if resume && !hello.Resumed {
		c.lastSeq = 0
	}
	c.mu.Unlock()

	if resume && !hello.Resumed {
		c.cfg.Handler.OnSessionReset()
	}
	return nil
}

func (c *Client) reconnect(ctx context.Context) error {
	cfg := c.cfg.Reconnect
	wait := cfg.InitialWait

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if lastErr = c.connect(ctx); lastErr == nil {
			return nil
		}
		c.logger.Printf("reconnect attempt %d/%d failed: %v", attempt, cfg.MaxAttempts, lastErr)

		wait = time.Duration(float64(wait) * cfg.Multiplier)
		if wait > cfg.MaxWait {
			wait = cfg.MaxWait
		}
	}
	return lastErr
}

// readLoop delivers inbound frames in order until done, an error, or
// a sequence gap. Returns nil only on a done frame.
func (c *Client) readLoop(ctx context.Context) error {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return ErrNotConnected
		}

		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return err
		}

		c.mu.Lock()
		expected := c.lastSeq + 1
		gap := f.Seq != expected
		if !gap {
			c.lastSeq = f.Seq
		}
		c.mu.Unlock()

		if gap {
			conn.Close(websocket.StatusProtocolError, "sequence gap")
			return fmt.Errorf("%w: got %d, want %d", ErrSequenceGap, f.Seq, expected)
		}

		switch f.Type {
		case frameToken:
			c.cfg.Handler.OnToken(f.Text)

		case frameStatus:
			c.cfg.Handler.OnStatus(f.Event, f.Detail)

		case frameFileApply:
			c.applyFile(ctx, f)

		case frameError:
			c.cfg.Handler.OnError(f.Code, f.Message)

		case frameDone:
			conn.Close(websocket.StatusNormalClosure, "done")
			return nil

		default:
			c.logger.Printf("ignoring unknown frame type %q (seq %d)", f.Type, f.Seq)
		}
	}
}

// applyFile routes one file-apply frame through the sync engine and
// acks it. A conflict is reported to the handler but still acked: the
// frame was delivered and both versions are preserved.
func (c *Client) applyFile(ctx context.Context, f frame) {
	var applyErr error
	content, err := base64.StdEncoding.DecodeString(f.Content)
	if err != nil {
		applyErr = fmt.Errorf("decode file content for %s: %w", f.Path, err)
	} else if c.cfg.Applier == nil {
		applyErr = errors.New("no applier configured")
	} else {
		applyErr = c.cfg.Applier.ApplyRemote(ctx, f.Path, content)
	}

	c.cfg.Handler.OnFileApplied(f.Path, applyErr)

	if err := c.send(ctx, frame{Type: frameAck, AfterSeq: f.Seq}); err != nil {
		c.logger.Printf("ack for %s failed: %v", f.Path, err)
	}
}

// BuildAttachments reads context files from the workspace, enforcing
// the total size budget.
func BuildAttachments(root string, paths []string, maxBytes int64) ([]AttachedFile, error) {
	var total int64
	out := make([]AttachedFile, 0, len(paths))
	for _, p := range paths {
		abs := filepath.Join(root, filepath.FromSlash(p))
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("attach %s: %w", p, err)
		}
		total += int64(len(data))
		if maxBytes > 0 && total > maxBytes {
			return nil, fmt.Errorf("attached files exceed the %d byte budget at %s", maxBytes, p)
		}
		out = append(out, AttachedFile{
			Path:    p,
			Content: base64.StdEncoding.EncodeToString(data),
		})
	}
	return out, nil
}
