// Package api is the client for the platform's HTTP surface:
// authentication exchange, file transfer, agent listing, and status.
//
// Every call takes a context and fails with a typed error from
// errors.go. Idempotent GETs retry with bounded backoff; mutating
// calls are attempted once. A 401 triggers at most one token refresh
// through the configured RefreshFunc before the call is retried with
// the new token; the rejected token itself is never resent.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"
)

// userAgent identifies the CLI to the platform.
const userAgent = "codeverse-cli/1.0.0"

// RefreshFunc exchanges the current credential for a fresh access
// token. Implemented by the command layer over the credential store.
type RefreshFunc func(ctx context.Context) (string, error)

// Config holds client construction parameters.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Retry   RetryConfig
	Refresh RefreshFunc
	Logger  *log.Logger
}

// Client talks to the platform API.
type Client struct {
	baseURL string
	http    *http.Client
	retry   RetryConfig
	refresh RefreshFunc
	logger  *log.Logger

	mu    sync.RWMutex
	token string
}

// New creates a client. Token may be empty for pre-auth calls (login,
// register, status).
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[api] ", log.LstdFlags)
	}

	return &Client{
		baseURL: cfg.BaseURL,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        20,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retry:   cfg.Retry,
		refresh: cfg.Refresh,
		logger:  cfg.Logger,
		token:   cfg.Token,
	}
}

// SetToken replaces the bearer token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// errorPayload is the server's typed error body.
type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// do executes one request. out, when non-nil, receives the decoded
// JSON response body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	idempotent := method == http.MethodGet
	run := func() error {
		return c.doOnce(ctx, method, path, query, body, out, true)
	}
	if idempotent {
		return retryDo(ctx, c.retry, run)
	}
	return run()
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body, out any, allowRefresh bool) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		if allowRefresh && c.refresh != nil {
			c.logger.Printf("token rejected, attempting refresh")
			newTok, rerr := c.refresh(ctx)
			if rerr == nil && newTok != "" {
				c.SetToken(newTok)
				return c.doOnce(ctx, method, path, query, body, out, false)
			}
		}
		return fmt.Errorf("%w: %s", ErrUnauthorized, readError(resp.Body))
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Message: readError(resp.Body)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func readError(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var payload errorPayload
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return string(bytes.TrimSpace(data))
}
