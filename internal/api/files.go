package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
)

// RemoteFile describes one file in the remote workspace manifest.
type RemoteFile struct {
	Path      string `json:"path"`
	Hash      string `json:"hash"`
	Size      int64  `json:"size"`
	MtimeUnix int64  `json:"mtime"`
}

// Manifest fetches the remote workspace file manifest, keyed by
// relative path. This is the negotiation step of a sync pass.
func (c *Client) Manifest(ctx context.Context, workspace string) (map[string]RemoteFile, error) {
	q := url.Values{"workspace": {workspace}}

	var resp struct {
		Files []RemoteFile `json:"files"`
	}
	if err := c.do(ctx, "GET", "/api/files/manifest", q, nil, &resp); err != nil {
		return nil, err
	}

	manifest := make(map[string]RemoteFile, len(resp.Files))
	for _, f := range resp.Files {
		manifest[f.Path] = f
	}
	return manifest, nil
}

// Upload pushes one file's content to the remote workspace. Content
// travels base64-encoded in the JSON body.
func (c *Client) Upload(ctx context.Context, workspace, path string, content []byte) error {
	return c.do(ctx, "POST", "/api/files/upload", nil, map[string]any{
		"workspace": workspace,
		"path":      path,
		"content":   base64.StdEncoding.EncodeToString(content),
	}, nil)
}

// Download pulls one file's content from the remote workspace.
func (c *Client) Download(ctx context.Context, workspace, path string) ([]byte, error) {
	q := url.Values{"workspace": {workspace}, "path": {path}}

	var resp struct {
		Content string `json:"content"`
	}
	if err := c.do(ctx, "GET", "/api/files/download", q, nil, &resp); err != nil {
		return nil, err
	}

	content, err := base64.StdEncoding.DecodeString(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("decode file content for %s: %w", path, err)
	}
	return content, nil
}

// Delete removes one file from the remote workspace. Deleting an
// absent file succeeds (idempotent, needed for tombstone replay).
func (c *Client) Delete(ctx context.Context, workspace, path string) error {
	err := c.do(ctx, "POST", "/api/files/delete", nil, map[string]string{
		"workspace": workspace,
		"path":      path,
	}, nil)
	if err != nil && IsNotFound(err) {
		return nil
	}
	return err
}

// RegisterWorkspace announces a workspace name to the platform so the
// remote side has a container to sync into. Called by `codeverse init`.
func (c *Client) RegisterWorkspace(ctx context.Context, workspace string) error {
	return c.do(ctx, "POST", "/api/workspaces", nil, map[string]string{
		"name": workspace,
	}, nil)
}
