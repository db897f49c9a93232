package api

import (
	"context"
	"time"
)

// LoginResult is the response from POST /api/auth/login.
type LoginResult struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Username     string    `json:"username"`
}

// Login exchanges username/password for a token pair.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var result LoginResult
	err := c.do(ctx, "POST", "/api/auth/login", nil, map[string]string{
		"username": username,
		"password": password,
	}, &result)
	if err != nil {
		return nil, err
	}
	c.SetToken(result.AccessToken)
	return &result, nil
}

// Refresh exchanges a refresh token for a new token pair. The expired
// access token is not presented.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	var result LoginResult
	err := c.do(ctx, "POST", "/api/auth/refresh", nil, map[string]string{
		"refresh_token": refreshToken,
	}, &result)
	if err != nil {
		return nil, err
	}
	c.SetToken(result.AccessToken)
	return &result, nil
}

// Verify checks that the current token is still accepted.
func (c *Client) Verify(ctx context.Context) error {
	return c.do(ctx, "GET", "/api/auth/verify", nil, nil, nil)
}

// Register creates a new account. The caller logs in afterwards.
func (c *Client) Register(ctx context.Context, username, email, password string) error {
	return c.do(ctx, "POST", "/api/auth/register", nil, map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, nil)
}

// RevokeToken invalidates the current token server-side. Used by
// logout; the local credential is cleared regardless of the outcome.
func (c *Client) RevokeToken(ctx context.Context) error {
	return c.do(ctx, "DELETE", "/api/auth/token", nil, nil, nil)
}
