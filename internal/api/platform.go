package api

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Agent describes one remote agent available for dispatch.
type Agent struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

// Agents lists the platform's available agents.
func (c *Client) Agents(ctx context.Context) ([]Agent, error) {
	var resp struct {
		Agents []Agent `json:"agents"`
	}
	if err := c.do(ctx, "GET", "/api/agents", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}

// PlatformStatus is the response from GET /api/status.
type PlatformStatus struct {
	Status         string            `json:"status"`
	Version        string            `json:"version"`
	MinCLIVersion  string            `json:"min_cli_version,omitempty"`
	ActiveAgents   int               `json:"active_agents"`
	Infrastructure map[string]string `json:"infrastructure,omitempty"`
}

// Status fetches platform health and version information. Works
// without authentication.
func (c *Client) Status(ctx context.Context) (*PlatformStatus, error) {
	var status PlatformStatus
	if err := c.do(ctx, "GET", "/api/status", nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CheckCLIVersion compares the running CLI version against the
// platform's declared minimum. Returns a non-nil warning error when
// the CLI is too old; an empty or unparsable minimum passes.
func (s *PlatformStatus) CheckCLIVersion(cliVersion string) error {
	min := canonical(s.MinCLIVersion)
	cur := canonical(cliVersion)
	if min == "" || cur == "" {
		return nil
	}
	if semver.Compare(cur, min) < 0 {
		return fmt.Errorf("CLI version %s is older than the platform minimum %s; please upgrade", cliVersion, s.MinCLIVersion)
	}
	return nil
}

func canonical(v string) string {
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}
