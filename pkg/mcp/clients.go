package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/urmzd/centrald/pkg/api/types"
	"github.com/urmzd/centrald/pkg/peer"
	"github.com/urmzd/centrald/pkg/state"
)

// APIClient reads state from the centrald HTTP API.
type APIClient struct {
	base string
	http *http.Client
}

// NewAPIClient creates a client for the API served at addr, either a
// host:port or a full URL.
func NewAPIClient(addr string) *APIClient {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &APIClient{
		base: strings.TrimRight(base, "/") + "/api/v1",
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// State fetches GET /state.
func (c *APIClient) State(ctx context.Context) (*types.StateResponse, error) {
	var out types.StateResponse
	if err := c.get(ctx, "/state", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sessions fetches GET /sessions.
func (c *APIClient) Sessions(ctx context.Context) (*types.ListSessionsResponse, error) {
	var out types.ListSessionsResponse
	if err := c.get(ctx, "/sessions", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) get(ctx context.Context, path string, out any) error {
	u, err := url.JoinPath(c.base, path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr types.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("GET %s: %s: %s", path, resp.Status, apiErr.Message)
		}
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

// PeerSwitch sends power commands over the coordinator protocol, logging
// in as a client for each command.
type PeerSwitch struct {
	Addr     string
	Login    string
	Password string
}

// SetPower dials the coordinator, authenticates and switches the mode.
func (p *PeerSwitch) SetPower(ctx context.Context, mode state.PowerMode) error {
	c, err := peer.Dial(ctx, p.Addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Login(ctx, p.Login, p.Password); err != nil {
		return err
	}
	return c.SetPower(ctx, mode)
}
