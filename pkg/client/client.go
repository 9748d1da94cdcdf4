package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Client communicates with a remote k6ctl daemon over its HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:7565/api",
		Timeout: 10 * time.Second,
	}
}

func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:7565/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable reports whether the daemon answers on its status endpoint.
func (c *Client) IsReachable(ctx context.Context) bool {
	var resp StatusResponse
	return c.get(ctx, "/status", &resp) == nil
}

// Action dispatches a named action (start, stop, list) on the daemon.
// A Result with status "error" is returned without error: action failures are
// data, not transport faults.
func (c *Client) Action(ctx context.Context, name string, args map[string]string) (Result, error) {
	var res Result
	err := c.post(ctx, "/actions/"+url.PathEscape(name), args, &res, http.StatusOK, http.StatusBadRequest)
	return res, err
}

// Status fetches the unit status and process record.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.get(ctx, "/status", &resp)
	return resp, err
}

// Runs fetches recent run history.
func (c *Client) Runs(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	err := c.get(ctx, fmt.Sprintf("/runs?limit=%d", limit), &runs)
	return runs, err
}

// SetLeader flips the daemon's leadership flag.
func (c *Client) SetLeader(ctx context.Context, leader bool) error {
	return c.put(ctx, "/leader", map[string]bool{"leader": leader})
}

// JoinRelation records a remote unit on a relation endpoint.
func (c *Client) JoinRelation(ctx context.Context, relation, remoteUnit, u string) error {
	body := map[string]string{"remote_unit": remoteUnit, "url": u}
	return c.post(ctx, "/relations/"+url.PathEscape(relation), body, nil, http.StatusOK)
}

// DepartRelation removes a remote unit from a relation endpoint.
func (c *Client) DepartRelation(ctx context.Context, relation, remoteUnit string) error {
	p := "/relations/" + url.PathEscape(relation) + "?remote_unit=" + url.QueryEscape(remoteUnit)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+p, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil, http.StatusOK)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out, http.StatusOK)
}

func (c *Client) post(ctx context.Context, path string, body, out any, okCodes ...int) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out, okCodes...)
}

func (c *Client) put(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil, http.StatusOK)
}

func (c *Client) do(req *http.Request, out any, okCodes ...int) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	accepted := false
	for _, code := range okCodes {
		if resp.StatusCode == code {
			accepted = true
			break
		}
	}
	if !accepted {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var er struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			return fmt.Errorf("daemon error (%d): %s", resp.StatusCode, er.Error)
		}
		return fmt.Errorf("daemon error: unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
