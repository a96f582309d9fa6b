package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nupi-ai/comfort/internal/api"
	"github.com/nupi-ai/comfort/internal/constants"
)

const maxErrorBody = 8 << 10

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the daemon's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the daemon listening at addr. A bare host:port
// is treated as http.
func New(addr string) (*Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("client: empty daemon address")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("client: invalid daemon address %q", addr)
	}
	return &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{Timeout: constants.CLIRequestTimeout},
	}, nil
}

// BaseURL returns the daemon base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health fetches the daemon health summary.
func (c *Client) Health(ctx context.Context) (api.HealthDTO, error) {
	var out api.HealthDTO
	err := c.do(ctx, http.MethodGet, "/api/health", nil, &out)
	return out, err
}

// ListPages returns the connected pages.
func (c *Client) ListPages(ctx context.Context) ([]api.PageDTO, error) {
	var out []api.PageDTO
	err := c.do(ctx, http.MethodGet, "/api/pages", nil, &out)
	return out, err
}

// GetPage returns one connected page.
func (c *Client) GetPage(ctx context.Context, id string) (api.PageDTO, error) {
	var out api.PageDTO
	err := c.do(ctx, http.MethodGet, "/api/pages/"+url.PathEscape(id), nil, &out)
	return out, err
}

// TogglePage flips comfort mode on the page.
func (c *Client) TogglePage(ctx context.Context, id string, isVideoContext bool) (api.ToggleResponse, error) {
	var out api.ToggleResponse
	body := map[string]bool{"is_video_context": isVideoContext}
	err := c.do(ctx, http.MethodPost, "/api/pages/"+url.PathEscape(id)+"/toggle", body, &out)
	return out, err
}

// ListSessions returns journal entries, newest first. limit 0 uses the
// daemon default.
func (c *Client) ListSessions(ctx context.Context, limit int) ([]api.SessionDTO, error) {
	path := "/api/sessions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []api.SessionDTO
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// GetSession returns one journal entry.
func (c *Client) GetSession(ctx context.Context, id string) (api.SessionDTO, error) {
	var out api.SessionDTO
	err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s: %w", path, err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	if strings.HasPrefix(msg, "{") {
		var payload api.ErrorResponse
		if err := json.Unmarshal([]byte(msg), &payload); err == nil && strings.TrimSpace(payload.Error) != "" {
			msg = strings.TrimSpace(payload.Error)
		}
	}
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
