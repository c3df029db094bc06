// Package api is the HTTP client for the agent backend: request/response
// calls in client.go and the server-sent event stream in stream.go.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tide-dev/tide/internal/model"
)

// DefaultTimeout bounds a single request/response call.
const DefaultTimeout = time.Minute

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 4 << 10

// TransportError reports a failed call to the backend. Status is zero when
// no response was received.
type TransportError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("%s: server returned %d", e.Op, e.Status)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a TransportError for a 404 response.
func IsNotFound(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Status == http.StatusNotFound
}

// Client calls the backend's JSON endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for baseURL. A zero timeout uses DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do sends a request and decodes a 2xx JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("encoding request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &TransportError{
			Op:     op,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(data)),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func sessionPath(id string, rest ...string) string {
	p := "/session/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// ListSessions returns every session known to the backend.
func (c *Client) ListSessions(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session
	if err := c.do(ctx, "list sessions", http.MethodGet, "/session", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession returns one session.
func (c *Client) GetSession(ctx context.Context, id string) (model.Session, error) {
	var s model.Session
	err := c.do(ctx, "get session", http.MethodGet, sessionPath(id), nil, &s)
	return s, err
}

// CreateSession creates a session. An empty title lets the backend pick one.
func (c *Client) CreateSession(ctx context.Context, title string) (model.Session, error) {
	body := map[string]string{}
	if title != "" {
		body["title"] = title
	}
	var s model.Session
	err := c.do(ctx, "create session", http.MethodPost, "/session", body, &s)
	return s, err
}

// UpdateSession renames a session.
func (c *Client) UpdateSession(ctx context.Context, id, title string) (model.Session, error) {
	var s model.Session
	err := c.do(ctx, "rename session", http.MethodPatch, sessionPath(id), map[string]string{"title": title}, &s)
	return s, err
}

// DeleteSession deletes a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, "delete session", http.MethodDelete, sessionPath(id), nil, nil)
}

// GetMessages fetches the authoritative transcript of a session. Null or
// malformed entries, messages and parts alike, are dropped while decoding.
func (c *Client) GetMessages(ctx context.Context, sessionID string) ([]model.MessageWithParts, error) {
	var raw []json.RawMessage
	if err := c.do(ctx, "fetch messages", http.MethodGet, sessionPath(sessionID, "message"), nil, &raw); err != nil {
		return nil, err
	}
	out := make([]model.MessageWithParts, 0, len(raw))
	for _, r := range raw {
		var m model.MessageWithParts
		if err := json.Unmarshal(r, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// SendMessage posts user input to a session. The reply streams back on the
// event stream; the response body is not needed.
func (c *Client) SendMessage(ctx context.Context, sessionID string, in model.ChatInput) error {
	return c.do(ctx, "send message", http.MethodPost, sessionPath(sessionID, "message"), in, nil)
}

// GetAgents lists the agents the backend offers.
func (c *Client) GetAgents(ctx context.Context) ([]model.Agent, error) {
	var agents []model.Agent
	if err := c.do(ctx, "list agents", http.MethodGet, "/agent", nil, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// GetConfig fetches the backend configuration.
func (c *Client) GetConfig(ctx context.Context) (model.ServerConfig, error) {
	var cfg model.ServerConfig
	err := c.do(ctx, "get config", http.MethodGet, "/config", nil, &cfg)
	return cfg, err
}

// GetProviders lists providers, their models and the default model per
// provider.
func (c *Client) GetProviders(ctx context.Context) (model.ProvidersResponse, error) {
	var resp model.ProvidersResponse
	err := c.do(ctx, "list providers", http.MethodGet, "/config/providers", nil, &resp)
	return resp, err
}
