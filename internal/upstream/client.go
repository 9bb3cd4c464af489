package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/your-org/hostelpass/internal/config"
	"github.com/your-org/hostelpass/internal/session"
)

// ErrUnauthorized signals an expired or rejected session. The client has
// already cleared the local session by the time this is returned; callers
// must surface the sign-out instead of swallowing it.
var ErrUnauthorized = errors.New("session expired")

// ErrAlreadyMarked signals the duplicate-attendance case. It is a warning,
// not a failure, and is never retried automatically.
var ErrAlreadyMarked = errors.New("attendance already marked")

// APIError is a non-2xx upstream response with its display message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream %d: %s", e.Status, e.Message)
}

// Client talks to the remote hostel administration API. All requests carry
// the session bearer token when one exists; any 401 clears the session.
type Client struct {
	baseURL string
	http    *http.Client
	store   session.Store
}

func NewClient(cfg config.UpstreamConfig, store session.Store) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		store:   store,
	}
}

// Ping checks upstream reachability. Any HTTP response counts; only
// transport failures are errors.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(data), "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.store.Get(session.KeyToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		if err := c.store.Clear(); err != nil {
			slog.Warn("clear session after 401", "error", err)
		}
		return ErrUnauthorized
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: extractMessage(data)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// extractMessage pulls the display message from an upstream error body.
// Bodies are {"message": "..."} on the happy path but not guaranteed.
func extractMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = "request failed"
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// AddLog reports a device activity event. Failures are logged and dropped:
// activity logging must never affect the capture flow.
func (c *Client) AddLog(ctx context.Context, action, detail string) {
	payload := map[string]string{
		"action":    action,
		"detail":    detail,
		"studentId": c.store.Get(session.KeyStudentID),
	}
	if err := c.postJSON(ctx, "/logs/add-log", payload, nil); err != nil {
		slog.Debug("add activity log", "error", err)
	}
}
