package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Event names sent to the ops webhook.
const (
	EventRunFinished = "pipeline_run_finished"
	EventRunFailed   = "pipeline_run_failed"
)

// Event is one JSON notification. Details carries the run report fields the
// receiver cares about.
type Event struct {
	Event   string         `json:"event"`
	Level   string         `json:"level"`
	Details map[string]any `json:"details"`
}

// Client posts pipeline events to an external webhook. Delivery is best
// effort: callers use Emit with a short background timeout and drop the
// error.
type Client struct {
	BaseURL string
	Token   string

	HTTP *http.Client
}

// Enabled reports whether a webhook is configured at all.
func (c *Client) Enabled() bool {
	return c != nil && strings.TrimSpace(c.BaseURL) != ""
}

func (c *Client) Send(ctx context.Context, event Event) error {
	if c == nil {
		return errors.New("notify client is nil")
	}
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return errors.New("notify base url is empty")
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := strings.TrimSpace(c.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return fmt.Errorf("notify http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

// Emit sends the event detached from the caller's context with a short
// timeout. The pipeline never waits on, or fails because of, the webhook.
func (c *Client) Emit(event Event) error {
	if !c.Enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.Send(ctx, event)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}
