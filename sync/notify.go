package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pithecene-io/agentcore/core"
)

// DefaultNotifyTimeout is the default per-request HTTP timeout.
const DefaultNotifyTimeout = 10 * time.Second

// DefaultNotifyRetries is the default number of retry attempts.
const DefaultNotifyRetries = 3

// NotifierConfig configures a StatusNotifier.
type NotifierConfig struct {
	// URL is the HTTP endpoint to POST status transitions to (required).
	URL string
	// Headers are custom HTTP headers added to each request.
	Headers map[string]string
	// Timeout is the per-request timeout (default 10s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 3).
	Retries int
}

// statusEvent is the JSON payload POSTed on every remote status
// transition: connect, disconnect, and sync error.
type statusEvent struct {
	Key          string `json:"key"`
	Kind         string `json:"kind"`
	RemoteID     string `json:"remote_id,omitempty"`
	URL          string `json:"url,omitempty"`
	Connected    bool   `json:"connected"`
	LastSyncAtMs int64  `json:"last_sync_at_ms,omitempty"`
	LastError    string `json:"last_error,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// NotifyStatusError is returned for non-2xx HTTP responses, mirroring the
// teacher's webhook.StatusError so callers can distinguish retriable
// (5xx) from non-retriable (4xx) failures.
type NotifyStatusError struct {
	Code int
}

func (e *NotifyStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// StatusNotifier publishes Sync Service status transitions to an HTTP
// endpoint, generalizing the teacher's webhook.Adapter (a one-shot
// run-completion POST) into a notifier driven repeatedly by every
// RemoteStatus change on the Sync Service's status bus.
type StatusNotifier struct {
	cfg    NotifierConfig
	client *http.Client
}

// NewStatusNotifier constructs a StatusNotifier from cfg.
func NewStatusNotifier(cfg NotifierConfig) (*StatusNotifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("sync: status notifier requires a URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultNotifyTimeout
	}
	if cfg.Retries == 0 {
		cfg.Retries = DefaultNotifyRetries
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("sync: retries must be >= 0, got %d", cfg.Retries)
	}

	return &StatusNotifier{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Notify POSTs status as JSON, retrying with exponential backoff on
// transient failures. 4xx responses are non-retriable.
func (n *StatusNotifier) Notify(ctx context.Context, status core.RemoteStatus, now time.Time) error {
	event := statusEvent{
		Key:          status.Key,
		Kind:         string(status.Kind),
		RemoteID:     status.RemoteID,
		URL:          status.URL,
		Connected:    status.Connected,
		LastSyncAtMs: status.LastSyncAtMs,
		LastError:    status.LastError,
		Timestamp:    now.UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("sync: marshal status event: %w", err)
	}

	var lastErr error
	attempts := 1 + n.cfg.Retries
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sync: notify canceled: %w", err)
		}
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return fmt.Errorf("sync: notify canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = n.doRequest(ctx, body)
		if lastErr == nil {
			return nil
		}

		var statusErr *NotifyStatusError
		if errors.As(lastErr, &statusErr) && statusErr.Code >= 400 && statusErr.Code < 500 {
			return fmt.Errorf("sync: non-retriable notify error: %w", lastErr)
		}
	}

	return fmt.Errorf("sync: notify failed after %d attempts: %w", attempts, lastErr)
}

func (n *StatusNotifier) doRequest(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sync: create notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("sync: notify request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &NotifyStatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close releases the notifier's idle connections.
func (n *StatusNotifier) Close() error {
	n.client.CloseIdleConnections()
	return nil
}
