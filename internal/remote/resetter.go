// ABOUTME: Client for the remote session reset endpoint
// ABOUTME: Sends a bodiless POST so the agent discards state for a thread; any 2xx is success

package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ThreadHeader carries the thread being discarded.
const ThreadHeader = "X-Thread-ID"

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("reset endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// Resetter notifies the remote agent that session-scoped state for a thread
// should be discarded.
type Resetter struct {
	url    string
	apiKey string
	http   *http.Client
	logger *slog.Logger
}

// NewResetter creates a Resetter posting to url with the given per-call timeout.
func NewResetter(url, apiKey string, timeout time.Duration, logger *slog.Logger) *Resetter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resetter{
		url:    url,
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
		logger: logger.With("component", "remote_reset"),
	}
}

// Reset posts to the reset endpoint for threadID.
func (r *Resetter) Reset(ctx context.Context, threadID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, http.NoBody)
	if err != nil {
		return fmt.Errorf("building reset request: %w", err)
	}
	req.Header.Set(ThreadHeader, threadID)
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting reset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	r.logger.Debug("remote reset acknowledged", "thread_id", threadID, "status", resp.StatusCode)
	return nil
}
