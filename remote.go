package watchdog

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

	"github.com/docutag/watchdog/models"
)

// RemoteAnalyzePath is appended to the configured remote endpoint
const RemoteAnalyzePath = "/api/analyze/text"

const maxRemoteResponseBytes = 1 << 20

// RemoteError describes why a remote classification could not be used
type RemoteError struct {
	Reason string // "network", "timeout", "status", "decode"
	Err    error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote classifier %s: %v", e.Reason, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// RemoteClient calls a remote classification service
type RemoteClient struct {
	httpClient *http.Client
	timeout    time.Duration
}

// NewRemoteClient creates a client bounded by timeout per call
func NewRemoteClient(httpClient *http.Client, timeout time.Duration) *RemoteClient {
	return &RemoteClient{httpClient: httpClient, timeout: timeout}
}

// Analyze posts text to {endpoint}/api/analyze/text and decodes the verdict.
// Any network error, timeout, non-2xx status or malformed body is returned
// as a *RemoteError.
func (c *RemoteClient) Analyze(ctx context.Context, endpoint string, payload models.RemoteRequest) (*models.AnalysisResult, error) {
	ctx, span := tracer.Start(ctx, "watchdog.remote")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	target := strings.TrimRight(strings.TrimSpace(endpoint), "/") + RemoteAnalyzePath
	req, err := http.NewRequestWithContext(ctx, "POST", target, bytes.NewReader(body))
	if err != nil {
		return nil, &RemoteError{Reason: "network", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &RemoteError{Reason: "timeout", Err: err}
		}
		return nil, &RemoteError{Reason: "network", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{Reason: "status", Err: fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)}
	}

	var result models.AnalysisResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRemoteResponseBytes)).Decode(&result); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &RemoteError{Reason: "timeout", Err: err}
		}
		return nil, &RemoteError{Reason: "decode", Err: err}
	}
	return &result, nil
}
