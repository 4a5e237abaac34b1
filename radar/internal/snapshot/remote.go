package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RemoteSink PUTs snapshot files to an HTTP object store under the
// same relative path convention as the local directory. One retry,
// then the cycle moves on; the next cycle publishes fresh data anyway.
type RemoteSink struct {
	baseURL string
	token   string
	client  *http.Client
	retries int
	logger  *slog.Logger
}

// RemoteOption configures a RemoteSink.
type RemoteOption func(*RemoteSink)

// WithToken sets a bearer token for the object store.
func WithToken(token string) RemoteOption {
	return func(r *RemoteSink) { r.token = token }
}

// WithRetries overrides the retry count. Default: 1.
func WithRetries(n int) RemoteOption {
	return func(r *RemoteSink) { r.retries = n }
}

// NewRemoteSink creates a sink targeting baseURL.
func NewRemoteSink(baseURL string, logger *slog.Logger, opts ...RemoteOption) *RemoteSink {
	if logger == nil {
		logger = slog.Default()
	}
	r := &RemoteSink{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		retries: 1,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Put uploads one object. Retries once on any failure.
func (r *RemoteSink) Put(ctx context.Context, name string, data []byte) error {
	target := r.baseURL + "/" + name

	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("remote: new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if r.token != "" {
			req.Header.Set("Authorization", "Bearer "+r.token)
		}

		resp, err := r.client.Do(req)
		if err != nil {
			lastErr = err
			r.logger.Warn("remote: put failed", "object", name, "attempt", attempt+1, "error", err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("remote: status %d", resp.StatusCode)
		r.logger.Warn("remote: bad status", "object", name, "attempt", attempt+1, "status", resp.StatusCode)
	}
	return fmt.Errorf("remote: put %s: %w", name, lastErr)
}
