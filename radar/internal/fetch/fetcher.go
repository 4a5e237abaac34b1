// Package fetch implements HTTP polling for the REST source adapters.
//
// Transient failures (network errors, 429, 5xx) are retried in place with
// exponential backoff so a single rate-limit response does not cost a source
// its whole cycle. Non-transient statuses fail immediately.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Config configures the fetcher.
type Config struct {
	Timeout    time.Duration // per-request timeout. Default: 20s.
	MaxBytes   int64         // max response body size. Default: 10MB.
	UserAgent  string        // sent with every request.
	MaxRetries int           // retry attempts after the first try. Default: 2.
	Backoff    time.Duration // initial retry wait, doubled each attempt. Default: 2s.
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "degenradar/1.0"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.Backoff <= 0 {
		c.Backoff = 2 * time.Second
	}
}

// Result contains the outcome of a fetch.
type Result struct {
	Body       []byte
	StatusCode int
}

// Fetcher performs HTTP GETs with bounded retry.
type Fetcher struct {
	client *http.Client
	config Config
	logger *slog.Logger
}

// New creates a Fetcher.
func New(cfg Config, logger *slog.Logger) *Fetcher {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		config: cfg,
		logger: logger,
	}
}

// Get retrieves a URL, retrying transient failures with exponential backoff.
func (f *Fetcher) Get(ctx context.Context, url string) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt <= f.config.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := f.config.Backoff * (1 << uint(attempt-1))
			f.logger.Warn("fetch: retrying",
				"url", url, "attempt", attempt+1, "backoff_ms", wait.Milliseconds(), "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		result, err := f.getOnce(ctx, url)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
		if !isTransient(err) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (f *Fetcher) getOnce(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "application/json, application/rss+xml, application/atom+xml, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &transientError{fmt.Errorf("http get: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &transientError{fmt.Errorf("http %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes))
	if err != nil {
		return nil, &transientError{fmt.Errorf("read body: %w", err)}
	}
	return &Result{Body: body, StatusCode: resp.StatusCode}, nil
}

// transientError marks failures worth retrying.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	_, ok := err.(*transientError)
	return ok
}
