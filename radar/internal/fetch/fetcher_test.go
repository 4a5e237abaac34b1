package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testFetcher() *Fetcher {
	return New(Config{Backoff: 5 * time.Millisecond, MaxRetries: 2}, nil)
}

func TestGetOK(t *testing.T) {
	// WHAT: A plain 200 returns the body.
	// WHY: Baseline behavior for all REST adapters.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	res, err := testFetcher().Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(res.Body) != `{"ok":true}` {
		t.Errorf("body: got %q", res.Body)
	}
}

func TestRetryOn429ThenSuccess(t *testing.T) {
	// WHAT: A 429 on attempt 1 and 200 on attempt 2 succeeds overall.
	// WHY: Rate limits are routine; one must not fail the source's cycle.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("fine"))
	}))
	defer srv.Close()

	res, err := testFetcher().Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("get after 429: %v", err)
	}
	if string(res.Body) != "fine" {
		t.Errorf("body: got %q", res.Body)
	}
	if calls.Load() != 2 {
		t.Errorf("calls: got %d, want 2", calls.Load())
	}
}

func TestRetryOn5xxExhausted(t *testing.T) {
	// WHAT: Persistent 500s exhaust the retry budget and fail.
	// WHY: Attempts are bounded; a dead upstream degrades the source, not the process.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testFetcher().Get(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if calls.Load() != 3 { // 1 try + 2 retries
		t.Errorf("calls: got %d, want 3", calls.Load())
	}
}

func TestNoRetryOn404(t *testing.T) {
	// WHAT: Client errors other than 429 fail immediately.
	// WHY: Retrying a 404 wastes the cycle and hammers the upstream.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testFetcher().Get(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if calls.Load() != 1 {
		t.Errorf("calls: got %d, want 1 (no retry)", calls.Load())
	}
}

func TestContextCancelStopsRetry(t *testing.T) {
	// WHAT: Cancellation aborts the retry loop promptly.
	// WHY: Shutdown must not wait out backoff sleeps.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(Config{Backoff: 10 * time.Second, MaxRetries: 5}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := f.Get(ctx, srv.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("cancellation did not interrupt backoff wait")
	}
}

func TestMaxBytesLimit(t *testing.T) {
	// WHAT: Bodies are truncated at MaxBytes.
	// WHY: A misbehaving feed must not balloon memory.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	f := New(Config{MaxBytes: 100, Backoff: time.Millisecond}, nil)
	res, err := f.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(res.Body) != 100 {
		t.Errorf("body length: got %d, want 100", len(res.Body))
	}
}
