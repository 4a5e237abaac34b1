package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/solweave/degenradar/radar/internal/jobcache"
)

const newsBody = `{
  "results": [
    {
      "id": 9001,
      "title": "Solana ETF approved",
      "description": "Spot ETF gets the nod.",
      "url": "https://news.example.com/etf",
      "published_at": "2026-08-24T09:00:00Z",
      "source": {"title": "CoinWire", "domain": "coinwire.example.com"},
      "votes": {"positive": 12, "important": 3, "comments": 7}
    },
    {
      "id": 9002,
      "title": "",
      "description": "orphan description"
    }
  ]
}`

func TestNewsFetchNormalizes(t *testing.T) {
	// WHAT: The headline payload maps onto RawItem with votes as
	// engagement counters; untitled articles are dropped.
	// WHY: This is the only place the wire shape is allowed to exist.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(newsBody))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cache := jobcache.New(filepath.Join(dir, "cache.json"), nil)
	n, err := NewNews(restFetcher(t), cache, dir, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	items, err := n.Fetch(context.Background(), CrawlSource{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}

	item := items[0]
	if item.NaturalID != "nw_9001" {
		t.Errorf("natural id: got %q", item.NaturalID)
	}
	if item.Likes != 12 || item.Shares != 3 || item.Replies != 7 {
		t.Errorf("counters: got %d/%d/%d", item.Likes, item.Shares, item.Replies)
	}
	if item.AuthorHandle != "coinwire.example.com" {
		t.Errorf("author: got %q", item.AuthorHandle)
	}
}

func TestNewsCacheAvoidsSecondFetch(t *testing.T) {
	// WHAT: A second fetch inside the TTL serves from the stored body
	// and never reaches the upstream.
	// WHY: The upstream bills per call; that is the cache's entire job.
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(newsBody))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cache := jobcache.New(filepath.Join(dir, "cache.json"), nil)
	n, err := NewNews(restFetcher(t), cache, dir, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	src := CrawlSource{Endpoint: srv.URL}
	first, err := n.Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := n.Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("upstream calls: got %d, want 1", got)
	}
	if len(first) != len(second) || first[0].NaturalID != second[0].NaturalID {
		t.Error("cached replay diverged from the original result")
	}
}
