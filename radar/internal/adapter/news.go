package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/solweave/degenradar/radar/internal/fetch"
	"github.com/solweave/degenradar/radar/internal/jobcache"
	"github.com/solweave/degenradar/radar/internal/store"
)

// newsPayload is the headline feed's wire shape. Converted to RawItem
// at this boundary and nowhere else.
type newsPayload struct {
	Results []struct {
		ID          int64  `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"published_at"`
		Source      struct {
			Title  string `json:"title"`
			Domain string `json:"domain"`
		} `json:"source"`
		Votes struct {
			Positive  int64 `json:"positive"`
			Important int64 `json:"important"`
			Comments  int64 `json:"comments"`
		} `json:"votes"`
	} `json:"results"`
}

// News polls a crypto headline REST feed. The upstream bills per
// call, so responses are cached by fingerprint: within the TTL the
// stored body is re-parsed instead of re-fetched.
type News struct {
	fetcher    *fetch.Fetcher
	cache      *jobcache.Store
	resultsDir string
	logger     *slog.Logger
	now        func() time.Time
}

func NewNews(fetcher *fetch.Fetcher, cache *jobcache.Store, resultsDir string, logger *slog.Logger) (*News, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return nil, fmt.Errorf("news: create results dir: %w", err)
	}
	return &News{fetcher: fetcher, cache: cache, resultsDir: resultsDir, logger: logger, now: time.Now}, nil
}

func (n *News) Name() string { return "news" }

func (n *News) Fetch(ctx context.Context, src CrawlSource) ([]store.RawItem, error) {
	fp := jobcache.Fingerprint("endpoint:" + src.Endpoint)

	var body []byte
	if entry, ok := n.cache.Lookup(fp); ok {
		cached, err := os.ReadFile(entry.ResultRef)
		if err == nil {
			n.logger.Info("news: cache hit, fetch skipped")
			body = cached
		} else {
			n.logger.Warn("news: cached body unreadable, refetching", "ref", entry.ResultRef, "error", err)
		}
	}

	if body == nil {
		res, err := n.fetcher.Get(ctx, src.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("news: fetch: %w", err)
		}
		body = res.Body

		if path, err := n.saveBody(fp, body); err != nil {
			n.logger.Warn("news: response not cached", "error", err)
		} else {
			n.cache.Put(fp, path)
		}
	}

	items, err := n.normalize(body)
	if err != nil {
		return nil, err
	}
	return applyFilters(items, src), nil
}

func (n *News) saveBody(fp string, body []byte) (string, error) {
	path := filepath.Join(n.resultsDir, "news_"+fp[:16]+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return path, nil
}

func (n *News) normalize(body []byte) ([]store.RawItem, error) {
	var payload newsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("news: decode payload: %w", err)
	}

	now := n.now().UnixMilli()
	items := make([]store.RawItem, 0, len(payload.Results))
	for _, a := range payload.Results {
		if a.Title == "" {
			n.logger.Debug("news: article without title, dropped", "id", a.ID)
			continue
		}

		body := a.Title
		if a.Description != "" {
			body += " " + a.Description
		}

		created := feedTime(a.PublishedAt, n.now())

		items = append(items, store.RawItem{
			NaturalID:    "nw_" + strconv.FormatInt(a.ID, 10),
			Body:         body,
			AuthorHandle: a.Source.Domain,
			Likes:        a.Votes.Positive,
			Shares:       a.Votes.Important,
			Replies:      a.Votes.Comments,
			CreatedAt:    created.UnixMilli(),
			SourceName:   "news",
			CollectedAt:  now,
		})
	}
	return items, nil
}

// feedTime parses an ISO-8601 timestamp, defaulting to fallback.
func feedTime(s string, fallback time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return fallback
}
