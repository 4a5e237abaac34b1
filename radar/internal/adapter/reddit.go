package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/solweave/degenradar/radar/internal/feed"
	"github.com/solweave/degenradar/radar/internal/fetch"
	"github.com/solweave/degenradar/radar/internal/store"
)

// Reddit polls subreddit feeds. The upstream is free, so no result
// caching: every cycle fetches fresh.
type Reddit struct {
	fetcher *fetch.Fetcher
	logger  *slog.Logger
	now     func() time.Time
}

func NewReddit(fetcher *fetch.Fetcher, logger *slog.Logger) *Reddit {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reddit{fetcher: fetcher, logger: logger, now: time.Now}
}

func (r *Reddit) Name() string { return "reddit" }

// Fetch pulls each subreddit in src.Queries. A failing subreddit is
// logged and skipped; the rest still contribute.
func (r *Reddit) Fetch(ctx context.Context, src CrawlSource) ([]store.RawItem, error) {
	base := strings.TrimSuffix(src.Endpoint, "/")
	if base == "" {
		base = "https://www.reddit.com"
	}

	var items []store.RawItem
	var failed int
	for _, sub := range src.Queries {
		feedURL := fmt.Sprintf("%s/r/%s/.rss", base, sub)
		res, err := r.fetcher.Get(ctx, feedURL)
		if err != nil {
			r.logger.Warn("reddit: subreddit fetch failed, continuing", "subreddit", sub, "error", err)
			failed++
			continue
		}

		parsed, err := feed.Parse(res.Body)
		if err != nil {
			r.logger.Warn("reddit: feed unparseable, continuing", "subreddit", sub, "error", err)
			failed++
			continue
		}

		items = append(items, r.normalize(sub, parsed.Entries)...)
	}

	if failed > 0 && len(items) == 0 {
		return nil, fmt.Errorf("reddit: all %d subreddits failed", failed)
	}
	// Feed entries carry no engagement counters, so an engagement
	// threshold would drop every item. Only the cap applies here.
	src.MinEngagement = 0
	return applyFilters(items, src), nil
}

// normalize maps feed entries to RawItems. Feed entries carry no
// engagement counters; those stay zero.
func (r *Reddit) normalize(sub string, entries []feed.Entry) []store.RawItem {
	now := r.now().UnixMilli()
	items := make([]store.RawItem, 0, len(entries))
	for _, entry := range entries {
		body := strings.TrimSpace(entry.Title)
		if text := feed.PlainText(entry.Content); text != "" {
			body = body + " " + text
		}
		if body == "" {
			r.logger.Debug("reddit: entry with no text, dropped", "subreddit", sub)
			continue
		}

		id := entry.GUID
		if id == "" {
			continue
		}

		created := entry.Published
		if created.IsZero() {
			created = r.now()
		}

		author := entry.Author
		if author != "" && !strings.HasPrefix(author, "/u/") && !strings.HasPrefix(author, "u/") {
			author = "u/" + strings.TrimPrefix(author, "@")
		}

		items = append(items, store.RawItem{
			NaturalID:    "rd_" + id,
			Body:         body,
			AuthorHandle: author,
			CreatedAt:    created.UnixMilli(),
			SourceName:   "reddit",
			CollectedAt:  now,
		})
	}
	return items
}
