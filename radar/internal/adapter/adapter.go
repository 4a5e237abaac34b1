// Package adapter implements the per-source collectors. Each adapter
// normalizes its platform's payload shape into the canonical RawItem
// at the boundary; nothing upstream of the store ever sees a
// platform-specific field name.
package adapter

import (
	"context"

	"github.com/solweave/degenradar/radar/internal/store"
)

// Kind distinguishes how a source is collected.
type Kind string

const (
	KindBrowser Kind = "browser"
	KindRest    Kind = "rest"
)

// CrawlSource is the static descriptor of one source, loaded at
// startup and never mutated.
type CrawlSource struct {
	Name     string
	Kind     Kind
	Endpoint string
	// Queries are search terms for the browser source and subreddit
	// names for the reddit source. Unused by single-endpoint feeds.
	Queries []string
	// ItemCap bounds the items returned per cycle. Zero means no cap.
	ItemCap int
	// MinEngagement drops items whose weighted engagement
	// (likes + 2*shares + replies) falls below it. Zero keeps all.
	MinEngagement int64
}

// Adapter fetches one source's items for a cycle.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, src CrawlSource) ([]store.RawItem, error)
}

// applyFilters enforces the source's min-engagement threshold and
// item cap, preserving extraction order.
func applyFilters(items []store.RawItem, src CrawlSource) []store.RawItem {
	out := items[:0]
	for _, item := range items {
		if src.MinEngagement > 0 {
			weighted := item.Likes + 2*item.Shares + item.Replies
			if weighted < src.MinEngagement {
				continue
			}
		}
		out = append(out, item)
		if src.ItemCap > 0 && len(out) >= src.ItemCap {
			break
		}
	}
	return out
}
