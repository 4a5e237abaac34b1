package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/solweave/degenradar/radar/internal/fetch"
	"github.com/solweave/degenradar/radar/internal/store"
)

// dexPayload is the DEX pair-quote feed's wire shape.
type dexPayload struct {
	Pairs []struct {
		ChainID     string `json:"chainId"`
		PairAddress string `json:"pairAddress"`
		BaseToken   struct {
			Symbol string `json:"symbol"`
			Name   string `json:"name"`
		} `json:"baseToken"`
		PriceUsd string `json:"priceUsd"`
		Volume   struct {
			H24 float64 `json:"h24"`
		} `json:"volume"`
		Txns struct {
			H24 struct {
				Buys  int64 `json:"buys"`
				Sells int64 `json:"sells"`
			} `json:"h24"`
		} `json:"txns"`
		PairCreatedAt int64 `json:"pairCreatedAt"`
	} `json:"pairs"`
}

// Dex polls a DEX token quote feed. Free upstream, no caching. Pairs
// have no social engagement; 24h volume stands in for views and trade
// counts for replies so the min-engagement filter stays meaningful.
type Dex struct {
	fetcher *fetch.Fetcher
	logger  *slog.Logger
	now     func() time.Time
}

func NewDex(fetcher *fetch.Fetcher, logger *slog.Logger) *Dex {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dex{fetcher: fetcher, logger: logger, now: time.Now}
}

func (d *Dex) Name() string { return "dex" }

func (d *Dex) Fetch(ctx context.Context, src CrawlSource) ([]store.RawItem, error) {
	res, err := d.fetcher.Get(ctx, src.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("dex: fetch: %w", err)
	}

	var payload dexPayload
	if err := json.Unmarshal(res.Body, &payload); err != nil {
		return nil, fmt.Errorf("dex: decode payload: %w", err)
	}

	now := d.now().UnixMilli()
	items := make([]store.RawItem, 0, len(payload.Pairs))
	for _, pair := range payload.Pairs {
		symbol := strings.TrimSpace(pair.BaseToken.Symbol)
		if symbol == "" || pair.PairAddress == "" {
			d.logger.Debug("dex: pair missing symbol or address, dropped", "chain", pair.ChainID)
			continue
		}

		body := fmt.Sprintf("$%s %s", strings.ToUpper(symbol), pair.BaseToken.Name)
		if pair.PriceUsd != "" {
			body += " price " + pair.PriceUsd + " USD"
		}

		created := now
		if pair.PairCreatedAt > 0 {
			created = pair.PairCreatedAt
		}

		items = append(items, store.RawItem{
			NaturalID:    "dx_" + pair.ChainID + "_" + pair.PairAddress,
			Body:         body,
			AuthorHandle: pair.ChainID,
			Replies:      pair.Txns.H24.Buys + pair.Txns.H24.Sells,
			Views:        int64(pair.Volume.H24),
			CreatedAt:    created,
			SourceName:   "dex",
			CollectedAt:  now,
		})
	}
	return applyFilters(items, src), nil
}
