package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const dexBody = `{
  "pairs": [
    {
      "chainId": "solana",
      "pairAddress": "8Hk3pair",
      "baseToken": {"symbol": "WIF", "name": "dogwifhat"},
      "priceUsd": "2.41",
      "volume": {"h24": 1500000.5},
      "txns": {"h24": {"buys": 900, "sells": 600}},
      "pairCreatedAt": 1756000000000
    },
    {
      "chainId": "solana",
      "pairAddress": "",
      "baseToken": {"symbol": "GHOST", "name": "no address"}
    }
  ]
}`

func TestDexFetchNormalizes(t *testing.T) {
	// WHAT: Pair quotes become RawItems with a $TICKER-bearing body,
	// volume as views, and trade counts as replies; incomplete pairs
	// are dropped.
	// WHY: The $TICKER in the body is what feeds buzz term counting.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(dexBody))
	}))
	defer srv.Close()

	d := NewDex(restFetcher(t), nil)
	items, err := d.Fetch(context.Background(), CrawlSource{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}

	item := items[0]
	if item.NaturalID != "dx_solana_8Hk3pair" {
		t.Errorf("natural id: got %q", item.NaturalID)
	}
	if !strings.HasPrefix(item.Body, "$WIF dogwifhat") {
		t.Errorf("body: got %q", item.Body)
	}
	if item.Views != 1500000 {
		t.Errorf("views: got %d", item.Views)
	}
	if item.Replies != 1500 {
		t.Errorf("replies: got %d", item.Replies)
	}
	if item.CreatedAt != 1756000000000 {
		t.Errorf("created_at: got %d", item.CreatedAt)
	}
	if item.SourceName != "dex" {
		t.Errorf("source: got %q", item.SourceName)
	}
}

func TestDexBadPayloadIsError(t *testing.T) {
	// WHAT: A non-JSON body fails the adapter for this cycle.
	// WHY: Shape drift should surface as a source error, not as an
	// empty successful cycle.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	d := NewDex(restFetcher(t), nil)
	if _, err := d.Fetch(context.Background(), CrawlSource{Endpoint: srv.URL}); err == nil {
		t.Error("want error for bad payload")
	}
}
