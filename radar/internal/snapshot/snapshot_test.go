package snapshot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/solweave/degenradar/radar/internal/store"
)

var snapNow = time.Date(2026, 8, 24, 10, 30, 45, 0, time.UTC)

func testItems() []ScoredItem {
	return []ScoredItem{
		{RawItem: store.RawItem{NaturalID: "tw_1", Body: "$sol pump", SourceName: "twitter"}, Score: 87},
		{RawItem: store.RawItem{NaturalID: "tw_2", Body: "quiet", SourceName: "twitter"}, Score: 20},
	}
}

func TestPublishWritesPair(t *testing.T) {
	// WHAT: Publish produces the timestamped file and the latest file
	// with identical content.
	// WHY: Consumers read latest; auditors read the immutable trail.
	dir := t.TempDir()
	p, err := NewPublisher(dir, nil, WithClock(func() time.Time { return snapNow }))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := p.Publish(context.Background(), "twitter", testItems()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	stamped, err := os.ReadFile(filepath.Join(dir, "twitter_20260824_103045.json"))
	if err != nil {
		t.Fatalf("stamped file: %v", err)
	}
	latest, err := os.ReadFile(filepath.Join(dir, "twitter_latest.json"))
	if err != nil {
		t.Fatalf("latest file: %v", err)
	}
	if string(stamped) != string(latest) {
		t.Error("stamped and latest diverge")
	}

	snap, err := p.Latest("twitter")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if snap.Source != "twitter" || len(snap.Items) != 2 || snap.Items[0].Score != 87 {
		t.Errorf("snapshot: %+v", snap)
	}
	if snap.GeneratedAt != snapNow.UnixMilli() {
		t.Errorf("generated_at: got %d", snap.GeneratedAt)
	}
}

func TestPublishOverwritesOnlyLatest(t *testing.T) {
	// WHAT: A second cycle rewrites latest but leaves the first
	// timestamped file untouched.
	// WHY: Timestamped snapshots are immutable history.
	dir := t.TempDir()
	now := snapNow
	p, err := NewPublisher(dir, nil, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := p.Publish(context.Background(), "news", testItems()[:1]); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	first, _ := os.ReadFile(filepath.Join(dir, "news_20260824_103045.json"))

	now = now.Add(30 * time.Minute)
	if err := p.Publish(context.Background(), "news", testItems()); err != nil {
		t.Fatalf("second publish: %v", err)
	}

	stillFirst, err := os.ReadFile(filepath.Join(dir, "news_20260824_103045.json"))
	if err != nil {
		t.Fatalf("first snapshot gone: %v", err)
	}
	if string(first) != string(stillFirst) {
		t.Error("immutable snapshot changed")
	}

	snap, err := p.Latest("news")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(snap.Items) != 2 {
		t.Errorf("latest items: got %d, want 2", len(snap.Items))
	}
}

func TestPublishMirrorsToRemote(t *testing.T) {
	// WHAT: Both files are PUT to the remote under the same names.
	// WHY: The remote mirror is how other machines consume snapshots.
	var puts atomic.Int64
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method: got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok123" {
			t.Errorf("auth header: got %q", got)
		}
		paths = append(paths, r.URL.Path)
		puts.Add(1)
	}))
	defer srv.Close()

	sink := NewRemoteSink(srv.URL, nil, WithToken("tok123"))
	p, err := NewPublisher(t.TempDir(), nil,
		WithClock(func() time.Time { return snapNow }), WithRemote(sink))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := p.Publish(context.Background(), "dex", testItems()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if puts.Load() != 2 {
		t.Fatalf("remote puts: got %d, want 2", puts.Load())
	}
	if paths[0] != "/dex_20260824_103045.json" || paths[1] != "/dex_latest.json" {
		t.Errorf("remote paths: %v", paths)
	}
}

func TestRemoteFailureDoesNotFailPublish(t *testing.T) {
	// WHAT: A dead remote still yields a successful local publish,
	// after exactly one retry per object.
	// WHY: The local snapshot is authoritative; cycles must not fail
	// on mirror trouble.
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := NewRemoteSink(srv.URL, nil)
	dir := t.TempDir()
	p, err := NewPublisher(dir, nil,
		WithClock(func() time.Time { return snapNow }), WithRemote(sink))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := p.Publish(context.Background(), "twitter", testItems()); err != nil {
		t.Fatalf("publish should succeed locally: %v", err)
	}
	// First object: initial attempt + one retry, then the publisher
	// gives up on the remote for this cycle.
	if got := attempts.Load(); got != 2 {
		t.Errorf("remote attempts: got %d, want 2", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "twitter_latest.json")); err != nil {
		t.Errorf("local latest missing: %v", err)
	}
}
