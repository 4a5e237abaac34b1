// Package snapshot publishes per-source cycle results as JSON files:
// a timestamped immutable file plus an overwritten *_latest file, to
// a local directory and optionally a remote object store. The local
// copy is authoritative; remote failures never fail a cycle.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/solweave/degenradar/idgen"
	"github.com/solweave/degenradar/radar/internal/store"
)

// ScoredItem is one item with its virality score attached.
type ScoredItem struct {
	store.RawItem
	Score int `json:"score"`
}

// Snapshot is the published unit for one source cycle.
type Snapshot struct {
	Source      string       `json:"source"`
	GeneratedAt int64        `json:"generated_at"` // unix ms
	Items       []ScoredItem `json:"items"`
}

// Publisher writes snapshots locally and mirrors them to a remote
// sink when one is configured.
type Publisher struct {
	dir    string
	remote *RemoteSink
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithRemote mirrors every publish to sink.
func WithRemote(sink *RemoteSink) Option {
	return func(p *Publisher) { p.remote = sink }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

// NewPublisher creates a Publisher writing under dir.
func NewPublisher(dir string, logger *slog.Logger, opts ...Option) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	p := &Publisher{dir: dir, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish writes {source}_{timestamp}.json and {source}_latest.json,
// then mirrors both to the remote sink. The timestamped file is never
// overwritten; only latest is. Remote errors are logged and swallowed.
func (p *Publisher) Publish(ctx context.Context, source string, items []ScoredItem) error {
	now := p.now()
	snap := Snapshot{
		Source:      source,
		GeneratedAt: now.UnixMilli(),
		Items:       items,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}

	stamped := fmt.Sprintf("%s_%s.json", source, idgen.Timestamp(now))
	latest := source + "_latest.json"

	if err := p.writeLocal(stamped, data); err != nil {
		return err
	}
	if err := p.writeLocal(latest, data); err != nil {
		return err
	}
	p.logger.Info("snapshot: published", "source", source, "items", len(items), "file", stamped)

	if p.remote != nil {
		for _, name := range []string{stamped, latest} {
			if err := p.remote.Put(ctx, name, data); err != nil {
				p.logger.Warn("snapshot: remote publish failed, local copy authoritative",
					"source", source, "file", name, "error", err)
				break
			}
		}
	}
	return nil
}

func (p *Publisher) writeLocal(name string, data []byte) error {
	path := filepath.Join(p.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("snapshot: rename %s: %w", name, err)
	}
	return nil
}

// Latest reads back the most recent snapshot for source from the
// local directory.
func (p *Publisher) Latest(source string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(p.dir, source+"_latest.json"))
	if err != nil {
		return nil, fmt.Errorf("snapshot: read latest: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("snapshot: corrupt latest: %w", err)
	}
	return &snap, nil
}
