// Package buzz tracks per-hour term frequencies and computes
// acceleration ratios for trending detection.
//
// Terms are ticker symbols ($sol) and hashtags (#memecoin) extracted
// from item text. Counts accumulate in an in-memory bucket for the
// current hour; when the hour rolls over the closed bucket is written
// to disk as an append-only snapshot file and never touched again.
package buzz

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	tickerRe  = regexp.MustCompile(`\$[A-Za-z][A-Za-z0-9]{1,9}`)
	hashtagRe = regexp.MustCompile(`#\w+`)
)

// Terms extracts ticker and hashtag tokens from text, lower-cased with
// their sigil kept ("$SOL" becomes "$sol").
func Terms(text string) []string {
	var out []string
	for _, m := range tickerRe.FindAllString(text, -1) {
		out = append(out, strings.ToLower(m))
	}
	for _, m := range hashtagRe.FindAllString(text, -1) {
		out = append(out, strings.ToLower(m))
	}
	return out
}

// Snapshot is one completed hour of term counts.
type Snapshot struct {
	HourBucket string         `json:"hour_bucket"`
	Terms      map[string]int `json:"terms"`
}

const filePrefix = "buzz_"

// Accelerator maintains hourly term-count buckets in memory and
// persists completed hours to dir. Safe for concurrent use.
type Accelerator struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	buckets map[int64]map[string]int // hour-start unix seconds -> term counts
	flushed map[int64]bool
}

// Option configures an Accelerator.
type Option func(*Accelerator)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(a *Accelerator) { a.now = now }
}

// New creates an Accelerator backed by dir, reloading any snapshot
// files a previous process left behind so acceleration survives
// restarts.
func New(dir string, logger *slog.Logger, opts ...Option) (*Accelerator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("buzz: create dir: %w", err)
	}

	a := &Accelerator{
		dir:     dir,
		logger:  logger,
		now:     time.Now,
		buckets: make(map[int64]map[string]int),
		flushed: make(map[int64]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.reload()
	return a, nil
}

func (a *Accelerator) reload() {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		a.logger.Warn("buzz: read dir failed", "dir", a.dir, "error", err)
		return
	}

	loaded := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ".json")
		hour, err := time.Parse("20060102_15", stamp)
		if err != nil {
			a.logger.Warn("buzz: skipping unparseable snapshot name", "file", name)
			continue
		}

		data, err := os.ReadFile(filepath.Join(a.dir, name))
		if err != nil {
			a.logger.Warn("buzz: read snapshot failed", "file", name, "error", err)
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			a.logger.Warn("buzz: corrupt snapshot skipped", "file", name, "error", err)
			continue
		}

		key := hour.UTC().Unix()
		a.buckets[key] = snap.Terms
		if a.buckets[key] == nil {
			a.buckets[key] = make(map[string]int)
		}
		a.flushed[key] = true
		loaded++
	}
	if loaded > 0 {
		a.logger.Info("buzz: reloaded snapshots", "count", loaded)
	}
}

func hourKey(t time.Time) int64 {
	return t.UTC().Truncate(time.Hour).Unix()
}

// Record extracts terms from each text and increments counts in the
// current hour bucket. Buckets for hours that have since closed are
// flushed to disk as a side effect.
func (a *Accelerator) Record(texts []string) {
	now := a.now()
	key := hourKey(now)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.flushBefore(key)

	bucket := a.buckets[key]
	if bucket == nil {
		bucket = make(map[string]int)
		a.buckets[key] = bucket
	}
	for _, text := range texts {
		for _, term := range Terms(text) {
			bucket[term]++
		}
	}
}

// AccelerationOf compares a term's count in the two most recent
// completed hourly snapshots: recent / max(prev, 0.1). Returns a
// neutral 1.0 when fewer than two completed snapshots exist.
func (a *Accelerator) AccelerationOf(term string) float64 {
	term = strings.ToLower(term)
	currentKey := hourKey(a.now())

	a.mu.Lock()
	defer a.mu.Unlock()

	var completed []int64
	for key := range a.buckets {
		if key < currentKey {
			completed = append(completed, key)
		}
	}
	if len(completed) < 2 {
		return 1.0
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i] > completed[j] })

	recent := float64(a.buckets[completed[0]][term])
	prev := float64(a.buckets[completed[1]][term])
	if prev < 0.1 {
		prev = 0.1
	}
	return recent / prev
}

// Count reports a term's count in the bucket containing t. Zero when
// the bucket or term is absent.
func (a *Accelerator) Count(t time.Time, term string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buckets[hourKey(t)][strings.ToLower(term)]
}

// Flush writes every completed, not-yet-flushed bucket to disk. The
// current hour's bucket stays in memory until its hour closes.
func (a *Accelerator) Flush() error {
	key := hourKey(a.now())
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushBefore(key)
}

// Close flushes completed buckets. The in-progress hour is discarded;
// it was never a completed snapshot.
func (a *Accelerator) Close() error {
	return a.Flush()
}

// flushBefore persists all unflushed buckets older than cutoff.
// Caller holds a.mu. Write failures are logged; the bucket stays
// unflushed for the next attempt.
func (a *Accelerator) flushBefore(cutoff int64) error {
	var firstErr error
	for key, bucket := range a.buckets {
		if key >= cutoff || a.flushed[key] {
			continue
		}
		if err := a.writeSnapshot(key, bucket); err != nil {
			a.logger.Warn("buzz: snapshot flush failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		a.flushed[key] = true
	}
	return firstErr
}

func (a *Accelerator) writeSnapshot(key int64, bucket map[string]int) error {
	hour := time.Unix(key, 0).UTC()
	snap := Snapshot{
		HourBucket: hour.Format(time.RFC3339),
		Terms:      bucket,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("buzz: marshal snapshot: %w", err)
	}

	name := filePrefix + hour.Format("20060102_15") + ".json"
	path := filepath.Join(a.dir, name)

	// Closed hours are append-only. A file already on disk wins.
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("buzz: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("buzz: rename snapshot: %w", err)
	}
	return nil
}
