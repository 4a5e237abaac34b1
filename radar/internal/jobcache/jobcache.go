// Package jobcache maps a request fingerprint to a previously fetched scrape
// result so adapters can skip paying for (or risking) a second identical
// crawl within the TTL window.
//
// The cache is one JSON file on disk: fingerprint (hex digest) → entry with
// a result reference and an RFC 3339 creation time. Expiry is lazy, checked
// at lookup, never swept. A corrupted or missing file is an empty cache,
// never an error.
package jobcache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long a cached scrape result is trusted.
const DefaultTTL = 2 * time.Hour

// Fingerprint hashes the defining parameters of a request into a cache key.
// Parameters are sorted first, so callers need not care about ordering:
// the same logical request always yields the same fingerprint.
func Fingerprint(params ...string) string {
	sorted := make([]string, len(params))
	copy(sorted, params)
	sort.Strings(sorted)
	h := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return fmt.Sprintf("%x", h)
}

// Entry is one cached scrape result.
type Entry struct {
	ResultRef string    `json:"result_ref"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a file-backed fingerprint cache safe for concurrent adapters.
type Store struct {
	path   string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]Entry
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides the default 2h TTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source. Tests use this to age entries.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New loads (or initialises) a Store backed by the file at path.
func New(path string, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:    path,
		ttl:     DefaultTTL,
		logger:  logger,
		now:     time.Now,
		entries: map[string]Entry{},
	}
	for _, o := range opts {
		o(s)
	}
	s.load()
	return s
}

// Lookup returns the cached entry for a fingerprint, or false when the
// fingerprint is unknown or the entry has aged past the TTL.
func (s *Store) Lookup(fingerprint string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[fingerprint]
	if !ok {
		return Entry{}, false
	}
	if s.now().Sub(e.CreatedAt) >= s.ttl {
		return Entry{}, false
	}
	return e, true
}

// Put records a fresh result for a fingerprint and persists the cache file.
// A persist failure is logged, not returned: the in-memory entry still
// serves this process, and the next Put retries the write.
func (s *Store) Put(fingerprint, resultRef string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[fingerprint] = Entry{ResultRef: resultRef, CreatedAt: s.now()}
	if err := s.persistLocked(); err != nil {
		s.logger.Warn("jobcache: persist failed", "path", s.path, "error", err)
	}
}

// Len reports the number of entries held, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("jobcache: read failed, starting empty", "path", s.path, "error", err)
		}
		return
	}
	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("jobcache: corrupt cache file, starting empty", "path", s.path, "error", err)
		return
	}
	s.entries = entries
}

// persistLocked writes the cache atomically (tmp then rename) so a crash
// mid-write never leaves a half-written file for the next process to choke on.
func (s *Store) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
