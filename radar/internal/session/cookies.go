package session

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// cookieJar persists browser cookies between runs so a live session
// can be restored without re-running the login flow.
type cookieJar struct {
	path string
	mu   sync.Mutex
}

// stale reports whether the jar on disk is too old to trust. A
// missing file counts as stale.
func (j *cookieJar) stale(maxAge time.Duration) bool {
	fi, err := os.Stat(j.path)
	if err != nil {
		return true
	}
	return time.Since(fi.ModTime()) > maxAge
}

func (j *cookieJar) load() ([]*proto.NetworkCookieParam, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.path)
	if err != nil {
		return nil, fmt.Errorf("session: read cookie jar: %w", err)
	}
	var params []*proto.NetworkCookieParam
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("session: corrupt cookie jar: %w", err)
	}
	return params, nil
}

func (j *cookieJar) save(cookies []*proto.NetworkCookie) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite,
			Expires:  c.Expires,
		})
	}

	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal cookies: %w", err)
	}

	// Session tokens; keep them out of group/world hands.
	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("session: write cookie jar: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("session: rename cookie jar: %w", err)
	}
	return nil
}

// discard removes the jar. Called after authentication failures so
// the next cycle starts from a clean login.
func (j *cookieJar) discard() {
	j.mu.Lock()
	defer j.mu.Unlock()
	os.Remove(j.path)
}
