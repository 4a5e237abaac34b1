package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

func TestParseCount(t *testing.T) {
	// WHAT: Abbreviated engagement numerals parse into exact integers.
	// WHY: Counters render as "1.2K" in the feed; scoring needs numbers.
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"0", 0, true},
		{"42", 42, true},
		{"1,234", 1234, true},
		{"1.2K", 1200, true},
		{"3M", 3_000_000, true},
		{"3.4M", 3_400_000, true},
		{"1.1B", 1_100_000_000, true},
		{"12 Likes", 12, true},
		{"1,234 reposts", 1234, true},
		{"", 0, false},
		{"Like", 0, false},
	}
	for _, c := range cases {
		got, ok := parseCount(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("parseCount(%q): got (%d, %v), want (%d, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestCookieJarRoundTrip(t *testing.T) {
	// WHAT: Cookies saved from a run load back as injection params.
	// WHY: Session restore depends on a faithful jar round trip.
	jar := &cookieJar{path: filepath.Join(t.TempDir(), "cookies.json")}

	in := []*proto.NetworkCookie{
		{Name: "auth_token", Value: "s3cret", Domain: ".x.com", Path: "/", Secure: true, HTTPOnly: true},
		{Name: "ct0", Value: "csrf", Domain: ".x.com", Path: "/"},
	}
	if err := jar.save(in); err != nil {
		t.Fatalf("save: %v", err)
	}

	out, err := jar.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d cookies, want 2", len(out))
	}
	if out[0].Name != "auth_token" || out[0].Value != "s3cret" || !out[0].Secure || !out[0].HTTPOnly {
		t.Errorf("first cookie mangled: %+v", out[0])
	}

	// Jar holds session tokens; must not be group or world readable.
	fi, err := os.Stat(jar.path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := fi.Mode().Perm(); perm != 0o600 {
		t.Errorf("jar perms: got %o, want 600", perm)
	}
}

func TestCookieJarStale(t *testing.T) {
	// WHAT: Missing and aged jars count as stale; a fresh one does not.
	// WHY: Stale cookies trigger a clean login instead of a doomed restore.
	jar := &cookieJar{path: filepath.Join(t.TempDir(), "cookies.json")}
	if !jar.stale(time.Hour) {
		t.Error("missing jar should be stale")
	}

	if err := jar.save(nil); err != nil {
		t.Fatal(err)
	}
	if jar.stale(time.Hour) {
		t.Error("fresh jar should not be stale")
	}

	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(jar.path, old, old); err != nil {
		t.Fatal(err)
	}
	if !jar.stale(time.Hour) {
		t.Error("aged jar should be stale")
	}
}

func TestCookieJarDiscard(t *testing.T) {
	// WHAT: discard removes the file; a later load fails.
	// WHY: Failed auth must not leave poisoned cookies for the next cycle.
	jar := &cookieJar{path: filepath.Join(t.TempDir(), "cookies.json")}
	if err := jar.save([]*proto.NetworkCookie{{Name: "auth_token", Value: "x"}}); err != nil {
		t.Fatal(err)
	}
	jar.discard()
	if _, err := jar.load(); err == nil {
		t.Error("load after discard should fail")
	}
}

func TestCookieJarCorruptFileErrors(t *testing.T) {
	// WHAT: A corrupt jar surfaces as a load error.
	// WHY: The caller treats it as a restore failure and re-logs-in.
	path := filepath.Join(t.TempDir(), "cookies.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	jar := &cookieJar{path: path}
	if _, err := jar.load(); err == nil {
		t.Error("want error for corrupt jar")
	}
}

func TestStateString(t *testing.T) {
	// WHAT: Every state has a distinct log-friendly name.
	// WHY: Cycle logs are the only window into the machine in production.
	states := []State{
		StateUninitialized, StateBrowserReady, StateAuthAttempting,
		StateAuthenticated, StateNavigating, StateExtracting,
		StateClosing, StateClosed, StateAuthFailed,
	}
	seen := make(map[string]bool)
	for _, s := range states {
		name := s.String()
		if name == "unknown" || seen[name] {
			t.Errorf("state %d: bad or duplicate name %q", s, name)
		}
		seen[name] = true
	}
}

func TestNewManagerDefaults(t *testing.T) {
	// WHAT: A zero config gets sane defaults and starts Uninitialized.
	// WHY: Callers only set credentials; the rest must be usable as-is.
	m := NewManager(Config{Username: "u", Password: "p"})
	if m.State() != StateUninitialized {
		t.Errorf("state: got %v", m.State())
	}
	if m.ConsecutiveAuthFailures() != 0 {
		t.Error("fresh manager reports auth failures")
	}
	if m.cfg.LoginTimeout != 10*time.Second {
		t.Errorf("login timeout default: got %v", m.cfg.LoginTimeout)
	}
	if m.cfg.ItemCap != 40 || m.cfg.MaxScrolls != 15 {
		t.Errorf("cap defaults: got %d, %d", m.cfg.ItemCap, m.cfg.MaxScrolls)
	}
	if m.jar != nil {
		t.Error("jar should be nil without a cookie path")
	}
}

func TestRandomFingerprintStaysInPools(t *testing.T) {
	// WHAT: Fingerprints always come from the curated pools, and
	// repeated draws are not all identical.
	// WHY: Off-pool values (or a frozen fingerprint) are detection tells.
	distinct := make(map[string]bool)
	for i := 0; i < 50; i++ {
		fp := randomFingerprint()
		found := false
		for _, vp := range viewportPool {
			if fp.width == vp[0] && fp.height == vp[1] {
				found = true
			}
		}
		if !found {
			t.Fatalf("viewport %dx%d not in pool", fp.width, fp.height)
		}
		distinct[fp.userAgent+fp.timezone] = true
	}
	if len(distinct) < 2 {
		t.Error("50 draws produced a single fingerprint; randomization broken")
	}
}
