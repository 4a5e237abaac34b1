// Package session drives an authenticated, human-like browser session
// against the social platform that blocks plain HTTP scraping.
//
// A session moves through an explicit state machine:
//
//	Uninitialized → BrowserReady → AuthAttempting → Authenticated
//	→ Navigating ⇄ Extracting → Closing → Closed
//
// with AuthFailed as a terminal error state. Each Run executes one
// full pass of the machine; the browser and launcher are always
// released on exit, whatever state the run died in.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/solweave/degenradar/radar/internal/store"
)

// ErrAuthFailed marks a session that could not authenticate. The
// cookie jar has been discarded; the next cycle retries a full login.
var ErrAuthFailed = errors.New("session: authentication failed")

// errChallenge is returned by the login race when a lockout or
// verification challenge element appears.
var errChallenge = errors.New("session: verification challenge detected")

// State names the session lifecycle stages.
type State int

const (
	StateUninitialized State = iota
	StateBrowserReady
	StateAuthAttempting
	StateAuthenticated
	StateNavigating
	StateExtracting
	StateClosing
	StateClosed
	StateAuthFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBrowserReady:
		return "browser_ready"
	case StateAuthAttempting:
		return "auth_attempting"
	case StateAuthenticated:
		return "authenticated"
	case StateNavigating:
		return "navigating"
	case StateExtracting:
		return "extracting"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateAuthFailed:
		return "auth_failed"
	default:
		return "unknown"
	}
}

// Config configures a session Manager.
type Config struct {
	// Username and Password for credential login when no usable
	// cookie jar exists.
	Username string
	Password string

	// BaseURL of the platform. Default: "https://x.com".
	BaseURL string

	// CookiePath is where the cookie jar is persisted. Empty disables
	// cookie restore.
	CookiePath string

	// CookieMaxAge beyond which a persisted jar is considered stale
	// and ignored. Default: 72h.
	CookieMaxAge time.Duration

	// LoginTimeout bounds the wait for a login success signal.
	// Default: 10s.
	LoginTimeout time.Duration

	// NavTimeout bounds each navigation. Default: 30s.
	NavTimeout time.Duration

	// ItemCap stops extraction for a query once reached. Default: 40.
	ItemCap int

	// MaxScrolls caps the scroll loop per query. Default: 15.
	MaxScrolls int

	// Headless controls the browser mode. Headful is only useful for
	// local debugging.
	Headless bool

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://x.com"
	}
	if c.CookieMaxAge <= 0 {
		c.CookieMaxAge = 72 * time.Hour
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = 10 * time.Second
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.ItemCap <= 0 {
		c.ItemCap = 40
	}
	if c.MaxScrolls <= 0 {
		c.MaxScrolls = 15
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns one browser session at a time.
type Manager struct {
	cfg Config
	jar *cookieJar

	mu           sync.Mutex
	state        State
	browser      *rod.Browser
	lnch         *launcher.Launcher
	page         *rod.Page
	authFailures int
}

// NewManager creates a session Manager. No browser is launched until
// Run is called.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	m := &Manager{cfg: cfg, state: StateUninitialized}
	if cfg.CookiePath != "" {
		m.jar = &cookieJar{path: cfg.CookiePath}
	}
	return m
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConsecutiveAuthFailures reports how many Runs in a row ended in
// AuthFailed. Resets to zero on any successful authentication.
func (m *Manager) ConsecutiveAuthFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authFailures
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.cfg.Logger.Debug("session: state", "state", s.String())
}

// Run executes one full session: launch, authenticate, then navigate
// and extract for each query. A query failure is logged and skipped;
// the remaining queries still run. The browser is always torn down
// before Run returns.
func (m *Manager) Run(ctx context.Context, queries []string) (items []store.RawItem, err error) {
	log := m.cfg.Logger

	defer func() {
		m.setState(StateClosing)
		m.shutdown()
		m.setState(StateClosed)
	}()

	if err := m.startBrowser(ctx); err != nil {
		return nil, fmt.Errorf("session: start browser: %w", err)
	}
	m.setState(StateBrowserReady)

	if err := m.authenticate(ctx); err != nil {
		// One immediate retry with fresh credentials, then give up
		// for this cycle.
		log.Warn("session: first auth attempt failed, retrying once", "error", err)
		if m.jar != nil {
			m.jar.discard()
		}
		if err = m.authenticate(ctx); err != nil {
			m.mu.Lock()
			m.authFailures++
			m.mu.Unlock()
			m.setState(StateAuthFailed)
			if m.jar != nil {
				m.jar.discard()
			}
			return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
	}
	m.mu.Lock()
	m.authFailures = 0
	m.mu.Unlock()
	m.setState(StateAuthenticated)
	m.persistCookies()

	seen := make(map[string]bool)
	for _, query := range queries {
		batch, qerr := m.collectQuery(ctx, query)
		if qerr != nil {
			log.Warn("session: query failed, continuing", "query", query, "error", qerr)
			continue
		}
		for _, item := range batch {
			if seen[item.NaturalID] {
				continue
			}
			seen[item.NaturalID] = true
			items = append(items, item)
		}
	}

	m.persistCookies()
	return items, nil
}

// startBrowser launches a stealth browser with a randomized
// fingerprint. The randomization is re-drawn every launch so
// consecutive cycles never present identical fingerprints.
func (m *Manager) startBrowser(ctx context.Context) error {
	l := launcher.New().
		Headless(m.cfg.Headless).
		Set("disable-blink-features", "AutomationControlled")

	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch: %w", err)
	}

	b := rod.New().ControlURL(u).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return fmt.Errorf("connect: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		l.Cleanup()
		return fmt.Errorf("stealth page: %w", err)
	}

	fp := randomFingerprint()
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             fp.width,
		Height:            fp.height,
		DeviceScaleFactor: 1,
	}); err != nil {
		m.cfg.Logger.Warn("session: viewport override failed", "error", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent: fp.userAgent,
	}); err != nil {
		m.cfg.Logger.Warn("session: user agent override failed", "error", err)
	}
	if err := (proto.EmulationSetTimezoneOverride{TimezoneID: fp.timezone}).Call(page); err != nil {
		m.cfg.Logger.Warn("session: timezone override failed", "error", err)
	}

	m.mu.Lock()
	m.browser, m.lnch, m.page = b, l, page
	m.mu.Unlock()

	m.cfg.Logger.Info("session: browser ready",
		"viewport", fmt.Sprintf("%dx%d", fp.width, fp.height),
		"timezone", fp.timezone)
	return nil
}

// authenticate restores a persisted session when possible, otherwise
// performs a credential login.
func (m *Manager) authenticate(ctx context.Context) error {
	m.setState(StateAuthAttempting)

	if m.jar != nil && !m.jar.stale(m.cfg.CookieMaxAge) {
		if err := m.restoreSession(ctx); err == nil {
			m.cfg.Logger.Info("session: restored from cookie jar")
			return nil
		} else {
			m.cfg.Logger.Info("session: cookie restore failed, falling back to login", "error", err)
		}
	}

	return m.credentialLogin(ctx)
}

// restoreSession injects the persisted cookies and probes for an
// element only authenticated users see.
func (m *Manager) restoreSession(ctx context.Context) error {
	cookies, err := m.jar.load()
	if err != nil {
		return err
	}
	if len(cookies) == 0 {
		return errors.New("empty cookie jar")
	}
	if err := m.browser.SetCookies(cookies); err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}

	if err := m.navigate(ctx, m.cfg.BaseURL+"/home"); err != nil {
		return err
	}

	_, err = raceSelectors(m.page, m.cfg.LoginTimeout, authProbeSelectors, nil)
	if err != nil {
		return fmt.Errorf("auth probe: %w", err)
	}
	return nil
}

// credentialLogin fills the username, advances, fills the password,
// submits, and waits for a success signal. A detected challenge or a
// timeout fails the attempt.
func (m *Manager) credentialLogin(ctx context.Context) error {
	if m.cfg.Username == "" || m.cfg.Password == "" {
		return errors.New("no credentials configured")
	}

	if err := m.navigate(ctx, m.cfg.BaseURL+"/i/flow/login"); err != nil {
		return err
	}
	m.humanPause()

	userField, err := firstMatch(m.page, m.cfg.LoginTimeout, usernameSelectors)
	if err != nil {
		return fmt.Errorf("username field: %w", err)
	}
	if err := userField.Input(m.cfg.Username); err != nil {
		return fmt.Errorf("type username: %w", err)
	}
	m.humanPause()

	if err := m.clickFirst(5*time.Second, nextButtonSelectors, "/^next$/i"); err != nil {
		m.cfg.Logger.Debug("session: advance button not found", "error", err)
	}
	m.humanPause()

	passField, err := firstMatch(m.page, m.cfg.LoginTimeout, passwordSelectors)
	if err != nil {
		return fmt.Errorf("password field: %w", err)
	}
	if err := passField.Input(m.cfg.Password); err != nil {
		return fmt.Errorf("type password: %w", err)
	}
	m.humanPause()

	if err := m.clickFirst(5*time.Second, submitSelectors, "/^log in$/i"); err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	_, err = raceSelectors(m.page, m.cfg.LoginTimeout, loginSuccessSelectors, challengeSelectors)
	if err != nil {
		return fmt.Errorf("login signal: %w", err)
	}
	m.cfg.Logger.Info("session: login ok")
	return nil
}

// collectQuery navigates to the live search view for query and runs
// the scroll-and-extract loop until the item cap or scroll ceiling.
func (m *Manager) collectQuery(ctx context.Context, query string) ([]store.RawItem, error) {
	m.setState(StateNavigating)
	target := fmt.Sprintf("%s/search?q=%s&f=live", m.cfg.BaseURL, url.QueryEscape(query))
	if err := m.navigate(ctx, target); err != nil {
		return nil, err
	}
	m.humanPause()

	m.setState(StateExtracting)
	collected := make(map[string]store.RawItem)
	for scroll := 0; scroll < m.cfg.MaxScrolls; scroll++ {
		if ctx.Err() != nil {
			break
		}

		batch := m.extractVisible()
		for _, item := range batch {
			collected[item.NaturalID] = item
		}
		if len(collected) >= m.cfg.ItemCap {
			break
		}

		m.setState(StateNavigating)
		if err := m.humanScroll(); err != nil {
			m.cfg.Logger.Debug("session: scroll failed", "error", err)
		}
		m.humanPause()
		m.setState(StateExtracting)
	}

	items := make([]store.RawItem, 0, len(collected))
	now := time.Now().UnixMilli()
	for _, item := range collected {
		item.SourceName = "twitter"
		item.CollectedAt = now
		items = append(items, item)
		if len(items) >= m.cfg.ItemCap {
			break
		}
	}
	m.cfg.Logger.Info("session: query extracted", "query", query, "items", len(items))
	return items, nil
}

func (m *Manager) navigate(ctx context.Context, target string) error {
	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavTimeout)
	defer cancel()

	page := m.page.Context(navCtx)
	if err := page.Navigate(target); err != nil {
		return fmt.Errorf("navigate %s: %w", target, err)
	}
	if err := page.WaitLoad(); err != nil {
		m.cfg.Logger.Debug("session: wait load timeout", "url", target, "error", err)
	}
	return nil
}

// persistCookies saves the jar. Only called from authenticated
// checkpoints; failures are logged, never fatal.
func (m *Manager) persistCookies() {
	if m.jar == nil || m.browser == nil {
		return
	}
	cookies, err := m.browser.GetCookies()
	if err != nil {
		m.cfg.Logger.Warn("session: get cookies failed", "error", err)
		return
	}
	if err := m.jar.save(cookies); err != nil {
		m.cfg.Logger.Warn("session: persist cookies failed", "error", err)
	}
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.page != nil {
		m.page = nil
	}
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.cfg.Logger.Debug("session: browser close", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}

// fingerprint is one randomized browser identity.
type fingerprint struct {
	width, height int
	userAgent     string
	timezone      string
}

var viewportPool = [][2]int{
	{1920, 1080},
	{1680, 1050},
	{1536, 864},
	{1440, 900},
	{1366, 768},
}

var userAgentPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
}

var timezonePool = []string{
	"America/New_York",
	"America/Chicago",
	"America/Los_Angeles",
	"Europe/London",
	"Europe/Berlin",
}

func randomFingerprint() fingerprint {
	vp := viewportPool[rand.IntN(len(viewportPool))]
	return fingerprint{
		width:     vp[0],
		height:    vp[1],
		userAgent: userAgentPool[rand.IntN(len(userAgentPool))],
		timezone:  timezonePool[rand.IntN(len(timezonePool))],
	}
}
