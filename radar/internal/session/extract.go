package session

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/solweave/degenradar/radar/internal/store"
)

// Selector fallback chains. Tried in priority order; the first
// selector yielding a non-empty result wins. The platform reshuffles
// its DOM regularly, so every field gets more than one candidate.
var (
	articleSelectors = []string{
		"article[data-testid='tweet']",
		"article[role='article']",
		"div[data-testid='cellInnerDiv'] article",
	}
	textSelectors = []string{
		"div[data-testid='tweetText']",
		"div[lang]",
	}
	authorSelectors = []string{
		"div[data-testid='User-Name']",
		"a[role='link'] div[dir='ltr']",
	}

	usernameSelectors = []string{
		"input[autocomplete='username']",
		"input[name='text']",
	}
	passwordSelectors = []string{
		"input[name='password']",
		"input[type='password']",
	}
	nextButtonSelectors = []string{
		"button[data-testid='ocfEnterTextNextButton']",
	}
	submitSelectors = []string{
		"button[data-testid='LoginForm_Login_Button']",
		"div[data-testid='LoginForm_Login_Button']",
	}
	loginSuccessSelectors = []string{
		"a[data-testid='AppTabBar_Home_Link']",
		"div[data-testid='SideNav_AccountSwitcher_Button']",
	}
	authProbeSelectors = []string{
		"a[data-testid='AppTabBar_Home_Link']",
		"a[aria-label='Profile']",
		"div[data-testid='SideNav_AccountSwitcher_Button']",
	}
	challengeSelectors = []string{
		"input[name='challenge_response']",
		"div[data-testid='confirmationSheetDialog']",
		"iframe[src*='arkose']",
	}
)

var statusIDRe = regexp.MustCompile(`/status/(\d+)`)

// raceSelectors waits for the first of several selectors to appear.
// A match from the challenge set resolves the race with errChallenge.
func raceSelectors(page *rod.Page, timeout time.Duration, success, challenge []string) (*rod.Element, error) {
	race := page.Timeout(timeout).Race()
	for _, sel := range success {
		race = race.Element(sel)
	}
	for _, sel := range challenge {
		race = race.Element(sel).Handle(func(*rod.Element) error { return errChallenge })
	}
	return race.Do()
}

func firstMatch(page *rod.Page, timeout time.Duration, sels []string) (*rod.Element, error) {
	return raceSelectors(page, timeout, sels, nil)
}

// clickFirst clicks the first selector match, falling back to a
// button matched by visible text when no selector hits.
func (m *Manager) clickFirst(timeout time.Duration, sels []string, textPattern string) error {
	el, err := raceSelectors(m.page, timeout, sels, nil)
	if err != nil && textPattern != "" {
		el, err = m.page.Timeout(timeout).ElementR("button", textPattern)
	}
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// articles returns the currently rendered post nodes, trying each
// article selector in turn.
func (m *Manager) articles() rod.Elements {
	for _, sel := range articleSelectors {
		els, err := m.page.Timeout(2 * time.Second).Elements(sel)
		if err == nil && len(els) > 0 {
			return els
		}
	}
	return nil
}

// extractVisible maps every rendered post node to a RawItem. Nodes
// that yield no text through any selector are dropped, never fatal.
func (m *Manager) extractVisible() []store.RawItem {
	var items []store.RawItem
	for _, art := range m.articles() {
		item, ok := m.extractItem(art)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items
}

func (m *Manager) extractItem(el *rod.Element) (store.RawItem, bool) {
	body := chainText(el, textSelectors)
	if body == "" {
		m.cfg.Logger.Debug("session: node yielded no text, dropped")
		return store.RawItem{}, false
	}

	handle := authorHandle(el)
	id := statusID(el)
	if id == "" {
		// No permalink rendered yet; derive a stable id from content.
		sum := sha256.Sum256([]byte(handle + "\x00" + body))
		id = hex.EncodeToString(sum[:8])
	}

	created := postTimestamp(el)
	if created.IsZero() {
		created = time.Now()
	}

	return store.RawItem{
		NaturalID:    "tw_" + id,
		Body:         body,
		AuthorHandle: handle,
		Likes:        counterOf(el, "button[data-testid='like']", "div[data-testid='like']"),
		Shares:       counterOf(el, "button[data-testid='retweet']", "div[data-testid='retweet']"),
		Replies:      counterOf(el, "button[data-testid='reply']", "div[data-testid='reply']"),
		Views:        counterOf(el, "a[href$='/analytics']"),
		CreatedAt:    created.UnixMilli(),
	}, true
}

// chainText tries each selector with a short deadline and returns the
// first non-empty text.
func chainText(el *rod.Element, sels []string) string {
	for _, sel := range sels {
		sub, err := el.Timeout(500 * time.Millisecond).Element(sel)
		if err != nil {
			continue
		}
		text, err := sub.Text()
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	return ""
}

// authorHandle pulls the @handle from the user block, falling back to
// the permalink path.
func authorHandle(el *rod.Element) string {
	raw := chainText(el, authorSelectors)
	for _, field := range strings.Fields(raw) {
		if strings.HasPrefix(field, "@") && len(field) > 1 {
			return field
		}
	}
	if href := linkHref(el); href != "" {
		parts := strings.SplitN(strings.TrimPrefix(href, "/"), "/", 2)
		if len(parts) > 0 && parts[0] != "" {
			return "@" + parts[0]
		}
	}
	return ""
}

func statusID(el *rod.Element) string {
	if match := statusIDRe.FindStringSubmatch(linkHref(el)); match != nil {
		return match[1]
	}
	return ""
}

func linkHref(el *rod.Element) string {
	link, err := el.Timeout(500 * time.Millisecond).Element("a[href*='/status/']")
	if err != nil {
		return ""
	}
	href, err := link.Attribute("href")
	if err != nil || href == nil {
		return ""
	}
	return *href
}

func postTimestamp(el *rod.Element) time.Time {
	node, err := el.Timeout(500 * time.Millisecond).Element("time")
	if err != nil {
		return time.Time{}
	}
	attr, err := node.Attribute("datetime")
	if err != nil || attr == nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, *attr)
	if err != nil {
		return time.Time{}
	}
	return t
}

// counterOf reads an engagement counter from the first matching
// selector, trying visible text then the aria-label.
func counterOf(el *rod.Element, sels ...string) int64 {
	for _, sel := range sels {
		sub, err := el.Timeout(500 * time.Millisecond).Element(sel)
		if err != nil {
			continue
		}
		if text, err := sub.Text(); err == nil {
			if n, ok := parseCount(text); ok {
				return n
			}
		}
		if label, err := sub.Attribute("aria-label"); err == nil && label != nil {
			if n, ok := parseCount(*label); ok {
				return n
			}
		}
	}
	return 0
}

var countRe = regexp.MustCompile(`([0-9][0-9.,]*)\s*([KkMmBb])?`)

// parseCount parses abbreviated engagement numerals: "1.2K" is 1200,
// "3M" is 3000000, "1,234" is 1234. Also accepts labels like
// "12 Likes". Returns false when s holds no number at all.
func parseCount(s string) (int64, bool) {
	match := countRe.FindStringSubmatch(s)
	if match == nil {
		return 0, false
	}

	num := strings.ReplaceAll(match[1], ",", "")
	value, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}

	switch strings.ToUpper(match[2]) {
	case "K":
		value *= 1_000
	case "M":
		value *= 1_000_000
	case "B":
		value *= 1_000_000_000
	}
	return int64(math.Round(value)), true
}
