package feed

import (
	"testing"
	"time"
)

const rssSample = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>CoinWire</title>
    <link>https://coinwire.example.com</link>
    <item>
      <guid>cw-001</guid>
      <title>Solana fees hit record low</title>
      <link>https://coinwire.example.com/sol-fees</link>
      <description>Network fees dropped again this week.</description>
      <pubDate>Mon, 24 Aug 2026 10:00:00 +0000</pubDate>
      <author>alice@example.com</author>
    </item>
    <item>
      <title>New memecoin launches</title>
      <link>https://coinwire.example.com/memecoin</link>
      <description>Another dog-themed token.</description>
      <pubDate>Sun, 23 Aug 2026 09:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

const atomSample = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>r/solana</title>
  <link href="https://reddit.example.com/r/solana" rel="alternate"/>
  <entry>
    <id>t3_abc001</id>
    <title>Why is TPS spiking?</title>
    <link href="https://reddit.example.com/r/solana/abc001" rel="alternate"/>
    <content type="html">&lt;div&gt;&lt;p&gt;Anyone else seeing &lt;b&gt;huge&lt;/b&gt; TPS numbers?&lt;/p&gt;&lt;/div&gt;</content>
    <published>2026-08-24T08:00:00Z</published>
    <author><name>degenbob</name></author>
  </entry>
  <entry>
    <id>t3_abc002</id>
    <title>Validator update</title>
    <link href="https://reddit.example.com/r/solana/abc002"/>
    <summary>Latest validator release notes.</summary>
    <updated>2026-08-23T12:00:00Z</updated>
  </entry>
</feed>`

func TestParseRSS(t *testing.T) {
	// WHAT: Parse a standard RSS 2.0 feed with typed timestamps.
	// WHY: RSS is the transport for news and Reddit sources.
	f, err := Parse([]byte(rssSample))
	if err != nil {
		t.Fatalf("parse rss: %v", err)
	}
	if f.Title != "CoinWire" {
		t.Errorf("title: got %q", f.Title)
	}
	if len(f.Entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(f.Entries))
	}

	e := f.Entries[0]
	if e.GUID != "cw-001" {
		t.Errorf("guid: got %q", e.GUID)
	}
	if e.Author != "alice@example.com" {
		t.Errorf("author: got %q", e.Author)
	}
	want := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	if !e.Published.Equal(want) {
		t.Errorf("published: got %v, want %v", e.Published, want)
	}
}

func TestParseRSSGUIDFallsBackToLink(t *testing.T) {
	// WHAT: An item without a <guid> uses its link as the GUID.
	// WHY: The GUID feeds natural-id dedup; it must never be empty
	// when the item has a link.
	f, err := Parse([]byte(rssSample))
	if err != nil {
		t.Fatalf("parse rss: %v", err)
	}
	if got := f.Entries[1].GUID; got != "https://coinwire.example.com/memecoin" {
		t.Errorf("guid fallback: got %q", got)
	}
}

func TestParseAtom(t *testing.T) {
	// WHAT: Parse an Atom 1.0 feed, including <updated> fallback.
	// WHY: Reddit serves Atom; entries often lack <published>.
	f, err := Parse([]byte(atomSample))
	if err != nil {
		t.Fatalf("parse atom: %v", err)
	}
	if f.Title != "r/solana" {
		t.Errorf("title: got %q", f.Title)
	}
	if len(f.Entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(f.Entries))
	}

	e := f.Entries[0]
	if e.GUID != "t3_abc001" {
		t.Errorf("guid: got %q", e.GUID)
	}
	if e.Author != "degenbob" {
		t.Errorf("author: got %q", e.Author)
	}
	want := time.Date(2026, 8, 24, 8, 0, 0, 0, time.UTC)
	if !e.Published.Equal(want) {
		t.Errorf("published: got %v, want %v", e.Published, want)
	}

	// Second entry only has <updated>.
	want = time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	if !f.Entries[1].Published.Equal(want) {
		t.Errorf("updated fallback: got %v, want %v", f.Entries[1].Published, want)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	// WHAT: Non-feed input and empty input return errors.
	// WHY: Fetch results are untrusted; the parser must fail loudly.
	if _, err := Parse([]byte("  ")); err == nil {
		t.Error("empty input: want error")
	}
	if _, err := Parse([]byte(`{"not":"xml"}`)); err == nil {
		t.Error("json input: want error")
	}
	if _, err := Parse([]byte(`<html><body>hi</body></html>`)); err == nil {
		t.Error("html root: want error")
	}
}

func TestParseDate(t *testing.T) {
	// WHAT: Multiple timestamp layouts parse; junk yields zero time.
	// WHY: Feed producers disagree wildly on date formats.
	cases := []struct {
		in   string
		want time.Time
	}{
		{"Mon, 24 Aug 2026 10:00:00 +0000", time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)},
		{"Mon, 24 Aug 2026 10:00:00 GMT", time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)},
		{"2026-08-24T10:00:00Z", time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)},
		{"", time.Time{}},
		{"not a date", time.Time{}},
	}
	for _, c := range cases {
		got := ParseDate(c.in)
		if !got.Equal(c.want) {
			t.Errorf("ParseDate(%q): got %v, want %v", c.in, got, c.want)
		}
	}
}

func TestPlainText(t *testing.T) {
	// WHAT: HTML fragments flatten to readable text.
	// WHY: Reddit entry bodies arrive as HTML and must be scored as text.
	cases := []struct {
		in   string
		want string
	}{
		{"<div><p>Anyone else seeing <b>huge</b> TPS numbers?</p></div>", "Anyone else seeing huge TPS numbers?"},
		{"line one<br/>line two", "line one line two"},
		{"plain   text\n\twith  gaps", "plain text with gaps"},
		{"a &amp; b", "a & b"},
		{"", ""},
	}
	for _, c := range cases {
		if got := PlainText(c.in); got != c.want {
			t.Errorf("PlainText(%q): got %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParseAtomHTMLContentFlattens(t *testing.T) {
	// WHAT: Atom entry HTML content round-trips through PlainText.
	// WHY: This is the exact path the Reddit adapter takes.
	f, err := Parse([]byte(atomSample))
	if err != nil {
		t.Fatalf("parse atom: %v", err)
	}
	got := PlainText(f.Entries[0].Content)
	if got != "Anyone else seeing huge TPS numbers?" {
		t.Errorf("flattened content: got %q", got)
	}
}
