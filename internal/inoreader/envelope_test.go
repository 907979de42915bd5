package inoreader

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lepinkainen/feed-brief/pkg/testutil"
	"github.com/mmcdole/gofeed"
)

const sampleStream = `{
  "id": "user/-/label/Tech",
  "title": "Tech",
  "items": [
    {
      "id": "tag:google.com,2005:reader/item/1",
      "title": "Chip makers rally",
      "author": "Desk",
      "published": 1740830400,
      "summary": {"content": "<p>Shares <b>rose</b> sharply.</p><img src=\"https://cdn.example/chips.png\">"},
      "canonical": [{"href": "https://news.example/chips"}]
    },
    {
      "id": "tag:google.com,2005:reader/item/2",
      "title": "No link here",
      "summary": {"content": "Plain &amp; simple"}
    }
  ]
}`

type envelopeItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Enclosure   string `json:"enclosure,omitempty"`
}

func parseEnvelope(t *testing.T, blob string) (*gofeed.Feed, []envelopeItem) {
	t.Helper()

	feed, err := gofeed.NewParser().ParseString(blob)
	if err != nil {
		t.Fatalf("envelope is not a parseable feed: %v\n%s", err, blob)
	}

	items := make([]envelopeItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		e := envelopeItem{Title: it.Title, Link: it.Link, Description: strings.TrimSpace(it.Description)}
		if len(it.Enclosures) > 0 {
			e.Enclosure = it.Enclosures[0].URL
		}
		items = append(items, e)
	}
	return feed, items
}

func TestEnvelope(t *testing.T) {
	var stream Stream
	if err := json.Unmarshal([]byte(sampleStream), &stream); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}

	blob, err := Envelope("https://www.inoreader.com/tag/Tech", &stream)
	if err != nil {
		t.Fatalf("Envelope() error = %v", err)
	}

	feed, items := parseEnvelope(t, blob)
	if feed.Title != "Tech" {
		t.Errorf("feed title = %q, want Tech", feed.Title)
	}

	testutil.CompareGoldenJSON(t, filepath.Join("testdata", "envelope.golden.json"), items)
}

func TestEnvelope_Empty(t *testing.T) {
	blob, err := Envelope("https://www.inoreader.com/tag/Empty", &Stream{Items: []StreamItem{}})
	if err != nil {
		t.Fatalf("Envelope() error = %v", err)
	}

	feed, items := parseEnvelope(t, blob)
	if len(items) != 0 {
		t.Errorf("got %d items, want 0", len(items))
	}
	if feed.Title != "https://www.inoreader.com/tag/Empty" {
		t.Errorf("feed title = %q, want the feed URL", feed.Title)
	}
}

func TestImageType(t *testing.T) {
	tests := map[string]string{
		"https://cdn.example/a.png":         "image/png",
		"https://cdn.example/a.gif?w=300":   "image/gif",
		"https://cdn.example/photo":         "image/jpeg",
		"https://cdn.example/download.html": "image/jpeg",
	}
	for src, want := range tests {
		if got := imageType(src); got != want {
			t.Errorf("imageType(%q) = %q, want %q", src, got, want)
		}
	}
}
