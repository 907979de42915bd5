// Package opengraph reads OpenGraph metadata from article pages and uses it
// to fill in images the summarizer could not find in the feed.
package opengraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"

	"github.com/lepinkainen/feed-brief/internal/articles"
	fbhttp "github.com/lepinkainen/feed-brief/pkg/http"
	"github.com/lepinkainen/feed-brief/pkg/kvstore"
)

const (
	// KeyPrefix prefixes cached entries in the store.
	KeyPrefix = "og:"
	// SuccessTTL and FailureTTL bound how long a fetch result is reused.
	SuccessTTL = 24 * time.Hour
	FailureTTL = time.Hour

	maxConcurrent = 5
	maxPageSize   = 1 << 20
	domainDelay   = time.Second
)

// ErrNotHTML is returned for pages that are not HTML documents.
var ErrNotHTML = errors.New("not an HTML page")

// Data is the metadata of one page.
type Data struct {
	URL         string    `json:"url"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Image       string    `json:"image,omitempty"`
	SiteName    string    `json:"siteName,omitempty"`
	OK          bool      `json:"ok"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Fetcher fetches page metadata with a store-backed cache, a concurrency
// cap and a minimum delay between requests to the same host.
type Fetcher struct {
	client *fbhttp.Client
	kv     kvstore.Store
	now    func() time.Time
	delay  time.Duration

	domainMu  sync.Mutex
	lastFetch map[string]time.Time
}

// NewFetcher creates a Fetcher. A nil client uses the default client.
func NewFetcher(client *fbhttp.Client, kv kvstore.Store) *Fetcher {
	if client == nil {
		client = fbhttp.NewClient(nil)
	}
	return &Fetcher{
		client:    client,
		kv:        kv,
		now:       time.Now,
		delay:     domainDelay,
		lastFetch: make(map[string]time.Time),
	}
}

// blocked hosts refuse anonymous page fetches
var blockedHosts = []string{"x.com", "twitter.com", "facebook.com", "instagram.com", "linkedin.com", "reddit.com", "redd.it"}

func isBlocked(u *url.URL) bool {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, b := range blockedHosts {
		if host == b || strings.HasSuffix(host, "."+b) {
			return true
		}
	}
	return false
}

// FetchData returns the metadata of targetURL. Failures are cached for
// FailureTTL and reported as (nil, nil) while cached.
func (f *Fetcher) FetchData(ctx context.Context, targetURL string) (*Data, error) {
	u, err := url.Parse(targetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid URL format: %s", targetURL)
	}
	if isBlocked(u) {
		slog.Debug("Skipping blocked URL", "url", targetURL)
		return nil, nil
	}

	if cached := f.cached(ctx, targetURL); cached != nil {
		if !cached.OK {
			return nil, nil
		}
		return cached, nil
	}

	data, err := f.fetchFresh(ctx, u)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Debug("Failed to fetch OpenGraph data", "url", targetURL, "error", err)
		f.save(ctx, &Data{URL: targetURL, ExpiresAt: f.now().Add(FailureTTL)})
		return nil, err
	}

	data.OK = true
	data.ExpiresAt = f.now().Add(SuccessTTL)
	f.save(ctx, data)
	return data, nil
}

func (f *Fetcher) cached(ctx context.Context, targetURL string) *Data {
	raw, ok, err := f.kv.Get(ctx, KeyPrefix+targetURL)
	if err != nil {
		slog.Warn("Error reading from cache", "url", targetURL, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var data Data
	if err := json.Unmarshal([]byte(raw), &data); err != nil || !f.now().Before(data.ExpiresAt) {
		return nil
	}
	return &data
}

func (f *Fetcher) save(ctx context.Context, data *Data) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	if err := f.kv.Set(ctx, KeyPrefix+data.URL, string(raw)); err != nil {
		slog.Warn("Failed to cache OpenGraph data", "url", data.URL, "error", err)
	}
}

// pace waits until the per-host delay has passed since the last request to host.
func (f *Fetcher) pace(ctx context.Context, host string) error {
	f.domainMu.Lock()
	wait := time.Duration(0)
	if last, ok := f.lastFetch[host]; ok {
		wait = f.delay - f.now().Sub(last)
	}
	f.lastFetch[host] = f.now().Add(max(wait, 0))
	f.domainMu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fetcher) fetchFresh(ctx context.Context, u *url.URL) (*Data, error) {
	if err := f.pace(ctx, u.Host); err != nil {
		return nil, err
	}

	resp, err := f.client.GetWithContext(ctx, u.String(), map[string]string{
		"Accept":          "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
	})
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer fbhttp.CloseBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}
	contentType := fbhttp.GetContentType(resp)
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml") {
		return nil, fmt.Errorf("%w: %s", ErrNotHTML, contentType)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, maxPageSize), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("failed to detect charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	data := Extract(doc, u)
	data.URL = u.String()
	return data, nil
}

// Extract reads OpenGraph tags, with Twitter card and plain HTML fallbacks.
// Relative image URLs are resolved against base.
func Extract(doc *goquery.Document, base *url.URL) *Data {
	meta := func(attr string, names ...string) string {
		for _, name := range names {
			if v, ok := doc.Find(fmt.Sprintf(`meta[%s=%q]`, attr, name)).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	data := &Data{
		Title:       meta("property", "og:title"),
		Description: meta("property", "og:description"),
		Image:       meta("property", "og:image", "og:image:url", "og:image:secure_url"),
		SiteName:    meta("property", "og:site_name"),
	}
	if data.Title == "" {
		data.Title = meta("name", "twitter:title")
	}
	if data.Title == "" {
		data.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if data.Description == "" {
		data.Description = meta("name", "description", "twitter:description")
	}
	if data.Image == "" {
		data.Image = meta("name", "twitter:image", "twitter:image:src")
	}
	if data.SiteName == "" && base != nil {
		data.SiteName = base.Host
	}

	if data.Image != "" && base != nil {
		if ref, err := url.Parse(data.Image); err == nil {
			data.Image = base.ResolveReference(ref).String()
		} else {
			data.Image = ""
		}
	}
	if u, err := url.Parse(data.Image); data.Image != "" && (err != nil || u.Host == "") {
		data.Image = ""
	}
	return data
}

// FillImages sets ImageURL on articles that have none, using the og:image
// of their page. Groups and order are preserved.
func (f *Fetcher) FillImages(ctx context.Context, list articles.Categorized) articles.Categorized {
	type slot struct{ group, index int }
	var missing []slot
	for g := range list {
		for i, a := range list[g].Articles {
			if a.Image() == "" && a.URL != "" {
				missing = append(missing, slot{g, i})
			}
		}
	}
	if len(missing) == 0 {
		return list
	}

	out := make(articles.Categorized, len(list))
	for g := range list {
		out[g] = articles.Group{Category: list[g].Category, Articles: append([]articles.Article(nil), list[g].Articles...)}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrent)
	for _, s := range missing {
		eg.Go(func() error {
			target := out[s.group].Articles[s.index].URL
			data, err := f.FetchData(egCtx, target)
			if err != nil || data == nil || data.Image == "" {
				return nil
			}
			img := data.Image
			out[s.group].Articles[s.index].ImageURL = &img
			return nil
		})
	}
	_ = eg.Wait()

	slog.Debug("Filled article images", "missing", len(missing))
	return out
}
