// Package freshness decides whether cached summaries can be shown without refetching.
package freshness

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lepinkainen/feed-brief/internal/articles"
	"github.com/lepinkainen/feed-brief/pkg/kvstore"
)

const (
	// Key is where the cached summary is stored.
	Key = "news_cache_data"
	// DefaultDuration is how long a summary stays usable.
	DefaultDuration = 30 * time.Minute
)

// CachedSummary is a stored summarization result.
type CachedSummary struct {
	Articles articles.Categorized `json:"articles"`
	// Timestamp is epoch milliseconds of the write.
	Timestamp int64 `json:"timestamp"`
}

// Time returns Timestamp as a time.
func (c *CachedSummary) Time() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// IsFresh reports whether cached is non-nil and younger than duration.
func IsFresh(cached *CachedSummary, now time.Time, duration time.Duration) bool {
	if cached == nil {
		return false
	}
	return now.UnixMilli()-cached.Timestamp < duration.Milliseconds()
}

// Gate reads and writes the cached summary.
type Gate struct {
	kv       kvstore.Store
	duration time.Duration
	now      func() time.Time
}

// New creates a Gate. A zero duration uses DefaultDuration and a nil clock uses time.Now.
func New(kv kvstore.Store, duration time.Duration, now func() time.Time) *Gate {
	if duration <= 0 {
		duration = DefaultDuration
	}
	if now == nil {
		now = time.Now
	}
	return &Gate{kv: kv, duration: duration, now: now}
}

// Duration returns the freshness window.
func (g *Gate) Duration() time.Duration {
	return g.duration
}

// Load returns the cached summary or nil. Unreadable entries are deleted
// and reported as absent.
func (g *Gate) Load(ctx context.Context) (*CachedSummary, error) {
	raw, ok, err := g.kv.Get(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached summary: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var cached CachedSummary
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		slog.Warn("Discarding unreadable cached summary", "error", err)
		if delErr := g.kv.Delete(ctx, Key); delErr != nil {
			slog.Error("Failed to delete cached summary", "error", delErr)
		}
		return nil, nil
	}
	return &cached, nil
}

// LoadFresh returns the cached summary only when it is still fresh.
func (g *Gate) LoadFresh(ctx context.Context) (*CachedSummary, error) {
	cached, err := g.Load(ctx)
	if err != nil || !IsFresh(cached, g.now(), g.duration) {
		return nil, err
	}
	return cached, nil
}

// Save overwrites the cache with articles stamped now.
func (g *Gate) Save(ctx context.Context, list articles.Categorized) (*CachedSummary, error) {
	cached := &CachedSummary{Articles: list, Timestamp: g.now().UnixMilli()}

	data, err := json.Marshal(cached)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cached summary: %w", err)
	}
	if err := g.kv.Set(ctx, Key, string(data)); err != nil {
		return nil, fmt.Errorf("failed to save cached summary: %w", err)
	}
	return cached, nil
}

// Clear removes the cached summary.
func (g *Gate) Clear(ctx context.Context) error {
	if err := g.kv.Delete(ctx, Key); err != nil {
		return fmt.Errorf("failed to clear cached summary: %w", err)
	}
	return nil
}
