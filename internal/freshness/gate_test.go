package freshness

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/lepinkainen/feed-brief/internal/articles"
	"github.com/lepinkainen/feed-brief/pkg/kvstore"
	"github.com/lepinkainen/feed-brief/pkg/testutil"
)

var start = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sample() articles.Categorized {
	return articles.GroupByCategory([]articles.Article{
		{Title: "One", URL: "https://x/1", Category: "Tech"},
		{Title: "Two", URL: "https://x/2", Category: "World"},
	})
}

func TestIsFresh(t *testing.T) {
	tests := []struct {
		name   string
		cached *CachedSummary
		now    time.Time
		want   bool
	}{
		{"nil", nil, start, false},
		{"just written", &CachedSummary{Timestamp: start.UnixMilli()}, start, true},
		{"29 minutes", &CachedSummary{Timestamp: start.UnixMilli()}, start.Add(29 * time.Minute), true},
		{"exactly 30 minutes", &CachedSummary{Timestamp: start.UnixMilli()}, start.Add(30 * time.Minute), false},
		{"an hour", &CachedSummary{Timestamp: start.UnixMilli()}, start.Add(time.Hour), false},
		{"timestamp in the future", &CachedSummary{Timestamp: start.Add(time.Minute).UnixMilli()}, start, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFresh(tt.cached, tt.now, DefaultDuration); got != tt.want {
				t.Errorf("IsFresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGate_SaveLoad(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock(start)
	g := New(kvstore.NewMemory(), 0, clock.Now)

	if got, err := g.Load(ctx); err != nil || got != nil {
		t.Fatalf("Load() on empty store = %v, %v", got, err)
	}

	saved, err := g.Save(ctx, sample())
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if saved.Timestamp != start.UnixMilli() {
		t.Errorf("Timestamp = %d, want %d", saved.Timestamp, start.UnixMilli())
	}

	loaded, err := g.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(loaded.Articles, sample()) {
		t.Errorf("Load() articles = %+v, want %+v", loaded.Articles, sample())
	}
	if !loaded.Time().Equal(start) {
		t.Errorf("Time() = %v, want %v", loaded.Time(), start)
	}

	if fresh, _ := g.LoadFresh(ctx); fresh == nil {
		t.Error("LoadFresh() right after Save() should return the summary")
	}

	clock.Advance(31 * time.Minute)
	if fresh, _ := g.LoadFresh(ctx); fresh != nil {
		t.Error("LoadFresh() after expiry should return nil")
	}
	if stale, _ := g.Load(ctx); stale == nil {
		t.Error("Load() should still return a stale entry")
	}
}

func TestGate_LoadCorruptDeletes(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	_ = kv.Set(ctx, Key, `{"articles": [1,2,3], "timestamp": "yesterday"}`)

	g := New(kv, 0, nil)
	got, err := g.Load(ctx)
	if err != nil || got != nil {
		t.Fatalf("Load() = %v, %v; want nil, nil", got, err)
	}
	if _, ok, _ := kv.Get(ctx, Key); ok {
		t.Error("corrupt cache entry should be deleted")
	}
}

func TestGate_Clear(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	g := New(kv, time.Minute, nil)

	if g.Duration() != time.Minute {
		t.Errorf("Duration() = %v", g.Duration())
	}
	if _, err := g.Save(ctx, sample()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := g.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if kv.Len() != 0 {
		t.Error("Clear() left the entry behind")
	}
	if err := g.Clear(ctx); err != nil {
		t.Errorf("Clear() on empty store error = %v", err)
	}
}
