package i18n

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"testing"

	"github.com/lepinkainen/feed-brief/internal/lang"
	"github.com/lepinkainen/feed-brief/pkg/kvstore"
)

// fakeTranslator prefixes every value and keeps placeholders and markers intact.
type fakeTranslator struct {
	calls int
	err   error
	edit  func(map[string]string)
}

func (f *fakeTranslator) TranslateTable(_ context.Context, apiKey string, table map[string]string, from, to lang.Language) (map[string]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]string, len(table))
	for k, v := range table {
		out[k] = string(to) + ":" + v
	}
	if f.edit != nil {
		f.edit(out)
	}
	return out, nil
}

func TestService_BaseLanguageNeedsNoTranslation(t *testing.T) {
	tr := &fakeTranslator{}
	s := NewService(kvstore.NewMemory(), tr)

	c, err := s.Catalog(context.Background(), lang.Farsi, "")
	if err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}
	if c.Language != lang.Farsi || tr.calls != 0 {
		t.Errorf("Catalog(fa) = %q after %d calls", c.Language, tr.calls)
	}
}

func TestService_TranslatesAndCaches(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	tr := &fakeTranslator{}
	s := NewService(kv, tr)

	c, err := s.Catalog(ctx, lang.English, "key")
	if err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}
	if c.Language != lang.English {
		t.Errorf("Language = %q", c.Language)
	}
	if got := c.T("app.error"); got != "en:"+Base().Strings["app.error"] {
		t.Errorf("T(app.error) = %q", got)
	}
	if _, ok, _ := kv.Get(ctx, CacheKey(lang.English)); !ok {
		t.Fatal("translation not cached")
	}

	if _, err := s.Catalog(ctx, lang.English, ""); err != nil {
		t.Fatalf("cached Catalog() error = %v", err)
	}
	if tr.calls != 1 {
		t.Errorf("translator called %d times, want 1", tr.calls)
	}
}

func TestService_CorruptCacheIsRefetched(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	_ = kv.Set(ctx, CacheKey(lang.Arabic), "{broken")
	tr := &fakeTranslator{}
	s := NewService(kv, tr)

	c, err := s.Catalog(ctx, lang.Arabic, "key")
	if err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}
	if c.Language != lang.Arabic || tr.calls != 1 {
		t.Errorf("got %q after %d calls", c.Language, tr.calls)
	}

	raw, _, _ := kv.Get(ctx, CacheKey(lang.Arabic))
	var table map[string]string
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		t.Errorf("cache not replaced with valid JSON: %v", err)
	}
}

func TestService_StaleCacheMissingKeysIsDropped(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	partial := maps.Clone(Base().Strings)
	delete(partial, "app.error")
	data, _ := json.Marshal(partial)
	_ = kv.Set(ctx, CacheKey(lang.English), string(data))

	s := NewService(kv, &fakeTranslator{})
	c, err := s.Catalog(ctx, lang.English, "")
	if !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("Catalog() error = %v, want ErrNoAPIKey", err)
	}
	if c.Language != lang.Base {
		t.Errorf("fallback language = %q, want base", c.Language)
	}
	if _, ok, _ := kv.Get(ctx, CacheKey(lang.English)); ok {
		t.Error("invalid cached table should be deleted")
	}
}

func TestService_Failures(t *testing.T) {
	tests := []struct {
		name    string
		tr      *fakeTranslator
		wantErr error
	}{
		{"translator error", &fakeTranslator{err: errors.New("quota")}, nil},
		{"invalid output", &fakeTranslator{edit: func(m map[string]string) { m["app.summarizeError"] = "no placeholder" }}, ErrInvalidTranslation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			kv := kvstore.NewMemory()
			s := NewService(kv, tt.tr)

			c, err := s.Catalog(ctx, lang.English, "key")
			if err == nil {
				t.Fatal("Catalog() should fail")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Catalog() error = %v, want %v", err, tt.wantErr)
			}
			if c == nil || c.Language != lang.Base {
				t.Errorf("Catalog() should fall back to the base catalog, got %+v", c)
			}
			if kv.Len() != 0 {
				t.Error("a failed translation must not be cached")
			}
		})
	}
}

func TestService_SwitchPersistsOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := NewService(kvstore.NewMemory(), &fakeTranslator{})

	if got := s.Saved(ctx, lang.Arabic); got != lang.Arabic {
		t.Errorf("Saved() on empty store = %q", got)
	}

	if _, err := s.Switch(ctx, lang.English, "key"); err != nil {
		t.Fatalf("Switch() error = %v", err)
	}
	if got := s.Saved(ctx, lang.Arabic); got != lang.English {
		t.Errorf("Saved() = %q, want en", got)
	}

	catalog, err := s.Switch(ctx, lang.Arabic, "")
	if !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("Switch() without key error = %v", err)
	}
	if catalog.Language != lang.Base {
		t.Errorf("catalog after failed switch = %q, want base", catalog.Language)
	}
	if got := s.Saved(ctx, lang.Arabic); got != lang.English {
		t.Errorf("Saved() after failed switch = %q, want en kept", got)
	}
}
