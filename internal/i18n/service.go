package i18n

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lepinkainen/feed-brief/internal/lang"
	"github.com/lepinkainen/feed-brief/internal/llm"
	"github.com/lepinkainen/feed-brief/pkg/kvstore"
)

// KeyLanguage stores the selected interface language.
const KeyLanguage = "app_language"

// ErrNoAPIKey means a translation was needed but no API key is configured.
var ErrNoAPIKey = errors.New("an API key is required for translations")

// CacheKey is where the translated table for l is cached.
func CacheKey(l lang.Language) string {
	return "translations-" + string(l)
}

// Service resolves catalogs, translating and caching them on demand.
type Service struct {
	kv         kvstore.Store
	translator llm.TableTranslator
}

// NewService creates a Service.
func NewService(kv kvstore.Store, translator llm.TableTranslator) *Service {
	return &Service{kv: kv, translator: translator}
}

// Catalog returns the catalog for l. The base language never needs a
// translation. A cached table is used when it still matches the base table;
// otherwise it is dropped and a new one is requested. On any failure the
// base catalog is returned together with the error.
func (s *Service) Catalog(ctx context.Context, l lang.Language, apiKey string) (*Catalog, error) {
	base := Base()
	if l == lang.Base {
		return base, nil
	}

	if cached := s.cached(ctx, l, base); cached != nil {
		return cached, nil
	}

	if apiKey == "" {
		return base, ErrNoAPIKey
	}

	table, err := s.translator.TranslateTable(ctx, apiKey, base.Strings, lang.Base, l)
	if err != nil {
		return base, fmt.Errorf("failed to translate to %s: %w", l, err)
	}
	if err := Validate(base.Strings, table); err != nil {
		return base, err
	}

	data, err := json.Marshal(table)
	if err != nil {
		return base, fmt.Errorf("failed to encode translation: %w", err)
	}
	if err := s.kv.Set(ctx, CacheKey(l), string(data)); err != nil {
		slog.Warn("Failed to cache translation", "language", l, "error", err)
	}

	slog.Debug("Translated string table", "language", l, "keys", len(table))
	return &Catalog{Language: l, Strings: table}, nil
}

func (s *Service) cached(ctx context.Context, l lang.Language, base *Catalog) *Catalog {
	raw, ok, err := s.kv.Get(ctx, CacheKey(l))
	if err != nil {
		slog.Warn("Failed to read cached translation", "language", l, "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var table map[string]string
	err = json.Unmarshal([]byte(raw), &table)
	if err == nil {
		err = Validate(base.Strings, table)
	}
	if err != nil {
		slog.Warn("Discarding cached translation", "language", l, "error", err)
		if delErr := s.kv.Delete(ctx, CacheKey(l)); delErr != nil {
			slog.Error("Failed to delete cached translation", "language", l, "error", delErr)
		}
		return nil
	}

	return &Catalog{Language: l, Strings: table}
}

// Saved returns the persisted language, or fallback when none is stored.
func (s *Service) Saved(ctx context.Context, fallback lang.Language) lang.Language {
	raw, ok, err := s.kv.Get(ctx, KeyLanguage)
	if err != nil || !ok {
		return fallback
	}
	l, err := lang.Parse(raw)
	if err != nil {
		return fallback
	}
	return l
}

// Switch resolves the catalog for l and persists l once it is applied. After
// a failure the base catalog is returned and the saved language is left as is.
func (s *Service) Switch(ctx context.Context, l lang.Language, apiKey string) (*Catalog, error) {
	catalog, err := s.Catalog(ctx, l, apiKey)
	if err != nil {
		return catalog, err
	}
	if setErr := s.kv.Set(ctx, KeyLanguage, string(catalog.Language)); setErr != nil {
		slog.Warn("Failed to persist language", "error", setErr)
	}
	return catalog, nil
}
