package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lepinkainen/feed-brief/internal/auth"
	"github.com/lepinkainen/feed-brief/internal/config"
	"github.com/lepinkainen/feed-brief/internal/credentials"
	"github.com/lepinkainen/feed-brief/internal/freshness"
	"github.com/lepinkainen/feed-brief/internal/i18n"
	"github.com/lepinkainen/feed-brief/internal/inoreader"
	"github.com/lepinkainen/feed-brief/internal/lang"
	"github.com/lepinkainen/feed-brief/internal/llm"
	"github.com/lepinkainen/feed-brief/internal/news"
	"github.com/lepinkainen/feed-brief/internal/opengraph"
	fbhttp "github.com/lepinkainen/feed-brief/pkg/http"
	"github.com/lepinkainen/feed-brief/pkg/kvstore"
	"github.com/lepinkainen/feed-brief/pkg/ratelimit"
)

// app holds every service a command may need.
type app struct {
	cfg       *config.Config
	kv        kvstore.Store
	creds     *credentials.Store
	tokens    *inoreader.TokenExchanger
	fetcher   *inoreader.Fetcher
	gemini    *llm.Gemini
	news      *news.Orchestrator
	handshake *auth.Handshake
	i18n      *i18n.Service

	language lang.Language
	catalog  *i18n.Catalog
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		return nil, err
	}
	kv, err := kvstore.Open(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", storeCfg.Driver, err)
	}

	httpConfig := fbhttp.DefaultConfig()
	httpConfig.Timeout = cfg.Inoreader.Timeout
	client := fbhttp.NewClient(httpConfig)

	a := &app{cfg: cfg, kv: kv}
	a.creds = credentials.NewStore(kv)
	a.tokens = inoreader.NewTokenExchanger(a.creds, cfg.Endpoints(), cfg.Inoreader.RedirectURL, client.HTTPClient())
	a.fetcher = inoreader.NewFetcher(client, cfg.Endpoints(), ratelimit.New(cfg.Inoreader.RequestDelay))
	a.fetcher.SetItemCount(cfg.Inoreader.ItemCount)
	a.gemini = llm.NewGemini(llm.GeminiConfig{
		Model:   cfg.LLM.Model,
		BaseURL: cfg.LLM.BaseURL,
		Limiter: ratelimit.New(cfg.LLM.MinInterval),
	})

	deps := news.Deps{
		Credentials: a.creds,
		Tokens:      a.tokens,
		Fetcher:     a.fetcher,
		Cache:       freshness.New(kv, cfg.Cache.Duration, nil),
		Summarizer:  a.gemini,
		Chats:       a.gemini,
	}
	if cfg.Images.FillMissing {
		pageConfig := fbhttp.DefaultConfig()
		pageConfig.Timeout = cfg.Images.Timeout
		pageConfig.MaxRetries = 1
		deps.Images = opengraph.NewFetcher(fbhttp.NewClient(pageConfig), kv)
	}

	a.news = news.New(deps, news.Options{
		Feeds:          cfg.FeedURLs(ctx),
		FallbackAPIKey: cfg.LLM.APIKey,
		OnStateChange: func(s news.State) {
			slog.Debug("News state changed", "state", s)
		},
	})
	a.handshake = auth.NewHandshake(a.creds, a.tokens, a.news.Invalidate)
	a.i18n = i18n.NewService(kv, a.gemini)
	return a, nil
}

func (a *app) Close() {
	if err := a.kv.Close(); err != nil {
		slog.Warn("Failed to close store", "error", err)
	}
}

// apiKey returns the stored LLM key or the configured fallback.
func (a *app) apiKey(ctx context.Context) string {
	key, err := a.creds.APIKey(ctx)
	if err != nil {
		slog.Warn("Failed to read API key", "error", err)
	}
	if key == "" {
		key = a.cfg.LLM.APIKey
	}
	return key
}

// useLanguage picks the interface language: the requested one when given,
// else the saved one, else the configured default. Translation failures fall
// back to the base language with a warning.
func (a *app) useLanguage(ctx context.Context, requested string) error {
	var (
		catalog *i18n.Catalog
		err     error
	)
	if requested != "" {
		l, parseErr := lang.Parse(requested)
		if parseErr != nil {
			return parseErr
		}
		catalog, err = a.i18n.Switch(ctx, l, a.apiKey(ctx))
	} else {
		catalog, err = a.i18n.Catalog(ctx, a.i18n.Saved(ctx, a.cfg.DefaultLanguage()), a.apiKey(ctx))
	}
	if err != nil {
		slog.Warn("Using base language", "error", err)
	}
	a.catalog = catalog
	a.language = catalog.Language
	return nil
}

// describe renders err for the terminal in the current language.
func (a *app) describe(err error) string {
	catalog := a.catalog
	if catalog == nil {
		catalog = i18n.Base()
	}
	return fmt.Sprintf("%s: %s", catalog.T("app.error"), i18n.Plain(i18n.Describe(catalog, err)))
}
