// Package server exposes the briefing over a JSON HTTP API and relays
// browser calls to Inoreader.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	"github.com/lepinkainen/feed-brief/internal/auth"
	"github.com/lepinkainen/feed-brief/internal/credentials"
	"github.com/lepinkainen/feed-brief/internal/i18n"
	"github.com/lepinkainen/feed-brief/internal/lang"
	"github.com/lepinkainen/feed-brief/internal/news"
	fbhttp "github.com/lepinkainen/feed-brief/pkg/http"
	"github.com/lepinkainen/feed-brief/pkg/ratelimit"
)

// Deps are the services the API is built on.
type Deps struct {
	News        *news.Orchestrator
	Handshake   *auth.Handshake
	Credentials *credentials.Store
	I18n        *i18n.Service
}

// Options configure the API.
type Options struct {
	AllowedOrigins []string
	// RelayHosts limits which hosts /proxy/ forwards to. "*" allows any host.
	RelayHosts     []string
	RelayClient    *fbhttp.Client
	// RelayLimiter paces relayed calls; requests beyond it get 429.
	RelayLimiter   ratelimit.Limiter
	Language       lang.Language
	FallbackAPIKey string
	RedirectURL    string
}

// Server is the HTTP API.
type Server struct {
	deps   Deps
	opts   Options
	relay  *fbhttp.Client
	pace   ratelimit.Limiter
	flight singleflight.Group
	engine *gin.Engine

	mu       sync.RWMutex
	language lang.Language
	catalog  *i18n.Catalog
}

// New builds the router. The interface language starts at the saved one,
// or opts.Language when nothing is saved.
func New(ctx context.Context, deps Deps, opts Options) *Server {
	relay := opts.RelayClient
	if relay == nil {
		relay = fbhttp.NewClient(nil)
	}
	pace := opts.RelayLimiter
	if pace == nil {
		pace = ratelimit.NoOp{}
	}

	s := &Server{
		deps:     deps,
		opts:     opts,
		relay:    relay,
		pace:     pace,
		language: deps.I18n.Saved(ctx, opts.Language),
		catalog:  i18n.Base(),
	}

	catalog, err := deps.I18n.Catalog(ctx, s.language, s.apiKey(ctx))
	if err != nil {
		slog.Warn("Using base language", "language", s.language, "error", err)
	}
	s.catalog = catalog
	s.language = catalog.Language

	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	config := cors.DefaultConfig()
	if len(s.opts.AllowedOrigins) == 0 || slices.Contains(s.opts.AllowedOrigins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = s.opts.AllowedOrigins
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "AppId", "AppKey"}
	r.Use(cors.New(config))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "state": s.deps.News.State().String()})
	})
	r.GET(auth.CallbackPath, s.handleCallback)
	r.Any("/proxy/", s.handleRelay)

	api := r.Group("/api/v1")
	{
		api.GET("/news", s.handleNews)
		api.POST("/news/refresh", s.handleRefresh)
		api.GET("/news/state", s.handleState)

		api.GET("/chat", s.handleChatHistory)
		api.POST("/chat", s.handleChat)

		api.GET("/auth", s.handleAuthStatus)
		api.POST("/auth/link", s.handleAuthLink)
		api.POST("/auth/complete", s.handleAuthComplete)
		api.DELETE("/auth", s.handleDisconnect)

		api.PUT("/settings/api-key", s.handleSetAPIKey)

		api.GET("/language", s.handleLanguage)
		api.PUT("/language", s.handleSetLanguage)
		api.GET("/translations/:lang", s.handleTranslations)
	}
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting API server", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) apiKey(ctx context.Context) string {
	key, err := s.deps.Credentials.APIKey(ctx)
	if err != nil {
		slog.Warn("Failed to read API key", "error", err)
	}
	if key == "" {
		key = s.opts.FallbackAPIKey
	}
	return key
}

func (s *Server) current() (lang.Language, *i18n.Catalog) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language, s.catalog
}
