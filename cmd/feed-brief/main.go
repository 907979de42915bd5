// Package main provides the CLI entry point for feed-brief.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	kongyaml "github.com/alecthomas/kong-yaml"

	"github.com/lepinkainen/feed-brief/internal/auth"
	"github.com/lepinkainen/feed-brief/internal/config"
	"github.com/lepinkainen/feed-brief/internal/credentials"
	"github.com/lepinkainen/feed-brief/internal/dashboard"
	"github.com/lepinkainen/feed-brief/internal/news"
	"github.com/lepinkainen/feed-brief/internal/server"
	fbhttp "github.com/lepinkainen/feed-brief/pkg/http"
	"github.com/lepinkainen/feed-brief/pkg/ratelimit"
)

// CLI structure
var CLI struct {
	Config   string `help:"Configuration file path" type:"path"`
	EnvFile  string `help:"Environment file to load" default:".env"`
	Debug    bool   `help:"Enable debug logging" default:"false"`
	Language string `help:"Interface and summary language (fa, en, ar)" short:"l"`

	News struct {
		Refresh bool `help:"Ignore the cached summary"`
		JSON    bool `name:"json" help:"Print the categorized articles as JSON"`
	} `cmd:"news" help:"Fetch, summarize and print the news."`

	Browse struct {
		Refresh bool `help:"Ignore the cached summary"`
	} `cmd:"browse" help:"Browse the briefing and chat about it in a terminal dashboard."`

	Serve struct {
		Addr string `help:"Listen address, overrides server.addr"`
	} `cmd:"serve" help:"Serve the JSON API and the CORS relay."`

	Auth struct {
		Link struct {
			ClientID     string `name:"client-id" help:"OAuth client ID, defaults to inoreader.client_id"`
			ClientSecret string `name:"client-secret" help:"OAuth client secret, defaults to inoreader.client_secret"`
		} `cmd:"link" help:"Print an authorization link."`

		Complete struct {
			RedirectURL string `arg:"" name:"redirect-url" help:"Full URL the browser was redirected to"`
		} `cmd:"complete" help:"Finish authorization with the redirect URL."`

		Login struct {
			ClientID     string `name:"client-id" help:"OAuth client ID, defaults to inoreader.client_id"`
			ClientSecret string `name:"client-secret" help:"OAuth client secret, defaults to inoreader.client_secret"`
			NoBrowser    bool   `help:"Print the link instead of opening a browser"`
		} `cmd:"login" help:"Authorize through a local callback listener."`

		Logout struct{} `cmd:"logout" help:"Disconnect and forget stored credentials."`
		Status struct{} `cmd:"status" help:"Show the connection status."`
	} `cmd:"auth" help:"Manage the Inoreader connection."`

	Key struct {
		Set struct {
			APIKey string `arg:"" name:"api-key" optional:"" help:"Gemini API key, read from stdin when omitted"`
		} `cmd:"set" help:"Store the Gemini API key."`
	} `cmd:"key" help:"Manage the Gemini API key."`

	Setup struct{} `cmd:"setup" help:"Interactively configure credentials, feeds and language."`

	Translate struct {
		Lang string `arg:"" help:"Language to translate the interface into"`
	} `cmd:"translate" help:"Translate and cache the interface strings."`

	Feeds struct {
		List    struct{} `cmd:"list" help:"List the feeds that will be briefed."`
		Resolve struct {
			URLs []string `arg:"" name:"urls" help:"Inoreader feed URLs"`
		} `cmd:"resolve" help:"Show the stream ID behind feed URLs."`
		Fetch struct {
			URL   string `arg:"" help:"Inoreader feed URL"`
			Limit int    `help:"Maximum number of items to print" default:"10"`
		} `cmd:"fetch" help:"Fetch one feed and print its items."`
	} `cmd:"feeds" help:"Inspect feeds."`
}

func main() {
	// CLI defaults may come from a YAML file; the application settings
	// themselves live in --config.
	kctx := kong.Parse(&CLI,
		kong.Name("feed-brief"),
		kong.Description("AI news briefings from Inoreader."),
		kong.Configuration(kongyaml.Loader, "~/.feed-brief/cli.yaml"),
	)

	if CLI.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	} else {
		slog.SetLogLoggerLevel(slog.LevelWarn)
	}

	config.LoadDotEnv(CLI.EnvFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, CLI.Config)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.useLanguage(ctx, CLI.Language); err != nil {
		slog.Error("Invalid language", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, a, kctx.Command()); err != nil {
		fmt.Fprintln(os.Stderr, a.describe(err))
		slog.Debug("Command failed", "command", kctx.Command(), "error", err)
		stop()
		a.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app, command string) error {
	switch command {
	case "news":
		return printNews(ctx, a)

	case "browse":
		load := a.news.Load
		if CLI.Browse.Refresh {
			load = a.news.Refresh
		}
		return dashboard.Run(dashboard.Options{
			Load:     load,
			Refresh:  a.news.Refresh,
			Language: a.language,
			Catalog:  a.catalog,
			Open:     auth.OpenBrowser,
		})

	case "serve":
		return serve(ctx, a)

	case "auth link":
		client := clientPair(a, CLI.Auth.Link.ClientID, CLI.Auth.Link.ClientSecret)
		link, err := a.handshake.GenerateAuthLink(ctx, client.ClientID, client.ClientSecret)
		if err != nil {
			return err
		}
		fmt.Println(a.catalog.T("settingsModal.authLinkStep1"))
		fmt.Println(link)
		fmt.Println()
		fmt.Println(a.catalog.T("settingsModal.authLinkStep2"))
		fmt.Printf("  %s auth complete '<url>'\n", os.Args[0])
		return nil

	case "auth complete <redirect-url>":
		if _, err := a.handshake.CompleteFromRedirect(ctx, CLI.Auth.Complete.RedirectURL); err != nil {
			return err
		}
		fmt.Println(a.catalog.T("settingsModal.connectedMessage"))
		return nil

	case "auth login":
		return login(ctx, a)

	case "auth logout":
		if err := a.handshake.Disconnect(ctx); err != nil {
			return err
		}
		fmt.Println("Disconnected.")
		return nil

	case "auth status":
		status, err := a.handshake.Status(ctx)
		if err != nil {
			return err
		}
		return printJSON(status)

	case "key set", "key set <api-key>":
		return setAPIKey(ctx, a, CLI.Key.Set.APIKey)

	case "setup":
		return setup(ctx, a)

	case "translate <lang>":
		if err := a.useLanguage(ctx, CLI.Translate.Lang); err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", a.language.Info().NativeName, a.catalog.T("header.title"))
		return nil

	case "feeds list":
		for _, u := range a.news.Feeds() {
			fmt.Println(u)
		}
		return nil

	case "feeds resolve <urls>":
		return resolveFeeds(CLI.Feeds.Resolve.URLs)

	case "feeds fetch <url>":
		return fetchFeed(ctx, a, CLI.Feeds.Fetch.URL, CLI.Feeds.Fetch.Limit)
	}
	return fmt.Errorf("unknown command %q", command)
}

func printNews(ctx context.Context, a *app) error {
	load := a.news.Load
	if CLI.News.Refresh {
		load = a.news.Refresh
	}
	res, err := load(ctx, a.language)
	if err != nil {
		return err
	}

	if CLI.News.JSON {
		return printJSON(res.Articles)
	}

	for _, g := range res.Articles {
		fmt.Printf("\n== %s ==\n", g.Category)
		for _, art := range g.Articles {
			fmt.Printf("\n* %s\n", art.Title)
			if art.Summary != "" {
				fmt.Printf("  %s\n", art.Summary)
			}
			if art.URL != "" {
				fmt.Printf("  %s\n", art.URL)
			}
		}
	}
	if res.FromCache {
		fmt.Printf("\n%s\n", a.catalog.T("app.cachedAt", "time", res.CachedAt.Local().Format("15:04")))
	}
	for _, ferr := range res.FeedErrors {
		slog.Warn("Feed skipped", "error", ferr)
	}
	return nil
}

func serve(ctx context.Context, a *app) error {
	addr := a.cfg.Server.Addr
	if CLI.Serve.Addr != "" {
		addr = CLI.Serve.Addr
	}

	relayConfig := fbhttp.DefaultConfig()
	relayConfig.Timeout = a.cfg.Server.RelayTimeout
	var relayLimiter ratelimit.Limiter
	if a.cfg.Server.RelayBurst > 0 && a.cfg.Server.RelayRefill > 0 {
		relayLimiter = ratelimit.NewTokenBucket(a.cfg.Server.RelayBurst, a.cfg.Server.RelayRefill)
	}

	srv := server.New(ctx, server.Deps{
		News:        a.news,
		Handshake:   a.handshake,
		Credentials: a.creds,
		I18n:        a.i18n,
	}, server.Options{
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		RelayHosts:     a.cfg.Server.RelayHosts,
		RelayClient:    fbhttp.NewClient(relayConfig),
		RelayLimiter:   relayLimiter,
		Language:       a.language,
		FallbackAPIKey: a.cfg.LLM.APIKey,
		RedirectURL:    a.cfg.Inoreader.RedirectURL,
	})
	return srv.Run(ctx, addr)
}

func clientPair(a *app, id, secret string) credentials.ClientPair {
	if id == "" {
		id = a.cfg.Inoreader.ClientID
	}
	if secret == "" {
		secret = a.cfg.Inoreader.ClientSecret
	}
	return credentials.ClientPair{ClientID: id, ClientSecret: secret}
}

func login(ctx context.Context, a *app) error {
	client := clientPair(a, CLI.Auth.Login.ClientID, CLI.Auth.Login.ClientSecret)

	addr, err := auth.ListenAddr(a.cfg.Inoreader.RedirectURL)
	if err != nil {
		return err
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for the OAuth callback on %s: %w", addr, err)
	}

	open := auth.OpenBrowser
	if CLI.Auth.Login.NoBrowser {
		open = func(link string) error {
			fmt.Println(a.catalog.T("settingsModal.authLinkStep1"))
			fmt.Println(link)
			return nil
		}
	}

	fmt.Println(a.catalog.T("app.authMessage"))
	creds, err := a.handshake.Login(ctx, client, ln, open)
	if err != nil {
		return err
	}
	fmt.Println(a.catalog.T("settingsModal.connectedMessage"))
	slog.Info("Connected to Inoreader", "client_id", creds.ClientID, "expires_at", creds.Expiry())
	return nil
}

func setAPIKey(ctx context.Context, a *app, key string) error {
	if key == "" {
		fmt.Fprint(os.Stderr, a.catalog.T("settingsModal.geminiApiKeyLabel")+": ")
		if _, err := fmt.Fscanln(os.Stdin, &key); err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return news.ErrMissingAPIKey
	}
	if err := a.creds.SetAPIKey(ctx, key); err != nil {
		return err
	}
	a.news.Invalidate()
	fmt.Println("API key saved.")
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
