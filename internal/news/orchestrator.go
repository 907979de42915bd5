package news

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lepinkainen/feed-brief/internal/articles"
	"github.com/lepinkainen/feed-brief/internal/credentials"
	"github.com/lepinkainen/feed-brief/internal/freshness"
	"github.com/lepinkainen/feed-brief/internal/inoreader"
	"github.com/lepinkainen/feed-brief/internal/lang"
	"github.com/lepinkainen/feed-brief/internal/llm"
)

// FeedFetcher returns one feed envelope per call.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string, creds credentials.Credentials) (string, error)
}

// TokenRefresher renews an access token. Implementations persist the
// result and clear stored credentials on failure.
type TokenRefresher interface {
	Refresh(ctx context.Context, creds credentials.Credentials) (*credentials.Credentials, error)
}

// ImageFiller fills in images the summarizer left empty. It never fails;
// articles it cannot complete are returned unchanged.
type ImageFiller interface {
	FillImages(ctx context.Context, list articles.Categorized) articles.Categorized
}

// Deps are the collaborators of an Orchestrator. Images is optional.
type Deps struct {
	Credentials *credentials.Store
	Tokens      TokenRefresher
	Fetcher     FeedFetcher
	Cache       *freshness.Gate
	Summarizer  llm.Summarizer
	Chats       llm.ChatStarter
	Images      ImageFiller
}

// Options tune an Orchestrator.
type Options struct {
	Feeds []string
	// FallbackAPIKey is used when no key has been stored.
	FallbackAPIKey string
	OnStateChange  func(State)
	Now            func() time.Time
}

// Result is the outcome of a successful run.
type Result struct {
	Articles   articles.Categorized
	FromCache  bool
	CachedAt   time.Time
	Chat       *Chat
	Greeting   string
	ChatErr    error
	FeedErrors []error
	Generation uint64
}

// Orchestrator drives one briefing at a time through the State machine.
type Orchestrator struct {
	deps     Deps
	feeds    []string
	fallback string
	hook     func(State)
	now      func() time.Time

	generation atomic.Uint64

	mu      sync.RWMutex
	state   State
	lastErr error
	current *Result
}

// New creates an Orchestrator in the Idle state.
func New(deps Deps, opts Options) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		deps:     deps,
		feeds:    append([]string(nil), opts.Feeds...),
		fallback: strings.TrimSpace(opts.FallbackAPIKey),
		hook:     opts.OnStateChange,
		now:      now,
	}
}

// Feeds returns the configured feed URLs.
func (o *Orchestrator) Feeds() []string {
	return append([]string(nil), o.feeds...)
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Invalidate makes every run in flight stale. Call it when the language or
// the credentials change.
func (o *Orchestrator) Invalidate() {
	o.generation.Add(1)
}

func (o *Orchestrator) isCurrent(gen uint64) bool {
	return o.generation.Load() == gen
}

func (o *Orchestrator) setState(gen uint64, s State) {
	if !o.isCurrent(gen) {
		return
	}
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	slog.Debug("News state changed", "state", s.String(), "generation", gen)
	if o.hook != nil {
		o.hook(s)
	}
}

// Load serves the cached briefing when it is fresh and runs a full refresh
// otherwise.
func (o *Orchestrator) Load(ctx context.Context, language lang.Language) (*Result, error) {
	return o.run(ctx, language, true)
}

// Refresh ignores the cache and runs the full fetch and summarize cycle.
func (o *Orchestrator) Refresh(ctx context.Context, language lang.Language) (*Result, error) {
	return o.run(ctx, language, false)
}

func (o *Orchestrator) run(ctx context.Context, language lang.Language, useCache bool) (*Result, error) {
	gen := o.generation.Add(1)

	apiKey, creds, err := o.preconditions(ctx)
	if err != nil {
		o.setState(gen, Idle)
		return nil, err
	}

	if useCache {
		o.setState(gen, CheckingCache)
		cached, err := o.deps.Cache.LoadFresh(ctx)
		if err != nil {
			slog.Warn("Failed to read news cache", "error", err)
		}
		if cached != nil {
			o.setState(gen, CacheHit)
			res := &Result{
				Articles:  cached.Articles,
				FromCache: true,
				CachedAt:  cached.Time(),
			}
			return o.finish(ctx, gen, apiKey, language, res)
		}
	}

	res, err := o.collect(ctx, gen, apiKey, *creds, language)
	if err != nil {
		if !o.isCurrent(gen) {
			slog.Debug("Discarding failed stale run", "generation", gen, "error", err)
			return nil, ErrSuperseded
		}
		if clearErr := o.deps.Cache.Clear(ctx); clearErr != nil {
			slog.Error("Failed to clear news cache", "error", clearErr)
		}
		o.fail(gen, err)
		return nil, err
	}

	if !o.isCurrent(gen) {
		slog.Debug("Discarding stale run", "generation", gen)
		return nil, ErrSuperseded
	}
	saved, err := o.deps.Cache.Save(ctx, res.Articles)
	if err != nil {
		slog.Error("Failed to cache news summary", "error", err)
	} else {
		res.CachedAt = saved.Time()
	}

	return o.finish(ctx, gen, apiKey, language, res)
}

func (o *Orchestrator) preconditions(ctx context.Context) (string, *credentials.Credentials, error) {
	apiKey, err := o.deps.Credentials.APIKey(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read API key: %w", err)
	}
	if apiKey == "" {
		apiKey = o.fallback
	}
	if apiKey == "" {
		return "", nil, ErrMissingAPIKey
	}

	creds, err := o.deps.Credentials.Load(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	if !creds.HasToken() {
		return "", nil, ErrMissingCredentials
	}
	return apiKey, creds, nil
}

// collect fetches every feed and summarizes the joined envelopes.
func (o *Orchestrator) collect(ctx context.Context, gen uint64, apiKey string, creds credentials.Credentials, language lang.Language) (*Result, error) {
	o.setState(gen, Fetching)

	if creds.Expired(o.now()) {
		slog.Info("Access token expired, refreshing before fetch", "expired_at", creds.Expiry())
		renewed, err := o.refresh(ctx, gen, creds)
		if err != nil {
			return nil, err
		}
		creds = *renewed
	}

	var (
		blobs    []string
		feedErrs []error
	)
	for _, feedURL := range o.feeds {
		blob, err := o.deps.Fetcher.Fetch(ctx, feedURL, creds)
		if err == nil {
			blobs = append(blobs, blob)
			continue
		}

		if errors.Is(err, inoreader.ErrAuthFailure) {
			slog.Warn("Feed rejected the access token, refreshing", "feed", feedURL)
			renewed, rerr := o.refresh(ctx, gen, creds)
			if rerr != nil {
				return nil, rerr
			}
			creds = *renewed

			blob, err = o.deps.Fetcher.Fetch(ctx, feedURL, creds)
			if err != nil {
				return nil, fmt.Errorf("feed %s failed after token refresh: %w", feedURL, err)
			}
			blobs = append(blobs, blob)
			continue
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("Skipping feed", "feed", feedURL, "error", err)
		feedErrs = append(feedErrs, err)
	}

	if len(blobs) == 0 {
		if len(feedErrs) == 0 {
			return nil, ErrAllFeedsFailed
		}
		return nil, fmt.Errorf("%w: %w", ErrAllFeedsFailed, errors.Join(feedErrs...))
	}

	joined := strings.Join(blobs, Separator)
	if strings.TrimSpace(joined) == "" {
		return nil, ErrEmptyFeed
	}

	o.setState(gen, Summarizing)
	list, err := o.deps.Summarizer.Summarize(ctx, apiKey, joined, language)
	if err != nil {
		var se *llm.SummarizerError
		if !errors.As(err, &se) {
			err = &llm.SummarizerError{Err: err}
		}
		return nil, err
	}

	slog.Debug("Summarized feeds", "feeds", len(blobs), "skipped", len(feedErrs), "articles", list.Count())
	if o.deps.Images != nil {
		list = o.deps.Images.FillImages(ctx, list)
	}
	return &Result{Articles: list, FeedErrors: feedErrs}, nil
}

func (o *Orchestrator) refresh(ctx context.Context, gen uint64, creds credentials.Credentials) (*credentials.Credentials, error) {
	o.setState(gen, RefreshingToken)
	renewed, err := o.deps.Tokens.Refresh(ctx, creds)
	if err != nil {
		return nil, err
	}
	o.setState(gen, Fetching)
	return renewed, nil
}

// finish marks the run Ready and opens the chat. A chat failure is kept on
// the result.
func (o *Orchestrator) finish(ctx context.Context, gen uint64, apiKey string, language lang.Language, res *Result) (*Result, error) {
	if !o.isCurrent(gen) {
		return nil, ErrSuperseded
	}
	res.Generation = gen
	o.setState(gen, Ready)

	if o.deps.Chats != nil {
		session, greeting, err := o.deps.Chats.StartChat(ctx, apiKey, res.Articles, language)
		if err != nil {
			var ce *llm.ChatError
			if !errors.As(err, &ce) {
				err = &llm.ChatError{Err: err}
			}
			slog.Warn("Failed to start chat", "error", err)
			res.ChatErr = err
		} else {
			res.Chat = newChat(session, greeting)
			res.Greeting = greeting
		}
	}

	if !o.isCurrent(gen) {
		return nil, ErrSuperseded
	}
	o.mu.Lock()
	o.current = res
	o.lastErr = nil
	o.mu.Unlock()
	return res, nil
}

func (o *Orchestrator) fail(gen uint64, err error) {
	slog.Error("News run failed", "error", err)
	o.mu.Lock()
	o.lastErr = err
	o.current = nil
	o.mu.Unlock()
	o.setState(gen, Failed)
}

// Session is a snapshot of what a surface should display.
type Session struct {
	State  State
	Result *Result
	Err    error
}

// Session returns the current snapshot.
func (o *Orchestrator) Session() Session {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Session{State: o.state, Result: o.current, Err: o.lastErr}
}

// Chat returns the chat of the current result, which may be nil.
func (o *Orchestrator) Chat() *Chat {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.current == nil {
		return nil
	}
	return o.current.Chat
}

// Reset drops the current result and returns to Idle, for example after
// a disconnect.
func (o *Orchestrator) Reset() {
	gen := o.generation.Add(1)
	o.mu.Lock()
	o.current = nil
	o.lastErr = nil
	o.mu.Unlock()
	o.setState(gen, Idle)
}
