package news

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lepinkainen/feed-brief/internal/articles"
	"github.com/lepinkainen/feed-brief/internal/credentials"
	"github.com/lepinkainen/feed-brief/internal/freshness"
	"github.com/lepinkainen/feed-brief/internal/inoreader"
	"github.com/lepinkainen/feed-brief/internal/lang"
	"github.com/lepinkainen/feed-brief/internal/llm"
	"github.com/lepinkainen/feed-brief/pkg/kvstore"
	"github.com/lepinkainen/feed-brief/pkg/testutil"
)

var start = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fetchCall struct {
	feed  string
	token string
}

type fakeFetcher struct {
	mu     sync.Mutex
	calls  []fetchCall
	handle func(feed, token string) (string, error)
}

func (f *fakeFetcher) Fetch(_ context.Context, feedURL string, creds credentials.Credentials) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{feedURL, creds.Token})
	f.mu.Unlock()
	return f.handle(feedURL, creds.Token)
}

type fakeRefresher struct {
	calls int
	err   error
}

func (r *fakeRefresher) Refresh(_ context.Context, creds credentials.Credentials) (*credentials.Credentials, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	renewed := creds.WithToken(fmt.Sprintf("fresh-%d", r.calls), "", time.Hour, start)
	return &renewed, nil
}

type fakeSummarizer struct {
	inputs []string
	err    error
	hook   func()
}

func (s *fakeSummarizer) Summarize(_ context.Context, apiKey, text string, _ lang.Language) (articles.Categorized, error) {
	s.inputs = append(s.inputs, text)
	if s.hook != nil {
		s.hook()
	}
	if s.err != nil {
		return nil, s.err
	}
	return articles.GroupByCategory([]articles.Article{
		{Title: "Summary of " + apiKey, URL: "https://x/1", Category: "Tech"},
	}), nil
}

type fakeSession struct {
	err error
}

func (s *fakeSession) SendMessage(_ context.Context, text string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "echo: " + text, nil
}

type fakeChats struct {
	calls int
	err   error
}

func (c *fakeChats) StartChat(_ context.Context, _ string, _ articles.Categorized, l lang.Language) (llm.ChatSession, string, error) {
	c.calls++
	if c.err != nil {
		return nil, "", c.err
	}
	return &fakeSession{}, llm.Greeting(l), nil
}

type harness struct {
	kv         *kvstore.Memory
	store      *credentials.Store
	gate       *freshness.Gate
	clock      *testutil.Clock
	fetcher    *fakeFetcher
	refresher  *fakeRefresher
	summarizer *fakeSummarizer
	chats      *fakeChats
	states     []State
	o          *Orchestrator
}

func newHarness(t *testing.T, feeds ...string) *harness {
	t.Helper()
	ctx := context.Background()

	h := &harness{
		kv:         kvstore.NewMemory(),
		clock:      testutil.NewClock(start),
		fetcher:    &fakeFetcher{handle: func(feed, _ string) (string, error) { return "<rss>" + feed + "</rss>", nil }},
		refresher:  &fakeRefresher{},
		summarizer: &fakeSummarizer{},
		chats:      &fakeChats{},
	}
	h.store = credentials.NewStore(h.kv)
	h.gate = freshness.New(h.kv, freshness.DefaultDuration, h.clock.Now)

	if err := h.store.SetAPIKey(ctx, "key"); err != nil {
		t.Fatal(err)
	}
	creds := credentials.Credentials{ClientID: "id", ClientSecret: "secret"}.
		WithToken("stale", "refresh", time.Hour, start)
	if err := h.store.Save(ctx, creds); err != nil {
		t.Fatal(err)
	}

	h.o = New(Deps{
		Credentials: h.store,
		Tokens:      h.refresher,
		Fetcher:     h.fetcher,
		Cache:       h.gate,
		Summarizer:  h.summarizer,
		Chats:       h.chats,
	}, Options{
		Feeds:         feeds,
		Now:           h.clock.Now,
		OnStateChange: func(s State) { h.states = append(h.states, s) },
	})
	return h
}

func (h *harness) seedCache(t *testing.T, at time.Time) {
	t.Helper()
	g := freshness.New(h.kv, freshness.DefaultDuration, func() time.Time { return at })
	if _, err := g.Save(context.Background(), articles.GroupByCategory([]articles.Article{
		{Title: "Cached", URL: "https://x/cached", Category: "World"},
	})); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) cached(t *testing.T) *freshness.CachedSummary {
	t.Helper()
	c, err := h.gate.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func httpFailure(feed string) error {
	return &inoreader.FetchError{Kind: inoreader.ErrHTTPFailure, FeedURL: feed, Status: 500}
}

func authFailure(feed string) error {
	return &inoreader.FetchError{Kind: inoreader.ErrAuthFailure, FeedURL: feed, Status: 401}
}

func TestRun_ConfigurationMissing(t *testing.T) {
	ctx := context.Background()

	t.Run("no API key", func(t *testing.T) {
		h := newHarness(t, "a")
		h.seedCache(t, start.Add(-time.Hour))
		if err := h.store.SetAPIKey(ctx, ""); err != nil {
			t.Fatal(err)
		}

		_, err := h.o.Refresh(ctx, lang.English)
		if !errors.Is(err, ErrMissingAPIKey) || !errors.Is(err, ErrConfigurationMissing) {
			t.Fatalf("Refresh() error = %v, want ErrMissingAPIKey", err)
		}
		if len(h.fetcher.calls) != 0 {
			t.Errorf("fetcher called %d times", len(h.fetcher.calls))
		}
		if h.cached(t) == nil {
			t.Error("cache was cleared by a precondition failure")
		}
		if got := h.o.State(); got != Idle {
			t.Errorf("State() = %v, want idle", got)
		}
	})

	t.Run("no token", func(t *testing.T) {
		h := newHarness(t, "a")
		if err := h.store.Save(ctx, credentials.Credentials{ClientID: "id", ClientSecret: "secret"}); err != nil {
			t.Fatal(err)
		}

		_, err := h.o.Load(ctx, lang.English)
		if !errors.Is(err, ErrMissingCredentials) || !errors.Is(err, ErrConfigurationMissing) {
			t.Fatalf("Load() error = %v, want ErrMissingCredentials", err)
		}
		if len(h.fetcher.calls) != 0 || h.refresher.calls != 0 {
			t.Error("network collaborators were called")
		}
	})

	t.Run("fallback API key", func(t *testing.T) {
		h := newHarness(t, "a")
		if err := h.store.SetAPIKey(ctx, ""); err != nil {
			t.Fatal(err)
		}
		h.o.fallback = "env-key"

		res, err := h.o.Refresh(ctx, lang.English)
		if err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		if got := res.Articles.All()[0].Title; got != "Summary of env-key" {
			t.Errorf("summarizer got key via %q", got)
		}
	})
}

func TestRun_PartialFailureIsTolerated(t *testing.T) {
	h := newHarness(t, "a", "b", "c")
	h.fetcher.handle = func(feed, _ string) (string, error) {
		if feed == "b" {
			return "", httpFailure(feed)
		}
		return "<" + feed + ">", nil
	}

	res, err := h.o.Refresh(context.Background(), lang.English)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if len(h.summarizer.inputs) != 1 {
		t.Fatalf("summarizer called %d times", len(h.summarizer.inputs))
	}
	if want := "<a>" + Separator + "<c>"; h.summarizer.inputs[0] != want {
		t.Errorf("summarizer input = %q, want %q", h.summarizer.inputs[0], want)
	}
	if len(res.FeedErrors) != 1 || !errors.Is(res.FeedErrors[0], inoreader.ErrHTTPFailure) {
		t.Errorf("FeedErrors = %v", res.FeedErrors)
	}
	if h.cached(t) == nil {
		t.Error("successful run did not write the cache")
	}
	if !res.CachedAt.Equal(start) {
		t.Errorf("CachedAt = %v, want %v", res.CachedAt, start)
	}

	want := []State{Fetching, Summarizing, Ready}
	if !reflect.DeepEqual(h.states, want) {
		t.Errorf("states = %v, want %v", h.states, want)
	}
}

type fakeImages struct{ calls int }

func (f *fakeImages) FillImages(_ context.Context, list articles.Categorized) articles.Categorized {
	f.calls++
	img := "https://img.example/filled.jpg"
	out := make(articles.Categorized, len(list))
	for i, g := range list {
		out[i] = articles.Group{Category: g.Category, Articles: append([]articles.Article(nil), g.Articles...)}
		for j := range out[i].Articles {
			out[i].Articles[j].ImageURL = &img
		}
	}
	return out
}

func TestRun_FillsImagesBeforeCaching(t *testing.T) {
	h := newHarness(t, "a")
	images := &fakeImages{}
	h.o.deps.Images = images

	res, err := h.o.Refresh(context.Background(), lang.English)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if images.calls != 1 {
		t.Errorf("FillImages calls = %d", images.calls)
	}
	if got := res.Articles.All()[0].Image(); got != "https://img.example/filled.jpg" {
		t.Errorf("result image = %q", got)
	}
	if got := h.cached(t).Articles.All()[0].Image(); got != "https://img.example/filled.jpg" {
		t.Errorf("cached image = %q", got)
	}
}

func TestRun_FetchOrderIsSequential(t *testing.T) {
	h := newHarness(t, "one", "two", "three")
	if _, err := h.o.Refresh(context.Background(), lang.English); err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, c := range h.fetcher.calls {
		got = append(got, c.feed)
	}
	if want := []string{"one", "two", "three"}; !reflect.DeepEqual(got, want) {
		t.Errorf("fetch order = %v, want %v", got, want)
	}
}

func TestRun_AllFeedsFailed(t *testing.T) {
	h := newHarness(t, "a", "b")
	h.fetcher.handle = func(feed, _ string) (string, error) { return "", httpFailure(feed) }

	_, err := h.o.Refresh(context.Background(), lang.English)
	if !errors.Is(err, ErrAllFeedsFailed) {
		t.Fatalf("Refresh() error = %v, want ErrAllFeedsFailed", err)
	}
	if !errors.Is(err, inoreader.ErrHTTPFailure) {
		t.Errorf("error does not carry the feed failures: %v", err)
	}
	if len(h.summarizer.inputs) != 0 {
		t.Error("summarizer called on empty input")
	}
	if h.cached(t) != nil {
		t.Error("cache present after failed run")
	}
	if got := h.o.State(); got != Failed {
		t.Errorf("State() = %v, want failed", got)
	}
	if s := h.o.Session(); !errors.Is(s.Err, ErrAllFeedsFailed) || s.Result != nil {
		t.Errorf("Session() = %+v", s)
	}
}

func TestRun_NoFeedsConfigured(t *testing.T) {
	h := newHarness(t)
	if _, err := h.o.Refresh(context.Background(), lang.English); !errors.Is(err, ErrAllFeedsFailed) {
		t.Fatalf("Refresh() error = %v, want ErrAllFeedsFailed", err)
	}
}

func TestRun_EmptyFeed(t *testing.T) {
	h := newHarness(t, "a")
	h.seedCache(t, start.Add(-time.Hour))
	h.fetcher.handle = func(string, string) (string, error) { return "  \n\t", nil }

	_, err := h.o.Refresh(context.Background(), lang.English)
	if !errors.Is(err, ErrEmptyFeed) {
		t.Fatalf("Refresh() error = %v, want ErrEmptyFeed", err)
	}
	if len(h.summarizer.inputs) != 0 {
		t.Error("summarizer called on whitespace input")
	}
	if h.cached(t) != nil {
		t.Error("failed run left the cache in place")
	}
}

func TestRun_AuthFailureRefreshesAndRetriesOnce(t *testing.T) {
	h := newHarness(t, "a", "b")
	h.fetcher.handle = func(feed, token string) (string, error) {
		if token == "stale" {
			return "", authFailure(feed)
		}
		return "<" + feed + ":" + token + ">", nil
	}

	if _, err := h.o.Refresh(context.Background(), lang.English); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if h.refresher.calls != 1 {
		t.Errorf("refresh calls = %d, want 1", h.refresher.calls)
	}
	want := []fetchCall{{"a", "stale"}, {"a", "fresh-1"}, {"b", "fresh-1"}}
	if !reflect.DeepEqual(h.fetcher.calls, want) {
		t.Errorf("fetch calls = %v, want %v", h.fetcher.calls, want)
	}
	wantStates := []State{Fetching, RefreshingToken, Fetching, Summarizing, Ready}
	if !reflect.DeepEqual(h.states, wantStates) {
		t.Errorf("states = %v, want %v", h.states, wantStates)
	}
}

func TestRun_AuthFailureAborts(t *testing.T) {
	t.Run("refresh fails", func(t *testing.T) {
		h := newHarness(t, "a", "b")
		h.seedCache(t, start.Add(-time.Hour))
		h.refresher.err = &inoreader.RefreshError{Status: 400, Message: "invalid_grant"}
		h.fetcher.handle = func(feed, _ string) (string, error) { return "", authFailure(feed) }

		_, err := h.o.Refresh(context.Background(), lang.English)
		var re *inoreader.RefreshError
		if !errors.As(err, &re) {
			t.Fatalf("Refresh() error = %v, want *RefreshError", err)
		}
		if len(h.fetcher.calls) != 1 {
			t.Errorf("fetch calls = %v, want one", h.fetcher.calls)
		}
		if h.cached(t) != nil {
			t.Error("cache survived a failed run")
		}
	})

	t.Run("retry fails", func(t *testing.T) {
		h := newHarness(t, "a", "b")
		h.fetcher.handle = func(feed, _ string) (string, error) { return "", authFailure(feed) }

		_, err := h.o.Refresh(context.Background(), lang.English)
		if !errors.Is(err, inoreader.ErrAuthFailure) {
			t.Fatalf("Refresh() error = %v, want ErrAuthFailure", err)
		}
		if h.refresher.calls != 1 {
			t.Errorf("refresh calls = %d, want 1", h.refresher.calls)
		}
		want := []fetchCall{{"a", "stale"}, {"a", "fresh-1"}}
		if !reflect.DeepEqual(h.fetcher.calls, want) {
			t.Errorf("fetch calls = %v, want %v", h.fetcher.calls, want)
		}
		if len(h.summarizer.inputs) != 0 {
			t.Error("summarizer called after aborted run")
		}
	})
}

func TestRun_ProactiveRefresh(t *testing.T) {
	h := newHarness(t, "a")
	h.clock.Advance(2 * time.Hour)

	if _, err := h.o.Refresh(context.Background(), lang.English); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if h.refresher.calls != 1 {
		t.Errorf("refresh calls = %d, want 1", h.refresher.calls)
	}
	if got := h.fetcher.calls[0].token; got != "fresh-1" {
		t.Errorf("first fetch used token %q", got)
	}

	t.Run("failure is terminal", func(t *testing.T) {
		h := newHarness(t, "a")
		h.clock.Advance(2 * time.Hour)
		h.refresher.err = &inoreader.RefreshError{Err: inoreader.ErrSessionExpired}

		_, err := h.o.Refresh(context.Background(), lang.English)
		if !errors.Is(err, inoreader.ErrSessionExpired) {
			t.Fatalf("Refresh() error = %v", err)
		}
		if len(h.fetcher.calls) != 0 {
			t.Error("fetched after failed proactive refresh")
		}
	})
}

func TestRun_SummarizerFailure(t *testing.T) {
	h := newHarness(t, "a")
	h.seedCache(t, start.Add(-time.Hour))
	h.summarizer.err = errors.New("model overloaded")

	_, err := h.o.Refresh(context.Background(), lang.English)
	var se *llm.SummarizerError
	if !errors.As(err, &se) {
		t.Fatalf("Refresh() error = %v, want *SummarizerError", err)
	}
	if h.cached(t) != nil {
		t.Error("cache survived summarizer failure")
	}
	if h.o.State() != Failed {
		t.Errorf("State() = %v", h.o.State())
	}
	if h.chats.calls != 0 {
		t.Error("chat started after failure")
	}
}

func TestLoad_CacheHit(t *testing.T) {
	h := newHarness(t, "a")
	h.seedCache(t, start.Add(-10*time.Minute))

	res, err := h.o.Load(context.Background(), lang.Farsi)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !res.FromCache || !res.CachedAt.Equal(start.Add(-10*time.Minute)) {
		t.Errorf("result = %+v, want cached", res)
	}
	if len(h.fetcher.calls) != 0 || len(h.summarizer.inputs) != 0 {
		t.Error("cache hit reached the network")
	}
	if h.chats.calls != 1 || res.Chat == nil {
		t.Error("chat not started on cache hit")
	}
	if res.Greeting != llm.Greeting(lang.Farsi) {
		t.Errorf("Greeting = %q", res.Greeting)
	}
	want := []State{CheckingCache, CacheHit, Ready}
	if !reflect.DeepEqual(h.states, want) {
		t.Errorf("states = %v, want %v", h.states, want)
	}
}

func TestLoad_StaleCacheFetches(t *testing.T) {
	h := newHarness(t, "a")
	h.seedCache(t, start.Add(-31*time.Minute))

	res, err := h.o.Load(context.Background(), lang.English)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.FromCache {
		t.Error("stale cache was served")
	}
	if len(h.fetcher.calls) != 1 {
		t.Errorf("fetch calls = %d", len(h.fetcher.calls))
	}
	if got := h.cached(t); got == nil || got.Timestamp != start.UnixMilli() {
		t.Errorf("cache not rewritten: %+v", got)
	}
}

func TestRun_ChatFailureKeepsReady(t *testing.T) {
	h := newHarness(t, "a")
	h.chats.err = errors.New("quota")

	res, err := h.o.Refresh(context.Background(), lang.English)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	var ce *llm.ChatError
	if !errors.As(res.ChatErr, &ce) {
		t.Errorf("ChatErr = %v, want *ChatError", res.ChatErr)
	}
	if h.o.State() != Ready {
		t.Errorf("State() = %v, want ready", h.o.State())
	}
	if res.Articles.Count() != 1 {
		t.Error("articles lost")
	}

	_, err = h.o.Chat().Send(context.Background(), "hi")
	if !errors.Is(err, ErrChatNotReady) {
		t.Errorf("Send() without session error = %v", err)
	}
}

func TestRun_Superseded(t *testing.T) {
	h := newHarness(t, "a")
	h.summarizer.hook = h.o.Invalidate

	_, err := h.o.Refresh(context.Background(), lang.English)
	if !errors.Is(err, ErrSuperseded) {
		t.Fatalf("Refresh() error = %v, want ErrSuperseded", err)
	}
	if h.cached(t) != nil {
		t.Error("superseded run wrote the cache")
	}
	if h.chats.calls != 0 {
		t.Error("superseded run started a chat")
	}
}

func TestRun_SupersededFailureKeepsCache(t *testing.T) {
	h := newHarness(t, "a")
	h.seedCache(t, start)
	h.summarizer.err = errors.New("boom")
	h.summarizer.hook = h.o.Invalidate

	if _, err := h.o.Refresh(context.Background(), lang.English); !errors.Is(err, ErrSuperseded) {
		t.Fatalf("Refresh() error = %v, want ErrSuperseded", err)
	}
	if h.cached(t) == nil {
		t.Error("stale run cleared the cache")
	}
}

func TestChat_Send(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "a")
	res, err := h.o.Refresh(ctx, lang.English)
	if err != nil {
		t.Fatal(err)
	}

	reply, err := res.Chat.Send(ctx, "what happened?")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if reply != "echo: what happened?" {
		t.Errorf("reply = %q", reply)
	}

	want := []Message{
		{RoleModel, llm.Greeting(lang.English)},
		{RoleUser, "what happened?"},
		{RoleModel, "echo: what happened?"},
	}
	if got := h.o.Chat().History(); !reflect.DeepEqual(got, want) {
		t.Errorf("History() = %v, want %v", got, want)
	}
}

func TestChat_Errors(t *testing.T) {
	var nilChat *Chat
	_, err := nilChat.Send(context.Background(), "hi")
	var ce *llm.ChatError
	if !errors.As(err, &ce) || !errors.Is(err, ErrChatNotReady) {
		t.Errorf("nil chat Send() error = %v", err)
	}
	if nilChat.History() != nil {
		t.Error("nil chat has history")
	}

	c := newChat(&fakeSession{err: errors.New("blocked")}, "hello")
	_, err = c.Send(context.Background(), "question")
	if !errors.As(err, &ce) {
		t.Errorf("Send() error = %v, want *ChatError", err)
	}
	if h := c.History(); len(h) != 2 || h[1].Content != "question" {
		t.Errorf("History() = %v", h)
	}
}

func TestChat_WrappedChatErrorIsKept(t *testing.T) {
	wrapped := fmt.Errorf("session closed: %w", &llm.ChatError{Err: errors.New("quota")})
	c := newChat(&fakeSession{err: wrapped}, "hello")

	_, err := c.Send(context.Background(), "question")
	if err != wrapped {
		t.Errorf("Send() error = %v, want the session error unchanged", err)
	}
}

func TestReset(t *testing.T) {
	h := newHarness(t, "a")
	if _, err := h.o.Refresh(context.Background(), lang.English); err != nil {
		t.Fatal(err)
	}
	h.o.Reset()
	s := h.o.Session()
	if s.State != Idle || s.Result != nil || s.Err != nil {
		t.Errorf("Session() after Reset = %+v", s)
	}
}

func TestState_String(t *testing.T) {
	if got := RefreshingToken.String(); got != "refreshing_token" {
		t.Errorf("String() = %q", got)
	}
	if got := State(42).String(); !strings.HasPrefix(got, "state(") {
		t.Errorf("String() = %q", got)
	}
}
