// Package news runs the fetch, summarize and chat cycle behind the briefing.
package news

import (
	"errors"
	"fmt"
)

// State is the orchestrator's position in a run.
type State int

const (
	Idle State = iota
	CheckingCache
	CacheHit
	Fetching
	RefreshingToken
	Summarizing
	Ready
	Failed
)

var stateNames = map[State]string{
	Idle:            "idle",
	CheckingCache:   "checking_cache",
	CacheHit:        "cache_hit",
	Fetching:        "fetching",
	RefreshingToken: "refreshing_token",
	Summarizing:     "summarizing",
	Ready:           "ready",
	Failed:          "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Separator joins the feed envelopes handed to the summarizer.
const Separator = "\n\n---SEPARATOR---\n\n"

var (
	// ErrConfigurationMissing is the precondition failure; no network call was made.
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrMissingAPIKey        = fmt.Errorf("%w: no Gemini API key", ErrConfigurationMissing)
	ErrMissingCredentials   = fmt.Errorf("%w: no Inoreader connection", ErrConfigurationMissing)

	ErrAllFeedsFailed = errors.New("could not fetch any of the news feeds")
	ErrEmptyFeed      = errors.New("the feeds are empty or unreadable")
	// ErrSuperseded is returned by a run that was overtaken by a newer run
	// or by Invalidate. Its result is discarded and the cache is not touched.
	ErrSuperseded = errors.New("run superseded")
	// ErrChatNotReady is wrapped in a ChatError when there is no chat session.
	ErrChatNotReady = errors.New("chat session not initialized")
)
