package i18n

import (
	"errors"

	"github.com/lepinkainen/feed-brief/internal/auth"
	"github.com/lepinkainen/feed-brief/internal/inoreader"
	"github.com/lepinkainen/feed-brief/internal/llm"
	"github.com/lepinkainen/feed-brief/internal/news"
)

var sentinelKeys = []struct {
	err error
	key string
}{
	{news.ErrMissingAPIKey, "app.geminiKeyNeeded"},
	{news.ErrMissingCredentials, "app.inoreaderCredsNeeded"},
	{news.ErrAllFeedsFailed, "app.allFeedsFetchError"},
	{news.ErrEmptyFeed, "app.emptyFeedError"},
	{news.ErrSuperseded, "app.superseded"},
	{news.ErrChatNotReady, "chat.notReady"},
	{inoreader.ErrSessionExpired, "app.sessionExpired"},
	{auth.ErrEmptyRedirect, "settingsModal.pasteRedirectPrompt"},
	{auth.ErrStateMismatch, "app.stateMismatch"},
	{auth.ErrMissingCode, "app.missingCode"},
	{auth.ErrNoPendingTransaction, "app.inoreaderCredsError"},
}

// Describe renders err as a user-facing message in c's language.
func Describe(c *Catalog, err error) string {
	if err == nil {
		return ""
	}
	for _, s := range sentinelKeys {
		if errors.Is(err, s.err) {
			return c.T(s.key)
		}
	}

	var (
		refreshErr  *inoreader.RefreshError
		exchangeErr *inoreader.AuthExchangeError
		providerErr *auth.ProviderError
		chatErr     *llm.ChatError
		summaryErr  *llm.SummarizerError
	)
	switch {
	case errors.As(err, &refreshErr):
		return c.T("app.refreshTokenError", "error", refreshErr.Message)
	case errors.As(err, &exchangeErr):
		return c.T("app.inoreaderAuthFailed", "error", exchangeErr.Message)
	case errors.As(err, &providerErr):
		return c.T("app.providerError", "error", providerErr.Error())
	case errors.As(err, &chatErr):
		return c.T("app.chatError", "error", chatErr.Err.Error())
	case errors.As(err, &summaryErr):
		return c.T("app.summarizeError", "error", summaryErr.Err.Error())
	case errors.Is(err, inoreader.ErrAuthFailure):
		return c.T("app.authFailed", "error", err.Error())
	}
	return c.T("app.summarizeError", "error", err.Error())
}
