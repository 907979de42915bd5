package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lepinkainen/feed-brief/internal/auth"
	"github.com/lepinkainen/feed-brief/internal/i18n"
	"github.com/lepinkainen/feed-brief/internal/inoreader"
	"github.com/lepinkainen/feed-brief/internal/llm"
	"github.com/lepinkainen/feed-brief/internal/news"
)

// errorResponse is the body of every failed API call.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// classify maps an error to a status and a stable machine code.
func classify(err error) (int, string) {
	var (
		refreshErr  *inoreader.RefreshError
		exchangeErr *inoreader.AuthExchangeError
		providerErr *auth.ProviderError
		chatErr     *llm.ChatError
		summaryErr  *llm.SummarizerError
	)

	switch {
	case errors.Is(err, news.ErrMissingAPIKey):
		return http.StatusPreconditionRequired, "missing_api_key"
	case errors.Is(err, news.ErrMissingCredentials):
		return http.StatusPreconditionRequired, "missing_credentials"
	case errors.Is(err, news.ErrSuperseded):
		return http.StatusConflict, "superseded"
	case errors.Is(err, news.ErrChatNotReady):
		return http.StatusConflict, "chat_not_ready"
	case errors.Is(err, inoreader.ErrSessionExpired):
		return http.StatusUnauthorized, "session_expired"
	case errors.As(err, &refreshErr):
		return http.StatusUnauthorized, "refresh_failed"
	case errors.As(err, &exchangeErr):
		return http.StatusBadGateway, "exchange_failed"
	case errors.Is(err, inoreader.ErrAuthFailure):
		return http.StatusUnauthorized, "auth_failure"
	case errors.Is(err, news.ErrAllFeedsFailed):
		return http.StatusBadGateway, "all_feeds_failed"
	case errors.Is(err, news.ErrEmptyFeed):
		return http.StatusBadGateway, "empty_feed"
	case errors.As(err, &summaryErr):
		return http.StatusBadGateway, "summarizer_failed"
	case errors.As(err, &chatErr):
		return http.StatusBadGateway, "chat_failed"
	case errors.As(err, &providerErr):
		return http.StatusBadRequest, "provider_error"
	case errors.Is(err, auth.ErrEmptyRedirect),
		errors.Is(err, auth.ErrInvalidRedirect),
		errors.Is(err, auth.ErrNotRedirect):
		return http.StatusBadRequest, "invalid_redirect"
	case errors.Is(err, auth.ErrStateMismatch):
		return http.StatusBadRequest, "state_mismatch"
	case errors.Is(err, auth.ErrMissingCode):
		return http.StatusBadRequest, "missing_code"
	case errors.Is(err, auth.ErrNoPendingTransaction):
		return http.StatusBadRequest, "no_pending_authorization"
	case errors.Is(err, auth.ErrMissingClient):
		return http.StatusBadRequest, "missing_client"
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) fail(c *gin.Context, err error) {
	status, code := classify(err)
	_, catalog := s.current()
	if status >= http.StatusInternalServerError {
		slog.Error("API request failed", "path", c.FullPath(), "code", code, "error", err)
	}
	c.JSON(status, errorResponse{
		Code:    code,
		Message: i18n.Describe(catalog, err),
		Detail:  err.Error(),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{Code: "bad_request", Message: err.Error()})
}
