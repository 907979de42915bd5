package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lepinkainen/feed-brief/internal/articles"
	"github.com/lepinkainen/feed-brief/internal/i18n"
	"github.com/lepinkainen/feed-brief/internal/lang"
	"github.com/lepinkainen/feed-brief/internal/news"
)

type newsResponse struct {
	Language     lang.Language        `json:"language"`
	Articles     articles.Categorized `json:"articles"`
	FromCache    bool                 `json:"fromCache"`
	CachedAt     time.Time            `json:"cachedAt,omitzero"`
	Chat         []news.Message       `json:"chat,omitempty"`
	ChatError    string               `json:"chatError,omitempty"`
	SkippedFeeds []string             `json:"skippedFeeds,omitempty"`
}

func (s *Server) respondNews(c *gin.Context, l lang.Language, res *news.Result) {
	_, catalog := s.current()
	body := newsResponse{
		Language:  l,
		Articles:  res.Articles,
		FromCache: res.FromCache,
		CachedAt:  res.CachedAt,
		Chat:      res.Chat.History(),
	}
	if res.ChatErr != nil {
		body.ChatError = i18n.Describe(catalog, res.ChatErr)
	}
	for _, err := range res.FeedErrors {
		body.SkippedFeeds = append(body.SkippedFeeds, err.Error())
	}
	c.JSON(http.StatusOK, body)
}

// runShared collapses concurrent identical runs into one. The shared run
// outlives a cancelled caller.
func (s *Server) runShared(c *gin.Context, kind string, run func(context.Context, lang.Language) (*news.Result, error)) {
	l, _ := s.current()
	ctx := context.WithoutCancel(c.Request.Context())

	v, err, shared := s.flight.Do(kind+":"+string(l), func() (any, error) {
		return run(ctx, l)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	if shared {
		c.Header("X-Shared-Run", "true")
	}
	s.respondNews(c, l, v.(*news.Result))
}

func (s *Server) handleNews(c *gin.Context) {
	s.runShared(c, "load", s.deps.News.Load)
}

func (s *Server) handleRefresh(c *gin.Context) {
	s.runShared(c, "refresh", s.deps.News.Refresh)
}

func (s *Server) handleState(c *gin.Context) {
	session := s.deps.News.Session()
	body := gin.H{"state": session.State.String()}
	if session.Err != nil {
		_, catalog := s.current()
		body["error"] = i18n.Describe(catalog, session.Err)
	}
	if session.Result != nil {
		body["articles"] = session.Result.Articles.Count()
		body["fromCache"] = session.Result.FromCache
	}
	c.JSON(http.StatusOK, body)
}

type chatRequest struct {
	Message string `json:"message" binding:"required"`
}

func (s *Server) handleChatHistory(c *gin.Context) {
	history := s.deps.News.Chat().History()
	if history == nil {
		history = []news.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": history})
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	chat := s.deps.News.Chat()
	reply, err := chat.Send(c.Request.Context(), req.Message)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply, "messages": chat.History()})
}

func (s *Server) handleAuthStatus(c *gin.Context) {
	status, err := s.deps.Handshake.Status(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

type linkRequest struct {
	ClientID     string `json:"clientId" binding:"required"`
	ClientSecret string `json:"clientSecret" binding:"required"`
}

func (s *Server) handleAuthLink(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	link, err := s.deps.Handshake.GenerateAuthLink(c.Request.Context(), req.ClientID, req.ClientSecret)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": link, "redirectUrl": s.opts.RedirectURL})
}

type completeRequest struct {
	RedirectURL string `json:"redirectUrl"`
}

func (s *Server) handleAuthComplete(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	creds, err := s.deps.Handshake.CompleteFromRedirect(c.Request.Context(), req.RedirectURL)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true, "expiresAt": creds.Expiry()})
}

// handleCallback receives the provider redirect directly when the redirect
// URL points at this server.
func (s *Server) handleCallback(c *gin.Context) {
	raw := "http://" + c.Request.Host + c.Request.URL.RequestURI()
	_, err := s.deps.Handshake.CompleteFromLaunchURL(c.Request.Context(), raw)

	_, catalog := s.current()
	if err != nil {
		status, _ := classify(err)
		c.String(status, "%s: %s", catalog.T("app.error"), i18n.Plain(i18n.Describe(catalog, err)))
		return
	}
	c.String(http.StatusOK, "%s", catalog.T("settingsModal.connectedMessage"))
}

func (s *Server) handleDisconnect(c *gin.Context) {
	if err := s.deps.Handshake.Disconnect(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	s.deps.News.Reset()
	c.Status(http.StatusNoContent)
}

type apiKeyRequest struct {
	APIKey string `json:"apiKey"`
}

func (s *Server) handleSetAPIKey(c *gin.Context) {
	var req apiKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.deps.Credentials.SetAPIKey(c.Request.Context(), req.APIKey); err != nil {
		s.fail(c, err)
		return
	}
	s.deps.News.Invalidate()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleLanguage(c *gin.Context) {
	l, _ := s.current()
	c.JSON(http.StatusOK, gin.H{"language": l.Info(), "available": lang.All()})
}

type languageRequest struct {
	Language string `json:"language" binding:"required"`
}

func (s *Server) handleSetLanguage(c *gin.Context) {
	var req languageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	requested, err := lang.Parse(req.Language)
	if err != nil {
		badRequest(c, err)
		return
	}

	catalog, err := s.deps.I18n.Switch(c.Request.Context(), requested, s.apiKey(c.Request.Context()))

	s.mu.Lock()
	changed := s.language != catalog.Language
	s.language = catalog.Language
	s.catalog = catalog
	s.mu.Unlock()
	if changed {
		s.deps.News.Invalidate()
	}

	body := gin.H{"language": catalog.Language.Info(), "requested": requested}
	if err != nil {
		body["warning"] = err.Error()
		if errors.Is(err, i18n.ErrNoAPIKey) {
			body["warning"] = catalog.T("app.geminiKeyNeeded")
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleTranslations(c *gin.Context) {
	l, err := lang.Parse(c.Param("lang"))
	if err != nil {
		badRequest(c, err)
		return
	}

	catalog, err := s.deps.I18n.Catalog(c.Request.Context(), l, s.apiKey(c.Request.Context()))
	if err != nil && catalog.Language != l {
		c.JSON(http.StatusOK, gin.H{"catalog": catalog, "fallback": true, "warning": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"catalog": catalog, "fallback": false})
}
