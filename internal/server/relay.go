package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	fbhttp "github.com/lepinkainen/feed-brief/pkg/http"
)

var (
	errRelayTarget    = errors.New("relay target must be an absolute http(s) URL after /proxy/?")
	errRelayForbidden = errors.New("relay target host is not allowed")
)

// forwarded request and response headers
var (
	relayRequestHeaders  = []string{"Authorization", "AppId", "AppKey", "Content-Type", "Accept", "Accept-Language"}
	relayResponseHeaders = []string{"Content-Type", "Cache-Control", "Retry-After", "X-Reader-Zone1-Usage", "X-Reader-Zone1-Limit"}
)

// relayTarget extracts the upstream URL from /proxy/?<url>.
func (s *Server) relayTarget(r *http.Request) (*url.URL, error) {
	raw := r.URL.RawQuery
	if unescaped, err := url.QueryUnescape(raw); err == nil && !strings.Contains(raw, "://") {
		raw = unescaped
	}

	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, errRelayTarget
	}

	if !slices.Contains(s.opts.RelayHosts, "*") && !slices.Contains(s.opts.RelayHosts, target.Hostname()) {
		return nil, fmt.Errorf("%w: %s", errRelayForbidden, target.Hostname())
	}
	return target, nil
}

// handleRelay forwards the request to the URL in the query string and
// streams the answer back, so browser clients can reach APIs without CORS
// headers.
func (s *Server) handleRelay(c *gin.Context) {
	target, err := s.relayTarget(c.Request)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errRelayForbidden) {
			status = http.StatusForbidden
		}
		c.JSON(status, errorResponse{Code: "relay_rejected", Message: err.Error()})
		return
	}

	if !s.pace.Allow() {
		c.JSON(http.StatusTooManyRequests, errorResponse{Code: "relay_busy", Message: "too many relayed requests, try again shortly"})
		return
	}

	var body io.Reader
	if c.Request.Body != nil && c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		body = c.Request.Body
	}
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target.String(), body)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "relay_rejected", Message: err.Error()})
		return
	}
	for _, h := range relayRequestHeaders {
		if v := c.GetHeader(h); v != "" {
			req.Header.Set(h, v)
		}
	}

	resp, err := s.relay.DoRequest(req)
	if err != nil {
		slog.Warn("Relay request failed", "host", target.Host, "error", err)
		c.JSON(http.StatusBadGateway, errorResponse{Code: "relay_failed", Message: err.Error()})
		return
	}
	defer fbhttp.CloseBody(resp)

	for _, h := range relayResponseHeaders {
		if v := resp.Header.Get(h); v != "" {
			c.Header(h, v)
		}
	}
	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, io.LimitReader(resp.Body, fbhttp.MaxBodySize)); err != nil {
		slog.Warn("Relay response copy failed", "host", target.Host, "error", err)
	}
	slog.Debug("Relayed request", "method", req.Method, "host", target.Host, "status", resp.StatusCode)
}
