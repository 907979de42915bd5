// Package inoreader talks to the Inoreader OAuth and stream APIs.
package inoreader

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// DefaultProxy is the CORS relay prefix the public token and stream
	// endpoints are reached through.
	DefaultProxy = "https://corsproxy.io/?"
	// DefaultBaseURL is the Inoreader site.
	DefaultBaseURL = "https://www.inoreader.com"
	// DefaultItemCount is how many items one stream request asks for.
	DefaultItemCount = 50
)

// Endpoints locates the Inoreader API, optionally through a relay prefix.
type Endpoints struct {
	// Proxy is prepended verbatim to token and stream URLs. Empty means direct.
	Proxy   string
	BaseURL string
}

// DefaultEndpoints returns the public endpoints behind DefaultProxy.
func DefaultEndpoints() Endpoints {
	return Endpoints{Proxy: DefaultProxy, BaseURL: DefaultBaseURL}
}

func (e Endpoints) base() string {
	if e.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(e.BaseURL, "/")
}

// AuthURL is opened in the user's browser and is never proxied.
func (e Endpoints) AuthURL() string {
	return e.base() + "/oauth2/auth"
}

// TokenURL is the proxied token endpoint.
func (e Endpoints) TokenURL() string {
	return e.Proxy + e.base() + "/oauth2/token"
}

// StreamURL is the proxied stream contents endpoint for a stream id.
func (e Endpoints) StreamURL(streamID string, n int) string {
	if n <= 0 {
		n = DefaultItemCount
	}
	return fmt.Sprintf("%s%s/reader/api/0/stream/contents/%s?n=%d", e.Proxy, e.base(), url.PathEscape(streamID), n)
}
