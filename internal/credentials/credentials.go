// Package credentials persists Inoreader OAuth credentials, the pending OAuth
// transaction and the LLM API key in a kvstore.Store.
package credentials

import (
	"time"
)

// Persisted keys.
const (
	KeyCredentials = "inoreader_credentials"
	KeyPending     = "inoreader_temp_credentials"
	KeyState       = "inoreader_oauth_state"
	KeyAPIKey      = "gemini_api_key"
)

// DefaultLifetime is assumed when the token endpoint omits expires_in.
const DefaultLifetime = 3600 * time.Second

// Credentials is the OAuth record for one Inoreader application.
// ClientID and ClientSecret never change for the lifetime of the record;
// the token fields are replaced together on every exchange or refresh.
type Credentials struct {
	Token        string `json:"token,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	// ExpiresAt is epoch milliseconds, 0 when unknown.
	ExpiresAt    int64  `json:"expiresAt,omitempty"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// HasToken reports whether an access token is present.
func (c *Credentials) HasToken() bool {
	return c != nil && c.Token != ""
}

// Expired reports whether ExpiresAt is set and already in the past.
func (c *Credentials) Expired(now time.Time) bool {
	return c.ExpiresAt != 0 && c.ExpiresAt < now.UnixMilli()
}

// Expiry returns ExpiresAt as a time, or the zero time when unset.
func (c *Credentials) Expiry() time.Time {
	if c.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(c.ExpiresAt)
}

// WithToken returns a copy carrying a new token triple issued at issuedAt.
// An empty refreshToken keeps the current one.
func (c Credentials) WithToken(token, refreshToken string, lifetime time.Duration, issuedAt time.Time) Credentials {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	c.Token = token
	if refreshToken != "" {
		c.RefreshToken = refreshToken
	}
	c.ExpiresAt = issuedAt.Add(lifetime).UnixMilli()
	return c
}

// ClientPair is the application identity awaiting a code exchange.
type ClientPair struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// Transaction is a pending authorization: the state nonce plus the client
// pair it was generated for.
type Transaction struct {
	State  string
	Client ClientPair
}
