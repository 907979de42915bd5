package inoreader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lepinkainen/feed-brief/internal/credentials"
	"golang.org/x/oauth2"
)

// Scope requested during authorization.
const Scope = "read"

// TokenExchanger turns authorization codes and refresh tokens into access
// tokens and persists the result.
type TokenExchanger struct {
	store       *credentials.Store
	endpoints   Endpoints
	redirectURL string
	httpClient  *http.Client
	now         func() time.Time
}

// NewTokenExchanger creates a TokenExchanger. A nil httpClient uses http.DefaultClient.
func NewTokenExchanger(store *credentials.Store, endpoints Endpoints, redirectURL string, httpClient *http.Client) *TokenExchanger {
	return &TokenExchanger{
		store:       store,
		endpoints:   endpoints,
		redirectURL: redirectURL,
		httpClient:  httpClient,
		now:         time.Now,
	}
}

// SetClock replaces the time source used to compute expiry.
func (x *TokenExchanger) SetClock(now func() time.Time) {
	x.now = now
}

// RedirectURL is the redirect_uri registered with the Inoreader application.
func (x *TokenExchanger) RedirectURL() string {
	return x.redirectURL
}

func (x *TokenExchanger) oauthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  x.redirectURL,
		Scopes:       []string{Scope},
		Endpoint: oauth2.Endpoint{
			AuthURL:   x.endpoints.AuthURL(),
			TokenURL:  x.endpoints.TokenURL(),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (x *TokenExchanger) context(ctx context.Context) context.Context {
	if x.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, x.httpClient)
}

// AuthCodeURL builds the browser authorization link carrying state.
func (x *TokenExchanger) AuthCodeURL(clientID, state string) string {
	return x.oauthConfig(clientID, "").AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for a token pair and saves the
// resulting credentials.
func (x *TokenExchanger) ExchangeCode(ctx context.Context, code string, client credentials.ClientPair) (*credentials.Credentials, error) {
	cfg := x.oauthConfig(client.ClientID, client.ClientSecret)
	issuedAt := x.now()

	tok, err := cfg.Exchange(x.context(ctx), code)
	if err != nil {
		status, msg := describeTokenError(err, "Failed to exchange code for token")
		return nil, &AuthExchangeError{Status: status, Message: msg, Err: err}
	}

	base := credentials.Credentials{ClientID: client.ClientID, ClientSecret: client.ClientSecret}
	creds := base.WithToken(tok.AccessToken, tok.RefreshToken, lifetime(tok), issuedAt)

	if err := x.store.Save(ctx, creds); err != nil {
		return nil, fmt.Errorf("failed to persist credentials: %w", err)
	}

	slog.Debug("Exchanged authorization code", "expires_at", creds.Expiry())
	return &creds, nil
}

// Refresh renews the access token. Without a refresh token it clears the
// stored credentials and fails with ErrSessionExpired without any network
// call. Any refresh failure also clears the stored credentials, except when
// ctx is done before the token endpoint answers.
func (x *TokenExchanger) Refresh(ctx context.Context, creds credentials.Credentials) (*credentials.Credentials, error) {
	if creds.RefreshToken == "" {
		x.clear(ctx)
		return nil, &RefreshError{Message: ErrSessionExpired.Error(), Err: ErrSessionExpired}
	}

	cfg := x.oauthConfig(creds.ClientID, creds.ClientSecret)
	issuedAt := x.now()

	tok, err := cfg.TokenSource(x.context(ctx), &oauth2.Token{RefreshToken: creds.RefreshToken}).Token()
	if err != nil {
		// a cancelled caller says nothing about the refresh token
		if ctx.Err() != nil {
			return nil, fmt.Errorf("token refresh interrupted: %w", ctx.Err())
		}
		x.clear(ctx)
		status, msg := describeTokenError(err, "Failed to refresh token")
		return nil, &RefreshError{Status: status, Message: msg, Err: err}
	}

	renewed := creds.WithToken(tok.AccessToken, tok.RefreshToken, lifetime(tok), issuedAt)
	if err := x.store.Save(ctx, renewed); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed credentials: %w", err)
	}

	slog.Debug("Refreshed access token", "expires_at", renewed.Expiry())
	return &renewed, nil
}

func (x *TokenExchanger) clear(ctx context.Context) {
	if err := x.store.Clear(ctx); err != nil {
		slog.Error("Failed to clear credentials", "error", err)
	}
}

// describeTokenError prefers error_description, then error, then a
// status-coded fallback.
func describeTokenError(err error, fallback string) (int, string) {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return 0, err.Error()
	}

	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}

	switch {
	case re.ErrorDescription != "":
		return status, re.ErrorDescription
	case re.ErrorCode != "":
		return status, re.ErrorCode
	default:
		return status, fmt.Sprintf("%s. Status: %d", fallback, status)
	}
}

// lifetime reads expires_in from the raw token response.
func lifetime(tok *oauth2.Token) time.Duration {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		if v > 0 {
			return time.Duration(v * float64(time.Second))
		}
	case string:
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			return time.Duration(n * float64(time.Second))
		}
	}
	return credentials.DefaultLifetime
}
