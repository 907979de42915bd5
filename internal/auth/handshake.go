// Package auth runs the OAuth authorization handshake with Inoreader.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lepinkainen/feed-brief/internal/credentials"
)

var (
	ErrMissingClient        = errors.New("client ID and client secret are required")
	ErrEmptyRedirect        = errors.New("redirect URL is empty")
	ErrInvalidRedirect      = errors.New("redirect URL cannot be parsed")
	ErrStateMismatch        = errors.New("authorization state mismatch")
	ErrMissingCode          = errors.New("authorization code missing from redirect")
	ErrNoPendingTransaction = errors.New("no pending authorization, generate a new link")
	ErrNotRedirect          = errors.New("URL is not an authorization redirect")
)

// ProviderError is an error reported by the authorization server in the redirect.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization denied: %s (%s)", e.Code, e.Description)
	}
	return "authorization denied: " + e.Code
}

// Exchanger builds authorization links and trades codes for credentials.
type Exchanger interface {
	AuthCodeURL(clientID, state string) string
	ExchangeCode(ctx context.Context, code string, client credentials.ClientPair) (*credentials.Credentials, error)
}

// Handshake owns the pending authorization transaction.
type Handshake struct {
	store     *credentials.Store
	exchanger Exchanger
	newState  func() string
	onChange  func()
}

// NewHandshake creates a Handshake. onChange, if set, runs whenever the
// stored credentials are replaced or removed.
func NewHandshake(store *credentials.Store, exchanger Exchanger, onChange func()) *Handshake {
	return &Handshake{
		store:     store,
		exchanger: exchanger,
		newState:  uuid.NewString,
		onChange:  onChange,
	}
}

func (h *Handshake) changed() {
	if h.onChange != nil {
		h.onChange()
	}
}

// GenerateAuthLink starts a new transaction and returns the URL the user
// must open. Any previous pending transaction is replaced.
func (h *Handshake) GenerateAuthLink(ctx context.Context, clientID, clientSecret string) (string, error) {
	client := credentials.ClientPair{
		ClientID:     strings.TrimSpace(clientID),
		ClientSecret: strings.TrimSpace(clientSecret),
	}
	if client.ClientID == "" || client.ClientSecret == "" {
		return "", ErrMissingClient
	}

	state := h.newState()
	if err := h.store.SavePending(ctx, credentials.Transaction{State: state, Client: client}); err != nil {
		return "", err
	}

	slog.Debug("Generated authorization link", "client_id", client.ClientID)
	return h.exchanger.AuthCodeURL(client.ClientID, state), nil
}

// CompleteFromRedirect validates the URL the provider redirected to and
// exchanges its code. The transaction is single-use: its nonce and client
// pair are gone after this call whatever the outcome.
func (h *Handshake) CompleteFromRedirect(ctx context.Context, rawURL string) (*credentials.Credentials, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrEmptyRedirect
	}

	stored, hasState, err := h.store.TakeState(ctx)
	if err != nil {
		return nil, err
	}
	client, err := h.store.PendingClient(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := h.store.DiscardPending(ctx); err != nil {
			slog.Error("Failed to discard pending authorization", "error", err)
		}
	}()

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRedirect, err)
	}
	query := u.Query()

	if code := query.Get("error"); code != "" {
		return nil, &ProviderError{Code: code, Description: query.Get("error_description")}
	}

	state := query.Get("state")
	if !hasState || state == "" || state != stored {
		slog.Warn("Authorization state mismatch", "has_stored", hasState, "received", state != "")
		return nil, ErrStateMismatch
	}

	code := query.Get("code")
	if code == "" {
		return nil, ErrMissingCode
	}
	if client == nil {
		return nil, ErrNoPendingTransaction
	}

	creds, err := h.exchanger.ExchangeCode(ctx, code, *client)
	if err != nil {
		return nil, err
	}

	slog.Info("Inoreader connected", "expires_at", creds.Expiry())
	h.changed()
	return creds, nil
}

// IsRedirect reports whether rawURL carries authorization response parameters.
func IsRedirect(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	q := u.Query()
	return q.Has("code") || q.Has("state") || q.Has("error")
}

// CompleteFromLaunchURL completes the handshake when the application was
// opened through the redirect. Other URLs yield ErrNotRedirect and leave
// the pending transaction alone.
func (h *Handshake) CompleteFromLaunchURL(ctx context.Context, rawURL string) (*credentials.Credentials, error) {
	if !IsRedirect(rawURL) {
		return nil, ErrNotRedirect
	}
	return h.CompleteFromRedirect(ctx, rawURL)
}

// Disconnect removes the credentials and any pending transaction.
func (h *Handshake) Disconnect(ctx context.Context) error {
	if err := h.store.Clear(ctx); err != nil {
		return err
	}
	slog.Info("Inoreader disconnected")
	h.changed()
	return nil
}

// Status describes the stored connection.
type Status struct {
	Connected bool      `json:"connected"`
	ClientID  string    `json:"clientId,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
	Pending   bool      `json:"pending"`
}

// Status reports the stored connection without touching the network.
func (h *Handshake) Status(ctx context.Context) (Status, error) {
	creds, err := h.store.Load(ctx)
	if err != nil {
		return Status{}, err
	}
	pending, err := h.store.PendingClient(ctx)
	if err != nil {
		return Status{}, err
	}

	st := Status{Pending: pending != nil}
	if creds != nil {
		st.Connected = creds.HasToken()
		st.ClientID = creds.ClientID
		st.ExpiresAt = creds.Expiry()
	}
	return st, nil
}
