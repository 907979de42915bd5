package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lepinkainen/feed-brief/pkg/kvstore"
)

// Store reads and writes credential records.
type Store struct {
	kv kvstore.Store
}

// NewStore wraps a key-value store.
func NewStore(kv kvstore.Store) *Store {
	return &Store{kv: kv}
}

// Load returns the stored credentials, or nil when none are stored.
// A record that cannot be parsed is deleted and reported as absent.
func (s *Store) Load(ctx context.Context) (*Credentials, error) {
	raw, ok, err := s.kv.Get(ctx, KeyCredentials)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		slog.Warn("Discarding unreadable credentials", "error", err)
		if delErr := s.kv.Delete(ctx, KeyCredentials); delErr != nil {
			return nil, fmt.Errorf("failed to delete corrupt credentials: %w", delErr)
		}
		return nil, nil
	}

	return &creds, nil
}

// Save replaces the stored credentials.
func (s *Store) Save(ctx context.Context, creds Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := s.kv.Set(ctx, KeyCredentials, string(data)); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// Clear removes the credentials and every transient OAuth key.
func (s *Store) Clear(ctx context.Context) error {
	var errs []error
	for _, key := range []string{KeyCredentials, KeyPending, KeyState} {
		if err := s.kv.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

// SavePending stores a new authorization transaction, replacing any previous one.
func (s *Store) SavePending(ctx context.Context, tx Transaction) error {
	data, err := json.Marshal(tx.Client)
	if err != nil {
		return fmt.Errorf("failed to encode pending client: %w", err)
	}
	if err := s.kv.Set(ctx, KeyPending, string(data)); err != nil {
		return fmt.Errorf("failed to save pending client: %w", err)
	}
	if err := s.kv.Set(ctx, KeyState, tx.State); err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	return nil
}

// TakeState returns the pending state nonce and deletes it.
func (s *Store) TakeState(ctx context.Context) (string, bool, error) {
	state, ok, err := s.kv.Get(ctx, KeyState)
	if err != nil {
		return "", false, fmt.Errorf("failed to read oauth state: %w", err)
	}
	if err := s.kv.Delete(ctx, KeyState); err != nil {
		return "", false, fmt.Errorf("failed to delete oauth state: %w", err)
	}
	return state, ok, nil
}

// PendingClient returns the client pair of the pending transaction, or nil.
func (s *Store) PendingClient(ctx context.Context) (*ClientPair, error) {
	raw, ok, err := s.kv.Get(ctx, KeyPending)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending client: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var pair ClientPair
	if err := json.Unmarshal([]byte(raw), &pair); err != nil || pair.ClientID == "" {
		slog.Warn("Discarding unreadable pending client", "error", err)
		return nil, s.DiscardPending(ctx)
	}
	return &pair, nil
}

// DiscardPending removes the pending client pair and nonce.
func (s *Store) DiscardPending(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyPending); err != nil {
		return fmt.Errorf("failed to delete pending client: %w", err)
	}
	if err := s.kv.Delete(ctx, KeyState); err != nil {
		return fmt.Errorf("failed to delete oauth state: %w", err)
	}
	return nil
}

// APIKey returns the stored LLM API key, "" when unset.
func (s *Store) APIKey(ctx context.Context) (string, error) {
	key, _, err := s.kv.Get(ctx, KeyAPIKey)
	if err != nil {
		return "", fmt.Errorf("failed to read api key: %w", err)
	}
	return strings.TrimSpace(key), nil
}

// SetAPIKey stores the LLM API key. An empty key removes it.
func (s *Store) SetAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return s.kv.Delete(ctx, KeyAPIKey)
	}
	if err := s.kv.Set(ctx, KeyAPIKey, key); err != nil {
		return fmt.Errorf("failed to save api key: %w", err)
	}
	return nil
}
