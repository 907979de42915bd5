package inoreader

import (
	"errors"
	"fmt"
)

// Fetch failure kinds. A *FetchError always unwraps to exactly one of these.
var (
	ErrAuthFailure      = errors.New("inoreader authentication failed")
	ErrHTTPFailure      = errors.New("inoreader request failed")
	ErrFormatFailure    = errors.New("inoreader returned an unexpected response format")
	ErrInvalidURLFormat = errors.New("invalid or unsupported Inoreader URL format")
)

// ErrSessionExpired means there is no refresh token left to renew the session with.
var ErrSessionExpired = errors.New("session expired, please reconnect")

// FetchError describes why one feed could not be fetched.
type FetchError struct {
	Kind    error
	FeedURL string
	Status  int
	Err     error
}

func (e *FetchError) Error() string {
	msg := e.Kind.Error()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// AuthExchangeError is returned when an authorization code cannot be exchanged.
type AuthExchangeError struct {
	Status  int
	Message string
	Err     error
}

func (e *AuthExchangeError) Error() string {
	return "inoreader authentication failed: " + e.Message
}

func (e *AuthExchangeError) Unwrap() error { return e.Err }

// RefreshError is returned when the access token cannot be renewed.
// Stored credentials are always cleared before it is returned.
type RefreshError struct {
	Status  int
	Message string
	Err     error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("could not refresh the Inoreader connection: %s", e.Message)
}

func (e *RefreshError) Unwrap() error { return e.Err }
