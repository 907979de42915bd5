package inoreader

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lepinkainen/feed-brief/internal/credentials"
	fbhttp "github.com/lepinkainen/feed-brief/pkg/http"
	"github.com/lepinkainen/feed-brief/pkg/ratelimit"
)

// Fetcher downloads one stream at a time and renders it as a feed envelope.
type Fetcher struct {
	client    *fbhttp.Client
	endpoints Endpoints
	limiter   ratelimit.Limiter
	itemCount int
}

// NewFetcher creates a Fetcher. A nil client uses a non-retrying default
// client and a nil limiter disables pacing.
func NewFetcher(client *fbhttp.Client, endpoints Endpoints, limiter ratelimit.Limiter) *Fetcher {
	if client == nil {
		client = fbhttp.NewClient(nil)
	}
	if limiter == nil {
		limiter = ratelimit.NoOp{}
	}
	return &Fetcher{
		client:    client,
		endpoints: endpoints,
		limiter:   limiter,
		itemCount: DefaultItemCount,
	}
}

// SetItemCount changes how many items one stream request asks for.
// Non-positive values restore DefaultItemCount.
func (f *Fetcher) SetItemCount(n int) {
	if n <= 0 {
		n = DefaultItemCount
	}
	f.itemCount = n
}

// Fetch retrieves up to itemCount items of the stream behind feedURL.
// Failures are always *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string, creds credentials.Credentials) (string, error) {
	stream, err := f.FetchStream(ctx, feedURL, creds)
	if err != nil {
		return "", err
	}

	blob, err := Envelope(feedURL, stream)
	if err != nil {
		return "", &FetchError{Kind: ErrFormatFailure, FeedURL: feedURL, Err: err}
	}
	return blob, nil
}

// FetchStream retrieves and decodes the stream without rendering it.
func (f *Fetcher) FetchStream(ctx context.Context, feedURL string, creds credentials.Credentials) (*Stream, error) {
	streamID, err := ResolveStreamID(feedURL)
	if err != nil {
		return nil, &FetchError{Kind: ErrInvalidURLFormat, FeedURL: feedURL}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Kind: ErrHTTPFailure, FeedURL: feedURL, Err: err}
	}

	resp, err := f.client.GetWithContext(ctx, f.endpoints.StreamURL(streamID, f.itemCount), map[string]string{
		"Authorization": "Bearer " + creds.Token,
		"AppId":         creds.ClientID,
		"AppKey":        creds.ClientSecret,
	})
	if err != nil {
		return nil, &FetchError{Kind: ErrHTTPFailure, FeedURL: feedURL, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		fbhttp.CloseBody(resp)
		return nil, &FetchError{Kind: ErrAuthFailure, FeedURL: feedURL, Status: resp.StatusCode}
	case !fbhttp.IsSuccess(resp):
		fbhttp.CloseBody(resp)
		return nil, &FetchError{Kind: ErrHTTPFailure, FeedURL: feedURL, Status: resp.StatusCode}
	}

	body, err := fbhttp.ReadResponseBody(resp)
	if err != nil {
		return nil, &FetchError{Kind: ErrHTTPFailure, FeedURL: feedURL, Status: resp.StatusCode, Err: err}
	}

	var stream Stream
	if err := json.Unmarshal(body, &stream); err != nil {
		return nil, &FetchError{Kind: ErrFormatFailure, FeedURL: feedURL, Status: resp.StatusCode, Err: err}
	}
	if stream.Items == nil {
		return nil, &FetchError{Kind: ErrFormatFailure, FeedURL: feedURL, Status: resp.StatusCode}
	}
	if stream.ID == "" {
		stream.ID = streamID
	}

	slog.Debug("Fetched Inoreader stream", "stream", streamID, "items", len(stream.Items))
	return &stream, nil
}
