package http

import (
	"io"
	"log/slog"
	"net/http"
)

// MaxBodySize caps how much of a response body is read into memory.
const MaxBodySize = 16 << 20

// ReadResponseBody reads and closes HTTP response body
func ReadResponseBody(resp *http.Response) ([]byte, error) {
	defer CloseBody(resp)
	return io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
}

// CloseBody closes the body and logs a failure.
func CloseBody(resp *http.Response) {
	if closeErr := resp.Body.Close(); closeErr != nil {
		slog.Error("Failed to close response body", "error", closeErr)
	}
}

// IsSuccess reports whether the status code is in the 2xx range.
func IsSuccess(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// GetContentType returns the content type of the response
func GetContentType(resp *http.Response) string {
	return resp.Header.Get("Content-Type")
}
