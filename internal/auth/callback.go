package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	"github.com/lepinkainen/feed-brief/internal/credentials"
)

// CallbackPath is where the local listener expects the provider redirect.
const CallbackPath = "/callback"

// ListenAddr returns the host:port the local listener should bind for a
// redirect URL such as http://localhost:8080/callback.
func ListenAddr(redirectURL string) (string, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", err)
	}
	if u.Scheme != "http" || u.Host == "" {
		return "", fmt.Errorf("redirect URL %q is not a local http address", redirectURL)
	}
	port := u.Port()
	if port == "" {
		port = "80"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

type callback struct {
	url  string
	done chan error
}

// Login runs the whole handshake against a local listener: it generates
// the link, hands it to open, waits for the provider redirect on ln and
// completes the exchange. ln is closed before Login returns.
func (h *Handshake) Login(ctx context.Context, client credentials.ClientPair, ln net.Listener, open func(string) error) (*credentials.Credentials, error) {
	link, err := h.GenerateAuthLink(ctx, client.ClientID, client.ClientSecret)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}

	received := make(chan callback)
	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, func(w http.ResponseWriter, r *http.Request) {
		cb := callback{url: "http://" + r.Host + r.URL.RequestURI(), done: make(chan error, 1)}
		select {
		case received <- cb:
		case <-r.Context().Done():
			return
		}

		if err := <-cb.done; err != nil {
			slog.Error("OAuth2 callback failed", "error", err)
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "Authentication failed: %v. Please check the console for details.", err)
			return
		}
		fmt.Fprint(w, "Authentication successful! You can close this browser tab.")
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		slog.Info("Starting local HTTP server for OAuth2 callback", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Error shutting down HTTP server", "error", err)
		}
	}()

	slog.Info("Opening browser for Inoreader authorization", "url", link)
	if err := open(link); err != nil {
		slog.Warn("Failed to open browser, open the URL manually", "url", link, "error", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case cb := <-received:
		creds, err := h.CompleteFromRedirect(ctx, cb.url)
		cb.done <- err
		return creds, err
	}
}

// OpenBrowser opens the given URL in the default web browser.
func OpenBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start"}
	case "darwin":
		cmd = "open"
	default:
		cmd = "xdg-open"
	}
	args = append(args, url)
	return exec.Command(cmd, args...).Start()
}
