// Package config loads JSON or YAML documents from a URL or a local file.
package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	fbhttp "github.com/lepinkainen/feed-brief/pkg/http"
)

// Source names where a document was loaded from.
type Source string

const (
	SourceRemote  Source = "remote"
	SourceLocal   Source = "local"
	SourceDefault Source = "default"
)

// ErrNoSource is returned when neither location could be loaded and
// falling back to the target's defaults is disabled.
var ErrNoSource = errors.New("failed to load configuration from URL and local file")

// LoaderConfig represents configuration loading options
type LoaderConfig struct {
	RemoteURL         string
	LocalPath         string
	Timeout           time.Duration
	MaxRetries        int
	FallbackToDefault bool
}

// DefaultLoaderConfig returns default loader configuration
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		Timeout:           10 * time.Second,
		MaxRetries:        3,
		FallbackToDefault: true,
	}
}

// LoadFromURLWithFallback loads configuration from URL with local fallback.
// When both fail and FallbackToDefault is set, target is left untouched.
func LoadFromURLWithFallback(ctx context.Context, config *LoaderConfig, target any) (Source, error) {
	if config.RemoteURL != "" {
		err := loadFromURL(ctx, config.RemoteURL, config.Timeout, config.MaxRetries, target)
		if err == nil {
			return SourceRemote, nil
		}
		slog.Warn("Failed to load remote configuration", "url", config.RemoteURL, "error", err)
	}

	if config.LocalPath != "" {
		err := loadFromFile(config.LocalPath, target)
		if err == nil {
			return SourceLocal, nil
		}
		slog.Warn("Failed to load local configuration", "path", config.LocalPath, "error", err)
	}

	if !config.FallbackToDefault {
		return "", ErrNoSource
	}
	return SourceDefault, nil
}

// loadFromURL loads configuration from a remote URL using shared HTTP utilities
func loadFromURL(ctx context.Context, url string, timeout time.Duration, maxRetries int, target any) error {
	httpConfig := fbhttp.DefaultConfig()
	httpConfig.Timeout = timeout
	httpConfig.MaxRetries = maxRetries

	client := fbhttp.NewClient(httpConfig)
	resp, err := client.GetWithContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch config from URL: %w", err)
	}
	if !fbhttp.IsSuccess(resp) {
		fbhttp.CloseBody(resp)
		return fmt.Errorf("HTTP error fetching config: %s", resp.Status)
	}

	data, err := fbhttp.ReadResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read config response: %w", err)
	}

	format := detectFormat(url, data)
	if strings.Contains(fbhttp.GetContentType(resp), "json") {
		format = "json"
	}
	if err := decode(data, format, target); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}
	return nil
}

// loadFromFile loads configuration from a local file
func loadFromFile(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return decode(data, detectFormat(path, data), target)
}

func decode(data []byte, format string, target any) error {
	if format == "json" {
		if err := json.Unmarshal(data, target); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// detectFormat picks "json" or "yaml". The file extension wins; otherwise
// content starting with { or [ is JSON.
func detectFormat(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return "json"
	}
	return "yaml"
}
