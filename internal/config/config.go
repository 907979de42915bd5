package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lepinkainen/feed-brief/configs"
	"github.com/lepinkainen/feed-brief/internal/inoreader"
	"github.com/lepinkainen/feed-brief/internal/lang"
	loader "github.com/lepinkainen/feed-brief/pkg/config"
	"github.com/lepinkainen/feed-brief/pkg/filesystem"
	"github.com/lepinkainen/feed-brief/pkg/kvstore"
)

// EnvPrefix prefixes every environment override, e.g. FEED_BRIEF_LLM_MODEL.
const EnvPrefix = "FEED_BRIEF"

// DefaultFile is looked up in the working directory, then next to the executable.
const DefaultFile = "config.yaml"

// Config holds the central application configuration
type Config struct {
	Inoreader struct {
		BaseURL      string        `mapstructure:"base_url"`
		Proxy        string        `mapstructure:"proxy"`        // CORS relay prefix, empty for direct calls
		RedirectURL  string        `mapstructure:"redirect_url"` // must match the Inoreader app settings
		ClientID     string        `mapstructure:"client_id"`
		ClientSecret string        `mapstructure:"client_secret"`
		ItemCount    int           `mapstructure:"item_count"`
		RequestDelay time.Duration `mapstructure:"request_delay"` // minimum gap between stream requests
		Timeout      time.Duration `mapstructure:"timeout"`
	} `mapstructure:"inoreader"`

	Feeds struct {
		Source string   `mapstructure:"source"`
		URLs   []string `mapstructure:"urls"`
	} `mapstructure:"feeds"`

	LLM struct {
		Model       string        `mapstructure:"model"`
		APIKey      string        `mapstructure:"api_key"` // fallback when no key is stored
		BaseURL     string        `mapstructure:"base_url"`
		MinInterval time.Duration `mapstructure:"min_interval"`
	} `mapstructure:"llm"`

	Cache struct {
		Duration time.Duration `mapstructure:"duration"`
	} `mapstructure:"cache"`

	Images struct {
		FillMissing bool          `mapstructure:"fill_missing"`
		Timeout     time.Duration `mapstructure:"timeout"`
	} `mapstructure:"images"`

	Store struct {
		Driver   string `mapstructure:"driver"`
		Path     string `mapstructure:"path"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		Prefix   string `mapstructure:"prefix"`
	} `mapstructure:"store"`

	Server struct {
		Addr           string        `mapstructure:"addr"`
		AllowedOrigins []string      `mapstructure:"allowed_origins"`
		RelayHosts     []string      `mapstructure:"relay_hosts"` // hosts the /proxy/ relay may reach
		RelayTimeout   time.Duration `mapstructure:"relay_timeout"`
		RelayBurst     int           `mapstructure:"relay_burst"`
		RelayRefill    time.Duration `mapstructure:"relay_refill"`
	} `mapstructure:"server"`

	Language string `mapstructure:"language"`

	// path the configuration was read from, empty when only defaults apply
	path string
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are skipped and existing variables are not overridden.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to load env file", "path", p, "error", err)
		}
	}
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(configs.Defaults)); err != nil {
		return nil, fmt.Errorf("error reading built-in defaults: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "GEMINI_API_KEY", "API_KEY"); err != nil {
		return nil, err
	}
	return v, nil
}

// LoadConfig loads the configuration from a file merged over the built-in
// defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = DefaultFile
	}

	v, err := newViper()
	if err != nil {
		return nil, err
	}

	resolved, err := filesystem.ResolvePath(path)
	switch {
	case err == nil:
		v.SetConfigFile(resolved)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		slog.Debug("Loaded config file", "path", resolved)
	case explicit:
		return nil, fmt.Errorf("config file %s: %w", path, err)
	default:
		resolved = ""
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.path = resolved

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks values the rest of the program relies on.
func (c *Config) Validate() error {
	var problems []string
	if _, err := lang.Parse(c.Language); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Cache.Duration <= 0 {
		problems = append(problems, "cache.duration must be positive")
	}
	if c.Inoreader.RequestDelay < 0 {
		problems = append(problems, "inoreader.request_delay must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Path returns the file the configuration was read from, if any.
func (c *Config) Path() string {
	return c.path
}

// DefaultLanguage is the configured language.
func (c *Config) DefaultLanguage() lang.Language {
	l, err := lang.Parse(c.Language)
	if err != nil {
		return lang.Base
	}
	return l
}

// Endpoints returns the Inoreader endpoints.
func (c *Config) Endpoints() inoreader.Endpoints {
	return inoreader.Endpoints{Proxy: c.Inoreader.Proxy, BaseURL: c.Inoreader.BaseURL}
}

// StoreConfig returns the key-value store settings. An empty SQLite path
// means ~/.feed-brief/feed-brief.db.
func (c *Config) StoreConfig() (kvstore.Config, error) {
	cfg := kvstore.Config{
		Driver:        c.Store.Driver,
		Path:          c.Store.Path,
		RedisAddr:     c.Store.Addr,
		RedisPassword: c.Store.Password,
		RedisDB:       c.Store.DB,
		Prefix:        c.Store.Prefix,
	}
	if cfg.Driver == "sqlite" && cfg.Path == "" {
		p, err := filesystem.UserDataPath(kvstore.DefaultDBFile)
		if err != nil {
			return cfg, err
		}
		cfg.Path = p
	}
	return cfg, nil
}

type feedDocument struct {
	Feeds []string `json:"feeds" yaml:"feeds"`
}

// FeedURLs returns the feeds to brief. When feeds.source is set its list
// replaces feeds.urls; an unreachable or empty source falls back to urls.
func (c *Config) FeedURLs(ctx context.Context) []string {
	source := strings.TrimSpace(c.Feeds.Source)
	if source == "" {
		return c.Feeds.URLs
	}

	lc := loader.DefaultLoaderConfig()
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		lc.RemoteURL = source
	} else {
		lc.LocalPath = source
	}

	var doc feedDocument
	from, err := loader.LoadFromURLWithFallback(ctx, lc, &doc)
	if err != nil || len(doc.Feeds) == 0 {
		slog.Warn("Feed source unusable, using configured feeds", "source", source, "error", err)
		return c.Feeds.URLs
	}
	slog.Debug("Loaded feed list", "source", source, "from", from, "feeds", len(doc.Feeds))
	return doc.Feeds
}

// SaveConfig writes the user-editable settings to path, or to the file the
// configuration was loaded from, or to config.yaml.
func SaveConfig(config *Config, path string) error {
	if path == "" {
		path = config.path
	}
	if path == "" {
		path = DefaultFile
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.Set("inoreader.client_id", config.Inoreader.ClientID)
	v.Set("inoreader.client_secret", config.Inoreader.ClientSecret)
	v.Set("inoreader.redirect_url", config.Inoreader.RedirectURL)
	v.Set("feeds.urls", config.Feeds.URLs)
	v.Set("language", config.Language)

	if err := filesystem.EnsureDirectoryExists(path); err != nil {
		return err
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	config.path = path
	return nil
}
