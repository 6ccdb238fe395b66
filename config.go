package insights

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// SiteConfig holds all configuration for an insights site.
type SiteConfig struct {
	Name        string `yaml:"name"`        // Site name (default "Insights")
	URL         string `yaml:"url"`         // Canonical URL (default "http://localhost:3000")
	Description string `yaml:"description"` // Site description for RSS and meta tags
	Author      string `yaml:"author"`      // Author name for JSON-LD

	Addr         string `yaml:"addr"`          // Listen address (default ":3000")
	DatabasePath string `yaml:"database_path"` // SQLite path (default "data/insights.db")

	DisableAnalytics bool `yaml:"disable_analytics"` // Turn off page-view tracking

	SessionSecret string        `yaml:"session_secret"` // Required: session encryption secret
	TokenSecret   string        `yaml:"token_secret"`   // API token signing secret (defaults to SessionSecret)
	TokenTTL      time.Duration `yaml:"token_ttl"`      // API token lifetime (default 24h)
	CookieSecure  bool          `yaml:"cookie_secure"`  // Set true for HTTPS

	PostCacheTTL time.Duration `yaml:"post_cache_ttl"` // Post cache TTL (default 5min)
	RedisAddr    string        `yaml:"redis_addr"`     // Optional shared cache, e.g. "localhost:6379"

	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error (default "info")
	LogFormat string `yaml:"log_format"` // json or console (default "json")
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Insights"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/insights.db"
	}
	if c.TokenSecret == "" {
		c.TokenSecret = c.SessionSecret
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = 24 * time.Hour
	}
	if c.PostCacheTTL == 0 {
		c.PostCacheTTL = 5 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
}

// LoadConfig reads an optional YAML file and overlays environment
// variables. An empty path skips the file.
func LoadConfig(path string) (SiteConfig, error) {
	var cfg SiteConfig
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	cfg.setDefaults()
	return cfg, nil
}

func (c *SiteConfig) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	str("SITE_NAME", &c.Name)
	str("SITE_URL", &c.URL)
	str("SITE_DESCRIPTION", &c.Description)
	str("SITE_AUTHOR", &c.Author)
	str("ADDR", &c.Addr)
	str("DATABASE_PATH", &c.DatabasePath)
	boolean("DISABLE_ANALYTICS", &c.DisableAnalytics)
	str("SESSION_SECRET", &c.SessionSecret)
	str("TOKEN_SECRET", &c.TokenSecret)
	duration("TOKEN_TTL", &c.TokenTTL)
	boolean("COOKIE_SECURE", &c.CookieSecure)
	duration("POST_CACHE_TTL", &c.PostCacheTTL)
	str("REDIS_ADDR", &c.RedisAddr)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	return errors.Join(errs...)
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStaticDir sets the directory for user-owned static assets and
// uploads (default "public").
func WithStaticDir(dir string) Option {
	return func(a *App) {
		a.staticDir = dir
	}
}

// WithLogger replaces the logger built from LogLevel and LogFormat.
func WithLogger(log *zap.Logger) Option {
	return func(a *App) {
		a.Log = log
	}
}

// WithBlobStore replaces the default on-disk upload storage.
func WithBlobStore(b BlobStore) Option {
	return func(a *App) {
		a.blobs = b
	}
}
