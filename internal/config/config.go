// Package config handles loading and validating the shopmon configuration
// from YAML files with environment variable substitution.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	domain "github.com/donaldgifford/shopmon/pkg/types"
)

// ErrMissingConfiguration marks validation failures caused by a required
// field being absent, as opposed to a present-but-invalid value.
var ErrMissingConfiguration = errors.New("missing configuration")

// Config is the top-level application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Connections   []ConnectionConfig  `yaml:"connections"`
	Options       OptionsConfig       `yaml:"options"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Events        EventsConfig        `yaml:"events"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig defines the Echo HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig defines optional PostgreSQL settings for the credential
// store. When Host is empty, refreshed tokens are persisted to a local state
// file instead.
type DatabaseConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Name      string `yaml:"name"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	SSLMode   string `yaml:"sslmode"`
	PoolSize  int    `yaml:"pool_size"`
	StatePath string `yaml:"state_path"` // file store fallback
}

// Enabled reports whether a Postgres credential store is configured.
func (d *DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// DSN returns a PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode,
	)
}

// TokenConfig is the persisted OAuth token for a direct-mode connection.
type TokenConfig struct {
	AccessToken  string    `yaml:"access_token"`
	RefreshToken string    `yaml:"refresh_token"`
	ExpiresAt    time.Time `yaml:"expires_at"`
}

// Credential converts the token config into a domain credential.
func (t TokenConfig) Credential() domain.Credential {
	return domain.Credential{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt,
	}
}

// ConnectionConfig describes one logical shop connection. It is immutable
// for the lifetime of a coordinator except for explicit reconfiguration;
// only the token is written back (by the credential store) on refresh.
type ConnectionConfig struct {
	ID     string                `yaml:"id"`
	Mode   domain.ConnectionMode `yaml:"mode"`
	ShopID string                `yaml:"shop_id"`

	// Direct mode.
	ClientID     string      `yaml:"client_id"`
	ClientSecret string      `yaml:"client_secret"`
	Token        TokenConfig `yaml:"token"`

	// Proxy mode.
	ProxyURL   string `yaml:"proxy_url"`
	APIKey     string `yaml:"api_key"`
	HMACSecret string `yaml:"hmac_secret"`
}

// OptionsConfig defines the user-tunable display and alerting knobs.
type OptionsConfig struct {
	ListingsDisplayLimit     int `yaml:"listings_display_limit"`
	TransactionsDisplayLimit int `yaml:"transactions_display_limit"`
	StockThreshold           int `yaml:"stock_threshold"`
}

// Domain converts the options config into domain options.
func (o OptionsConfig) Domain() domain.Options {
	return domain.Options{
		ListingsDisplayLimit:     o.ListingsDisplayLimit,
		TransactionsDisplayLimit: o.TransactionsDisplayLimit,
		StockThreshold:           o.StockThreshold,
	}
}

// ScheduleConfig defines the refresh cadence.
type ScheduleConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// RateLimitConfig defines client-side Etsy API pacing.
type RateLimitConfig struct {
	PerSecond  float64 `yaml:"per_second"`
	Burst      int     `yaml:"burst"`
	DailyLimit int64   `yaml:"daily_limit"`
}

// EventsConfig defines change-detection event naming.
type EventsConfig struct {
	Prefix string `yaml:"prefix"`
}

// NotificationsConfig defines notification targets.
type NotificationsConfig struct {
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// DiscordConfig defines Discord webhook settings.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig defines generic webhook settings.
type WebhookConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Load reads and parses a YAML config file, performing environment variable
// substitution and validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // config path from trusted CLI flag
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the YAML content.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyOptionsDefaults(&cfg.Options)
	applyScheduleDefaults(&cfg.Schedule)
	applyRateLimitDefaults(&cfg.RateLimit)
	applyEventsDefaults(&cfg.Events)
	applyLoggingDefaults(&cfg.Logging)

	for i := range cfg.Connections {
		if cfg.Connections[i].Mode == "" {
			cfg.Connections[i].Mode = domain.ModeDirect
		}
	}
}

func applyServerDefaults(s *ServerConfig) {
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.Port == 0 {
		s.Port = 8080
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 30 * time.Second
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 30 * time.Second
	}
}

func applyDatabaseDefaults(d *DatabaseConfig) {
	if d.Port == 0 {
		d.Port = 5432
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.PoolSize == 0 {
		d.PoolSize = 10
	}
	if d.StatePath == "" {
		d.StatePath = "shopmon-state.yaml"
	}
}

func applyOptionsDefaults(o *OptionsConfig) {
	if o.ListingsDisplayLimit == 0 {
		o.ListingsDisplayLimit = domain.DefaultListingsDisplayLimit
	}
	if o.TransactionsDisplayLimit == 0 {
		o.TransactionsDisplayLimit = domain.DefaultTransactionsDisplayLimit
	}
	if o.StockThreshold == 0 {
		o.StockThreshold = domain.DefaultStockThreshold
	}
}

func applyScheduleDefaults(s *ScheduleConfig) {
	if s.RefreshInterval == 0 {
		s.RefreshInterval = 5 * time.Minute
	}
}

func applyRateLimitDefaults(r *RateLimitConfig) {
	if r.PerSecond == 0 {
		r.PerSecond = 5.0
	}
	if r.Burst == 0 {
		r.Burst = 10
	}
	if r.DailyLimit == 0 {
		r.DailyLimit = 10000
	}
}

func applyEventsDefaults(e *EventsConfig) {
	if e.Prefix == "" {
		e.Prefix = "etsyapp"
	}
}

func applyLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "text"
	}
}

func validate(cfg *Config) error {
	var errs []error

	if len(cfg.Connections) == 0 {
		errs = append(errs, fmt.Errorf("%w: at least one connection is required", ErrMissingConfiguration))
	}

	seen := make(map[string]bool, len(cfg.Connections))
	for i := range cfg.Connections {
		errs = append(errs, validateConnection(&cfg.Connections[i], seen)...)
	}

	errs = append(errs, validateOptions(&cfg.Options)...)

	if cfg.Notifications.Discord.Enabled && cfg.Notifications.Discord.WebhookURL == "" {
		errs = append(errs, fmt.Errorf(
			"%w: notifications.discord.webhook_url is required when enabled", ErrMissingConfiguration,
		))
	}
	if cfg.Notifications.Webhook.Enabled && cfg.Notifications.Webhook.URL == "" {
		errs = append(errs, fmt.Errorf(
			"%w: notifications.webhook.url is required when enabled", ErrMissingConfiguration,
		))
	}

	return errors.Join(errs...)
}

func validateConnection(c *ConnectionConfig, seen map[string]bool) []error {
	var errs []error

	if c.ID == "" {
		errs = append(errs, fmt.Errorf("%w: connections[].id is required", ErrMissingConfiguration))
	} else if seen[c.ID] {
		errs = append(errs, fmt.Errorf("duplicate connection id %q", c.ID))
	} else {
		seen[c.ID] = true
	}

	switch c.Mode {
	case domain.ModeDirect:
		if c.ShopID == "" {
			errs = append(errs, fmt.Errorf(
				"%w: connection %q: shop_id is required in direct mode", ErrMissingConfiguration, c.ID,
			))
		}
		if c.ClientID == "" {
			errs = append(errs, fmt.Errorf(
				"%w: connection %q: client_id is required in direct mode", ErrMissingConfiguration, c.ID,
			))
		}
		if c.ClientSecret == "" {
			errs = append(errs, fmt.Errorf(
				"%w: connection %q: client_secret is required in direct mode", ErrMissingConfiguration, c.ID,
			))
		}
	case domain.ModeProxy:
		if c.ProxyURL == "" {
			errs = append(errs, fmt.Errorf(
				"%w: connection %q: proxy_url is required in proxy mode", ErrMissingConfiguration, c.ID,
			))
		}
		if c.APIKey == "" {
			errs = append(errs, fmt.Errorf(
				"%w: connection %q: api_key is required in proxy mode", ErrMissingConfiguration, c.ID,
			))
		}
		if c.HMACSecret == "" {
			errs = append(errs, fmt.Errorf(
				"%w: connection %q: hmac_secret is required in proxy mode", ErrMissingConfiguration, c.ID,
			))
		}
	default:
		errs = append(errs, fmt.Errorf(
			"connection %q: mode must be one of: direct, proxy (got %q)", c.ID, c.Mode,
		))
	}

	return errs
}

func validateOptions(o *OptionsConfig) []error {
	var errs []error

	if o.ListingsDisplayLimit < 1 || o.ListingsDisplayLimit > domain.MaxDisplayLimit {
		errs = append(errs, fmt.Errorf(
			"options.listings_display_limit must be 1..%d (got %d)",
			domain.MaxDisplayLimit, o.ListingsDisplayLimit,
		))
	}
	if o.TransactionsDisplayLimit < 1 || o.TransactionsDisplayLimit > domain.MaxDisplayLimit {
		errs = append(errs, fmt.Errorf(
			"options.transactions_display_limit must be 1..%d (got %d)",
			domain.MaxDisplayLimit, o.TransactionsDisplayLimit,
		))
	}
	if o.StockThreshold < 1 || o.StockThreshold > domain.MaxStockThreshold {
		errs = append(errs, fmt.Errorf(
			"options.stock_threshold must be 1..%d (got %d)",
			domain.MaxStockThreshold, o.StockThreshold,
		))
	}

	return errs
}
