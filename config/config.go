// Package config provides newsletterd's configuration: an embedded-TOML
// default decoded with github.com/BurntSushi/toml, overridable by
// environment variables for secrets, served through a Provider that
// wraps atomic.Value for lock-free concurrent reads — the same shape as
// caasmo/restinpieces/config.Provider.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/toml"
)

// Provider holds the current configuration and allows atomic hot-reload.
type Provider struct {
	value atomic.Value // holds *Config
}

// NewProvider creates a Provider seeded with c. Panics if c is nil.
func NewProvider(c *Config) *Provider {
	if c == nil {
		panic("newsletterd/config: initial config cannot be nil")
	}
	p := &Provider{}
	p.value.Store(c)
	return p
}

// Get returns the current configuration snapshot. Safe for concurrent use.
func (p *Provider) Get() *Config {
	return p.value.Load().(*Config)
}

// Update atomically swaps in newConfig. The caller must ensure it is valid.
func (p *Provider) Update(newConfig *Config) {
	p.value.Store(newConfig)
}

// Environment variables used to override secrets embedded/defaulted in
// config.toml (spec.md scopes CLI/config-loading frameworks out; this
// stays a flat env-var override list, not a framework).
const (
	EnvGatewayToken = "NEWSLETTERD_GATEWAY_TOKEN"
	EnvSmtpUsername = "NEWSLETTERD_SMTP_USERNAME"
	EnvSmtpPassword = "NEWSLETTERD_SMTP_PASSWORD"
)

// Reaper configures package reaper.
type Reaper struct {
	Interval time.Duration
	TTL      time.Duration
}

// Worker configures package worker.
type Worker struct {
	PoolSize           int
	FromEmail          string
	DefaultNRetries    int16
	DefaultBackoffSecs int32
}

// Gateway configures package emailgateway.
type Gateway struct {
	BaseURL string
	Token   string
	InboxID string
	Timeout time.Duration
}

// Smtp configures notify/mailer.
type Smtp struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	To         string
	AuthMethod string
	UseTLS     bool
}

// Discord configures notify/discord.
type Discord struct {
	Enabled    bool
	WebhookURL string
}

// Config is newsletterd's full runtime configuration.
type Config struct {
	DBFile  string
	Reaper  Reaper
	Worker  Worker
	Gateway Gateway
	Smtp    Smtp
	Discord Discord
}

//go:embed config.toml
var defaultConfigToml []byte

// rawConfig mirrors config.toml's shape. BurntSushi/toml has no built-in
// decoding of time.Duration from strings like "10m", so durations are
// read as plain integer seconds (milliseconds for the gateway timeout) here
// and converted into Config below.
type rawConfig struct {
	Reaper struct {
		IntervalSecs int `toml:"interval_secs"`
		TTLSecs      int `toml:"ttl_secs"`
	}
	Worker struct {
		PoolSize           int    `toml:"pool_size"`
		FromEmail          string `toml:"from_email"`
		DefaultNRetries    int16  `toml:"default_n_retries"`
		DefaultBackoffSecs int32  `toml:"default_backoff_secs"`
	}
	Gateway struct {
		BaseURL      string `toml:"base_url"`
		Token        string `toml:"token"`
		InboxID      string `toml:"inbox_id"`
		TimeoutMs    int    `toml:"timeout_ms"`
	}
	Smtp struct {
		Host       string `toml:"host"`
		Port       int    `toml:"port"`
		Username   string `toml:"username"`
		Password   string `toml:"password"`
		From       string `toml:"from"`
		To         string `toml:"to"`
		AuthMethod string `toml:"auth_method"`
		UseTLS     bool   `toml:"use_tls"`
	}
	Discord struct {
		Enabled    bool   `toml:"enabled"`
		WebhookURL string `toml:"webhook_url"`
	}
}

// Load builds a Config from the embedded default TOML, then applies
// dbfile and environment-variable overrides for secrets.
func Load(dbfile string) (*Config, error) {
	var raw rawConfig
	if _, err := toml.Decode(string(defaultConfigToml), &raw); err != nil {
		return nil, fmt.Errorf("config: decode embedded default config: %w", err)
	}

	cfg := &Config{
		DBFile: dbfile,
		Reaper: Reaper{
			Interval: time.Duration(raw.Reaper.IntervalSecs) * time.Second,
			TTL:      time.Duration(raw.Reaper.TTLSecs) * time.Second,
		},
		Worker: Worker{
			PoolSize:           raw.Worker.PoolSize,
			FromEmail:          raw.Worker.FromEmail,
			DefaultNRetries:    raw.Worker.DefaultNRetries,
			DefaultBackoffSecs: raw.Worker.DefaultBackoffSecs,
		},
		Gateway: Gateway{
			BaseURL: raw.Gateway.BaseURL,
			Token:   raw.Gateway.Token,
			InboxID: raw.Gateway.InboxID,
			Timeout: time.Duration(raw.Gateway.TimeoutMs) * time.Millisecond,
		},
		Smtp: Smtp{
			Host:       raw.Smtp.Host,
			Port:       raw.Smtp.Port,
			Username:   raw.Smtp.Username,
			Password:   raw.Smtp.Password,
			From:       raw.Smtp.From,
			To:         raw.Smtp.To,
			AuthMethod: raw.Smtp.AuthMethod,
			UseTLS:     raw.Smtp.UseTLS,
		},
		Discord: Discord{
			Enabled:    raw.Discord.Enabled,
			WebhookURL: raw.Discord.WebhookURL,
		},
	}

	if token := os.Getenv(EnvGatewayToken); token != "" {
		cfg.Gateway.Token = token
	}
	if user := os.Getenv(EnvSmtpUsername); user != "" {
		cfg.Smtp.Username = user
	}
	if pass := os.Getenv(EnvSmtpPassword); pass != "" {
		cfg.Smtp.Password = pass
	}

	return cfg, nil
}
