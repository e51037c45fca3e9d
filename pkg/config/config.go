// Package config loads the zauthd daemon configuration from TOML
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ZentaChain/zsock-node/pkg/network"
	"github.com/ZentaChain/zsock-node/pkg/protocol"
	"github.com/ZentaChain/zsock-node/pkg/zauth"
)

// Config is the full zauthd runtime configuration
type Config struct {
	// Listen is the authentication endpoint URI
	Listen string `toml:"listen"`

	// Domain requests must carry to authenticate
	Domain string `toml:"domain"`

	// StorePath points at the sqlite credential database. Empty keeps
	// credentials in memory only.
	StorePath string `toml:"store_path"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `toml:"log_level"`

	// Users maps PLAIN usernames to passwords seeded at startup
	Users map[string]string `toml:"users"`

	// CurveKeys lists Z85-encoded public keys allowed at startup
	CurveKeys []string `toml:"curve_keys"`

	// Allow and Deny seed the peer address rules
	Allow []string `toml:"allow"`
	Deny  []string `toml:"deny"`

	API APIConfig `toml:"api"`
}

// APIConfig configures the HTTP admin API
type APIConfig struct {
	Enabled   bool   `toml:"enabled"`
	Addr      string `toml:"addr"`
	RateLimit int    `toml:"rate_limit"`
}

// Default returns the configuration zauthd runs with when no file is
// given
func Default() Config {
	return Config{
		Listen:   protocol.WellKnownEndpoint,
		LogLevel: "info",
		API: APIConfig{
			Enabled:   false,
			Addr:      ":8081",
			RateLimit: 100,
		},
	}
}

// Load reads path over the defaults and validates the result
func Load(path string) (Config, error) {
	cfg := Default()

	var raw Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("domain") {
		cfg.Domain = strings.TrimSpace(raw.Domain)
	}
	if meta.IsDefined("store_path") {
		cfg.StorePath = strings.TrimSpace(raw.StorePath)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("users") {
		cfg.Users = raw.Users
	}
	if meta.IsDefined("curve_keys") {
		cfg.CurveKeys = raw.CurveKeys
	}
	if meta.IsDefined("allow") {
		cfg.Allow = raw.Allow
	}
	if meta.IsDefined("deny") {
		cfg.Deny = raw.Deny
	}
	if meta.IsDefined("api", "enabled") {
		cfg.API.Enabled = raw.API.Enabled
	}
	if meta.IsDefined("api", "addr") {
		cfg.API.Addr = strings.TrimSpace(raw.API.Addr)
	}
	if meta.IsDefined("api", "rate_limit") {
		cfg.API.RateLimit = raw.API.RateLimit
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for mistakes worth refusing to
// start over
func (c Config) Validate() error {
	if _, err := network.ParseEndpoint(c.Listen); err != nil {
		return fmt.Errorf("load config: listen endpoint %q: %w", c.Listen, err)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("load config: unknown log level %q", c.LogLevel)
	}

	for username, password := range c.Users {
		if username == "" || password == "" {
			return fmt.Errorf("load config: users entries need a username and a password")
		}
	}

	for _, key := range c.CurveKeys {
		if err := zauth.ValidateCurveKey(key); err != nil {
			return fmt.Errorf("load config: curve key %q: %w", key, err)
		}
	}

	if c.API.Enabled && strings.TrimSpace(c.API.Addr) == "" {
		return fmt.Errorf("load config: api.addr is required when the api is enabled")
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("load config: api.rate_limit must not be negative")
	}
	return nil
}
