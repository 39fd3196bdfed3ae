// Package config provides configuration management for netmirror.
//
// Settings come from a YAML file, then environment overrides, then
// command-line flags applied by main. The upstream token is normally
// supplied through NETBOX_API_TOKEN rather than written to the file.
//
// Config file locations (priority order, see SearchPaths):
//  1. $NETMIRROR_CONFIG
//  2. ./netmirror.yaml
//  3. $XDG_CONFIG_HOME/netmirror/config.yaml or ~/.config/netmirror/config.yaml
//  4. /etc/netmirror/config.yaml
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides
const (
	EnvUpstreamURL   = "NETBOX_API_URL"
	EnvUpstreamToken = "NETBOX_API_TOKEN"
	EnvDatabasePath  = "NETMIRROR_DB"
	EnvListenAddr    = "NETMIRROR_ADDR"
	EnvLogLevel      = "NETMIRROR_LOG_LEVEL"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		cfg := DefaultConfig()
		cfg.applyEnv()
		return cfg, "", cfg.Validate()
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// WriteYAML prints the effective config as YAML, leaving out the upstream token
func (c *Config) WriteYAML(w io.Writer) error {
	out := *c
	out.Upstream.Token = ""

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&out); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(10 * time.Second)
	}
	// A full reconciliation can take several upstream round trips
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(5 * time.Minute)
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = Duration(60 * time.Second)
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if c.Database.Path == "" {
		c.Database.Path = "./network.db"
	}
	if c.Database.BusyTimeout == 0 {
		c.Database.BusyTimeout = Duration(5 * time.Second)
	}
	if c.Upstream.AuthScheme == "" {
		c.Upstream.AuthScheme = "Token"
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = Duration(30 * time.Second)
	}
	if c.Upstream.PageLimit == 0 {
		c.Upstream.PageLimit = 1000
	}
	if c.Upstream.Pagination == "" {
		c.Upstream.Pagination = PaginationSingle
	}
	if c.Sync.CommitMode == "" {
		c.Sync.CommitMode = CommitAtomic
	}
	if c.Live.SendBuffer == 0 {
		c.Live.SendBuffer = 64
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// applyEnv overlays environment variables on top of file values
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvUpstreamURL); v != "" {
		c.Upstream.URL = v
	}
	if v := os.Getenv(EnvUpstreamToken); v != "" {
		c.Upstream.Token = v
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Validate checks enumerated settings
func (c *Config) Validate() error {
	switch c.Upstream.Pagination {
	case PaginationSingle, PaginationFollow:
	default:
		return fmt.Errorf("invalid upstream.pagination %q, must be %q or %q",
			c.Upstream.Pagination, PaginationSingle, PaginationFollow)
	}
	switch c.Sync.CommitMode {
	case CommitAtomic, CommitPhased:
	default:
		return fmt.Errorf("invalid sync.commit_mode %q, must be %q or %q",
			c.Sync.CommitMode, CommitAtomic, CommitPhased)
	}
	if c.Upstream.PageLimit < 0 {
		return fmt.Errorf("upstream.page_limit must be positive, got %d", c.Upstream.PageLimit)
	}
	if c.Upstream.URL != "" && !strings.HasPrefix(c.Upstream.URL, "http://") && !strings.HasPrefix(c.Upstream.URL, "https://") {
		return fmt.Errorf("upstream.url must be an http(s) URL, got %q", c.Upstream.URL)
	}
	return nil
}

// AllowsAnyOrigin reports whether the websocket accepts every origin
func (c *Config) AllowsAnyOrigin() bool {
	if len(c.Live.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range c.Live.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	token := "unset"
	if c.Upstream.Token != "" {
		token = "set"
	}
	return fmt.Sprintf("addr=%s db=%s upstream=%s token=%s pagination=%s/%d commit=%s",
		c.Server.Addr, c.Database.Path, c.Upstream.URL, token,
		c.Upstream.Pagination, c.Upstream.PageLimit, c.Sync.CommitMode)
}
