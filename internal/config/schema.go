package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version       int                 `yaml:"version"`
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	Sync          SyncConfig          `yaml:"sync"`
	Live          LiveConfig          `yaml:"live"`
	Log           LogConfig           `yaml:"log"`
	PositionCache PositionCacheConfig `yaml:"position_cache"`
	// WatchConfig reloads upstream credentials and log level when the file changes
	WatchConfig bool `yaml:"watch_config"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
	// BusyTimeout bounds how long a direct write waits on a running sync
	BusyTimeout Duration `yaml:"busy_timeout"`
}

// Pagination strategies for upstream collection fetches
const (
	PaginationSingle = "single"
	PaginationFollow = "follow"
)

// UpstreamConfig describes the source-of-truth inventory API
type UpstreamConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token,omitempty"`
	// AuthScheme prefixes the token in the Authorization header (Token or Bearer)
	AuthScheme string   `yaml:"auth_scheme"`
	Timeout    Duration `yaml:"timeout"`
	// PageLimit is the page size requested per call; 1000 by default
	PageLimit int `yaml:"page_limit"`
	// Pagination is "single" (one page, PageLimit is a hard ceiling) or "follow"
	Pagination         string `yaml:"pagination"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// Commit modes for a reconciliation run
const (
	CommitAtomic = "atomic"
	CommitPhased = "phased"
)

// SyncConfig controls reconciliation
type SyncConfig struct {
	// CommitMode is "atomic" (one transaction per run) or "phased" (commit per phase)
	CommitMode string `yaml:"commit_mode"`
}

// LiveConfig controls the websocket fan-out
type LiveConfig struct {
	// AllowedOrigins for the websocket upgrade; empty or "*" allows any origin
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	// SendBuffer is the per-channel outgoing queue length
	SendBuffer int `yaml:"send_buffer"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PositionCacheConfig enables the flat JSON side-cache of positions
type PositionCacheConfig struct {
	// Path to the JSON file; empty disables the cache
	Path string `yaml:"path,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
