// Package config loads msgsearch configuration from TOML.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// HomeEnv overrides the default home directory.
const HomeEnv = "MSGSEARCH_HOME"

// Config is the top-level configuration.
type Config struct {
	Data   DataConfig   `toml:"data"`
	Server ServerConfig `toml:"server"`
	Search SearchConfig `toml:"search"`
	Index  IndexConfig  `toml:"index"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir      string `toml:"data_dir"`
	DatabasePath string `toml:"database_path"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	BindAddr        string   `toml:"bind_addr"`
	APIPort         int      `toml:"api_port"`
	APIKey          string   `toml:"api_key"`
	AllowedOrigins  []string `toml:"allowed_origins"`
	RateLimitPerSec float64  `toml:"rate_limit_per_sec"`
	RateLimitBurst  int      `toml:"rate_limit_burst"`
	// AllowInsecure permits a non-loopback bind address without an API key.
	AllowInsecure bool `toml:"allow_insecure"`
}

// SearchConfig bounds result sizes.
type SearchConfig struct {
	DefaultLimit int `toml:"default_limit"`
	MaxLimit     int `toml:"max_limit"`
}

// IndexConfig controls full-text index rebuilds.
type IndexConfig struct {
	// Schedule is a cron expression; empty disables scheduled rebuilds.
	Schedule   string `toml:"schedule"`
	Workers    int    `toml:"workers"`
	BatchSize  int    `toml:"batch_size"`
	MaxRetries int    `toml:"max_retries"`
}

// DefaultHome returns the default msgsearch home directory.
// Respects the MSGSEARCH_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv(HomeEnv); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".msgsearch"
	}
	return filepath.Join(home, ".msgsearch")
}

// Default returns the configuration used when no file is present.
func Default(homeDir string) *Config {
	return &Config{
		HomeDir: homeDir,
		Data:    DataConfig{DataDir: homeDir},
		Server: ServerConfig{
			BindAddr:        "127.0.0.1",
			APIPort:         8080,
			RateLimitPerSec: 10,
			RateLimitBurst:  20,
		},
		Search: SearchConfig{DefaultLimit: 50, MaxLimit: 500},
		Index: IndexConfig{
			Schedule:   "0 3 * * *",
			Workers:    4,
			BatchSize:  200,
			MaxRetries: 3,
		},
	}
}

// Load reads the configuration file at path. When path is empty,
// config.toml in the home directory is used and may be absent. homeDir
// overrides DefaultHome when non-empty.
func Load(path, homeDir string) (*Config, error) {
	if homeDir == "" {
		homeDir = DefaultHome()
	} else {
		homeDir = expandPath(homeDir)
	}
	cfg := Default(homeDir)

	explicit := path != ""
	if !explicit {
		path = filepath.Join(homeDir, "config.toml")
	}
	path = expandPath(path)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if explicit {
			return nil, fmt.Errorf("config file %s not found", path)
		}
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)
	cfg.Data.DatabasePath = expandPath(cfg.Data.DatabasePath)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Server.APIPort < 0 || c.Server.APIPort > 65535 {
		return fmt.Errorf("server.api_port %d out of range", c.Server.APIPort)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit <= 0 {
		return errors.New("search limits must be positive")
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit %d exceeds search.max_limit %d",
			c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Index.Workers <= 0 {
		return errors.New("index.workers must be positive")
	}
	if c.Index.BatchSize <= 0 {
		return errors.New("index.batch_size must be positive")
	}
	if c.Index.MaxRetries < 0 {
		return errors.New("index.max_retries must not be negative")
	}
	return nil
}

// ValidateSecure refuses to expose an unauthenticated server beyond the
// loopback interface.
func (s ServerConfig) ValidateSecure() error {
	if s.APIKey != "" || s.AllowInsecure || isLoopback(s.BindAddr) {
		return nil
	}
	return fmt.Errorf("server.bind_addr %q is not a loopback address: set server.api_key or server.allow_insecure", s.BindAddr)
}

func isLoopback(addr string) bool {
	if addr == "" || strings.EqualFold(addr, "localhost") {
		return true
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsLoopback()
}

// DatabasePath returns the path to the SQLite database.
func (c *Config) DatabasePath() string {
	if c.Data.DatabasePath != "" {
		return c.Data.DatabasePath
	}
	return filepath.Join(c.Data.DataDir, "msgsearch.db")
}

// ClampLimit applies the search limits to a requested page size.
func (c *Config) ClampLimit(n int) int {
	switch {
	case n <= 0:
		return c.Search.DefaultLimit
	case n > c.Search.MaxLimit:
		return c.Search.MaxLimit
	}
	return n
}

// EnsureHomeDir creates the data directory if it doesn't exist.
func (c *Config) EnsureHomeDir() error {
	return os.MkdirAll(c.Data.DataDir, 0700)
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
