// Package config loads backdrop's TOML configuration.
//
// Lookup order for the config file:
//
//  1. the path given with --config
//  2. $XDG_CONFIG_HOME/backdrop/config.toml (or ~/.config/backdrop/config.toml)
//
// A missing file is not an error; every field has a default. Environment
// variables override file values for secrets and deployment-specific
// endpoints: FIGMA_ACCESS_TOKEN (or the variable named by
// source.token_env) and BACKDROP_REDIS_URL.
//
// Example:
//
//	[source]
//	bundle = "./templates"
//
//	[export]
//	concurrency = 4
//	delay = "50ms"
//	rasterizer = "composite"
//
//	[cache]
//	backend = "redis"
//	redis_url = "redis://localhost:6379/0"
//	prefix = "staging:"
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/backdrop/pkg/errors"
)

// AppName names the config and cache directories.
const AppName = "backdrop"

// Environment variables read by [Config.ApplyEnv].
const (
	EnvFigmaToken = "FIGMA_ACCESS_TOKEN"
	EnvRedisURL   = "BACKDROP_REDIS_URL"
)

// Rasterizer names.
const (
	RasterizerCapture   = "capture"
	RasterizerComposite = "composite"
)

// Cache backends.
const (
	CacheFile  = "file"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// Output formats.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// ValidRasterizers is the set of supported rasterizer names.
var ValidRasterizers = map[string]bool{
	RasterizerCapture:   true,
	RasterizerComposite: true,
}

// ValidFormats is the set of supported image formats.
var ValidFormats = map[string]bool{
	FormatPNG:  true,
	FormatJPEG: true,
}

// ValidCacheBackends is the set of supported cache backends.
var ValidCacheBackends = map[string]bool{
	CacheFile:  true,
	CacheRedis: true,
	CacheNone:  true,
}

// MaxConcurrency caps export.concurrency.
const MaxConcurrency = 16

// Config is the complete configuration.
type Config struct {
	Source SourceConfig `toml:"source"`
	Export ExportConfig `toml:"export"`
	Cache  CacheConfig  `toml:"cache"`
	Server ServerConfig `toml:"server"`
	Rules  RulesConfig  `toml:"rules"`
	Fonts  FontsConfig  `toml:"fonts"`

	// Path is the file the config was read from, empty for defaults.
	Path string `toml:"-"`
}

// SourceConfig selects where templates come from.
type SourceConfig struct {
	Bundle   string `toml:"bundle"`    // local bundle directory
	Catalog  string `toml:"catalog"`   // optional YAML catalog override
	FileKey  string `toml:"file_key"`  // Figma file key, overrides the catalog
	TokenEnv string `toml:"token_env"` // env var holding the Figma token
	BaseURL  string `toml:"base_url"`  // Figma API base URL

	Token string `toml:"-"`
}

// ExportConfig tunes the export pipeline.
type ExportConfig struct {
	Concurrency int           `toml:"concurrency"` // 0 picks from memory pressure
	Delay       time.Duration `toml:"delay"`
	Rasterizer  string        `toml:"rasterizer"`
	Format      string        `toml:"format"`
	Timeout     time.Duration `toml:"timeout"` // background load timeout
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	Backend  string        `toml:"backend"`
	Dir      string        `toml:"dir"`
	TTL      time.Duration `toml:"ttl"`
	RedisURL string        `toml:"redis_url"`
	Prefix   string        `toml:"prefix"` // key prefix for a shared Redis
}

// ServerConfig configures `backdrop serve`.
type ServerConfig struct {
	Addr            string        `toml:"addr"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// RulesConfig points at a layout rules file replacing the built-in table.
type RulesConfig struct {
	Path string `toml:"path"`
}

// FontsConfig points at font files replacing the built-in Go fonts.
type FontsConfig struct {
	Regular string `toml:"regular"`
	Bold    string `toml:"bold"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Bundle:   "templates",
			TokenEnv: EnvFigmaToken,
			BaseURL:  "https://api.figma.com",
		},
		Export: ExportConfig{
			Delay:      50 * time.Millisecond,
			Rasterizer: RasterizerCapture,
			Format:     FormatPNG,
			Timeout:    30 * time.Second,
		},
		Cache: CacheConfig{
			Backend: CacheFile,
			TTL:     24 * time.Hour,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load reads the config at path. An empty path searches [DefaultPath];
// a missing default file yields [Default]. An explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return cfg, nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config %s", path)
	}
	cfg.Path = path
	return cfg, nil
}

// ApplyEnv copies secrets and endpoints from the environment.
func (c *Config) ApplyEnv() {
	env := c.Source.TokenEnv
	if env == "" {
		env = EnvFigmaToken
	}
	if tok := os.Getenv(env); tok != "" {
		c.Source.Token = tok
	}
	if url := os.Getenv(EnvRedisURL); url != "" {
		c.Cache.RedisURL = url
	}
}

// Validate checks enumerated values and ranges.
func (c *Config) Validate() error {
	if !ValidRasterizers[c.Export.Rasterizer] {
		return errors.New(errors.ErrCodeInvalidConfig, "unknown rasterizer %q (want capture or composite)", c.Export.Rasterizer)
	}
	if !ValidFormats[c.Export.Format] {
		return errors.New(errors.ErrCodeInvalidConfig, "unknown format %q (want png or jpeg)", c.Export.Format)
	}
	if c.Export.Concurrency < 0 || c.Export.Concurrency > MaxConcurrency {
		return errors.New(errors.ErrCodeInvalidConfig, "export.concurrency must be between 0 and %d", MaxConcurrency)
	}
	if c.Export.Delay < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "export.delay cannot be negative")
	}
	if c.Export.Timeout <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "export.timeout must be positive")
	}
	if !ValidCacheBackends[c.Cache.Backend] {
		return errors.New(errors.ErrCodeInvalidConfig, "unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == CacheRedis && c.Cache.RedisURL == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "cache.redis_url is required for the redis backend")
	}
	return nil
}

// CacheDir returns cache.dir, or the XDG cache directory (~/.cache/backdrop/).
func (c *Config) CacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", AppName), nil
}

// Dir returns the XDG config directory (~/.config/backdrop/).
func Dir() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}
