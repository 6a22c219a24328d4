// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/buildcache/lib/archive"
	"github.com/bureau-foundation/buildcache/lib/buildinfo"
)

// Environment represents where the build runs.
type Environment string

const (
	// Development is an interactive developer machine.
	Development Environment = "development"
	// CI is a continuous integration worker.
	CI Environment = "ci"
	// Production is a release build.
	Production Environment = "production"
)

// Config is the master configuration for buildcache.
type Config struct {
	Environment Environment `yaml:"environment"`

	Paths     PathsConfig     `yaml:"paths"`
	Cache     CacheConfig     `yaml:"cache"`
	Pool      PoolConfig      `yaml:"pool"`
	BuildInfo BuildInfoConfig `yaml:"buildinfo"`
	Log       LogConfig       `yaml:"log"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *Overrides `yaml:"development,omitempty"`
	CI          *Overrides `yaml:"ci,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains fields that can be overridden per environment.
// Empty strings and nil pointers leave the base value alone.
type Overrides struct {
	Paths     *PathsConfig     `yaml:"paths,omitempty"`
	Cache     *CacheOverrides  `yaml:"cache,omitempty"`
	Pool      *PoolConfig      `yaml:"pool,omitempty"`
	BuildInfo *BuildInfoConfig `yaml:"buildinfo,omitempty"`
	Log       *LogConfig       `yaml:"log,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for buildcache data.
	Root string `yaml:"root"`

	// Artifacts is the local directory cache.
	Artifacts string `yaml:"artifacts"`

	// Temp holds archives while they are downloaded and extracted.
	Temp string `yaml:"temp"`
}

// CacheConfig configures artifact caching.
type CacheConfig struct {
	// Mode is "dir" (the local directory cache) or "none".
	// Default: dir
	Mode string `yaml:"mode"`

	// ArchiveFormat is tar_zstd, tar_lz4, or tar.
	// Default: tar_zstd
	ArchiveFormat string `yaml:"archive_format"`

	// CoalesceFetches shares one fetch between concurrent requests
	// for the same rule key.
	// Default: true
	CoalesceFetches bool `yaml:"coalesce_fetches"`

	// ReadOnly disables storing artifacts.
	// Default: false (development), true (ci)
	ReadOnly bool `yaml:"read_only"`
}

// CacheOverrides mirrors CacheConfig with optional booleans.
type CacheOverrides struct {
	Mode            string `yaml:"mode"`
	ArchiveFormat   string `yaml:"archive_format"`
	CoalesceFetches *bool  `yaml:"coalesce_fetches"`
	ReadOnly        *bool  `yaml:"read_only"`
}

// PoolConfig configures the fetch worker pool.
type PoolConfig struct {
	// Capacity is the total weight budget. Zero means one per CPU.
	Capacity int64 `yaml:"capacity"`

	// FetchWeight and ExtractWeight are the weights of the two
	// pipeline stages.
	// Default: 1 and 2
	FetchWeight   int64 `yaml:"fetch_weight"`
	ExtractWeight int64 `yaml:"extract_weight"`
}

// BuildInfoConfig configures the build info store.
type BuildInfoConfig struct {
	// Store is "sqlite" or "filesystem".
	// Default: sqlite
	Store string `yaml:"store"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is text, json, or auto (text on a terminal, json
	// otherwise).
	// Default: text (development), json (ci)
	Format string `yaml:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "buildcache")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:      defaultRoot,
			Artifacts: filepath.Join(defaultRoot, "artifacts"),
			Temp:      filepath.Join(defaultRoot, "tmp"),
		},
		Cache: CacheConfig{
			Mode:            "dir",
			ArchiveFormat:   archive.FormatTarZstd.String(),
			CoalesceFetches: true,
		},
		Pool: PoolConfig{
			FetchWeight:   1,
			ExtractWeight: 2,
		},
		BuildInfo: BuildInfoConfig{
			Store: string(buildinfo.BackendSQLite),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the BUILDCACHE_CONFIG environment
// variable. It fails if the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv("BUILDCACHE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("BUILDCACHE_CONFIG environment variable not set; " +
			"set it to the path of your buildcache.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case CI:
		overrides = c.CI
		// CI defaults: machine-readable logs, no writes to a cache
		// shared between workers.
		if overrides == nil {
			readOnly := true
			overrides = &Overrides{
				Cache: &CacheOverrides{ReadOnly: &readOnly},
				Log:   &LogConfig{Format: "json"},
			}
		}
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.Artifacts != "" {
			c.Paths.Artifacts = overrides.Paths.Artifacts
		}
		if overrides.Paths.Temp != "" {
			c.Paths.Temp = overrides.Paths.Temp
		}
	}

	if overrides.Cache != nil {
		if overrides.Cache.Mode != "" {
			c.Cache.Mode = overrides.Cache.Mode
		}
		if overrides.Cache.ArchiveFormat != "" {
			c.Cache.ArchiveFormat = overrides.Cache.ArchiveFormat
		}
		if overrides.Cache.CoalesceFetches != nil {
			c.Cache.CoalesceFetches = *overrides.Cache.CoalesceFetches
		}
		if overrides.Cache.ReadOnly != nil {
			c.Cache.ReadOnly = *overrides.Cache.ReadOnly
		}
	}

	if overrides.Pool != nil {
		if overrides.Pool.Capacity != 0 {
			c.Pool.Capacity = overrides.Pool.Capacity
		}
		if overrides.Pool.FetchWeight != 0 {
			c.Pool.FetchWeight = overrides.Pool.FetchWeight
		}
		if overrides.Pool.ExtractWeight != 0 {
			c.Pool.ExtractWeight = overrides.Pool.ExtractWeight
		}
	}

	if overrides.BuildInfo != nil && overrides.BuildInfo.Store != "" {
		c.BuildInfo.Store = overrides.BuildInfo.Store
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"BUILDCACHE_ROOT": c.Paths.Root,
		"HOME":            os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["BUILDCACHE_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.Artifacts = expandVars(c.Paths.Artifacts, vars)
	c.Paths.Temp = expandVars(c.Paths.Temp, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. vars take
// precedence over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]Environment{Development, CI, Production}, c.Environment) {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, errors.New("paths.root is required"))
	}

	if !slices.Contains([]string{"dir", "none"}, c.Cache.Mode) {
		errs = append(errs, fmt.Errorf("cache.mode must be one of: [dir none], got %q", c.Cache.Mode))
	}
	if c.Cache.Mode == "dir" && c.Paths.Artifacts == "" {
		errs = append(errs, errors.New("paths.artifacts is required when cache.mode is dir"))
	}
	if _, err := archive.ParseFormat(c.Cache.ArchiveFormat); err != nil {
		errs = append(errs, fmt.Errorf("cache.archive_format: %w", err))
	}

	if c.Pool.Capacity < 0 {
		errs = append(errs, fmt.Errorf("pool.capacity must not be negative, got %d", c.Pool.Capacity))
	}
	if c.Pool.FetchWeight < 1 || c.Pool.ExtractWeight < 1 {
		errs = append(errs, errors.New("pool.fetch_weight and pool.extract_weight must be at least 1"))
	}

	if _, err := buildinfo.ParseBackend(c.BuildInfo.Store); err != nil {
		errs = append(errs, fmt.Errorf("buildinfo.store: %w", err))
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: [debug info warn error], got %q", c.Log.Level))
	}
	if !slices.Contains([]string{"text", "json", "auto"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: [text json auto], got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ArchiveFormat returns the parsed cache.archive_format. Call Validate
// first; an invalid name yields the default format.
func (c *Config) ArchiveFormat() archive.Format {
	format, _ := archive.ParseFormat(c.Cache.ArchiveFormat)
	return format
}

// BuildInfoBackend returns the parsed buildinfo.store.
func (c *Config) BuildInfoBackend() buildinfo.Backend {
	backend, _ := buildinfo.ParseBackend(c.BuildInfo.Store)
	return backend
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.Artifacts,
		c.Paths.Temp,
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
