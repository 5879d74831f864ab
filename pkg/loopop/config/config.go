// Package config loads the loopop TOML configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"
)

// Operation ID schemes accepted by [operations] id_scheme
const (
	IDSchemeUUID      = "uuid"
	IDSchemeSequence  = "sequence"
	IDSchemeHash      = "hash"
	IDSchemeTimestamp = "timestamp"
)

// IDSchemes lists every valid id_scheme value
var IDSchemes = []string{IDSchemeUUID, IDSchemeSequence, IDSchemeHash, IDSchemeTimestamp}

//go:embed config.example.toml
var exampleConf []byte

// Config represents the configuration loaded from a TOML file.
type Config struct {
	Log          LogConfig          `toml:"log"`
	Operations   OperationsConfig   `toml:"operations"`
	Queue        QueueConfig        `toml:"queue"`
	Cache        CacheConfig        `toml:"cache"`
	Reachability ReachabilityConfig `toml:"reachability"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// OperationsConfig contains settings shared by every operation.
type OperationsConfig struct {
	IDScheme string `toml:"id_scheme"`
}

// QueueConfig contains task queue settings.
type QueueConfig struct {
	MaxConcurrent int `toml:"max_concurrent"`
}

// CacheConfig contains gallery cache settings.
type CacheConfig struct {
	Root string `toml:"root"`
}

// ReachabilityConfig contains defaults for reachability checks.
type ReachabilityConfig struct {
	Host     string        `toml:"host"`
	Interval time.Duration `toml:"interval"`
	Timeout  time.Duration `toml:"timeout"`
	CacheTTL time.Duration `toml:"cache_ttl"`
}

// Load reads the TOML file at path on top of the defaults, so keys missing
// from the file keep their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	md, err := toml.Decode(string(data), config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadOrDefault loads path when it exists and returns the defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// Default returns a Config with defaults loaded from the embedded example config.
func Default() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// WriteDefault creates a config file at path from the embedded example config.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if !lo.Contains(IDSchemes, c.Operations.IDScheme) {
		return fmt.Errorf("operations.id_scheme must be one of %s, got %q", strings.Join(IDSchemes, ", "), c.Operations.IDScheme)
	}
	if c.Queue.MaxConcurrent < 1 {
		return fmt.Errorf("queue.max_concurrent must be at least 1, got %d", c.Queue.MaxConcurrent)
	}
	if c.Reachability.Interval <= 0 {
		return fmt.Errorf("reachability.interval must be positive, got %s", c.Reachability.Interval)
	}
	if c.Reachability.Timeout <= 0 {
		return fmt.Errorf("reachability.timeout must be positive, got %s", c.Reachability.Timeout)
	}
	if c.Reachability.CacheTTL < 0 {
		return fmt.Errorf("reachability.cache_ttl must not be negative, got %s", c.Reachability.CacheTTL)
	}
	return nil
}

// CacheRoot returns the cache root with a leading "~" expanded.
func (c *Config) CacheRoot() (string, error) {
	root := c.Cache.Root
	if root != "~" && !strings.HasPrefix(root, "~/") {
		return root, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to expand cache root: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(root, "~")), nil
}

// DefaultPath is where the CLI looks for a config file.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "loopop", "config.toml")
}
