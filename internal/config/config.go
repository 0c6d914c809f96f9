// Package config loads and validates engine configuration. Configuration is
// read from <dataDir>/config.json via viper, with every field defaulted so a
// bare deployment works without any file present.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the complete engine configuration.
type Config struct {
	Version int    `json:"version" mapstructure:"version"`
	DataDir string `json:"dataDir" mapstructure:"dataDir"`

	Server  ServerConfig  `json:"server" mapstructure:"server"`
	Workers WorkersConfig `json:"workers" mapstructure:"workers"`
	Fetch   FetchConfig   `json:"fetch" mapstructure:"fetch"`
	Cache   CacheConfig   `json:"cache" mapstructure:"cache"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// WorkersConfig bounds task and per-task parse concurrency.
type WorkersConfig struct {
	// PoolSize is the number of concurrent analysis tasks.
	PoolSize int `json:"poolSize" mapstructure:"poolSize"`
	// QueueSize is the submission queue capacity.
	QueueSize int `json:"queueSize" mapstructure:"queueSize"`
	// ParseConcurrency caps parallel file extraction within one task.
	ParseConcurrency int `json:"parseConcurrency" mapstructure:"parseConcurrency"`
	// TaskTimeoutSeconds is the per-task deadline.
	TaskTimeoutSeconds int `json:"taskTimeoutSeconds" mapstructure:"taskTimeoutSeconds"`
}

// FetchConfig controls commit resolution and snapshot materialization.
type FetchConfig struct {
	// WorkDir is where commit-addressed snapshots are materialized.
	WorkDir string `json:"workDir" mapstructure:"workDir"`
	// CloneTimeoutSeconds bounds a single git clone/ls-remote invocation.
	CloneTimeoutSeconds int `json:"cloneTimeoutSeconds" mapstructure:"cloneTimeoutSeconds"`
	// MaxRepoBytes is the working-tree byte ceiling; larger snapshots are
	// rejected before parsing.
	MaxRepoBytes int64 `json:"maxRepoBytes" mapstructure:"maxRepoBytes"`
	// MaxFileCount is the working-tree file-count ceiling.
	MaxFileCount int `json:"maxFileCount" mapstructure:"maxFileCount"`
	// MaxFileBytes skips individual files larger than this (not an error).
	MaxFileBytes int64 `json:"maxFileBytes" mapstructure:"maxFileBytes"`
}

// CacheConfig contains cache store settings.
type CacheConfig struct {
	// MemoryEntries is the size of the in-memory LRU in front of SQLite.
	MemoryEntries int `json:"memoryEntries" mapstructure:"memoryEntries"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: ".intorepo",
		Server: ServerConfig{
			Host: "localhost",
			Port: 8000,
		},
		Workers: WorkersConfig{
			PoolSize:           16,
			QueueSize:          100,
			ParseConcurrency:   8,
			TaskTimeoutSeconds: 600,
		},
		Fetch: FetchConfig{
			WorkDir:             "", // defaults to <dataDir>/snapshots
			CloneTimeoutSeconds: 300,
			MaxRepoBytes:        512 << 20, // 512 MB
			MaxFileCount:        50000,
			MaxFileBytes:        1 << 20, // 1 MB per file
		},
		Cache: CacheConfig{
			MemoryEntries: 32,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from <dataDir>/config.json. A missing file
// yields the defaults; a malformed file is an error.
func LoadConfig(dataDir string) (*Config, error) {
	if dataDir == "" {
		dataDir = DefaultConfig().DataDir
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(dataDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			cfg := DefaultConfig()
			cfg.DataDir = dataDir
			return cfg.withDerivedDefaults(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.DataDir = dataDir
	return cfg.withDerivedDefaults(), nil
}

// withDerivedDefaults fills fields whose defaults depend on other fields and
// clamps nonsensical values back to defaults.
func (c *Config) withDerivedDefaults() *Config {
	def := DefaultConfig()
	if c.Fetch.WorkDir == "" {
		c.Fetch.WorkDir = filepath.Join(c.DataDir, "snapshots")
	}
	if c.Workers.PoolSize <= 0 {
		c.Workers.PoolSize = def.Workers.PoolSize
	}
	if c.Workers.QueueSize <= 0 {
		c.Workers.QueueSize = def.Workers.QueueSize
	}
	if c.Workers.ParseConcurrency <= 0 {
		c.Workers.ParseConcurrency = def.Workers.ParseConcurrency
	}
	if c.Workers.TaskTimeoutSeconds <= 0 {
		c.Workers.TaskTimeoutSeconds = def.Workers.TaskTimeoutSeconds
	}
	if c.Fetch.CloneTimeoutSeconds <= 0 {
		c.Fetch.CloneTimeoutSeconds = def.Fetch.CloneTimeoutSeconds
	}
	if c.Fetch.MaxRepoBytes <= 0 {
		c.Fetch.MaxRepoBytes = def.Fetch.MaxRepoBytes
	}
	if c.Fetch.MaxFileCount <= 0 {
		c.Fetch.MaxFileCount = def.Fetch.MaxFileCount
	}
	if c.Fetch.MaxFileBytes <= 0 {
		c.Fetch.MaxFileBytes = def.Fetch.MaxFileBytes
	}
	if c.Cache.MemoryEntries <= 0 {
		c.Cache.MemoryEntries = def.Cache.MemoryEntries
	}
	return c
}

// Save writes the configuration to <dataDir>/config.json.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.DataDir, "config.json"), data, 0644)
}
