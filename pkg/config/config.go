// Package config assembles the store's configuration from a YAML
// document (A2): server, persistence, storage, memory, and logging
// sections matching the wire/command surface's configuration options
// one-for-one. There is no dynamic reload — a Config is read once at
// boot and passed by pointer into the store manager.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PersistenceMode selects when snapshots are written to disk.
type PersistenceMode string

const (
	PersistenceNone     PersistenceMode = "none"
	PersistenceOnChange PersistenceMode = "on_change"
	PersistenceInterval PersistenceMode = "interval"
)

// ServerConfig controls the TCP bind address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// PersistenceConfig controls snapshot cadence and location.
type PersistenceConfig struct {
	DataFile        string          `yaml:"data_file"`
	Mode            PersistenceMode `yaml:"mode"`
	IntervalSeconds int64           `yaml:"interval_seconds"`
}

// StorageConfig controls default TTL policy.
type StorageConfig struct {
	EnableDefaultExpiry  bool  `yaml:"enable_default_expiry"`
	DefaultExpirySeconds int64 `yaml:"default_expiry_seconds"`
}

// MemoryConfig controls cold-key offload policy (C5).
type MemoryConfig struct {
	EnableMemoryOptimization bool   `yaml:"enable_memory_optimization"`
	LowFrequencyCheckInterval int64 `yaml:"low_frequency_check_interval"`
	AccessThreshold          int64  `yaml:"access_threshold"`
	IdleTimeThreshold        int64  `yaml:"idle_time_threshold"`
	MaxMemoryKeys            int    `yaml:"max_memory_keys"`
	DiskBasePath             string `yaml:"disk_base_path"`
}

// LoggingConfig controls log destination and verbosity.
type LoggingConfig struct {
	LogFile string `yaml:"log_file"`
	Level   string `yaml:"level"`
}

// TransactionsConfig controls the explicit-transaction timeout sweeper.
type TransactionsConfig struct {
	// TimeoutSeconds is how long an explicit transaction (begin without
	// a matching commit/rollback) may sit Active before the background
	// sweeper rolls it back on the connection's behalf. 0 disables the
	// sweep entirely.
	TimeoutSeconds int64 `yaml:"timeout_seconds"`
}

// Config is the full assembled configuration tree.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Persistence  PersistenceConfig  `yaml:"persistence"`
	Storage      StorageConfig      `yaml:"storage"`
	Memory       MemoryConfig       `yaml:"memory"`
	Transactions TransactionsConfig `yaml:"transactions"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// Default returns the built-in defaults applied when a section is
// absent from the YAML document.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 6969},
		Persistence: PersistenceConfig{
			DataFile:        "data/snapshot.json",
			Mode:            PersistenceOnChange,
			IntervalSeconds: 300,
		},
		Storage: StorageConfig{
			EnableDefaultExpiry:  false,
			DefaultExpirySeconds: 0,
		},
		Memory: MemoryConfig{
			EnableMemoryOptimization: true,
			LowFrequencyCheckInterval: 60,
			AccessThreshold:          5,
			IdleTimeThreshold:        3600,
			MaxMemoryKeys:            100000,
			DiskBasePath:             "data/cold",
		},
		Transactions: TransactionsConfig{
			TimeoutSeconds: 300,
		},
		Logging: LoggingConfig{
			LogFile: "",
			Level:   "info",
		},
	}
}

// Load reads and parses the YAML document at path, overlaying it onto
// Default() so an absent section keeps its default value. A missing
// file is not an error: callers get the pure defaults (useful for
// `kvstore serve` with no --config).
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
