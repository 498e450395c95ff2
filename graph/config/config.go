// Package config loads engine and store settings from YAML or JSON
// files and opens the configured checkpoint backend.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from Go duration strings
// ("30s", "2m") and from plain numbers interpreted as seconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) set(v any) error {
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(val * float64(time.Second))
	case int:
		*d = Duration(time.Duration(val) * time.Second)
	case int64:
		*d = Duration(time.Duration(val) * time.Second)
	default:
		return fmt.Errorf("invalid duration value %v", v)
	}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return d.set(v)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config is the declarative settings block for an engine and its
// checkpoint store.
type Config struct {
	// Store names the checkpoint backend: memory, sqlite, mysql,
	// redis or badger. Defaults to memory.
	Store string `yaml:"store" json:"store"`

	// RecursionLimit caps node executions per Invoke call.
	RecursionLimit int `yaml:"recursion_limit" json:"recursion_limit"`

	// MaxConcurrent bounds the Batch worker pool.
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent"`

	// NodeTimeout bounds each node execution. Accepts Go duration
	// strings in YAML/JSON ("30s", "2m"). Zero disables the bound.
	NodeTimeout Duration `yaml:"node_timeout" json:"node_timeout"`

	SQLite SQLiteConfig `yaml:"sqlite" json:"sqlite"`
	MySQL  MySQLConfig  `yaml:"mysql" json:"mysql"`
	Redis  RedisConfig  `yaml:"redis" json:"redis"`
	Badger BadgerConfig `yaml:"badger" json:"badger"`
}

// SQLiteConfig holds sqlite backend settings.
type SQLiteConfig struct {
	// Path is the database file. ":memory:" keeps it in RAM.
	Path string `yaml:"path" json:"path"`
}

// MySQLConfig holds mysql backend settings.
type MySQLConfig struct {
	// DSN in go-sql-driver format. Prefer setting this from the
	// environment rather than committing credentials to config files.
	DSN string `yaml:"dsn" json:"dsn"`
}

// RedisConfig holds redis backend settings.
type RedisConfig struct {
	Addr      string   `yaml:"addr" json:"addr"`
	KeyPrefix string   `yaml:"key_prefix" json:"key_prefix"`
	ThreadTTL Duration `yaml:"thread_ttl" json:"thread_ttl"`
}

// BadgerConfig holds badger backend settings.
type BadgerConfig struct {
	Dir        string `yaml:"dir" json:"dir"`
	InMemory   bool   `yaml:"in_memory" json:"in_memory"`
	SyncWrites bool   `yaml:"sync_writes" json:"sync_writes"`
}

// Default returns a Config with the library defaults filled in.
func Default() Config {
	return Config{
		Store:          "memory",
		RecursionLimit: 25,
		MaxConcurrent:  8,
	}
}

// applyDefaults fills zero-valued fields from Default.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Store == "" {
		c.Store = d.Store
	}
	if c.RecursionLimit == 0 {
		c.RecursionLimit = d.RecursionLimit
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
}

// Validate checks that the config names a known backend and carries the
// settings that backend needs.
func (c Config) Validate() error {
	switch c.Store {
	case "memory":
	case "sqlite":
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite store requires sqlite.path")
		}
	case "mysql":
		if c.MySQL.DSN == "" {
			return fmt.Errorf("mysql store requires mysql.dsn")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis store requires redis.addr")
		}
	case "badger":
		if c.Badger.Dir == "" && !c.Badger.InMemory {
			return fmt.Errorf("badger store requires badger.dir or badger.in_memory")
		}
	default:
		return fmt.Errorf("unknown store backend: %q", c.Store)
	}
	if c.RecursionLimit < 0 {
		return fmt.Errorf("recursion_limit must not be negative")
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent must not be negative")
	}
	if c.NodeTimeout < 0 {
		return fmt.Errorf("node_timeout must not be negative")
	}
	return nil
}
