// Package config loads and validates registry configuration from YAML.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Duration wraps time.Duration so YAML configs can write "250ms" or "2s".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in Go syntax.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// StoreConfig selects the ledger backend.
type StoreConfig struct {
	// Backend is one of "memory", "sqlite", "pebble".
	Backend string `yaml:"backend" validate:"required,oneof=memory sqlite pebble"`
	// Path is the database file (sqlite) or directory (pebble).
	Path string `yaml:"path" validate:"required_unless=Backend memory"`
}

// BroadcastConfig enables Kafka publication of accepted writes.
// Empty brokers disables broadcasting entirely.
type BroadcastConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic" validate:"required_with=Brokers"`
}

// SubmitConfig tunes submission behavior.
type SubmitConfig struct {
	// WaitTimeout caps how long a submission waits on a coalesced
	// in-flight write. Zero means wait as long as the caller does.
	WaitTimeout Duration `yaml:"wait_timeout"`
}

// Config is the full registry configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Submit    SubmitConfig    `yaml:"submit"`
}

// Default returns the configuration used when no file is given:
// an on-disk SQLite ledger, no broadcasting, no extra wait cap.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    "attest.db",
		},
	}
}

// Load reads and validates a YAML config file. Unknown fields are rejected
// so typos fail loudly instead of silently using defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates raw YAML config bytes. A config file names
// its store backend explicitly; defaults apply only when no file is given.
func Parse(data []byte) (Config, error) {
	var cfg Config

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
