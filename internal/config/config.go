// Package config loads the YAML configuration shared by the REPL and the
// server.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration. Zero values fall back to
// defaults; an empty CachePath or RefreshSpec disables that feature.
type Config struct {
	// DataDir is the root directory of the CSV tables.
	DataDir string `yaml:"data_dir"`
	// CachePath is the SQLite cache database file. Empty disables the
	// persistent cache.
	CachePath string `yaml:"cache_path"`
	// RefreshSpec is a cron spec (or "@every ...") for periodic provider
	// cache invalidation. Empty disables the refresher.
	RefreshSpec string `yaml:"refresh_spec"`
	// ListenHTTP is the HTTP query endpoint address.
	ListenHTTP string `yaml:"listen_http"`
	// ListenGRPC is the gRPC query endpoint address.
	ListenGRPC string `yaml:"listen_grpc"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DataDir:    ".",
		ListenHTTP: ":8080",
		ListenGRPC: ":9090",
	}
}

// Load reads and validates a YAML config file, filling unset fields with
// defaults. Unknown keys are rejected so typos fail at startup instead of
// being silently ignored.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when it is non-empty and otherwise returns the
// defaults.
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

func (c Config) validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	return nil
}
