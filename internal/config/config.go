// Package config loads service settings from an optional TOML or YAML
// file and SAPL_LEXML_* environment overrides. Environment wins.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const envPrefix = "SAPL_LEXML_"

// Settings are the process-wide options of the provider service.
type Settings struct {
	HTTPAddr     string    `toml:"http_addr" yaml:"http_addr"`
	GRPCAddr     string    `toml:"grpc_addr" yaml:"grpc_addr"`
	BatchSize    int       `toml:"batch_size" yaml:"batch_size"`
	MaxBodyBytes int64     `toml:"max_body_bytes" yaml:"max_body_bytes"`
	Database     Database  `toml:"database" yaml:"database"`
	RateLimit    RateLimit `toml:"rate_limit" yaml:"rate_limit"`
}

type Database struct {
	Driver string `toml:"driver" yaml:"driver"` // postgres, sqlite or memory
	DSN    string `toml:"dsn" yaml:"dsn"`
}

type RateLimit struct {
	RPS   float64 `toml:"rps" yaml:"rps"`
	Burst int     `toml:"burst" yaml:"burst"`
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		HTTPAddr:     ":8080",
		GRPCAddr:     ":9090",
		BatchSize:    10,
		MaxBodyBytes: 1 << 20,
		Database:     Database{Driver: "memory"},
		RateLimit:    RateLimit{RPS: 20, Burst: 40},
	}
}

// Load reads path (skipped when empty) over the defaults, then applies
// the environment.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		if err := s.readFile(path); err != nil {
			return Settings{}, err
		}
	}
	if err := s.ApplyEnv(os.LookupEnv); err != nil {
		return Settings{}, err
	}
	return s, s.Validate()
}

func (s *Settings) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, s)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, s)
	default:
		return fmt.Errorf("config: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from SAPL_LEXML_* variables.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("HTTP_ADDR", &s.HTTPAddr)
	str("GRPC_ADDR", &s.GRPCAddr)
	str("DB_DRIVER", &s.Database.Driver)
	str("DB_DSN", &s.Database.DSN)

	var errs []error
	num := func(name string, parse func(string) error) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			if err := parse(v); err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", envPrefix, name, err))
			}
		}
	}
	num("BATCH_SIZE", func(v string) (err error) {
		s.BatchSize, err = strconv.Atoi(v)
		return err
	})
	num("MAX_BODY_BYTES", func(v string) (err error) {
		s.MaxBodyBytes, err = strconv.ParseInt(v, 10, 64)
		return err
	})
	num("RATE_RPS", func(v string) (err error) {
		s.RateLimit.RPS, err = strconv.ParseFloat(v, 64)
		return err
	})
	num("RATE_BURST", func(v string) (err error) {
		s.RateLimit.Burst, err = strconv.Atoi(v)
		return err
	})
	return errors.Join(errs...)
}

// Validate rejects settings the service cannot start with.
func (s Settings) Validate() error {
	switch s.Database.Driver {
	case "memory":
	case "postgres", "sqlite":
		if s.Database.DSN == "" {
			return fmt.Errorf("config: database driver %s needs a dsn", s.Database.Driver)
		}
	default:
		return fmt.Errorf("config: unknown database driver %q", s.Database.Driver)
	}
	if s.HTTPAddr == "" {
		return errors.New("config: http_addr is required")
	}
	if s.BatchSize <= 0 {
		return fmt.Errorf("config: batch_size must be positive, got %d", s.BatchSize)
	}
	if s.RateLimit.RPS < 0 || s.RateLimit.Burst < 0 {
		return errors.New("config: rate limit must not be negative")
	}
	return nil
}
