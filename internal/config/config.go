// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

// Package config loads service configuration from a YAML file and command
// line flags. Flags override file values, file values override flag defaults.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the full service configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Database      DatabaseConfig      `koanf:"database"`
	Auth          AuthConfig          `koanf:"auth"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// ObservabilityConfig configures the metrics and health probe listener.
type ObservabilityConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// AuthConfig configures token issuance.
type AuthConfig struct {
	// JWTSecret signs both token classes. Required, at least 32 bytes.
	// Prefer KEYGATE_JWT_SECRET over putting it in the file.
	JWTSecret  string        `koanf:"jwt_secret"`
	Issuer     string        `koanf:"issuer"`
	AccessTTL  time.Duration `koanf:"access_ttl"`
	RefreshTTL time.Duration `koanf:"refresh_ttl"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Format string `koanf:"format"` // "json" or "text"
	Level  string `koanf:"level"`  // "debug", "info", "warn", "error"
}

// RegisterFlags declares the config-backed flags with their defaults.
func RegisterFlags(f *pflag.FlagSet) {
	f.String("server.addr", ":8080", "HTTP API listen address")
	f.String("observability.addr", "127.0.0.1:9100", "metrics and health probe listen address")
	f.String("database.url", "postgres://localhost:5432/keygate", "PostgreSQL connection URL")
	f.String("auth.issuer", "keygate", "issuer claim for signed tokens")
	f.Duration("auth.access-ttl", 30*time.Minute, "access token lifetime")
	f.Duration("auth.refresh-ttl", 14*24*time.Hour, "refresh token lifetime")
	f.String("logging.format", "json", "log output format (json or text)")
	f.String("logging.level", "info", "minimum log level")
}

// Load builds the Config. File values override flag defaults, explicitly set
// flags override the file, and the JWT secret additionally reads from the
// KEYGATE_JWT_SECRET environment variable.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_PARSE_FAILED").Wrap(err)
	}

	// Flag names use dashes where the struct keys use underscores.
	if cfg.Auth.AccessTTL == 0 {
		cfg.Auth.AccessTTL = k.Duration("auth.access-ttl")
	}
	if cfg.Auth.RefreshTTL == 0 {
		cfg.Auth.RefreshTTL = k.Duration("auth.refresh-ttl")
	}

	if secret := os.Getenv("KEYGATE_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadPartial builds the Config without validating it. Store-only commands
// use it so a migration does not demand a JWT secret.
func LoadPartial(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_PARSE_FAILED").Wrap(err)
	}
	if secret := os.Getenv("KEYGATE_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	return &cfg, nil
}

// Validate checks the invariants the rest of the service assumes.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("server.addr is required")
	}
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return oops.Code("CONFIG_INVALID").Errorf("auth.jwt_secret must be at least 32 bytes")
	}
	if c.Auth.Issuer == "" {
		return oops.Code("CONFIG_INVALID").Errorf("auth.issuer is required")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("token lifetimes must be positive")
	}
	if c.Auth.RefreshTTL <= c.Auth.AccessTTL {
		return oops.Code("CONFIG_INVALID").Errorf("auth.refresh_ttl must exceed auth.access_ttl")
	}
	return nil
}
