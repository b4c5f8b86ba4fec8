// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values. In development an
optional '.env' file is loaded first with 'joho/godotenv'; real environment
variables always win over the file.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, Signer) via constructors.
  - Zero Hidden State: No global variables are used to store config.
  - Fail Fast: [Config.Validate] rejects inconsistent signing settings at startup.
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// # Signing Modes

const (
	// JWTModeRS256 signs with a private key and publishes the public key as JWKS.
	JWTModeRS256 = "rs256"

	// JWTModeHS256 signs and verifies with one shared secret.
	JWTModeHS256 = "hs256"
)

// # Configuration Schema

// Config holds all runtime configuration for the Warden API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Store (Redis) for ephemeral tokens
	RedisURL string `env:"REDIS_URL,required"`

	// StoreTimeout bounds every individual database or Redis call.
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"3s"`

	// Bearer token signing
	JWTMode        string `env:"JWT_MODE"             envDefault:"rs256"`
	JWTPrivKeyPath string `env:"JWT_PRIVATE_KEY_PATH"`
	JWTPubKeyPath  string `env:"JWT_PUBLIC_KEY_PATH"`
	JWTSecret      string `env:"JWT_SECRET"`
	JWTIssuer      string `env:"JWT_ISSUER"           envDefault:"warden"`

	// Envelope encryption master keys ("1:base64,2:base64") and the version used for new payloads
	EnvelopeMasterKeys    string `env:"ENVELOPE_MASTER_KEYS,required"`
	EnvelopeActiveVersion int    `env:"ENVELOPE_ACTIVE_VERSION" envDefault:"1"`

	// TOTPIssuer labels secrets inside authenticator apps.
	TOTPIssuer string `env:"TOTP_ISSUER" envDefault:"Warden"`

	// Audit sink. Events go to the process log when no brokers are set.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	AuditTopic   string   `env:"AUDIT_TOPIC"   envDefault:"warden.audit"`

	// Tracing
	OTLPEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	SamplingRate float64 `env:"OTEL_SAMPLING_RATE" envDefault:"0.1"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// SweeperConfig is what the one-shot session sweeper needs. Nothing else is required.
type SweeperConfig struct {
	Debug        bool          `env:"DEBUG"         envDefault:"false"`
	DatabaseURL  string        `env:"DATABASE_URL,required"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"3s"`
}

// # Configuration Loading

// Load reads an optional .env file, then parses environment variables into a [Config].
func Load() (*Config, error) {

	// A missing .env is the normal case outside local development
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to read .env file: %w", err)
	}

	return Parse()
}

// Parse maps the current environment into a validated [Config] without touching .env.
func Parse() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadSweeper reads an optional .env file, then parses the sweeper settings.
func LoadSweeper() (*SweeperConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to read .env file: %w", err)
	}

	cfg := &SweeperConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// Validate rejects combinations that would only fail later at first use.
func (c *Config) Validate() error {
	c.JWTMode = strings.ToLower(strings.TrimSpace(c.JWTMode))

	switch c.JWTMode {
	case JWTModeRS256:
		if c.JWTPrivKeyPath == "" || c.JWTPubKeyPath == "" {
			return errors.New("config: JWT_MODE=rs256 requires JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH")
		}
	case JWTModeHS256:
		if c.JWTSecret == "" {
			return errors.New("config: JWT_MODE=hs256 requires JWT_SECRET")
		}
	default:
		return fmt.Errorf("config: unknown JWT_MODE %q (want rs256 or hs256)", c.JWTMode)
	}

	if c.StoreTimeout <= 0 {
		return errors.New("config: STORE_TIMEOUT must be positive")
	}

	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return errors.New("config: OTEL_SAMPLING_RATE must be within [0, 1]")
	}

	return nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AllowedOrigins returns the CORS origins accepted outside development.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.ExtraOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
