// Package config loads process configuration from environment variables using an
// accumulate-then-report parse pattern: every malformed variable is collected and
// returned together instead of failing on the first one.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// UserDBBackend selects which userdb.Store implementation is constructed at boot.
type UserDBBackend string

const (
	UserDBBackendFile     UserDBBackend = "file"
	UserDBBackendPostgres UserDBBackend = "postgres"
)

// Config holds application configuration populated from environment variables.
type Config struct {
	// Core
	ServerPort int
	ServerEnv  string // "development" or "production"

	// Presence / auth token
	PresenceAuthTTL time.Duration

	// Debug commands (the shutDown session command), gated per environment.
	DebugCommandsEnabled bool

	// User database
	UserDBBackend UserDBBackend
	UserDBPath    string // file backend: path to the JSON directory
	DatabaseURL   string // postgres backend: connection string

	// Valkey (refresh token storage for the REST auth surface)
	ValkeyURL string

	// JWT (REST auth surface)
	JWTSecret     string
	JWTIssuer     string
	JWTAccessTTL  time.Duration
	JWTRefreshTTL time.Duration

	// Argon2 password hashing (postgres userdb backend only)
	Argon2Memory      uint32
	Argon2Iterations  uint32
	Argon2Parallelism uint8
	Argon2SaltLength  uint32
	Argon2KeyLength   uint32

	// CORS
	CORSAllowOrigins string
}

// Load reads configuration from environment variables, applying defaults suited to local
// development. It returns an error if any variable is set but cannot be parsed, or if
// required security values are missing or cross-field invariants are violated.
func Load() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		ServerPort: p.int("SERVER_PORT", 8080),
		ServerEnv:  envStr("SERVER_ENV", "production"),

		PresenceAuthTTL: p.duration("PRESENCE_AUTH_TTL", 120*time.Second),

		UserDBBackend: UserDBBackend(envStr("USERDB_BACKEND", string(UserDBBackendFile))),
		UserDBPath:    envStr("USERDB_PATH", "./userdb.json"),
		DatabaseURL:   envStr("DATABASE_URL", ""),

		ValkeyURL: envStr("VALKEY_URL", "redis://localhost:6379/0"),

		JWTSecret:     envStr("JWT_SECRET", ""),
		JWTIssuer:     envStr("JWT_ISSUER", "signalmesh"),
		JWTAccessTTL:  p.duration("JWT_ACCESS_TTL", 15*time.Minute),
		JWTRefreshTTL: p.duration("JWT_REFRESH_TTL", 7*24*time.Hour),

		Argon2Memory:      p.uint32("ARGON2_MEMORY", 65536),
		Argon2Iterations:  p.uint32("ARGON2_ITERATIONS", 3),
		Argon2Parallelism: p.uint8("ARGON2_PARALLELISM", 2),
		Argon2SaltLength:  p.uint32("ARGON2_SALT_LENGTH", 16),
		Argon2KeyLength:   p.uint32("ARGON2_KEY_LENGTH", 32),

		CORSAllowOrigins: envStr("CORS_ALLOW_ORIGINS", "*"),
	}

	cfg.DebugCommandsEnabled = p.bool("DEBUG_COMMANDS_ENABLED", cfg.ServerEnv == "development")

	if parseErr := errors.Join(p.errs...); parseErr != nil {
		return nil, parseErr
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsDevelopment returns true when running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.ServerEnv == "development"
}

func (c *Config) validate() error {
	var errs []error

	if c.ServerPort < 1 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT must be between 1 and 65535"))
	}

	if c.PresenceAuthTTL < time.Second {
		errs = append(errs, fmt.Errorf("PRESENCE_AUTH_TTL must be at least 1s"))
	}

	switch c.UserDBBackend {
	case UserDBBackendFile:
		if c.UserDBPath == "" {
			errs = append(errs, fmt.Errorf("USERDB_PATH is required when USERDB_BACKEND=file"))
		}
	case UserDBBackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required when USERDB_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("USERDB_BACKEND must be %q or %q, got %q", UserDBBackendFile, UserDBBackendPostgres, c.UserDBBackend))
	}

	if c.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("JWT_SECRET is required"))
	} else if len(c.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least 32 characters"))
	}

	if c.JWTAccessTTL < time.Second {
		errs = append(errs, fmt.Errorf("JWT_ACCESS_TTL must be at least 1s"))
	}
	if c.JWTRefreshTTL < time.Second {
		errs = append(errs, fmt.Errorf("JWT_REFRESH_TTL must be at least 1s"))
	}

	if c.Argon2Memory == 0 {
		errs = append(errs, fmt.Errorf("ARGON2_MEMORY must be greater than 0"))
	}
	if c.Argon2Iterations == 0 {
		errs = append(errs, fmt.Errorf("ARGON2_ITERATIONS must be greater than 0"))
	}
	if c.Argon2Parallelism == 0 {
		errs = append(errs, fmt.Errorf("ARGON2_PARALLELISM must be greater than 0"))
	}

	return errors.Join(errs...)
}

// parser collects parse errors so Load can report all invalid values at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected integer)", key, v))
		return fallback
	}
	return n
}

func (p *parser) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected boolean)", key, v))
		return fallback
	}
	return b
}

func (p *parser) uint32(key string, fallback uint32) uint32 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected unsigned 32-bit integer)", key, v))
		return fallback
	}
	return uint32(n)
}

func (p *parser) uint8(key string, fallback uint8) uint8 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected unsigned 8-bit integer)", key, v))
		return fallback
	}
	return uint8(n)
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected duration like \"24h\" or \"30m\")", key, v))
		return fallback
	}
	return d
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
