// Package config loads the server configuration from command-line flags,
// environment variables and an optional .env file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// MinJWTSecretLength is the shortest accepted JWT_SECRET.
const MinJWTSecretLength = 16

// Config holds the server configuration. It is loaded once at start and
// passed explicitly; nothing reads the environment after Load returns.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Logger   LoggerConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig selects and tunes the store. A postgres:// or
// postgresql:// URL selects PostgreSQL; anything else is a SQLite path.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
}

// AuthConfig holds token and password settings.
type AuthConfig struct {
	JWTSecret   string
	JWTExpiry   time.Duration
	BcryptCost  int
	AdminEmails []string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

// LookupFunc reads one environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Load builds a Config with the precedence:
//  1. Command-line flags (highest priority).
//  2. Environment variables.
//  3. The .env file named by -env-file (default ".env"), if it exists.
//  4. Default values (lowest priority).
//
// args excludes the program name. lookup is usually os.LookupEnv.
func Load(args []string, lookup LookupFunc) (*Config, error) {
	flags := flag.NewFlagSet("bookshelf", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	port := flags.String("port", "", "HTTP port (default: 3001)")
	databaseURL := flags.String("database-url", "", "SQLite path or postgres:// URL (default: data/bookshelf.db)")
	jwtExpiry := flags.String("jwt-expiry", "", "Token lifetime, e.g. 24h")
	corsOrigin := flags.String("cors-origin", "", "Comma-separated allowed browser origins")
	logLevel := flags.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flags.String("log-format", "", "Log format (text, json)")
	envFile := flags.String("env-file", ".env", "Path to .env file")

	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parsing flags: %w", err)
	}

	dotenv, err := readEnvFile(*envFile)
	if err != nil {
		return nil, err
	}
	src := source{lookup: lookup, dotenv: dotenv}

	cfg := &Config{
		Server: ServerConfig{
			CORSOrigins:  splitList(src.get(*corsOrigin, "CORS_ORIGIN", "http://localhost:3000")),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			URL: src.get(*databaseURL, "DATABASE_URL", "data/bookshelf.db"),
		},
		Auth: AuthConfig{
			JWTSecret:   src.get("", "JWT_SECRET", ""),
			AdminEmails: splitList(strings.ToLower(src.get("", "ADMIN_EMAILS", ""))),
		},
		Logger: LoggerConfig{
			Level:  strings.ToLower(src.get(*logLevel, "LOG_LEVEL", "info")),
			Format: strings.ToLower(src.get(*logFormat, "LOG_FORMAT", "text")),
		},
	}

	if cfg.Server.Port, err = src.getInt(*port, "PORT", 3001); err != nil {
		return nil, err
	}
	if cfg.Database.MaxOpenConns, err = src.getInt("", "DB_MAX_OPEN_CONNS", 10); err != nil {
		return nil, err
	}
	if cfg.Auth.BcryptCost, err = src.getInt("", "BCRYPT_COST", 12); err != nil {
		return nil, err
	}

	expiry := src.get(*jwtExpiry, "JWT_EXPIRY", "24h")
	cfg.Auth.JWTExpiry, err = time.ParseDuration(expiry)
	if err != nil {
		return nil, fmt.Errorf("config: invalid JWT_EXPIRY %q: %w", expiry, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required values are present and in range.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("DATABASE_URL cannot be empty")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("invalid DB_MAX_OPEN_CONNS %d (must be at least 1)", c.Database.MaxOpenConns)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", MinJWTSecretLength)
	}
	if c.Auth.JWTExpiry <= 0 {
		return fmt.Errorf("invalid JWT_EXPIRY %s (must be positive)", c.Auth.JWTExpiry)
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("invalid BCRYPT_COST %d (must be %d-%d)", c.Auth.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}
	if c.Logger.Format != "text" && c.Logger.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logger.Format)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// readEnvFile parses a .env file without touching the process environment.
// A missing file is not an error.
func readEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return values, nil
}

type source struct {
	lookup LookupFunc
	dotenv map[string]string
}

// get returns the flag value if set, then the environment, then the .env
// file, then def.
func (s source) get(flagValue, key, def string) string {
	if flagValue != "" {
		return flagValue
	}
	if s.lookup != nil {
		if v, ok := s.lookup(key); ok && v != "" {
			return v
		}
	}
	if v, ok := s.dotenv[key]; ok && v != "" {
		return v
	}
	return def
}

func (s source) getInt(flagValue, key string, def int) (int, error) {
	raw := s.get(flagValue, key, "")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
