// Package config loads server configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
	Audit   AuditConfig   `yaml:"audit"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	RateLimitPerSec int           `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Backend is one of memory, mongo, postgres.
	Backend  string `yaml:"backend"`
	MongoURI string `yaml:"mongo_uri"`
	MongoDB  string `yaml:"mongo_db"`
	Postgres string `yaml:"postgres_dsn"`
}

// AuthConfig configures JWT verification.
type AuthConfig struct {
	// PublicKeyFile is a PEM-encoded RSA public key. Auth is disabled when
	// empty, which is only acceptable for local development.
	PublicKeyFile string `yaml:"public_key_file"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuditConfig controls the mutation audit trail.
type AuditConfig struct {
	File string `yaml:"file"`
	Max  int    `yaml:"max_entries"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitPerSec: 50,
			RateLimitBurst:  100,
		},
		Storage: StorageConfig{
			Backend: "memory",
			MongoDB: "swapam",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the configuration file at path, falling back to defaults when
// path is empty or missing, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Storage.Backend {
	case "memory", "mongo", "postgres":
	default:
		return fmt.Errorf("storage backend %q is not one of memory, mongo, postgres", c.Storage.Backend)
	}
	if c.Storage.Backend == "mongo" && c.Storage.MongoURI == "" {
		return fmt.Errorf("mongo backend requires mongo_uri")
	}
	if c.Storage.Backend == "postgres" && c.Storage.Postgres == "" {
		return fmt.Errorf("postgres backend requires postgres_dsn")
	}
	if c.Server.RateLimitPerSec <= 0 {
		return fmt.Errorf("rate_limit_per_sec must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SWAPAM_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SWAPAM_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("SWAPAM_MONGO_URI"); v != "" {
		cfg.Storage.MongoURI = v
	}
	if v := os.Getenv("SWAPAM_MONGO_DB"); v != "" {
		cfg.Storage.MongoDB = v
	}
	if v := os.Getenv("SWAPAM_POSTGRES_DSN"); v != "" {
		cfg.Storage.Postgres = v
	}
	if v := os.Getenv("SWAPAM_JWT_PUBLIC_KEY_FILE"); v != "" {
		cfg.Auth.PublicKeyFile = v
	}
	if v := os.Getenv("SWAPAM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SWAPAM_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SWAPAM_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitAndTrim(v)
	}
	if v := os.Getenv("SWAPAM_RATE_LIMIT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimitPerSec = parsed
		}
	}
	if v := os.Getenv("SWAPAM_AUDIT_FILE"); v != "" {
		cfg.Audit.File = v
	}
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
