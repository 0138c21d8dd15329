package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	Database DatabaseConfig
	Identity IdentityConfig
	NATS     NATSConfig
	Auth     AuthConfig
	CORS     CORSConfig
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnTime time.Duration
	MaxIdleTime time.Duration
}

// IdentityConfig points at the external identity provider's public API.
type IdentityConfig struct {
	BaseURL string
}

// NATSConfig configures the optional notifications broker.
// An empty URL disables publishing entirely.
type NATSConfig struct {
	URL string
}

// AuthConfig carries the static admin allowlist.
type AuthConfig struct {
	AdminEmails []string
}

// CORSConfig configures allowed browser origins.
type CORSConfig struct {
	AllowedOrigins []string
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        getEnv("SERVICE_NAME", "be-driver-payroll"),
			Version:     getEnv("SERVICE_VERSION", "dev"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Server: ServerConfig{
			Port:            getEnvInt("HTTP_PORT", 8090),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnvInt("DB_PORT", 5432),
			User:        getEnv("DB_USER", "payroll"),
			Password:    os.Getenv("DB_PASSWORD"),
			Database:    getEnv("DB_NAME", "payroll"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			MaxConns:    int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns:    int32(getEnvInt("DB_MIN_CONNS", 2)),
			MaxConnTime: getEnvDuration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxIdleTime: getEnvDuration("DB_MAX_CONN_IDLE", 30*time.Minute),
		},
		Identity: IdentityConfig{
			BaseURL: getEnv("IDENTITY_PUBLIC_URL", "http://127.0.0.1:4433"),
		},
		NATS: NATSConfig{
			URL: os.Getenv("NATS_URL"),
		},
		Auth: AuthConfig{
			AdminEmails: splitList(os.Getenv("ADMIN_EMAILS")),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "https://*,http://*")),
		},
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("config: invalid HTTP_PORT %d", cfg.Server.Port)
	}
	if cfg.Database.Host == "" || cfg.Database.Database == "" {
		return nil, fmt.Errorf("config: DB_HOST and DB_NAME are required")
	}
	return cfg, nil
}

// AdminEmailSet returns the allowlist as a lookup set of normalized emails.
func (a AuthConfig) AdminEmailSet() map[string]bool {
	set := make(map[string]bool, len(a.AdminEmails))
	for _, email := range a.AdminEmails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			set[email] = true
		}
	}
	return set
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
