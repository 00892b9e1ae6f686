// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database. Empty means in-memory repositories.
	DatabaseURL string `koanf:"database_url"`

	// Redis. Empty means in-memory revocation and last-uid stores.
	RedisURL string `koanf:"redis_url"`

	// Credential signing
	JWTSecret string `koanf:"jwt_secret"`

	// Shared password for the name login flow
	GenericPassword string `koanf:"generic_password"`

	// Session behavior
	AnonymousBootstrap bool `koanf:"anonymous_bootstrap"`
	RoleRefreshMinutes int  `koanf:"role_refresh_minutes"`

	// Uploads
	AvatarMaxKB int `koanf:"avatar_max_kb"`

	// CORS
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

// Configuration validation errors.
var (
	ErrMissingJWTSecret          = errors.New("JWT_SECRET is required")
	ErrMissingGenericPassword    = errors.New("GENERIC_PASSWORD is required")
	ErrInvalidPort               = errors.New("PORT must be a valid integer")
	ErrInvalidRoleRefreshMinutes = errors.New("ROLE_REFRESH_MINUTES must be zero or positive")
	ErrInvalidAvatarMaxKB        = errors.New("AVATAR_MAX_KB must be positive")
)

// Default values for non-secret configuration.
const (
	DefaultPort               = 8080
	DefaultEnv                = "development"
	DefaultAnonymousBootstrap = true
	DefaultRoleRefreshMinutes = 60
	DefaultAvatarMaxKB        = 256
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Try CONNECT_PORT first, then PORT for platform compatibility
	port, portErr := getEnvIntOrDefaultMulti([]string{"CONNECT_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	refreshMinutes, refreshErr := getEnvIntOrDefault("ROLE_REFRESH_MINUTES", k.Int("role_refresh_minutes"), DefaultRoleRefreshMinutes)
	if refreshErr != nil {
		loadErrs = append(loadErrs, refreshErr)
	}

	avatarMaxKB, avatarErr := getEnvIntOrDefault("AVATAR_MAX_KB", k.Int("avatar_max_kb"), DefaultAvatarMaxKB)
	if avatarErr != nil {
		loadErrs = append(loadErrs, avatarErr)
	}

	cfg := &Config{
		Port:               port,
		Env:                getEnvOrDefaultMulti([]string{"CONNECT_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:        getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:           getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:          getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		GenericPassword:    getEnvOrKoanf("GENERIC_PASSWORD", k, "generic_password"),
		AnonymousBootstrap: getEnvBoolOrDefault("ANONYMOUS_BOOTSTRAP", k, "anonymous_bootstrap", DefaultAnonymousBootstrap),
		RoleRefreshMinutes: refreshMinutes,
		AvatarMaxKB:        avatarMaxKB,
		CORSAllowedOrigins: getEnvListOrKoanf("CORS_ALLOWED_ORIGINS", k, "cors_allowed_origins"),
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer", envKey)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvBoolOrDefault returns the environment variable as bool if set, otherwise
// the koanf value if present in the file, or the default.
func getEnvBoolOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	if k.Exists(koanfKey) {
		return k.Bool(koanfKey)
	}
	return defaultVal
}

// getEnvListOrKoanf returns the environment variable parsed as a comma-separated
// list if set, otherwise the koanf string slice.
func getEnvListOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) []string {
	if val := os.Getenv(envKey); val != "" {
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return k.Strings(koanfKey)
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.GenericPassword == "" {
		errs = append(errs, ErrMissingGenericPassword)
	}
	if c.RoleRefreshMinutes < 0 {
		errs = append(errs, ErrInvalidRoleRefreshMinutes)
	}
	if c.AvatarMaxKB <= 0 {
		errs = append(errs, ErrInvalidAvatarMaxKB)
	}

	return errs
}

// AvatarMaxBytes returns the avatar upload limit in bytes.
func (c *Config) AvatarMaxBytes() int64 {
	return int64(c.AvatarMaxKB) * 1024
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                 fmt.Sprintf("%d", c.Port),
		"env":                  c.Env,
		"database_url":         maskDatabaseURL(c.DatabaseURL),
		"redis_url":            maskDatabaseURL(c.RedisURL),
		"jwt_secret":           maskSecret(c.JWTSecret),
		"generic_password":     maskSecret(c.GenericPassword),
		"anonymous_bootstrap":  fmt.Sprintf("%t", c.AnonymousBootstrap),
		"role_refresh_minutes": fmt.Sprintf("%d", c.RoleRefreshMinutes),
		"avatar_max_kb":        fmt.Sprintf("%d", c.AvatarMaxKB),
		"cors_allowed_origins": strings.Join(c.CORSAllowedOrigins, ","),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL.
// Supports postgres://, postgresql:// and redis:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Look for password pattern: user:password@host
	// Simple approach: find :// and then mask between : and @
	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	// Reconstruct URL with masked password
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
