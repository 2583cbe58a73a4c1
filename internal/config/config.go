// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Port           int
	Host           string
	MetricsEnabled bool
}

// DatabaseConfig holds database configuration settings
type DatabaseConfig struct {
	// URI is a PostgreSQL connection string. Empty means the in-memory
	// store is used.
	URI string
}

// RedisConfig holds settings for the optional Redis last-seen store
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig holds token-signing settings
type AuthConfig struct {
	JWTSecret   string
	TokenTTLHrs int
}

// UploadConfig holds file-attachment settings
type UploadConfig struct {
	Dir      string
	MaxBytes int64
}

// Config holds the complete application configuration
type Config struct {
	Server         *ServerConfig
	Database       *DatabaseConfig
	Redis          *RedisConfig
	Auth           *AuthConfig
	Upload         *UploadConfig
	MessageKey     string // at-rest message encryption key; empty disables encryption
	AllowedOrigins []string
	Debug          bool
}

// DefaultConfig provides default server settings
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Port:           8080,
		Host:           "0.0.0.0",
		MetricsEnabled: true,
	}
}

// LoadConfig loads configuration from environment variables and applies defaults
func LoadConfig() (*Config, error) {
	// Try to load a .env file from the usual locations. Missing files are
	// fine; env vars still apply.
	envLocations := []string{
		".env",
		"../../.env",
	}
	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			break
		}
	}

	serverConfig := DefaultConfig()

	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			serverConfig.Port = port
		}
	}

	if host := os.Getenv("HOST"); host != "" {
		serverConfig.Host = host
	}

	if metricsEnabled := os.Getenv("METRICS_ENABLED"); metricsEnabled != "" {
		serverConfig.MetricsEnabled = metricsEnabled == "true"
	}

	redisConfig := &RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			redisConfig.DB = db
		}
	}

	authConfig := &AuthConfig{
		JWTSecret:   getEnvOrDefault("JWT_SECRET", "ripple_chat_dev_secret_change_me"),
		TokenTTLHrs: 24,
	}
	if ttlStr := os.Getenv("TOKEN_TTL_HOURS"); ttlStr != "" {
		if ttl, err := strconv.Atoi(ttlStr); err == nil && ttl > 0 {
			authConfig.TokenTTLHrs = ttl
		}
	}

	uploadConfig := &UploadConfig{
		Dir:      getEnvOrDefault("UPLOAD_DIR", "uploads"),
		MaxBytes: 10 << 20, // 10 MB
	}
	if maxStr := os.Getenv("UPLOAD_MAX_BYTES"); maxStr != "" {
		if limit, err := strconv.ParseInt(maxStr, 10, 64); err == nil && limit > 0 {
			uploadConfig.MaxBytes = limit
		}
	}

	config := &Config{
		Server:         serverConfig,
		Database:       &DatabaseConfig{URI: os.Getenv("DATABASE_URL")},
		Redis:          redisConfig,
		Auth:           authConfig,
		Upload:         uploadConfig,
		MessageKey:     os.Getenv("MESSAGE_KEY"),
		AllowedOrigins: []string{"*"},
		Debug:          false,
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = strings.Split(origins, ",")
	}

	if debug := os.Getenv("DEBUG"); debug == "true" {
		config.Debug = true
	}

	return config, nil
}

// Helper function to get environment variable with default fallback
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
