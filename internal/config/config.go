package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all agent configuration
type Config struct {
	NodeEnv  string
	Port     string
	DeviceID string
	// DeviceIDFile persists a generated id when DEVICE_ID is unset
	DeviceIDFile string
	JWTSecret    string
	BlobKey      []byte
	APIToken     string
	Log          LogConfig
	Database     DatabaseConfig
	Remote       RemoteConfig
}

// LogConfig holds log file rotation settings
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DatabaseConfig holds local store configuration
type DatabaseConfig struct {
	Driver   string // sqlite, postgres
	Path     string
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Alter    bool
}

// RemoteConfig holds the system-of-record API settings
type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	var blobKey []byte
	if keyHex := os.Getenv("BLOB_KEY"); keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid BLOB_KEY format: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("BLOB_KEY must be 32 bytes (64 hex chars)")
		}
		blobKey = key
	}

	return &Config{
		NodeEnv:      getEnv("NODE_ENV", "development"),
		Port:         getEnv("PORT", "3300"),
		DeviceID:     os.Getenv("DEVICE_ID"),
		DeviceIDFile: getEnv("DEVICE_ID_FILE", "./device.id"),
		JWTSecret:    jwtSecret,
		BlobKey:      blobKey,
		APIToken:     os.Getenv("LOCAL_API_TOKEN"),
		Log: LogConfig{
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  getIntEnv("LOG_MAX_SIZE_MB", 10),
			MaxBackups: getIntEnv("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getIntEnv("LOG_MAX_AGE_DAYS", 14),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite"),
			Path:     getEnv("DB_PATH", "./claims.db"),
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "claimsync"),
			Alter:    getBoolEnv("DB_ALTER", false),
		},
		Remote: RemoteConfig{
			BaseURL: getEnv("REMOTE_API_URL", "http://localhost:8080"),
			Timeout: time.Duration(getIntEnv("REMOTE_TIMEOUT", 30)) * time.Second,
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
