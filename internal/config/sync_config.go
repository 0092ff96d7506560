package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"
)

// SyncConfig holds synchronization configuration
type SyncConfig struct {
	// ============ BASIC SETTINGS ============
	Enabled     bool `json:"enabled"`
	MaxAttempts int  `json:"max_attempts"`
	ItemDelayMs int  `json:"item_delay_ms"` // pause between queue items

	// ============ SCHEDULING ============
	AutoSyncEnabled  bool `json:"auto_sync_enabled"`
	AutoSyncInterval int  `json:"auto_sync_interval"` // seconds
	SyncOnStartup    bool `json:"sync_on_startup"`

	// ============ RETRY ============
	RetryBackoffInitialMs int `json:"retry_backoff_initial_ms"`
	RetryBackoffMaxMs     int `json:"retry_backoff_max_ms"`

	// ============ CONNECTIVITY ============
	HealthCheckInterval int               `json:"health_check_interval"` // seconds
	Routes              []SyncRouteConfig `json:"routes"`

	// ============ BACKGROUND ============
	BackgroundSync BackgroundSyncConfig `json:"background_sync"`

	// ============ DEAD LETTER ============
	DeadLetterMax int `json:"dead_letter_max"`
}

// BackgroundSyncConfig controls the periodic drain used while the agent is backgrounded
type BackgroundSyncConfig struct {
	Enabled  bool   `json:"enabled"`
	Tag      string `json:"tag"`
	Interval int    `json:"interval"` // seconds
}

// SyncRouteConfig represents a remote endpoint probed for reachability
type SyncRouteConfig struct {
	URL      string `json:"url"`
	Type     string `json:"type"`     // primary, fallback
	Timeout  int    `json:"timeout"`  // seconds
	Priority int    `json:"priority"` // lower = higher priority
}

// ItemDelay returns the pause between queue items
func (c *SyncConfig) ItemDelay() time.Duration {
	return time.Duration(c.ItemDelayMs) * time.Millisecond
}

// HealthInterval returns the probe interval
func (c *SyncConfig) HealthInterval() time.Duration {
	return time.Duration(c.HealthCheckInterval) * time.Second
}

// LoadSyncConfig loads sync configuration from environment or file
func LoadSyncConfig() *SyncConfig {
	// Try to load from file first
	if configPath := os.Getenv("SYNC_CONFIG_PATH"); configPath != "" {
		cfg, err := loadSyncConfigFromFile(configPath)
		if err == nil {
			return cfg
		}
		log.Printf("⚠️ Sync config %s ignored: %v", configPath, err)
	}

	// Otherwise use defaults
	return getDefaultSyncConfig()
}

// loadSyncConfigFromFile loads sync config from JSON file.
// Missing fields fall back to the env defaults.
func loadSyncConfigFromFile(path string) (*SyncConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := getDefaultSyncConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse sync config: %w", err)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}

	return cfg, nil
}

// getDefaultSyncConfig returns default sync configuration
func getDefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		Enabled:     getBoolEnv("SYNC_ENABLED", true),
		MaxAttempts: getIntEnv("SYNC_MAX_ATTEMPTS", 5),
		ItemDelayMs: getIntEnv("SYNC_ITEM_DELAY_MS", 250),

		AutoSyncEnabled:  getBoolEnv("SYNC_AUTO_ENABLED", true),
		AutoSyncInterval: getIntEnv("SYNC_AUTO_INTERVAL", 300),
		SyncOnStartup:    getBoolEnv("SYNC_ON_STARTUP", true),

		RetryBackoffInitialMs: getIntEnv("SYNC_RETRY_INITIAL_MS", 2000),
		RetryBackoffMaxMs:     getIntEnv("SYNC_RETRY_MAX_MS", 300000),

		HealthCheckInterval: getIntEnv("SYNC_HEALTH_INTERVAL", 30),
		Routes:              getDefaultRoutes(),

		BackgroundSync: BackgroundSyncConfig{
			Enabled:  getBoolEnv("SYNC_BACKGROUND_ENABLED", true),
			Tag:      getEnv("SYNC_BACKGROUND_TAG", "claims-sync"),
			Interval: getIntEnv("SYNC_BACKGROUND_INTERVAL", 900),
		},

		DeadLetterMax: getIntEnv("SYNC_DEAD_LETTER_MAX", 500),
	}
}

// getDefaultRoutes returns default probe routes
func getDefaultRoutes() []SyncRouteConfig {
	routes := []SyncRouteConfig{}

	if remoteURL := os.Getenv("REMOTE_API_URL"); remoteURL != "" {
		log.Printf("🔗 Adding primary sync route: %s", remoteURL)
		routes = append(routes, SyncRouteConfig{
			URL:      remoteURL,
			Type:     "primary",
			Timeout:  10,
			Priority: 1,
		})
	}

	if fallbackURL := os.Getenv("REMOTE_FALLBACK_URL"); fallbackURL != "" {
		log.Printf("🔗 Adding fallback sync route: %s", fallbackURL)
		routes = append(routes, SyncRouteConfig{
			URL:      fallbackURL,
			Type:     "fallback",
			Timeout:  15,
			Priority: 2,
		})
	}

	if len(routes) == 0 {
		log.Println("⚠️ No sync routes configured (REMOTE_API_URL not set), relying on platform signal")
	}

	return routes
}

// Helper functions for environment variables

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
