// Package config provides YAML-based configuration management for the review portal.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig represents the root YAML configuration structure
type AppConfig struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Extraction server the portal forwards documents to
	Extraction ExtractionConfig `yaml:"extraction"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Session lifecycle
	Sessions SessionConfig `yaml:"sessions"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Advanced options
	Advanced AdvancedConfig `yaml:"advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bind_address"`
	EnableCORS   bool   `yaml:"enable_cors"`
	AllowOrigins string `yaml:"allow_origins"`
	ReadTimeout  int    `yaml:"read_timeout_seconds"`
	WriteTimeout int    `yaml:"write_timeout_seconds"`
	IdleTimeout  int    `yaml:"idle_timeout_seconds"`
	BodyLimit    string `yaml:"body_limit"`
}

// ExtractionConfig locates the document-extraction server
type ExtractionConfig struct {
	BaseURL string `yaml:"base_url"`
	// 0 keeps the transport default (no overall timeout)
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// Upload limits enforced before anything is forwarded
	MaxFileSizeMB     int      `yaml:"max_file_size_mb"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory      string `yaml:"data_directory"`
	DownloadsDirectory string `yaml:"downloads_directory"`
	ActivityDB         string `yaml:"activity_db"`
}

// SessionConfig controls review session lifetime
type SessionConfig struct {
	TimeoutMinutes           int `yaml:"timeout_minutes"`
	CleanupIntervalMinutes   int `yaml:"cleanup_interval_minutes"`
	MaxSessions              int `yaml:"max_sessions"`
	DownloadRetentionMinutes int `yaml:"download_retention_minutes"`
}

// LoggingConfig mirrors logger.Options
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Pretty     bool   `yaml:"pretty"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	EnableRequestLogging bool `yaml:"enable_request_logging"`
	EnableActivityLog    bool `yaml:"enable_activity_log"`
	EnableMetrics        bool `yaml:"enable_metrics"`
	EnableCompression    bool `yaml:"enable_compression"`
	CompressionLevel     int  `yaml:"compression_level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8080,
			BindAddress:  "0.0.0.0",
			EnableCORS:   false,
			AllowOrigins: "*",
			ReadTimeout:  60,
			WriteTimeout: 120,
			IdleTimeout:  120,
			BodyLimit:    "50M",
		},
		Extraction: ExtractionConfig{
			BaseURL:           "http://127.0.0.1:8000",
			TimeoutSeconds:    0,
			MaxFileSizeMB:     5,
			AllowedExtensions: []string{".pdf", ".txt", ".png", ".jpg", ".jpeg"},
		},
		Storage: StorageConfig{
			DataDirectory:      "./data",
			DownloadsDirectory: "./data/downloads",
			ActivityDB:         "./data/activity.duckdb",
		},
		Sessions: SessionConfig{
			TimeoutMinutes:           60,
			CleanupIntervalMinutes:   5,
			MaxSessions:              200,
			DownloadRetentionMinutes: 120,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Pretty:     true,
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Advanced: AdvancedConfig{
			EnableRequestLogging: true,
			EnableActivityLog:    true,
			EnableMetrics:        true,
			EnableCompression:    true,
			CompressionLevel:     5,
		},
	}
}

// LoadConfig loads configuration from a YAML file, writing the defaults
// there first when it does not exist.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Unmarshal over the defaults so missing keys keep their default
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Tax Review Portal configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR override moves every derived directory with it
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.DownloadsDirectory = filepath.Join(dataDir, "downloads")
		c.Storage.ActivityDB = filepath.Join(dataDir, "activity.duckdb")
	}

	if url := os.Getenv("EXTRACTION_URL"); url != "" {
		c.Extraction.BaseURL = url
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.DownloadsDirectory) {
		c.Storage.DownloadsDirectory = filepath.Join(configDir, c.Storage.DownloadsDirectory)
	}
	// An empty activity path means an in-memory journal
	if c.Storage.ActivityDB != "" && !filepath.IsAbs(c.Storage.ActivityDB) {
		c.Storage.ActivityDB = filepath.Join(configDir, c.Storage.ActivityDB)
	}
	if c.Logging.File != "" && !filepath.IsAbs(c.Logging.File) {
		c.Logging.File = filepath.Join(configDir, c.Logging.File)
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// ExtractionTimeout returns the HTTP client timeout for the extraction server
func (c *AppConfig) ExtractionTimeout() time.Duration {
	return time.Duration(c.Extraction.TimeoutSeconds) * time.Second
}

// SessionTimeout returns how long an untouched session is kept
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Sessions.TimeoutMinutes) * time.Minute
}

// CleanupInterval returns the period of the background cleanup
func (c *AppConfig) CleanupInterval() time.Duration {
	if c.Sessions.CleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Sessions.CleanupIntervalMinutes) * time.Minute
}

// DownloadRetention returns how long finalized PDFs are kept
func (c *AppConfig) DownloadRetention() time.Duration {
	return time.Duration(c.Sessions.DownloadRetentionMinutes) * time.Minute
}

// MaxFileSize returns the per-file upload limit in bytes
func (c *AppConfig) MaxFileSize() int64 {
	return int64(c.Extraction.MaxFileSizeMB) << 20
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.DownloadsDirectory,
	}
	if c.Storage.ActivityDB != "" {
		dirs = append(dirs, filepath.Dir(c.Storage.ActivityDB))
	}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
