// Package config provides configuration management for Atelier.
// It loads settings from environment variables with the ATELIER_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration settings for the Atelier service.
type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	LLM        LLMConfig
	ImageGen   ImageGenConfig
	Resolution ResolutionConfig
	Security   SecurityConfig
	Backup     BackupConfig
	Logging    LoggingConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port           int     // Server port (default: 6464)
	Host           string  // Server host (default: 127.0.0.1)
	RequestsPerSec float64 // HTTP rate limit (default: 10)
	Burst          int     // HTTP rate limit burst (default: 20)
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	StorageEngine string // sqlite or postgres (default: sqlite)
	DataPath      string // Directory for the SQLite file (default: ./data)
	PostgresDSN   string // Connection string when StorageEngine is postgres
}

// SQLitePath returns the catalogue database file path.
func (s StorageConfig) SQLitePath() string {
	return strings.TrimRight(s.DataPath, "/") + "/atelier.db"
}

// LLMConfig contains text-completion provider configuration.
type LLMConfig struct {
	LLMProvider     string  // ollama, openai, anthropic (default: openai)
	OllamaURL       string  // Ollama API URL (default: http://localhost:11434)
	OllamaModel     string  // Ollama model name (default: qwen2.5:7b)
	OpenAIAPIKey    string  // OpenAI API key
	OpenAIModel     string  // OpenAI model name (default: gpt-4o-mini)
	OpenAIBaseURL   string  // OpenAI-compatible base URL (default: https://api.openai.com)
	AnthropicAPIKey string  // Anthropic API key
	AnthropicModel  string  // Anthropic model name
	RequestsPerSec  float64 // Sustained model calls per second (default: 4)
	Burst           int     // Model call burst (default: 5)
}

// ImageGenConfig contains image-generation provider configuration.
type ImageGenConfig struct {
	Enabled bool   // Generate images for newly created entities (default: true)
	APIKey  string // Falls back to LLM.OpenAIAPIKey
	Model   string // default: gpt-image-1
	BaseURL string // default: https://api.openai.com
	Size    string // default: 1024x1024
}

// ResolutionConfig tunes the entity resolution pipeline.
type ResolutionConfig struct {
	CacheTTL           time.Duration // Context cache TTL (default: 5m)
	CacheRowCap        int           // Bulk-read row cap (default: 200)
	HeuristicThreshold float64       // Minimum heuristic confidence (default: 0.85)
	Concurrency        int           // Simultaneous in-flight items (default: 5)
	MaxMaterials       int           // Max material references per call (default: 10)
	MaxTextures        int           // Max texture references per call (default: 5)
	SemanticTimeout    time.Duration // Per-item semantic match timeout (default: 45s)
	ImageTimeout       time.Duration // Per-item image generation timeout (default: 90s)
	CategoryRulesFile  string        // Optional YAML file replacing the built-in rules
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	APIToken string // Bearer token required on /api routes when set
}

// BackupConfig controls catalogue snapshots (SQLite only).
type BackupConfig struct {
	Dir      string        // Snapshot directory (default: {DataPath}/backups)
	Interval time.Duration // Scheduled snapshot interval, 0 disables (default: 0)
	Keep     int           // Snapshots retained after pruning (default: 10)
	Verify   bool          // Run an integrity check on each snapshot (default: true)
}

// LoggingConfig selects the zap preset and level.
type LoggingConfig struct {
	Mode  string // development or production (default: development)
	Level string // debug, info, warn, error (default: info)
}

// LoadConfig loads configuration from environment variables with sensible defaults.
// All environment variables use the ATELIER_ prefix.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would make the pipeline misbehave.
func (c *Config) Validate() error {
	switch c.Storage.StorageEngine {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("config: ATELIER_POSTGRES_DSN is required for the postgres storage engine")
		}
	default:
		return fmt.Errorf("config: unsupported storage engine %q", c.Storage.StorageEngine)
	}
	r := c.Resolution
	if r.HeuristicThreshold < 0 || r.HeuristicThreshold > 1 {
		return fmt.Errorf("config: heuristic threshold must be within [0,1], got %v", r.HeuristicThreshold)
	}
	if r.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be positive, got %d", r.Concurrency)
	}
	if r.CacheTTL <= 0 {
		return fmt.Errorf("config: cache TTL must be positive, got %v", r.CacheTTL)
	}
	if c.Backup.Interval < 0 {
		return fmt.Errorf("config: backup interval must not be negative, got %v", c.Backup.Interval)
	}
	return nil
}

// buildBaseConfig constructs a Config with values from environment variables and defaults.
func buildBaseConfig() *Config {
	openAIKey := getEnv("ATELIER_OPENAI_API_KEY", "")
	dataPath := getEnv("ATELIER_DATA_PATH", "./data")
	return &Config{
		Server: ServerConfig{
			Port:           getEnvInt("ATELIER_PORT", 6464),
			Host:           getEnv("ATELIER_HOST", "127.0.0.1"),
			RequestsPerSec: getEnvFloat("ATELIER_HTTP_RATE", 10),
			Burst:          getEnvInt("ATELIER_HTTP_BURST", 20),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("ATELIER_STORAGE_ENGINE", "sqlite"),
			DataPath:      dataPath,
			PostgresDSN:   getEnv("ATELIER_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			LLMProvider:     getEnv("ATELIER_LLM_PROVIDER", "openai"),
			OllamaURL:       getEnv("ATELIER_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:     getEnv("ATELIER_OLLAMA_MODEL", "qwen2.5:7b"),
			OpenAIAPIKey:    openAIKey,
			OpenAIModel:     getEnv("ATELIER_OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL:   getEnv("ATELIER_OPENAI_BASE_URL", "https://api.openai.com"),
			AnthropicAPIKey: getEnv("ATELIER_ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnv("ATELIER_ANTHROPIC_MODEL", "claude-haiku-4-5-20251001"),
			RequestsPerSec:  getEnvFloat("ATELIER_LLM_RATE", 4),
			Burst:           getEnvInt("ATELIER_LLM_BURST", 5),
		},
		ImageGen: ImageGenConfig{
			Enabled: getEnvBool("ATELIER_IMAGES_ENABLED", true),
			APIKey:  getEnv("ATELIER_IMAGES_API_KEY", openAIKey),
			Model:   getEnv("ATELIER_IMAGES_MODEL", "gpt-image-1"),
			BaseURL: getEnv("ATELIER_IMAGES_BASE_URL", "https://api.openai.com"),
			Size:    getEnv("ATELIER_IMAGES_SIZE", "1024x1024"),
		},
		Resolution: ResolutionConfig{
			CacheTTL:           getEnvDuration("ATELIER_CACHE_TTL", 5*time.Minute),
			CacheRowCap:        getEnvInt("ATELIER_CACHE_ROW_CAP", 200),
			HeuristicThreshold: getEnvFloat("ATELIER_HEURISTIC_THRESHOLD", 0.85),
			Concurrency:        getEnvInt("ATELIER_CONCURRENCY", 5),
			MaxMaterials:       getEnvInt("ATELIER_MAX_MATERIALS", 10),
			MaxTextures:        getEnvInt("ATELIER_MAX_TEXTURES", 5),
			SemanticTimeout:    getEnvDuration("ATELIER_SEMANTIC_TIMEOUT", 45*time.Second),
			ImageTimeout:       getEnvDuration("ATELIER_IMAGE_TIMEOUT", 90*time.Second),
			CategoryRulesFile:  getEnv("ATELIER_CATEGORY_RULES_FILE", ""),
		},
		Security: SecurityConfig{
			APIToken: getEnv("ATELIER_API_TOKEN", ""),
		},
		Backup: BackupConfig{
			Dir:      getEnv("ATELIER_BACKUP_DIR", filepath.Join(dataPath, "backups")),
			Interval: getEnvDuration("ATELIER_BACKUP_INTERVAL", 0),
			Keep:     getEnvInt("ATELIER_BACKUP_KEEP", 10),
			Verify:   getEnvBool("ATELIER_BACKUP_VERIFY", true),
		},
		Logging: LoggingConfig{
			Mode:  getEnv("ATELIER_LOG_MODE", "development"),
			Level: getEnv("ATELIER_LOG_LEVEL", "info"),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// Unparsable values yield the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

// getEnvBool recognizes "true", "1", "yes" and "false", "0", "no" (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}
