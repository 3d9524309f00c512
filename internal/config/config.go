package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Search    SearchConfig    `yaml:"search"`
	Events    EventsConfig    `yaml:"events"`
	Assistant AssistantConfig `yaml:"assistant"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Listing   ListingConfig   `yaml:"listing"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port           string   `yaml:"port" validate:"required"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// TrustedProxies lists the proxy addresses or CIDRs whose X-Forwarded-For
	// is honoured. Empty means the socket peer is the client.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type     string         `yaml:"type" validate:"oneof=mysql postgres"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// AuthConfig contains the admin secret and owner token settings.
// An empty token key makes the server generate one at startup.
type AuthConfig struct {
	AdminSecret   string `yaml:"admin_secret"`
	TokenKey      string `yaml:"token_key"`
	TokenTTLHours int    `yaml:"token_ttl_hours" validate:"gte=1,lte=8760"`
	BcryptCost    int    `yaml:"bcrypt_cost" validate:"gte=4,lte=31"`
}

// StorageConfig contains image upload settings
type StorageConfig struct {
	UploadDir    string `yaml:"upload_dir" validate:"required"`
	URLPrefix    string `yaml:"url_prefix" validate:"required,startswith=/"`
	MaxFileMB    int    `yaml:"max_file_mb" validate:"gte=1,lte=100"`
	MaxFiles     int    `yaml:"max_files" validate:"gte=1,lte=50"`
	MaxImageEdge int    `yaml:"max_image_edge" validate:"gte=0"`
	ImageQuality int    `yaml:"image_quality" validate:"gte=0,lte=100"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings. An empty host disables the index.
type MeilisearchConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
	Index  string `yaml:"index"`
}

// EventsConfig contains event publishing settings
type EventsConfig struct {
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RabbitMQConfig contains RabbitMQ settings. An empty URL disables publishing.
type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// AssistantConfig contains AI guide settings. An empty API key disables the model.
type AssistantConfig struct {
	APIKey              string `yaml:"api_key"`
	Model               string `yaml:"model"`
	TimeoutSeconds      int    `yaml:"timeout_seconds" validate:"gte=1,lte=300"`
	FailureThreshold    int    `yaml:"failure_threshold" validate:"gte=1"`
	ResetTimeoutSeconds int    `yaml:"reset_timeout_seconds" validate:"gte=1"`
	ContextPlaces       int    `yaml:"context_places" validate:"gte=1,lte=500"`
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" validate:"gte=0"`
	RequestsPerHour   int  `yaml:"requests_per_hour" validate:"gte=0"`
}

// ListingConfig contains directory policy settings
type ListingConfig struct {
	DefaultLimit        int `yaml:"default_limit" validate:"gte=1"`
	MaxLimit            int `yaml:"max_limit" validate:"gtefield=DefaultLimit"`
	AdminGrantDays      int `yaml:"admin_grant_days" validate:"gte=1"`
	ActivationBlockDays int `yaml:"activation_block_days" validate:"gte=1"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	LogSQL bool   `yaml:"log_sql"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Type: "postgres",
			MySQL: MySQLConfig{
				Port: 3306,
			},
			Postgres: PostgresConfig{
				Port:    5432,
				SSLMode: "disable",
			},
		},
		Auth: AuthConfig{
			TokenTTLHours: 24 * 7,
			BcryptCost:    10,
		},
		Storage: StorageConfig{
			UploadDir:    "uploads/places",
			URLPrefix:    "/images/places",
			MaxFileMB:    8,
			MaxFiles:     10,
			MaxImageEdge: 1600,
			ImageQuality: 82,
		},
		Search: SearchConfig{
			Meilisearch: MeilisearchConfig{
				Index: "listings",
			},
		},
		Events: EventsConfig{
			RabbitMQ: RabbitMQConfig{
				Exchange: "ramallah_time.listings",
			},
		},
		Assistant: AssistantConfig{
			Model:               "gpt-4o",
			TimeoutSeconds:      30,
			FailureThreshold:    5,
			ResetTimeoutSeconds: 60,
			ContextPlaces:       80,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 30,
			RequestsPerHour:   600,
		},
		Listing: ListingConfig{
			DefaultLimit:        40,
			MaxLimit:            2000,
			AdminGrantDays:      365,
			ActivationBlockDays: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Validate checks value ranges. The admin secret is checked by the caller
// after environment overrides have been applied.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// TokenTTL returns the owner token lifetime
func (c *AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// MaxFileBytes returns the per-file upload limit in bytes
func (c *StorageConfig) MaxFileBytes() int64 {
	return int64(c.MaxFileMB) * 1024 * 1024
}

// Timeout returns the model call timeout
func (c *AssistantConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ResetTimeout returns how long the circuit breaker stays open
func (c *AssistantConfig) ResetTimeout() time.Duration {
	return time.Duration(c.ResetTimeoutSeconds) * time.Second
}
