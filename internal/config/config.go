package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig   `yaml:"server"`
	Database    DatabaseConfig `yaml:"database"`
	Redis       RedisConfig    `yaml:"redis"`
	Auth        AuthConfig     `yaml:"auth"`
	OpenAI      OpenAIConfig   `yaml:"openai"`
	Bedrock     BedrockConfig  `yaml:"bedrock"`
	Stripe      StripeConfig   `yaml:"stripe"`
	Gmail       GmailConfig    `yaml:"gmail"`
	Storage     StorageConfig  `yaml:"storage"`
	Reports     ReportsConfig  `yaml:"reports"`
	Sync        SyncConfig     `yaml:"sync"`
	Environment string         `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis connection settings for queues and locks
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// AuthConfig holds JWT authentication settings
type AuthConfig struct {
	SecretKey       string `yaml:"secret_key"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
}

// TokenTTL returns the access token lifetime as a duration
func (c AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

// OpenAIConfig holds OpenAI API configuration for the analyzer backend
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c OpenAIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BedrockConfig holds AWS Bedrock configuration for the alternate analyzer
type BedrockConfig struct {
	Region  string `yaml:"region"`
	ModelID string `yaml:"model_id"`
	Enabled bool   `yaml:"enabled"`
}

// StripeConfig holds Stripe credentials and per-tier price IDs
type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	// PriceIDs maps "<tier>_<cycle>" (e.g. "starter_monthly") to a Stripe price ID.
	PriceIDs map[string]string `yaml:"price_ids"`
	Enabled  bool              `yaml:"enabled"`
}

// GmailConfig holds Google OAuth credentials for Gmail ingestion
type GmailConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// StorageConfig holds S3 settings for attachment blobs
type StorageConfig struct {
	S3Bucket   string `yaml:"s3_bucket"`
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
	Enabled    bool   `yaml:"enabled"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// ReportsConfig holds SES settings for outbound insight report email
type ReportsConfig struct {
	FromAddress string `yaml:"from_address"`
	AWSRegion   string `yaml:"aws_region"`
	Enabled     bool   `yaml:"enabled"`
}

// SyncConfig holds mailbox sync scheduling settings
type SyncConfig struct {
	IntervalMinutes   int `yaml:"interval_minutes"`
	BatchSize         int `yaml:"batch_size"`
	MaxFetchPerSync   int `yaml:"max_fetch_per_sync"`
	StaleAfterMinutes int `yaml:"stale_after_minutes"`
}

// Interval returns how often the sync scheduler ticks
func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// StaleAfter returns how long before an account is due for re-sync
func (c SyncConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMinutes) * time.Minute
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Auth.TokenTTLMinutes == 0 {
		cfg.Auth.TokenTTLMinutes = 30
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o"
	}
	if cfg.OpenAI.TimeoutSeconds == 0 {
		cfg.OpenAI.TimeoutSeconds = 60
	}
	if cfg.Bedrock.Region == "" {
		cfg.Bedrock.Region = "us-east-1"
	}
	if cfg.Bedrock.ModelID == "" {
		cfg.Bedrock.ModelID = "anthropic.claude-3-5-sonnet-20240620-v1:0"
	}
	if cfg.Sync.IntervalMinutes == 0 {
		cfg.Sync.IntervalMinutes = 60
	}
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 50
	}
	if cfg.Sync.MaxFetchPerSync == 0 {
		cfg.Sync.MaxFetchPerSync = 500
	}
	if cfg.Sync.StaleAfterMinutes == 0 {
		cfg.Sync.StaleAfterMinutes = 60
	}
	if cfg.Reports.AWSRegion == "" {
		cfg.Reports.AWSRegion = "us-east-1"
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("SECRET_KEY"); v != "" {
		cfg.Auth.SecretKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
		cfg.OpenAI.Enabled = true
	}
	if v := os.Getenv("STRIPE_SECRET_KEY"); v != "" {
		cfg.Stripe.SecretKey = v
		cfg.Stripe.Enabled = true
	}
	if v := os.Getenv("STRIPE_WEBHOOK_SECRET"); v != "" {
		cfg.Stripe.WebhookSecret = v
	}
	if v := os.Getenv("GMAIL_CLIENT_ID"); v != "" {
		cfg.Gmail.ClientID = v
	}
	if v := os.Getenv("GMAIL_CLIENT_SECRET"); v != "" {
		cfg.Gmail.ClientSecret = v
	}
	if v := os.Getenv("REPORTS_FROM_ADDRESS"); v != "" {
		cfg.Reports.FromAddress = v
	}
	if v := os.Getenv("ATTACHMENTS_S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
		cfg.Storage.Enabled = true
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}

	return cfg, nil
}
