package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Storage     StorageConfig     `yaml:"storage"`
	Suppression SuppressionConfig `yaml:"suppression"`
	Confirm     ConfirmConfig     `yaml:"confirm"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Bulk        BulkConfig        `yaml:"bulk"`
	Mail        MailConfig        `yaml:"mail"`
	Webhook     WebhookConfig     `yaml:"webhook"`
	Audit       AuditConfig       `yaml:"audit"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	PublicBaseURL  string   `yaml:"public_base_url"` // used to build confirm and unsubscribe links
	AllowedOrigins []string `yaml:"allowed_origins"`
	AdminToken     string   `yaml:"admin_token"` // bearer token for send/import/admin routes; empty disables them
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the optional Redis connection. Empty URL disables Redis.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// StorageConfig holds blob storage configuration
type StorageConfig struct {
	Type       string `yaml:"type"` // "local", "aws" or "memory"
	LocalPath  string `yaml:"local_path"`
	S3Bucket   string `yaml:"s3_bucket"`
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"` // Empty string uses default credential chain
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

// SuppressionConfig selects the suppression set backend.
type SuppressionConfig struct {
	Backend        string `yaml:"backend"` // "snapshot", "postgres" or "dynamodb"
	SnapshotKey    string `yaml:"snapshot_key"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
	DynamoTable    string `yaml:"dynamo_table"`
}

// LockTTL returns the snapshot writer lock TTL.
func (c SuppressionConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// ConfirmConfig controls the double opt-in flow.
type ConfirmConfig struct {
	RedirectBaseURL string `yaml:"redirect_base_url"` // when set, GET /api/confirm redirects to {base}/confirm-result
	MinTokenLength  int    `yaml:"min_token_length"`
	SendOnSubscribe bool   `yaml:"send_on_subscribe"`
	Subject         string `yaml:"subject"`
}

// RateLimitConfig guards the subscribe endpoint.
type RateLimitConfig struct {
	PerMinute int    `yaml:"per_minute"`
	Backend   string `yaml:"backend"` // "auto", "redis", "postgres" or "memory"
}

// BulkConfig bounds the batch sender.
type BulkConfig struct {
	DefaultBatchSize   int    `yaml:"default_batch_size"`
	MaxBatchSize       int    `yaml:"max_batch_size"`
	DefaultConcurrency int    `yaml:"default_concurrency"`
	MaxConcurrency     int    `yaml:"max_concurrency"`
	SendTimeoutSeconds int    `yaml:"send_timeout_seconds"`
	PreviewLimit       int    `yaml:"preview_limit"`
	From               string `yaml:"from"`
}

// SendTimeout returns the per-message timeout.
func (c BulkConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// MailConfig selects and configures the outbound transport.
type MailConfig struct {
	Provider string     `yaml:"provider"` // "smtp", "ses" or "log"
	From     string     `yaml:"from"`
	SMTP     SMTPConfig `yaml:"smtp"`
	SES      SESConfig  `yaml:"ses"`
}

// SMTPConfig holds SMTP relay credentials.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// SESConfig holds AWS SES settings.
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// WebhookConfig holds the provider signing secret.
type WebhookConfig struct {
	Secret           string `yaml:"secret"`
	ToleranceSeconds int    `yaml:"tolerance_seconds"`
}

// Tolerance returns the accepted clock skew for signed timestamps.
func (c WebhookConfig) Tolerance() time.Duration {
	return time.Duration(c.ToleranceSeconds) * time.Second
}

// AuditConfig enables the Kafka audit mirror when brokers are set.
type AuditConfig struct {
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level"`
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
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied, for callers
// that run without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./data"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-west-2"
	}
	if cfg.Suppression.Backend == "" {
		cfg.Suppression.Backend = "snapshot"
	}
	if cfg.Suppression.SnapshotKey == "" {
		cfg.Suppression.SnapshotKey = "suppression/suppression.txt"
	}
	if cfg.Suppression.LockTTLSeconds == 0 {
		cfg.Suppression.LockTTLSeconds = 30
	}
	if cfg.Suppression.DynamoTable == "" {
		cfg.Suppression.DynamoTable = "optin-suppressions"
	}
	if cfg.Confirm.MinTokenLength == 0 {
		cfg.Confirm.MinTokenLength = 32
	}
	if cfg.Confirm.Subject == "" {
		cfg.Confirm.Subject = "Please confirm your subscription"
	}
	if cfg.RateLimit.PerMinute == 0 {
		cfg.RateLimit.PerMinute = 5
	}
	if cfg.RateLimit.Backend == "" {
		cfg.RateLimit.Backend = "auto"
	}
	if cfg.Bulk.DefaultBatchSize == 0 {
		cfg.Bulk.DefaultBatchSize = 50
	}
	if cfg.Bulk.MaxBatchSize == 0 {
		cfg.Bulk.MaxBatchSize = 200
	}
	if cfg.Bulk.DefaultConcurrency == 0 {
		cfg.Bulk.DefaultConcurrency = 3
	}
	if cfg.Bulk.MaxConcurrency == 0 {
		cfg.Bulk.MaxConcurrency = 10
	}
	if cfg.Bulk.SendTimeoutSeconds == 0 {
		cfg.Bulk.SendTimeoutSeconds = 30
	}
	if cfg.Bulk.PreviewLimit == 0 {
		cfg.Bulk.PreviewLimit = 10
	}
	if cfg.Mail.Provider == "" {
		cfg.Mail.Provider = "log"
	}
	if cfg.Mail.SMTP.Port == 0 {
		cfg.Mail.SMTP.Port = 587
	}
	if cfg.Mail.SES.Region == "" {
		cfg.Mail.SES.Region = "us-west-2"
	}
	if cfg.Webhook.ToleranceSeconds == 0 {
		cfg.Webhook.ToleranceSeconds = 300
	}
	if cfg.Audit.KafkaTopic == "" {
		cfg.Audit.KafkaTopic = "optin.events"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A missing file is not an error: defaults plus environment are used.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = Default()
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("APP_URL"); v != "" {
		cfg.Server.PublicBaseURL = strings.TrimRight(v, "/")
		if cfg.Confirm.RedirectBaseURL == "" {
			cfg.Confirm.RedirectBaseURL = cfg.Server.PublicBaseURL
		}
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("RESEND_WEBHOOK_SECRET"); v != "" {
		cfg.Webhook.Secret = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Mail.SMTP.Host = v
		if os.Getenv("MAIL_PROVIDER") == "" {
			cfg.Mail.Provider = "smtp"
		}
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Mail.SMTP.Port = p
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Mail.SMTP.User = v
	}
	if v := os.Getenv("SMTP_PASS"); v != "" {
		cfg.Mail.SMTP.Password = v
	}
	if v := os.Getenv("MAIL_PROVIDER"); v != "" {
		cfg.Mail.Provider = v
	}
	if v := os.Getenv("EMAIL_FROM"); v != "" {
		cfg.Mail.From = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Mail.SES.Region = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Mail.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Mail.SES.SecretKey = v
	}
	if v := os.Getenv("SUPPRESSION_S3_BUCKET"); v != "" {
		cfg.Storage.Type = "aws"
		cfg.Storage.S3Bucket = v
	}
	if v := os.Getenv("SUPPRESSION_BACKEND"); v != "" {
		cfg.Suppression.Backend = v
	}
	if v := os.Getenv("SUPPRESSION_DYNAMO_TABLE"); v != "" {
		cfg.Suppression.DynamoTable = v
	}
	if v := os.Getenv("SUPPRESSION_PATHNAME"); v != "" {
		cfg.Suppression.SnapshotKey = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Audit.KafkaBrokers = splitList(v)
	}
	if v := os.Getenv("KAFKA_AUDIT_TOPIC"); v != "" {
		cfg.Audit.KafkaTopic = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if cfg.Bulk.From == "" {
		cfg.Bulk.From = cfg.Mail.From
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
