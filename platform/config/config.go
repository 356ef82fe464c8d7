// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// SchedulerConfig provides settings for the asynq client and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketReports() string
	IsMinIOEnabled() bool
}

// TicketSinkConfig provides settings for the external ticketing integration.
type TicketSinkConfig interface {
	GetTicketSinkMode() string // "stub" or "live"
	GetTicketSinkBaseURL() string
	GetTicketSinkAccessToken() string
	GetTicketSinkRequestsPerSecond() float64
}

// AlertConfig provides thresholds for alert generation and dispatch.
type AlertConfig interface {
	GetAlertSeverityFloor() string
	GetLowScoreThreshold() float64
	GetAppBaseURL() string
}

// WebhookConfig provides the outbound webhook fan-out settings.
type WebhookConfig interface {
	GetWebhookEndpoints() []string
	GetWebhookTimeout() time.Duration
}

// =============================================================================
// Config implementation
// =============================================================================

// Config holds all application configuration loaded from the environment.
type Config struct {
	Env string

	HTTPAddr     string
	CORSAllowAll bool
	CORSOrigins  []string

	DatabaseURL string

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int

	MinIOEndpoint      string
	MinIOAccessKey     string
	MinIOSecretKey     string
	MinIOUseSSL        bool
	MinioBucketReports string

	TicketSinkMode        string
	TicketSinkBaseURL     string
	TicketSinkAccessToken string
	TicketSinkRPS         float64

	AlertSeverityFloor string
	LowScoreThreshold  float64
	AppBaseURL         string

	WebhookEndpoints []string
	WebhookTimeout   time.Duration

	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment, applying defaults.
// A .env file is loaded first when present (development convenience).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		CORSAllowAll:          getBool("CORS_ALLOW_ALL", false),
		CORSOrigins:           splitList(getEnv("CORS_ORIGINS", "")),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisTLSInsecure:      getBool("REDIS_TLS_INSECURE", false),
		AsynqQueueName:        getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:      getInt("ASYNQ_CONCURRENCY", 10),
		MinIOEndpoint:         os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey:        os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey:        os.Getenv("MINIO_SECRET_KEY"),
		MinIOUseSSL:           getBool("MINIO_USE_SSL", false),
		MinioBucketReports:    getEnv("MINIO_BUCKET_REPORTS", "qc-reports"),
		TicketSinkMode:        strings.ToLower(getEnv("TICKET_SINK_MODE", "stub")),
		TicketSinkBaseURL:     os.Getenv("TICKET_SINK_BASE_URL"),
		TicketSinkAccessToken: os.Getenv("TICKET_SINK_ACCESS_TOKEN"),
		TicketSinkRPS:         getFloat("TICKET_SINK_RPS", 2),
		AlertSeverityFloor:    getEnv("ALERT_SEVERITY_FLOOR", "WARNING"),
		LowScoreThreshold:     getFloat("ALERT_LOW_SCORE_THRESHOLD", 70),
		AppBaseURL:            getEnv("APP_BASE_URL", "http://localhost:8080"),
		WebhookEndpoints:      splitList(getEnv("WEBHOOK_ENDPOINTS", "")),
		WebhookTimeout:        getDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		ShutdownTimeout:       getDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.TicketSinkMode == "live" && cfg.TicketSinkBaseURL == "" {
		return nil, fmt.Errorf("TICKET_SINK_BASE_URL is required in live mode")
	}

	return cfg, nil
}

func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }
func (c *Config) GetHTTPAddr() string    { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool  { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string {
	return c.CORSOrigins
}

func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

func (c *Config) GetMinIOEndpoint() string      { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string     { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string     { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool          { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketReports() string { return c.MinioBucketReports }
func (c *Config) IsMinIOEnabled() bool {
	return c.MinIOEndpoint != "" && c.MinIOAccessKey != "" && c.MinIOSecretKey != ""
}

func (c *Config) GetTicketSinkMode() string        { return c.TicketSinkMode }
func (c *Config) GetTicketSinkBaseURL() string     { return c.TicketSinkBaseURL }
func (c *Config) GetTicketSinkAccessToken() string { return c.TicketSinkAccessToken }
func (c *Config) GetTicketSinkRequestsPerSecond() float64 {
	return c.TicketSinkRPS
}

func (c *Config) GetAlertSeverityFloor() string { return c.AlertSeverityFloor }
func (c *Config) GetLowScoreThreshold() float64 { return c.LowScoreThreshold }
func (c *Config) GetAppBaseURL() string         { return c.AppBaseURL }

func (c *Config) GetWebhookEndpoints() []string    { return c.WebhookEndpoints }
func (c *Config) GetWebhookTimeout() time.Duration { return c.WebhookTimeout }

// =============================================================================
// Helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
