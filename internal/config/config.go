// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	AWS          AWSConfig
	Jobs         JobsConfig
	Export       ExportConfig
	Logging      LoggingConfig
	Notification NotificationConfig
	Policy       Policy
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// RedisConfig holds Redis connection settings. An empty Host disables caching and pass locks.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	CacheTTL time.Duration
	LockTTL  time.Duration
}

// Enabled reports whether Redis is configured.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Addr returns host:port.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AWSConfig holds AWS provider settings.
type AWSConfig struct {
	Enabled       bool
	Region        string
	AccessKeyID   string
	SecretKey     string
	AssumeRoleARN string
	ExternalID    string
	SyncDays      int
}

// JobsConfig holds cron schedules for the periodic passes. Schedules use six fields
// (seconds first). An empty schedule leaves the pass to on-demand runs only.
type JobsConfig struct {
	Enabled          bool
	CostSyncSchedule string
	WasteSchedule    string
	IdleSchedule     string
	ForecastSchedule string
	ExportSchedule   string
	Timeout          time.Duration
}

// ExportConfig holds findings report settings.
type ExportConfig struct {
	Bucket string
	Prefix string
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string
	Format string
}

// SlogLevel maps the configured level onto slog.
func (c LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger. Format "text" selects the text handler; anything
// else logs JSON.
func (c LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.EqualFold(c.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// NotificationConfig holds notification settings.
type NotificationConfig struct {
	SlackWebhookURL string
	EmailSMTPHost   string
	EmailSMTPPort   int
	EmailFrom       string
	EmailPassword   string
	EmailTo         string // comma-separated
	WebhookURLs     string // comma-separated
}

// Load loads configuration from environment variables and the policy file named by
// POLICY_FILE.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getEnvList("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "yunwei"),
			Password:     getEnv("DB_PASSWORD", ""),
			Name:         getEnv("DB_NAME", "yunwei"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvDuration("DB_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			CacheTTL: getEnvDuration("REDIS_CACHE_TTL", 5*time.Minute),
			LockTTL:  getEnvDuration("REDIS_LOCK_TTL", 30*time.Minute),
		},
		AWS: AWSConfig{
			Enabled:       getEnvBool("AWS_ENABLED", false),
			Region:        getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:   getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretKey:     getEnv("AWS_SECRET_ACCESS_KEY", ""),
			AssumeRoleARN: getEnv("AWS_ASSUME_ROLE_ARN", ""),
			ExternalID:    getEnv("AWS_EXTERNAL_ID", ""),
			SyncDays:      getEnvInt("AWS_SYNC_DAYS", 35),
		},
		Jobs: JobsConfig{
			Enabled:          getEnvBool("JOBS_ENABLED", true),
			CostSyncSchedule: getEnv("JOB_COST_SYNC", "0 0 */6 * * *"),
			WasteSchedule:    getEnv("JOB_WASTE_DETECT", "0 30 1 * * *"),
			IdleSchedule:     getEnv("JOB_IDLE_DETECT", "0 45 1 * * *"),
			ForecastSchedule: getEnv("JOB_FORECAST", "0 0 2 * * *"),
			ExportSchedule:   getEnv("JOB_FINDINGS_EXPORT", "0 0 6 * * 1"),
			Timeout:          getEnvDuration("JOB_TIMEOUT", 30*time.Minute),
		},
		Export: ExportConfig{
			Bucket: getEnv("EXPORT_S3_BUCKET", ""),
			Prefix: getEnv("EXPORT_S3_PREFIX", "yunwei/reports"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Notification: NotificationConfig{
			SlackWebhookURL: getEnv("NOTIFICATION_SLACK_WEBHOOK", ""),
			EmailSMTPHost:   getEnv("NOTIFICATION_EMAIL_SMTP_HOST", ""),
			EmailSMTPPort:   getEnvInt("NOTIFICATION_EMAIL_SMTP_PORT", 587),
			EmailFrom:       getEnv("NOTIFICATION_EMAIL_FROM", ""),
			EmailPassword:   getEnv("NOTIFICATION_EMAIL_PASSWORD", ""),
			EmailTo:         getEnv("NOTIFICATION_EMAIL_TO", ""),
			WebhookURLs:     getEnv("NOTIFICATION_WEBHOOK_URLS", ""),
		},
	}

	policy, err := LoadPolicy(getEnv("POLICY_FILE", ""))
	if err != nil {
		return nil, err
	}
	cfg.Policy = *policy

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT %d is out of range", c.Server.Port)
	}
	if c.AWS.Enabled && c.AWS.SyncDays <= 0 {
		return fmt.Errorf("AWS_SYNC_DAYS must be positive")
	}
	return c.Policy.Validate()
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// Split returns the comma-separated list with blanks removed.
func Split(list string) []string {
	var out []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Helper functions
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		return Split(v)
	}
	return fallback
}
