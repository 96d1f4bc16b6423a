// Package config handles application configuration loading and validation using Viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Workers    WorkersConfig    `mapstructure:"workers"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	Mattermost MattermostConfig `mapstructure:"mattermost"`
	Ratings    RatingsConfig    `mapstructure:"ratings"`
	Throttle   ThrottleConfig   `mapstructure:"throttle"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
	SiteURL        string   `mapstructure:"site_url"` // Absolute prefix for links in emails
}

// AuthConfig contains bearer token verification settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// DatabaseConfig contains database connection settings for PostgreSQL and Redis.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	Migrate         string `mapstructure:"migrate"` // "sql", "auto" or "none"
}

// RedisConfig contains Redis cache connection and pool settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// NATSConfig contains settings for the NATS task transport.
type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	QueueGroup    string `mapstructure:"queue_group"`
}

// WorkersConfig sizes the in-process background task pool.
type WorkersConfig struct {
	Count  int `mapstructure:"count"`
	Buffer int `mapstructure:"buffer"`
}

// SMTPConfig contains outgoing email settings.
type SMTPConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	From          string `mapstructure:"from"`
	SkipTLSVerify bool   `mapstructure:"skip_tls_verify"`
	PerMinute     int    `mapstructure:"per_minute"`
}

// MattermostConfig contains Mattermost webhook settings for moderation alerts.
type MattermostConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
	Enabled    bool   `mapstructure:"enabled"`
}

// RatingsConfig contains rating business settings.
type RatingsConfig struct {
	TaskUserID    uint `mapstructure:"task_user_id"`
	MaxBodyLength int  `mapstructure:"max_body_length"`
	DeniedWordTTL int  `mapstructure:"denied_word_ttl"` // seconds
	PageSize      int  `mapstructure:"page_size"`
}

// ThrottleConfig maps a throttle scope to its rates.
type ThrottleConfig struct {
	Scopes map[string]ScopeRates `mapstructure:"scopes"`
}

// ScopeRates lists the rates applied per user and per client IP for one scope.
type ScopeRates struct {
	User []string `mapstructure:"user"`
	IP   []string `mapstructure:"ip"`
}

// SchedulerConfig contains periodic recompute settings.
type SchedulerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BayesianCron   string `mapstructure:"bayesian_cron"`
	AggregatesCron string `mapstructure:"aggregates_cron"`
	Timezone       string `mapstructure:"timezone"`
}

// MetricsConfig contains metrics exporter settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig contains Prometheus metrics exporter settings.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// DefaultThrottleScopes mirrors the production rates of the ratings API.
func DefaultThrottleScopes() map[string]ScopeRates {
	return map[string]ScopeRates{
		"post":   {User: []string{"1/minute", "24/day"}, IP: []string{"1/minute", "36/day"}},
		"edit":   {User: []string{"5/minute", "50/day"}, IP: []string{"5/minute", "100/day"}},
		"delete": {User: []string{"5/minute", "50/day"}, IP: []string{"5/minute", "100/day"}},
		"reply":  {User: []string{"1/5second"}},
		"flag":   {User: []string{"20/day"}},
		"vote":   {User: []string{"1/5second", "200/day"}},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("auth.issuer", "addon-ratings")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)
	v.SetDefault("database.postgres.migrate", "sql")
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)
	v.SetDefault("nats.subject_prefix", "ratings.tasks")
	v.SetDefault("nats.queue_group", "ratings-workers")
	v.SetDefault("workers.count", 4)
	v.SetDefault("workers.buffer", 256)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.per_minute", 60)
	v.SetDefault("ratings.max_body_length", 4000)
	v.SetDefault("ratings.denied_word_ttl", 3600)
	v.SetDefault("ratings.page_size", 25)
	v.SetDefault("scheduler.bayesian_cron", "30 3 * * *")
	v.SetDefault("scheduler.aggregates_cron", "0 3 * * *")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.path", "/metrics")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/addon-ratings/")
	}

	// Server configuration
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")
	_ = v.BindEnv("server.site_url", "SITE_URL")

	// Auth configuration
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("auth.issuer", "JWT_ISSUER")

	// PostgreSQL configuration
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")
	_ = v.BindEnv("database.postgres.migrate", "POSTGRES_MIGRATE")

	// Redis configuration
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")

	// NATS configuration
	_ = v.BindEnv("nats.enabled", "NATS_ENABLED")
	_ = v.BindEnv("nats.url", "NATS_URL")

	// SMTP configuration
	_ = v.BindEnv("smtp.enabled", "SMTP_ENABLED")
	_ = v.BindEnv("smtp.host", "SMTP_HOST")
	_ = v.BindEnv("smtp.port", "SMTP_PORT")
	_ = v.BindEnv("smtp.user", "SMTP_USER")
	_ = v.BindEnv("smtp.password", "SMTP_PASS")
	_ = v.BindEnv("smtp.from", "SMTP_FROM")
	_ = v.BindEnv("smtp.skip_tls_verify", "SMTP_SKIP_TLS_VERIFY")

	// Mattermost configuration
	_ = v.BindEnv("mattermost.webhook_url", "MATTERMOST_WEBHOOK_URL")
	_ = v.BindEnv("mattermost.channel", "MATTERMOST_CHANNEL")
	_ = v.BindEnv("mattermost.enabled", "MATTERMOST_ENABLED")

	// Ratings configuration
	_ = v.BindEnv("ratings.task_user_id", "RATINGS_TASK_USER_ID")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	// Scheduler configuration
	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.applyThrottleDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyThrottleDefaults fills in scopes missing from the file.
func (c *Config) applyThrottleDefaults() {
	if c.Throttle.Scopes == nil {
		c.Throttle.Scopes = make(map[string]ScopeRates)
	}
	for scope, rates := range DefaultThrottleScopes() {
		if _, ok := c.Throttle.Scopes[scope]; !ok {
			c.Throttle.Scopes[scope] = rates
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if c.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if c.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	switch c.Database.Postgres.Migrate {
	case "sql", "auto", "none":
	default:
		return fmt.Errorf("database.postgres.migrate must be one of sql, auto, none")
	}
	if c.Database.Redis.Host == "" {
		return fmt.Errorf("database.redis.host is required")
	}
	if c.Ratings.TaskUserID == 0 {
		return fmt.Errorf("ratings.task_user_id is required")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}
	if c.SMTP.Enabled && (c.SMTP.Host == "" || c.SMTP.From == "") {
		return fmt.Errorf("smtp.host and smtp.from are required when smtp is enabled")
	}
	if c.Mattermost.Enabled && c.Mattermost.WebhookURL == "" {
		return fmt.Errorf("mattermost.webhook_url is required when mattermost is enabled")
	}
	return nil
}

// GetLocation returns the scheduler timezone location.
func (c *SchedulerConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// DeniedWordCacheTTL returns the denied word cache lifetime.
func (c *RatingsConfig) DeniedWordCacheTTL() time.Duration {
	if c.DeniedWordTTL <= 0 {
		return time.Hour
	}
	return time.Duration(c.DeniedWordTTL) * time.Second
}
