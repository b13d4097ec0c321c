// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

// Queue modes.
const (
	QueueModeSync  = "sync"
	QueueModeQueue = "queue"
)

// Backends for the job queue and the throttle cache.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	SMTP     SMTPConfig
	Brand    BrandConfig
	Queue    QueueConfig
	Redis    RedisConfig
	Throttle ThrottleConfig
	Token    TokenConfig
	Session  SessionConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string // file path / :memory: for SQLite, postgres:// URL for PostgreSQL
}

// SMTPConfig configures the outbound mail transport.
// An empty Host selects the logging sender (development).
type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
	Timeout  time.Duration
}

// BrandConfig is injected into every email template.
type BrandConfig struct {
	SiteName     string
	PrimaryColor string
	LogoURL      string
	SupportEmail string
}

type QueueConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Mode          string // sync, queue
	Backend       string // memory, redis
	Key           string // redis list key
	Size          int    // memory queue capacity
	Workers       int
	SubmitTimeout time.Duration
	MaxAttempts   int
	RetryBase     time.Duration
}

type RedisConfig struct {
	URL string
}

type ThrottleConfig struct {
	Backend  string // memory, redis
	Cooldown time.Duration
}

type TokenConfig struct {
	Secret string
	TTL    time.Duration
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName string // Session cookie name
	MaxAge     int    // Session max age in seconds
	HashKey    string // 32-byte hex string for HMAC signing
	BlockKey   string // 32-byte hex string for AES encryption (optional)
}

// Secure reports whether cookies should carry the Secure flag.
func (c *Config) Secure() bool {
	return strings.HasPrefix(c.Server.BaseURL, "https://")
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
			Timeout:  cmd.Duration("smtp-timeout"),
		},
		Brand: BrandConfig{
			SiteName:     cmd.String("site-name"),
			PrimaryColor: cmd.String("brand-primary-color"),
			LogoURL:      cmd.String("brand-logo-url"),
			SupportEmail: cmd.String("brand-support-email"),
		},
		Queue: QueueConfig{
			Mode:          cmd.String("queue-mode"),
			Backend:       cmd.String("queue-backend"),
			Key:           cmd.String("queue-key"),
			Size:          int(cmd.Int("queue-size")),
			Workers:       int(cmd.Int("queue-workers")),
			SubmitTimeout: cmd.Duration("queue-submit-timeout"),
			MaxAttempts:   int(cmd.Int("queue-max-attempts")),
			RetryBase:     cmd.Duration("queue-retry-base"),
		},
		Redis: RedisConfig{
			URL: cmd.String("redis-url"),
		},
		Throttle: ThrottleConfig{
			Backend:  cmd.String("throttle-backend"),
			Cooldown: cmd.Duration("throttle-cooldown"),
		},
		Token: TokenConfig{
			Secret: cmd.String("token-secret"),
			TTL:    cmd.Duration("token-ttl"),
		},
		Session: SessionConfig{
			CookieName: cmd.String("session-cookie-name"),
			MaxAge:     int(cmd.Int("session-max-age")),
			HashKey:    cmd.String("session-hash-key"),
			BlockKey:   cmd.String("session-block-key"),
		},
	}

	applyDefaults(cfg)

	return cfg
}

// applyDefaults fills values derived from other settings.
func applyDefaults(cfg *Config) {
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}
	cfg.Server.BaseURL = strings.TrimSuffix(cfg.Server.BaseURL, "/")

	// The SMTP login doubles as sender address when no explicit From is set.
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = "no-reply@localhost"
	}
	if cfg.SMTP.FromName == "" {
		cfg.SMTP.FromName = cfg.Brand.SiteName
	}
	if cfg.Brand.SupportEmail == "" {
		cfg.Brand.SupportEmail = cfg.SMTP.From
	}

	if cfg.Token.Secret == "" {
		cfg.Token.Secret = randomSecret()
		slog.Warn("token_secret_generated", "hint", "set --token-secret to keep links valid across restarts")
	}

	if cfg.Queue.Workers <= 0 {
		cfg.Queue.Workers = 1
	}
	if cfg.Queue.MaxAttempts <= 0 {
		cfg.Queue.MaxAttempts = 1
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	if host == "" {
		host = "localhost"
	}
	if cfg.Server.Port == 80 || cfg.Server.Port == 0 {
		return fmt.Sprintf("http://%s", host)
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Public base URL used in email links",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/app.db",
			Usage:   "Database DSN (SQLite path or postgres:// URL)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP host (empty logs emails instead of sending)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("EMAIL_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("EMAIL_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("EMAIL_HOST_USER"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("EMAIL_HOST_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address (defaults to the SMTP username)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DEFAULT_FROM_EMAIL"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Usage:   "Sender display name (defaults to the site name)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("EMAIL_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS (STARTTLS, implicit TLS on port 465)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("EMAIL_USE_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		&cli.DurationFlag{
			Name:    "smtp-timeout",
			Value:   30 * time.Second,
			Usage:   "SMTP connection and command timeout",
			Sources: cli.NewValueSourceChain(cli.EnvVar("EMAIL_TIMEOUT"), toml.TOML("smtp.timeout", configFile)),
		},
		// Brand flags
		&cli.StringFlag{
			Name:    "site-name",
			Value:   "Restaurante GYZ",
			Usage:   "Site name shown in emails",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SITE_NAME"), toml.TOML("brand.site_name", configFile)),
		},
		&cli.StringFlag{
			Name:    "brand-primary-color",
			Value:   "#10b981",
			Usage:   "Primary brand color used in emails",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BRAND_PRIMARY_COLOR"), toml.TOML("brand.primary_color", configFile)),
		},
		&cli.StringFlag{
			Name:    "brand-logo-url",
			Usage:   "Logo URL used in emails",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BRAND_LOGO_URL"), toml.TOML("brand.logo_url", configFile)),
		},
		&cli.StringFlag{
			Name:    "brand-support-email",
			Usage:   "Support address shown in emails (defaults to the sender address)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BRAND_SUPPORT_EMAIL"), toml.TOML("brand.support_email", configFile)),
		},
		// Queue flags
		&cli.StringFlag{
			Name:    "queue-mode",
			Value:   QueueModeQueue,
			Usage:   "Email dispatch mode (queue, sync)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("QUEUE_MODE"), toml.TOML("queue.mode", configFile)),
		},
		&cli.StringFlag{
			Name:    "queue-backend",
			Value:   BackendMemory,
			Usage:   "Job queue backend (memory, redis)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("QUEUE_BACKEND"), toml.TOML("queue.backend", configFile)),
		},
		&cli.StringFlag{
			Name:    "queue-key",
			Value:   "gyz:email:jobs",
			Usage:   "Redis list key for email jobs",
			Sources: cli.NewValueSourceChain(cli.EnvVar("QUEUE_KEY"), toml.TOML("queue.key", configFile)),
		},
		&cli.IntFlag{
			Name:    "queue-size",
			Value:   256,
			Usage:   "Capacity of the in-memory queue",
			Sources: cli.NewValueSourceChain(cli.EnvVar("QUEUE_SIZE"), toml.TOML("queue.size", configFile)),
		},
		&cli.IntFlag{
			Name:    "queue-workers",
			Value:   2,
			Usage:   "Number of email worker goroutines",
			Sources: cli.NewValueSourceChain(cli.EnvVar("QUEUE_WORKERS"), toml.TOML("queue.workers", configFile)),
		},
		&cli.DurationFlag{
			Name:    "queue-submit-timeout",
			Value:   2 * time.Second,
			Usage:   "Timeout for handing a job to the queue",
			Sources: cli.NewValueSourceChain(cli.EnvVar("QUEUE_SUBMIT_TIMEOUT"), toml.TOML("queue.submit_timeout", configFile)),
		},
		&cli.IntFlag{
			Name:    "queue-max-attempts",
			Value:   3,
			Usage:   "Delivery attempts per job (including the first)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("QUEUE_MAX_ATTEMPTS"), toml.TOML("queue.max_attempts", configFile)),
		},
		&cli.DurationFlag{
			Name:    "queue-retry-base",
			Value:   5 * time.Second,
			Usage:   "Initial retry delay, doubled on each retry",
			Sources: cli.NewValueSourceChain(cli.EnvVar("QUEUE_RETRY_BASE"), toml.TOML("queue.retry_base", configFile)),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Value:   "redis://localhost:6379/0",
			Usage:   "Redis URL for the redis queue and throttle backends",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REDIS_URL"), toml.TOML("redis.url", configFile)),
		},
		// Throttle flags
		&cli.StringFlag{
			Name:    "throttle-backend",
			Value:   BackendMemory,
			Usage:   "Resend throttle cache backend (memory, redis)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("THROTTLE_BACKEND"), toml.TOML("throttle.backend", configFile)),
		},
		&cli.DurationFlag{
			Name:    "throttle-cooldown",
			Value:   300 * time.Second,
			Usage:   "Cooldown between verification email resends per address",
			Sources: cli.NewValueSourceChain(cli.EnvVar("THROTTLE_COOLDOWN"), toml.TOML("throttle.cooldown", configFile)),
		},
		// Token flags
		&cli.StringFlag{
			Name:    "token-secret",
			Usage:   "Secret for verification and reset links (random per process if empty)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SECRET_KEY"), toml.TOML("token.secret", configFile)),
		},
		&cli.DurationFlag{
			Name:    "token-ttl",
			Value:   72 * time.Hour,
			Usage:   "Validity of verification and reset links",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TOKEN_TTL"), toml.TOML("token.ttl", configFile)),
		},
		// Session flags
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "_session",
			Usage:   "Session cookie name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_COOKIE_NAME"), toml.TOML("session.cookie_name", configFile)),
		},
		&cli.IntFlag{
			Name:    "session-max-age",
			Value:   604800, // 7 days in seconds
			Usage:   "Session max age in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_MAX_AGE"), toml.TOML("session.max_age", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Session hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_HASH_KEY"), toml.TOML("session.hash_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Session block key for encryption (32-byte hex, optional)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_BLOCK_KEY"), toml.TOML("session.block_key", configFile)),
		},
	}
}
