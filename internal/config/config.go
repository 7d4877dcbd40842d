package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr           = ":8080"
	defaultMaxRequestSize       = 262144
	defaultTimeout              = 5000 * time.Millisecond
	defaultStoredRequestTimeout = 50 * time.Millisecond
	defaultDBDriver             = "sqlite"
	defaultDBDSN                = "vexing.db"
	defaultRedisTTL             = 300 * time.Second
	defaultS3Region             = "us-east-1"
	defaultHealthPeriod         = 60000 * time.Millisecond
	defaultHealthJitter         = 5000 * time.Millisecond
	defaultBidderConcurrency    = 32

	envListenAddr           = "VEXING_LISTEN_ADDR"
	envLogLevel             = "VEXING_LOG_LEVEL"
	envMaxRequestSize       = "VEXING_MAX_REQUEST_SIZE"
	envDefaultTimeoutMS     = "VEXING_DEFAULT_TIMEOUT_MS"
	envStoredRequestTimeout = "VEXING_STORED_REQUEST_TIMEOUT_MS"
	envDBDriver             = "VEXING_DB_DRIVER"
	envDBDSN                = "VEXING_DB_DSN"
	envRedisAddr            = "VEXING_REDIS_ADDR"
	envRedisPassword        = "VEXING_REDIS_PASSWORD"
	envRedisTTL             = "VEXING_REDIS_TTL_S"
	envS3Endpoint           = "VEXING_S3_ENDPOINT"
	envS3AccessKey          = "VEXING_S3_ACCESS_KEY"
	envS3SecretKey          = "VEXING_S3_SECRET_KEY"
	envS3Region             = "VEXING_S3_REGION"
	envS3Bucket             = "VEXING_S3_BUCKET"
	envS3Prefix             = "VEXING_S3_PREFIX"
	envS3UseSSL             = "VEXING_S3_USE_SSL"
	envBiddersFile          = "VEXING_BIDDERS_FILE"
	envBidderConcurrency    = "VEXING_BIDDER_CONCURRENCY"
	envHealthPeriod         = "VEXING_HEALTH_PERIOD_MS"
	envHealthJitter         = "VEXING_HEALTH_JITTER_MS"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	LogLevel   slog.Level

	// MaxRequestSize is the largest auction body accepted, in bytes.
	MaxRequestSize int64
	// DefaultTimeout is the auction budget when a request has no tmax.
	DefaultTimeout time.Duration
	// StoredRequestTimeout bounds each stored request fetch.
	StoredRequestTimeout time.Duration

	DBDriver string
	DBDSN    string

	// RedisAddr enables the stored request cache when set.
	RedisAddr     string
	RedisPassword string
	RedisTTL      time.Duration

	// S3 replaces the database as the stored request source when its
	// endpoint and bucket are set.
	S3 S3Config

	BiddersFile       string
	// BidderConcurrency caps the bidder calls in flight per auction.
	BidderConcurrency int

	HealthPeriod time.Duration
	HealthJitter time.Duration
}

// S3Config locates stored request objects in an S3-compatible store.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// Enabled reports whether an object store is configured.
func (c S3Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed numeric values keep the default.
func Load() Config {
	cfg := Config{
		ListenAddr:           defaultListenAddr,
		LogLevel:             slog.LevelInfo,
		MaxRequestSize:       defaultMaxRequestSize,
		DefaultTimeout:       defaultTimeout,
		StoredRequestTimeout: defaultStoredRequestTimeout,
		DBDriver:             defaultDBDriver,
		DBDSN:                defaultDBDSN,
		RedisTTL:             defaultRedisTTL,
		S3:                   S3Config{Region: defaultS3Region, UseSSL: true},
		HealthPeriod:         defaultHealthPeriod,
		HealthJitter:         defaultHealthJitter,
		BidderConcurrency:    defaultBidderConcurrency,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envMaxRequestSize); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxRequestSize = n
		}
	}
	cfg.DefaultTimeout = durationEnv(envDefaultTimeoutMS, time.Millisecond, cfg.DefaultTimeout)
	cfg.StoredRequestTimeout = durationEnv(envStoredRequestTimeout, time.Millisecond, cfg.StoredRequestTimeout)

	if v := os.Getenv(envDBDriver); v != "" {
		cfg.DBDriver = v
	}
	if v := os.Getenv(envDBDSN); v != "" {
		cfg.DBDSN = v
	}

	cfg.RedisAddr = os.Getenv(envRedisAddr)
	cfg.RedisPassword = os.Getenv(envRedisPassword)
	cfg.RedisTTL = durationEnv(envRedisTTL, time.Second, cfg.RedisTTL)

	cfg.S3.Endpoint = os.Getenv(envS3Endpoint)
	cfg.S3.AccessKey = os.Getenv(envS3AccessKey)
	cfg.S3.SecretKey = os.Getenv(envS3SecretKey)
	cfg.S3.Bucket = os.Getenv(envS3Bucket)
	cfg.S3.Prefix = os.Getenv(envS3Prefix)
	if v := os.Getenv(envS3Region); v != "" {
		cfg.S3.Region = v
	}
	if v := os.Getenv(envS3UseSSL); v != "" {
		cfg.S3.UseSSL = strings.EqualFold(v, "true") || v == "1"
	}

	cfg.BiddersFile = os.Getenv(envBiddersFile)
	if v := os.Getenv(envBidderConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BidderConcurrency = n
		}
	}
	cfg.HealthPeriod = durationEnv(envHealthPeriod, time.Millisecond, cfg.HealthPeriod)
	cfg.HealthJitter = durationEnv(envHealthJitter, time.Millisecond, cfg.HealthJitter)

	return cfg
}

// durationEnv reads a positive integer count of unit from the named variable.
func durationEnv(name string, unit, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * unit
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
