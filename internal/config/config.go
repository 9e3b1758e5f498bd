package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultVelobikeURL       = "https://velobike.ru/ajax/parkings/"
	DefaultRefreshInterval   = 5 * time.Minute
	DefaultMatchCacheSize    = 1024
	defaultMatchCacheTTL     = 5 * time.Minute
	defaultHTTPTimeout       = 10 * time.Second
	defaultMaxRetries        = 3
	defaultPersistTimeout    = 5 * time.Second
	defaultSubscriptionTable = "velobot-subscriptions"
	defaultSnapshotTTL       = time.Hour
	defaultPort              = "8080"

	// MemorySubscriptionsTable keeps subscriptions in process memory instead
	// of DynamoDB. Nothing survives a restart.
	MemorySubscriptionsTable = "memory"
)

type Config struct {
	Environment string
	LogLevel    zerolog.Level
	HTTPTimeout time.Duration
	MaxRetries  int

	// Station feed
	VelobikeURL     string
	RefreshInterval time.Duration

	// Persistence
	PersistenceTimeout time.Duration
	SubscriptionsTable string
	SnapshotBucket     string
	SnapshotTTL        time.Duration
	MatchCacheSize     int
	MatchCacheTTL      time.Duration

	Port string
}

type Option func(*Config)

// WithEnvironment allows setting the environment
func WithEnvironment(env string) Option {
	return func(c *Config) {
		c.Environment = env
	}
}

// WithLogLevel allows setting the log level
func WithLogLevel(level string) Option {
	return func(c *Config) {
		parsedLevel, err := zerolog.ParseLevel(level)
		if err != nil {
			parsedLevel = zerolog.InfoLevel
		}
		c.LogLevel = parsedLevel
	}
}

// WithHTTPTimeout allows setting the HTTP timeout
func WithHTTPTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.HTTPTimeout = timeout
	}
}

func WithMaxRetries(retries int) Option {
	return func(c *Config) {
		c.MaxRetries = retries
	}
}

func WithVelobikeURL(url string) Option {
	return func(c *Config) {
		c.VelobikeURL = url
	}
}

// WithRefreshInterval sets how often the station feed is polled.
// Non-positive values keep the default.
func WithRefreshInterval(interval time.Duration) Option {
	return func(c *Config) {
		if interval > 0 {
			c.RefreshInterval = interval
		}
	}
}

func WithPersistenceTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.PersistenceTimeout = timeout
	}
}

func WithSubscriptionsTable(table string) Option {
	return func(c *Config) {
		c.SubscriptionsTable = table
	}
}

// WithSnapshotBucket enables the S3 station snapshot. Empty disables it.
func WithSnapshotBucket(bucket string, ttl time.Duration) Option {
	return func(c *Config) {
		c.SnapshotBucket = bucket
		c.SnapshotTTL = ttl
	}
}

func WithMatchCache(size int, ttl time.Duration) Option {
	return func(c *Config) {
		c.MatchCacheSize = size
		c.MatchCacheTTL = ttl
	}
}

func WithPort(port string) Option {
	return func(c *Config) {
		c.Port = port
	}
}

// New creates a new configuration with default values
func New(opts ...Option) *Config {
	cfg := &Config{
		Environment:        "production",
		LogLevel:           zerolog.InfoLevel,
		HTTPTimeout:        defaultHTTPTimeout,
		MaxRetries:         defaultMaxRetries,
		VelobikeURL:        DefaultVelobikeURL,
		RefreshInterval:    DefaultRefreshInterval,
		PersistenceTimeout: defaultPersistTimeout,
		SubscriptionsTable: defaultSubscriptionTable,
		SnapshotTTL:        defaultSnapshotTTL,
		MatchCacheSize:     DefaultMatchCacheSize,
		MatchCacheTTL:      defaultMatchCacheTTL,
		Port:               defaultPort,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

// InitializeLogging sets up logging based on the configuration
func (c *Config) InitializeLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(c.LogLevel)

	// Setup console logger for development environments
	if c.IsLocal() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
}

func (c *Config) IsLocal() bool {
	return c.Environment == "local" || c.Environment == "development"
}

// UsesMemoryStore reports whether subscriptions live only in process memory
func (c *Config) UsesMemoryStore() bool {
	return c.SubscriptionsTable == "" || c.SubscriptionsTable == MemorySubscriptionsTable
}

// LoadFromEnv loads configuration from environment variables. A .env file in
// the working directory is read first when present; variables already set in
// the process environment take precedence over it.
func LoadFromEnv() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded, using process environment")
	}

	return New(
		WithEnvironment(getEnvOrDefault("ENV", "production")),
		WithLogLevel(getEnvOrDefault("LOG_LEVEL", "info")),
		WithHTTPTimeout(getDurationEnvOrDefault("HTTP_TIMEOUT", defaultHTTPTimeout)),
		WithMaxRetries(getEnvInt("HTTP_MAX_RETRIES", defaultMaxRetries)),
		WithVelobikeURL(getEnvOrDefault("VELOBIKE_URL", DefaultVelobikeURL)),
		WithRefreshInterval(getDurationEnvOrDefault("REFRESH_INTERVAL", DefaultRefreshInterval)),
		WithPersistenceTimeout(getDurationEnvOrDefault("PERSISTENCE_TIMEOUT", defaultPersistTimeout)),
		WithSubscriptionsTable(getEnvOrDefault("SUBSCRIPTIONS_TABLE", defaultSubscriptionTable)),
		WithSnapshotBucket(
			os.Getenv("STATION_SNAPSHOT_BUCKET"),
			getDurationEnvOrDefault("STATION_SNAPSHOT_TTL", defaultSnapshotTTL),
		),
		WithMatchCache(
			getEnvInt("MATCH_CACHE_SIZE", DefaultMatchCacheSize),
			getDurationEnvOrDefault("MATCH_CACHE_TTL", defaultMatchCacheTTL),
		),
		WithPort(getEnvOrDefault("PORT", defaultPort)),
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Warn().Str("key", key).Msg("Invalid duration value in environment variable, using default")
	}
	return defaultValue
}

func getEnvInt(key string, defaultVal int) int {
	if val, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
		log.Warn().Str("key", key).Msg("Invalid integer value in environment variable, using default")
	}
	return defaultVal
}
