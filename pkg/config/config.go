package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `env:", prefix=SERVER_"`
	Storage    StorageConfig    `env:", prefix=STORAGE_"`
	Redis      RedisConfig      `env:", prefix=REDIS_"`
	MySQL      MySQLConfig      `env:", prefix=MYSQL_"`
	InfluxDB   InfluxConfig     `env:", prefix=INFLUXDB_"`
	NATS       NATSConfig       `env:", prefix=NATS_"`
	Fetcher    FetcherConfig    `env:", prefix=FETCHER_"`
	Cache      CacheConfig      `env:", prefix=CACHE_"`
	Scheduler  SchedulerConfig  `env:", prefix=SCHEDULER_"`
	Market     MarketConfig     `env:", prefix=MARKET_"`
	Features   FeaturesConfig   `env:", prefix=FEATURES_"`
	Logging    LoggingConfig    `env:", prefix=LOG_"`
	Monitoring MonitoringConfig `env:", prefix=MONITORING_"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `env:"HOST, default=0.0.0.0"`
	Port         int           `env:"PORT, default=8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT, default=120s"`
}

// StorageConfig selects and configures the persisted key-value backend.
type StorageConfig struct {
	// Backend is one of: file, memory, redis, mysql
	Backend string `env:"BACKEND, default=file"`
	FileDir string `env:"FILE_DIR, default=data/cache"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string        `env:"HOST, default=localhost"`
	Port         int           `env:"PORT, default=6379"`
	Password     string        `env:"PASSWORD"`
	DB           int           `env:"DB, default=0"`
	PoolSize     int           `env:"POOL_SIZE, default=10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS, default=5"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT, default=5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=3s"`
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	Host            string        `env:"HOST, default=localhost"`
	Port            int           `env:"PORT, default=3306"`
	Database        string        `env:"DATABASE, default=assetsync"`
	User            string        `env:"USER, default=assetsync"`
	Password        string        `env:"PASSWORD"`
	Table           string        `env:"TABLE, default=cache_entries"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS, default=25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS, default=5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME, default=5m"`
}

// InfluxConfig holds InfluxDB configuration
type InfluxConfig struct {
	URL     string        `env:"URL, default=http://localhost:8086"`
	Token   string        `env:"TOKEN"`
	Org     string        `env:"ORG, default=assetsync-org"`
	Bucket  string        `env:"BUCKET, default=assetsync"`
	Timeout time.Duration `env:"TIMEOUT, default=10s"`
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL           string        `env:"URL, default=nats://localhost:4222"`
	MaxReconnect  int           `env:"MAX_RECONNECT, default=10"`
	ReconnectWait time.Duration `env:"RECONNECT_WAIT, default=2s"`
}

// FetcherConfig holds remote asset API configuration
type FetcherConfig struct {
	BaseURL           string        `env:"BASE_URL, default=http://localhost:9000"`
	AuthToken         string        `env:"AUTH_TOKEN"`
	Timeout           time.Duration `env:"TIMEOUT, default=10s"`
	RateLimitInterval time.Duration `env:"RATE_LIMIT_INTERVAL, default=2s"`
}

// CacheConfig holds TTL tiers and the memory budget for the cache store.
type CacheConfig struct {
	KeyPrefix      string        `env:"KEY_PREFIX, default=assetsync"`
	CollectionTTL  time.Duration `env:"COLLECTION_TTL, default=5m"`
	PriceTTL       time.Duration `env:"PRICE_TTL, default=30s"`
	ChartTTL       time.Duration `env:"CHART_TTL, default=24h"`
	MaxBytes       int64         `env:"MAX_BYTES, default=10485760"`
	ChartRetention time.Duration `env:"CHART_RETENTION, default=168h"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL, default=10m"`
}

// SchedulerConfig holds refresh cadence and retry policy.
type SchedulerConfig struct {
	UpdateInterval     time.Duration `env:"UPDATE_INTERVAL, default=5m"`
	MaxRetries         int           `env:"MAX_RETRIES, default=3"`
	RetryDelay         time.Duration `env:"RETRY_DELAY, default=30s"`
	StaleAfter         time.Duration `env:"STALE_AFTER, default=1h"`
	MarketRefreshAfter time.Duration `env:"MARKET_REFRESH_AFTER, default=5m"`
}

// MarketConfig holds trading-hours assumptions for the market resolver.
type MarketConfig struct {
	Timezone      string `env:"TIMEZONE, default=Asia/Kolkata"`
	PreMarketHour int    `env:"PRE_MARKET_HOUR, default=8"`
	OpenHour      int    `env:"OPEN_HOUR, default=9"`
	CloseHour     int    `env:"CLOSE_HOUR, default=16"`
	AfterHoursEnd int    `env:"AFTER_HOURS_END, default=18"`
}

// FeaturesConfig holds feature flags
type FeaturesConfig struct {
	MessagingEnabled bool `env:"MESSAGING_ENABLED, default=false"`
	HistoryEnabled   bool `env:"HISTORY_ENABLED, default=false"`
	WebSocketEnabled bool `env:"WEBSOCKET_ENABLED, default=true"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `env:"LEVEL, default=info"`
	Format string `env:"FORMAT, default=json"`
	Output string `env:"OUTPUT, default=stdout"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	MetricsEnabled     bool `env:"METRICS_ENABLED, default=true"`
	HealthCheckEnabled bool `env:"HEALTH_CHECK_ENABLED, default=true"`
}

// Load loads configuration from environment variables using go-envconfig
func Load() (*Config, error) {
	ctx := context.Background()
	var cfg Config

	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Storage.Backend {
	case "file", "memory", "redis", "mysql":
	default:
		return fmt.Errorf("invalid storage backend: %s", c.Storage.Backend)
	}

	if c.Storage.Backend == "file" && c.Storage.FileDir == "" {
		return fmt.Errorf("file storage directory is required")
	}

	if c.Scheduler.MaxRetries < 1 {
		return fmt.Errorf("scheduler max retries must be at least 1, got %d", c.Scheduler.MaxRetries)
	}

	if c.Market.OpenHour < 0 || c.Market.CloseHour > 24 || c.Market.OpenHour >= c.Market.CloseHour {
		return fmt.Errorf("invalid market hours: open=%d close=%d", c.Market.OpenHour, c.Market.CloseHour)
	}

	if c.Cache.MaxBytes <= 0 {
		return fmt.Errorf("cache max bytes must be positive, got %d", c.Cache.MaxBytes)
	}

	return nil
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// GetMySQLDSN returns the MySQL DSN string
func (c *Config) GetMySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		c.MySQL.User,
		c.MySQL.Password,
		c.MySQL.Host,
		c.MySQL.Port,
		c.MySQL.Database,
	)
}

// GetServerAddr returns the HTTP server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
