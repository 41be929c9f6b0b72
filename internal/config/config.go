package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the cronbat console.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Push      PushConfig
	Console   ConsoleConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// SchedulerConfig locates the scheduler's REST API.
type SchedulerConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// PushConfig tunes the push channel.
type PushConfig struct {
	ChannelPrefix     string
	PingInterval      time.Duration
	ReconnectDelay    time.Duration
	ResyncOnReconnect bool
}

type ConsoleConfig struct {
	ViewIdleTimeout     time.Duration
	LogCacheTTL         time.Duration
	LogFetchConcurrency int
	RateLimitPerMin     int
}

// ClientConfig is the subset the operator CLI needs.
type ClientConfig struct {
	Scheduler SchedulerConfig
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("CRONBAT_CONSOLE_PORT", 8080),
			Env:  envString("CRONBAT_ENV", "development"),
		},
		Database: loadDatabase(),
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Scheduler: loadScheduler(),
		Push: PushConfig{
			ChannelPrefix:     envString("PUSH_CHANNEL_PREFIX", "cronbat"),
			PingInterval:      envDuration("PUSH_PING_INTERVAL", 15*time.Second),
			ReconnectDelay:    envDuration("PUSH_RECONNECT_DELAY", 2*time.Second),
			ResyncOnReconnect: envBool("RESYNC_ON_RECONNECT", true),
		},
		Console: ConsoleConfig{
			ViewIdleTimeout:     envDuration("VIEW_IDLE_TIMEOUT", 10*time.Minute),
			LogCacheTTL:         envDuration("LOG_CACHE_TTL", 24*time.Hour),
			LogFetchConcurrency: envInt("LOG_FETCH_CONCURRENCY", 4),
			RateLimitPerMin:     envInt("RATE_LIMIT_PER_MIN", 60),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadClient reads the scheduler settings only.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{Scheduler: loadScheduler()}
	if err := cfg.Scheduler.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase reads the database settings only. The CLI uses it to manage
// API keys.
func LoadDatabase() (*DatabaseConfig, error) {
	db := loadDatabase()
	if db.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return &db, nil
}

func loadDatabase() DatabaseConfig {
	return DatabaseConfig{
		URL:             os.Getenv("DATABASE_URL"),
		MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

func loadScheduler() SchedulerConfig {
	return SchedulerConfig{
		BaseURL: os.Getenv("SCHEDULER_BASE_URL"),
		Token:   os.Getenv("SCHEDULER_TOKEN"),
		Timeout: envDuration("SCHEDULER_TIMEOUT", 10*time.Second),
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if err := c.Scheduler.validate(); err != nil {
		return err
	}

	if c.Push.ChannelPrefix == "" || strings.ContainsAny(c.Push.ChannelPrefix, " *?[]") {
		return fmt.Errorf("PUSH_CHANNEL_PREFIX must be non-empty without spaces or glob characters, got %q", c.Push.ChannelPrefix)
	}
	if c.Push.PingInterval <= 0 {
		return fmt.Errorf("PUSH_PING_INTERVAL must be positive")
	}

	if c.Console.LogFetchConcurrency < 1 {
		return fmt.Errorf("LOG_FETCH_CONCURRENCY must be at least 1, got %d", c.Console.LogFetchConcurrency)
	}
	if c.Console.RateLimitPerMin < 1 {
		return fmt.Errorf("RATE_LIMIT_PER_MIN must be at least 1, got %d", c.Console.RateLimitPerMin)
	}

	return nil
}

func (s SchedulerConfig) validate() error {
	if s.BaseURL == "" {
		return fmt.Errorf("SCHEDULER_BASE_URL is required")
	}
	if !strings.HasPrefix(s.BaseURL, "http://") && !strings.HasPrefix(s.BaseURL, "https://") {
		return fmt.Errorf("SCHEDULER_BASE_URL must start with http:// or https://, got %q", s.BaseURL)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("SCHEDULER_TIMEOUT must be positive")
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
