package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Cache backends
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`
	Audit         AuditConfig         `yaml:"audit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig selects and configures the membership store
type DatabaseConfig struct {
	Backend     string        `yaml:"backend"`
	URL         string        `yaml:"url"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	AutoMigrate bool          `yaml:"auto_migrate"`

	// SeedFile is a YAML fixture loaded into the memory backend at startup
	SeedFile string `yaml:"seed_file"`
}

// CacheConfig configures the membership read cache. A zero TTL disables it.
type CacheConfig struct {
	Backend         string        `yaml:"backend"`
	TTL             time.Duration `yaml:"ttl"`
	Size            int           `yaml:"size"`
	RedisURL        string        `yaml:"redis_url"`
	RedisPassword   string        `yaml:"redis_password"`
	RedisDB         int           `yaml:"redis_db"`
	RedisPoolSize   int           `yaml:"redis_pool_size"`
	RedisMaxRetries int           `yaml:"redis_max_retries"`
}

// Enabled reports whether reads should go through a cache
func (c CacheConfig) Enabled() bool {
	return c.Backend != CacheNone && c.Backend != "" && c.TTL > 0
}

// RateLimitConfig configures per-actor request limits. The redis backend
// connects with the cache's Redis settings.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Backend           string        `yaml:"backend"`
	RequestsPerWindow int           `yaml:"requests_per_window"`
	Window            time.Duration `yaml:"window"`
	Burst             int           `yaml:"burst"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// AuditConfig controls audit event emission
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Backend:     BackendPostgres,
			MaxConns:    20,
			MinConns:    2,
			Timeout:     5 * time.Second,
			MaxLifetime: 30 * time.Minute,
			MaxIdleTime: 5 * time.Minute,
			AutoMigrate: true,
		},
		Cache: CacheConfig{
			Backend:         CacheNone,
			TTL:             30 * time.Second,
			Size:            10000,
			RedisMaxRetries: 3,
		},
		RateLimit: RateLimitConfig{
			Backend:           CacheMemory,
			RequestsPerWindow: 600,
			Window:            time.Minute,
			Burst:             50,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			LogFormat:          "json",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "tracker",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
		Audit: AuditConfig{Enabled: true},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by TRACKER_CONFIG_FILE, then TRACKER_* environment overrides.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := getEnv("TRACKER_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("TRACKER_HOST", c.Server.Host)
	c.Server.Port = getEnv("TRACKER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("TRACKER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("TRACKER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("TRACKER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("TRACKER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.Backend = strings.ToLower(getEnv("TRACKER_STORE_BACKEND", c.Database.Backend))
	c.Database.URL = getEnv("TRACKER_POSTGRES_URL", c.Database.URL)
	c.Database.MaxConns = getEnvInt("TRACKER_POSTGRES_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvInt("TRACKER_POSTGRES_MIN_CONNS", c.Database.MinConns)
	c.Database.Timeout = getEnvDuration("TRACKER_POSTGRES_TIMEOUT", c.Database.Timeout)
	c.Database.AutoMigrate = getEnvBool("TRACKER_AUTO_MIGRATE", c.Database.AutoMigrate)
	c.Database.SeedFile = getEnv("TRACKER_SEED_FILE", c.Database.SeedFile)

	c.Cache.Backend = strings.ToLower(getEnv("TRACKER_CACHE_BACKEND", c.Cache.Backend))
	c.Cache.TTL = getEnvDuration("TRACKER_CACHE_TTL", c.Cache.TTL)
	c.Cache.Size = getEnvInt("TRACKER_CACHE_SIZE", c.Cache.Size)
	c.Cache.RedisURL = getEnv("TRACKER_REDIS_URL", c.Cache.RedisURL)
	c.Cache.RedisPassword = getEnv("TRACKER_REDIS_PASSWORD", c.Cache.RedisPassword)
	c.Cache.RedisDB = getEnvInt("TRACKER_REDIS_DB", c.Cache.RedisDB)
	c.Cache.RedisPoolSize = getEnvInt("TRACKER_REDIS_POOL_SIZE", c.Cache.RedisPoolSize)
	c.Cache.RedisMaxRetries = getEnvInt("TRACKER_REDIS_MAX_RETRIES", c.Cache.RedisMaxRetries)

	c.RateLimit.Enabled = getEnvBool("TRACKER_RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.Backend = strings.ToLower(getEnv("TRACKER_RATE_LIMIT_BACKEND", c.RateLimit.Backend))
	c.RateLimit.RequestsPerWindow = getEnvInt("TRACKER_RATE_LIMIT_REQUESTS", c.RateLimit.RequestsPerWindow)
	c.RateLimit.Window = getEnvDuration("TRACKER_RATE_LIMIT_WINDOW", c.RateLimit.Window)
	c.RateLimit.Burst = getEnvInt("TRACKER_RATE_LIMIT_BURST", c.RateLimit.Burst)

	c.Observability.LogLevel = getEnv("TRACKER_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = getEnv("TRACKER_LOG_FORMAT", c.Observability.LogFormat)
	c.Observability.MetricsEnabled = getEnvBool("TRACKER_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.OTelEnabled = getEnvBool("TRACKER_OTEL_ENABLED", c.Observability.OTelEnabled)
	c.Observability.OTelEndpoint = getEnv("TRACKER_OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.OTelServiceName = getEnv("TRACKER_OTEL_SERVICE_NAME", c.Observability.OTelServiceName)
	c.Observability.OTelServiceVersion = getEnv("TRACKER_OTEL_SERVICE_VERSION", c.Observability.OTelServiceVersion)
	c.Observability.OTelInsecure = getEnvBool("TRACKER_OTEL_INSECURE", c.Observability.OTelInsecure)
	c.Observability.OTelSampleRatio = getEnvFloat("TRACKER_OTEL_SAMPLE_RATIO", c.Observability.OTelSampleRatio)

	c.Audit.Enabled = getEnvBool("TRACKER_AUDIT_ENABLED", c.Audit.Enabled)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Backend {
	case BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("postgres URL is required for postgres store")
		}
		if c.Database.MaxConns <= 0 {
			return fmt.Errorf("postgres max connections must be positive")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("invalid store backend: %s (must be postgres or memory)", c.Database.Backend)
	}

	switch c.Cache.Backend {
	case CacheNone, "":
	case CacheMemory:
		if c.Cache.Size <= 0 {
			return fmt.Errorf("cache size must be positive for memory cache")
		}
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis cache")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be none, memory, or redis)", c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache TTL must not be negative")
	}

	if c.RateLimit.Enabled {
		switch c.RateLimit.Backend {
		case CacheMemory:
		case CacheRedis:
			if c.Cache.RedisURL == "" {
				return fmt.Errorf("redis URL is required for redis rate limiting")
			}
		default:
			return fmt.Errorf("invalid rate limit backend: %s (must be memory or redis)", c.RateLimit.Backend)
		}
		if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit requests and window must be positive")
		}
		if c.RateLimit.Burst < 0 {
			return fmt.Errorf("rate limit burst must not be negative")
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
