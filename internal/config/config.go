// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Generation modes.
const (
	ModeRandom     = "random"
	ModeSequential = "sequential"
)

// Sequence sources for sequential mode.
const (
	SequenceMemory    = "memory"
	SequenceRedis     = "redis"
	SequencePostgres  = "postgres"
	SequenceSnowflake = "snowflake"
)

// Config holds all configuration for the application.
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Engine   EngineConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Env      string
	LogLevel string
}

// IsDevelopment returns true if the app is running in development mode.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development" || a.Env == "dev"
}

// IsProduction returns true if the app is running in production mode.
func (a AppConfig) IsProduction() bool {
	return a.Env == "production" || a.Env == "prod"
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Address returns the server address in host:port format.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// ShardHosts lists extra hosts sharing the same credentials. When set,
	// codes are spread over Host plus every entry by consistent hashing.
	ShardHosts []string
}

// Shards returns one DatabaseConfig per shard, starting with the primary.
func (d DatabaseConfig) Shards() []DatabaseConfig {
	shards := []DatabaseConfig{d}
	for _, host := range d.ShardHosts {
		s := d
		s.Host = host
		s.ShardHosts = nil
		shards = append(shards, s)
	}
	shards[0].ShardHosts = nil
	return shards
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// EngineConfig holds short code generation configuration.
type EngineConfig struct {
	Mode          string
	MinLength     int
	DefaultLength int
	MaxLength     int

	MaxAttempts        int
	MaxReservedSkips   int
	MaxBatchSize       int
	BatchAttemptFactor int

	PoolTarget         int
	PoolLowWater       int
	PoolCapacity       int
	PoolEntryTTL       time.Duration
	PoolRefillInterval time.Duration

	AlertThreshold  float64
	AlertMinSamples int
	AlertWindow     time.Duration
	AlertCooldown   time.Duration

	AutoWiden      bool
	WidenThreshold float64

	ExistenceTTL         time.Duration
	ReservationTTL       time.Duration
	StatsPublishInterval time.Duration

	ReservedPath   string
	SequenceSource string
	NodeID         int
}

// Validate checks the engine settings for consistency.
func (e EngineConfig) Validate() error {
	var errs []error
	if e.Mode != ModeRandom && e.Mode != ModeSequential {
		errs = append(errs, fmt.Errorf("ENGINE_MODE must be %q or %q, got %q", ModeRandom, ModeSequential, e.Mode))
	}
	if e.MinLength < 1 || e.MinLength > e.DefaultLength || e.DefaultLength > e.MaxLength {
		errs = append(errs, fmt.Errorf("code lengths must satisfy 1 <= min (%d) <= default (%d) <= max (%d)",
			e.MinLength, e.DefaultLength, e.MaxLength))
	}
	if e.MaxAttempts < 1 {
		errs = append(errs, errors.New("ENGINE_MAX_ATTEMPTS must be at least 1"))
	}
	if e.PoolLowWater > e.PoolTarget || e.PoolTarget > e.PoolCapacity {
		errs = append(errs, fmt.Errorf("pool sizes must satisfy low water (%d) <= target (%d) <= capacity (%d)",
			e.PoolLowWater, e.PoolTarget, e.PoolCapacity))
	}
	if e.PoolEntryTTL <= 0 {
		errs = append(errs, errors.New("ENGINE_POOL_ENTRY_TTL must be positive"))
	}
	if e.ReservationTTL < e.PoolEntryTTL {
		errs = append(errs, fmt.Errorf("ENGINE_RESERVATION_TTL (%s) must not be shorter than ENGINE_POOL_ENTRY_TTL (%s)",
			e.ReservationTTL, e.PoolEntryTTL))
	}
	if e.AlertThreshold <= 0 || e.AlertThreshold > 1 {
		errs = append(errs, fmt.Errorf("ENGINE_ALERT_THRESHOLD must be in (0, 1], got %v", e.AlertThreshold))
	}
	switch e.SequenceSource {
	case SequenceMemory, SequenceRedis, SequencePostgres, SequenceSnowflake:
	default:
		errs = append(errs, fmt.Errorf("unknown ENGINE_SEQUENCE_SOURCE %q", e.SequenceSource))
	}
	if e.NodeID < 0 || e.NodeID > 1023 {
		errs = append(errs, fmt.Errorf("ENGINE_NODE_ID must be between 0 and 1023, got %d", e.NodeID))
	}
	return errors.Join(errs...)
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first; variables already set take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// App config
	cfg.App.Env = getEnvOrDefault("APP_ENV", "development")
	cfg.App.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	if err := loadServer(&cfg.Server); err != nil {
		return nil, err
	}
	if err := loadDatabase(&cfg.Database); err != nil {
		return nil, err
	}
	if err := loadRedis(&cfg.Redis); err != nil {
		return nil, err
	}
	if err := loadEngine(&cfg.Engine); err != nil {
		return nil, err
	}
	if err := cfg.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	return cfg, nil
}

func loadServer(s *ServerConfig) error {
	s.Host = getEnvOrDefault("SERVER_HOST", "0.0.0.0")

	port, err := getEnvAsInt("SERVER_PORT", 8080)
	if err != nil {
		return fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	s.Port = port

	readTimeout, err := getEnvAsDuration("SERVER_READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return fmt.Errorf("invalid SERVER_READ_TIMEOUT: %w", err)
	}
	s.ReadTimeout = readTimeout

	writeTimeout, err := getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return fmt.Errorf("invalid SERVER_WRITE_TIMEOUT: %w", err)
	}
	s.WriteTimeout = writeTimeout

	shutdownTimeout, err := getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT: %w", err)
	}
	s.ShutdownTimeout = shutdownTimeout

	return nil
}

func loadDatabase(d *DatabaseConfig) error {
	d.Host = getEnvOrDefault("DB_HOST", "localhost")
	dbPort, err := getEnvAsInt("DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("invalid DB_PORT: %w", err)
	}
	d.Port = dbPort
	d.User = getEnvOrDefault("DB_USER", "shortcode")
	d.Password = getEnvOrDefault("DB_PASSWORD", "")
	d.DBName = getEnvOrDefault("DB_NAME", "shortcode")
	d.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	maxOpenConns, err := getEnvAsInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}
	d.MaxOpenConns = maxOpenConns

	maxIdleConns, err := getEnvAsInt("DB_MAX_IDLE_CONNS", 5)
	if err != nil {
		return fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}
	d.MaxIdleConns = maxIdleConns

	connMaxLifetime, err := getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}
	d.ConnMaxLifetime = connMaxLifetime

	d.ShardHosts = getEnvAsList("DB_SHARD_HOSTS")

	return nil
}

func loadRedis(r *RedisConfig) error {
	r.Host = getEnvOrDefault("REDIS_HOST", "localhost")
	redisPort, err := getEnvAsInt("REDIS_PORT", 6379)
	if err != nil {
		return fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	r.Port = redisPort
	r.Password = getEnvOrDefault("REDIS_PASSWORD", "")
	redisDB, err := getEnvAsInt("REDIS_DB", 0)
	if err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	r.DB = redisDB
	redisPoolSize, err := getEnvAsInt("REDIS_POOL_SIZE", 10)
	if err != nil {
		return fmt.Errorf("invalid REDIS_POOL_SIZE: %w", err)
	}
	r.PoolSize = redisPoolSize

	return nil
}

func loadEngine(e *EngineConfig) error {
	var err error

	e.Mode = strings.ToLower(getEnvOrDefault("ENGINE_MODE", ModeRandom))
	e.SequenceSource = strings.ToLower(getEnvOrDefault("ENGINE_SEQUENCE_SOURCE", SequenceMemory))
	e.ReservedPath = getEnvOrDefault("ENGINE_RESERVED_PATH", "")

	ints := []struct {
		key string
		dst *int
		def int
	}{
		{"ENGINE_MIN_LENGTH", &e.MinLength, 4},
		{"ENGINE_DEFAULT_LENGTH", &e.DefaultLength, 7},
		{"ENGINE_MAX_LENGTH", &e.MaxLength, 12},
		{"ENGINE_MAX_ATTEMPTS", &e.MaxAttempts, 5},
		{"ENGINE_MAX_RESERVED_SKIPS", &e.MaxReservedSkips, 100},
		{"ENGINE_MAX_BATCH_SIZE", &e.MaxBatchSize, 1000},
		{"ENGINE_BATCH_ATTEMPT_FACTOR", &e.BatchAttemptFactor, 10},
		{"ENGINE_POOL_TARGET", &e.PoolTarget, 1000},
		{"ENGINE_POOL_LOW_WATER", &e.PoolLowWater, 250},
		{"ENGINE_POOL_CAPACITY", &e.PoolCapacity, 2000},
		{"ENGINE_ALERT_MIN_SAMPLES", &e.AlertMinSamples, 100},
		{"ENGINE_NODE_ID", &e.NodeID, 0},
	}
	for _, v := range ints {
		if *v.dst, err = getEnvAsInt(v.key, v.def); err != nil {
			return fmt.Errorf("invalid %s: %w", v.key, err)
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
		def time.Duration
	}{
		{"ENGINE_POOL_ENTRY_TTL", &e.PoolEntryTTL, 10 * time.Minute},
		{"ENGINE_POOL_REFILL_INTERVAL", &e.PoolRefillInterval, 5 * time.Second},
		{"ENGINE_ALERT_WINDOW", &e.AlertWindow, 5 * time.Minute},
		{"ENGINE_ALERT_COOLDOWN", &e.AlertCooldown, 5 * time.Minute},
		{"ENGINE_EXISTENCE_TTL", &e.ExistenceTTL, 5 * time.Minute},
		{"ENGINE_RESERVATION_TTL", &e.ReservationTTL, 15 * time.Minute},
		{"ENGINE_STATS_PUBLISH_INTERVAL", &e.StatsPublishInterval, 30 * time.Second},
	}
	for _, v := range durations {
		if *v.dst, err = getEnvAsDuration(v.key, v.def); err != nil {
			return fmt.Errorf("invalid %s: %w", v.key, err)
		}
	}

	if e.AlertThreshold, err = getEnvAsFloat("ENGINE_ALERT_THRESHOLD", 0.05); err != nil {
		return fmt.Errorf("invalid ENGINE_ALERT_THRESHOLD: %w", err)
	}
	if e.WidenThreshold, err = getEnvAsFloat("ENGINE_WIDEN_THRESHOLD", 0.01); err != nil {
		return fmt.Errorf("invalid ENGINE_WIDEN_THRESHOLD: %w", err)
	}
	if e.AutoWiden, err = getEnvAsBool("ENGINE_AUTO_WIDEN", false); err != nil {
		return fmt.Errorf("invalid ENGINE_AUTO_WIDEN: %w", err)
	}

	return nil
}

// DatabaseEnabled returns true if database configuration is provided.
func (c *Config) DatabaseEnabled() bool {
	return c.Database.Host != "" && c.Database.Password != ""
}

// RedisEnabled returns true if Redis configuration is provided.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt returns the environment variable as an integer.
func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, err
	}
	return value, nil
}

// getEnvAsDuration returns the environment variable as a duration.
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, err
	}
	return value, nil
}

// getEnvAsFloat returns the environment variable as a float64.
func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	return strconv.ParseFloat(valueStr, 64)
}

// getEnvAsBool returns the environment variable as a bool.
func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	return strconv.ParseBool(valueStr)
}

// getEnvAsList splits a comma-separated variable, dropping empty items.
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
