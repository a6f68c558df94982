package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Scheduling SchedulingConfig
	Maps       MapsConfig
	Log        LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"SERVER_HOST"`
	Port         int           `mapstructure:"SERVER_PORT"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `mapstructure:"SERVER_IDLE_TIMEOUT"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"POSTGRES_HOST"`
	Port     int    `mapstructure:"POSTGRES_PORT"`
	User     string `mapstructure:"POSTGRES_USER"`
	Password string `mapstructure:"POSTGRES_PASSWORD"`
	DBName   string `mapstructure:"POSTGRES_DB"`
	SSLMode  string `mapstructure:"POSTGRES_SSLMODE"`
	MaxConns int32  `mapstructure:"POSTGRES_MAX_CONNS"`
	MinConns int32  `mapstructure:"POSTGRES_MIN_CONNS"`

	SlowQueryThreshold time.Duration `mapstructure:"POSTGRES_SLOW_QUERY_THRESHOLD"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`
	Port     int    `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
	PoolSize int    `mapstructure:"REDIS_POOL_SIZE"`
}

// SchedulingConfig tunes the scheduling engine.
type SchedulingConfig struct {
	DefaultPickupTime     string        `mapstructure:"SCHED_DEFAULT_PICKUP_TIME"`
	NominalTripDuration   time.Duration `mapstructure:"SCHED_NOMINAL_TRIP_DURATION"`
	FullTimeHoursPerWeek  float64       `mapstructure:"SCHED_FULL_TIME_HOURS_PER_WEEK"`
	MinFareThreshold      float64       `mapstructure:"SCHED_MIN_FARE_THRESHOLD"`
	MaxAutoAssignDays     int           `mapstructure:"SCHED_MAX_AUTO_ASSIGN_DAYS"`
	AutoAssignWorkers     int           `mapstructure:"SCHED_AUTO_ASSIGN_WORKERS"`
	SlotLockTTL           time.Duration `mapstructure:"SCHED_SLOT_LOCK_TTL"`
	CombinationTimeWindow time.Duration `mapstructure:"SCHED_COMBINATION_WINDOW"`
}

// MapsConfig holds the optional geocoding integration settings.
// An empty APIKey disables it for every tenant.
type MapsConfig struct {
	APIKey             string        `mapstructure:"MAPS_API_KEY"`
	EnabledTenants     []int64       `mapstructure:"MAPS_ENABLED_TENANTS"`
	Timeout            time.Duration `mapstructure:"MAPS_TIMEOUT"`
	CacheTTL           time.Duration `mapstructure:"MAPS_CACHE_TTL"`
	DestinationMatchKm float64       `mapstructure:"MAPS_DESTINATION_MATCH_KM"`
}

// LogConfig selects the logger flavor.
type LogConfig struct {
	Env   string `mapstructure:"APP_ENV"`
	Level string `mapstructure:"LOG_LEVEL"`
}

// DSN returns the PostgreSQL connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode,
	)
}

// Addr returns the Redis address in host:port format.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ServerAddr returns the HTTP listen address in host:port format.
func (s *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Enabled reports whether geocoding is switched on for the tenant.
func (m *MapsConfig) Enabled(tenantID int64) bool {
	if m.APIKey == "" {
		return false
	}
	for _, id := range m.EnabledTenants {
		if id == tenantID {
			return true
		}
	}
	return false
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// ── Defaults ────────────────────────────────────────
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("SERVER_READ_TIMEOUT", "5s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	viper.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "fleetops")
	viper.SetDefault("POSTGRES_PASSWORD", "fleetops_secret")
	viper.SetDefault("POSTGRES_DB", "fleetops_db")
	viper.SetDefault("POSTGRES_SSLMODE", "disable")
	viper.SetDefault("POSTGRES_MAX_CONNS", 25)
	viper.SetDefault("POSTGRES_MIN_CONNS", 5)
	viper.SetDefault("POSTGRES_SLOW_QUERY_THRESHOLD", "250ms")

	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_POOL_SIZE", 50)

	viper.SetDefault("SCHED_DEFAULT_PICKUP_TIME", "09:00")
	viper.SetDefault("SCHED_NOMINAL_TRIP_DURATION", "1h")
	viper.SetDefault("SCHED_FULL_TIME_HOURS_PER_WEEK", 40)
	viper.SetDefault("SCHED_MIN_FARE_THRESHOLD", 10)
	viper.SetDefault("SCHED_MAX_AUTO_ASSIGN_DAYS", 93)
	viper.SetDefault("SCHED_AUTO_ASSIGN_WORKERS", 1)
	viper.SetDefault("SCHED_SLOT_LOCK_TTL", "10s")
	viper.SetDefault("SCHED_COMBINATION_WINDOW", "60m")

	viper.SetDefault("MAPS_API_KEY", "")
	viper.SetDefault("MAPS_ENABLED_TENANTS", "")
	viper.SetDefault("MAPS_TIMEOUT", "3s")
	viper.SetDefault("MAPS_CACHE_TTL", "24h")
	viper.SetDefault("MAPS_DESTINATION_MATCH_KM", 1.5)

	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("LOG_LEVEL", "")

	// Try to read .env file. If it doesn't exist (e.g., inside Docker),
	// env vars injected by docker-compose env_file are used instead.
	_ = viper.ReadInConfig()

	cfg := &Config{}

	// ── Server ──────────────────────────────────────────
	cfg.Server = ServerConfig{
		Host:         viper.GetString("SERVER_HOST"),
		Port:         viper.GetInt("SERVER_PORT"),
		ReadTimeout:  viper.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout: viper.GetDuration("SERVER_WRITE_TIMEOUT"),
		IdleTimeout:  viper.GetDuration("SERVER_IDLE_TIMEOUT"),
	}

	// ── Postgres ────────────────────────────────────────
	cfg.Postgres = PostgresConfig{
		Host:     viper.GetString("POSTGRES_HOST"),
		Port:     viper.GetInt("POSTGRES_PORT"),
		User:     viper.GetString("POSTGRES_USER"),
		Password: viper.GetString("POSTGRES_PASSWORD"),
		DBName:   viper.GetString("POSTGRES_DB"),
		SSLMode:  viper.GetString("POSTGRES_SSLMODE"),
		MaxConns: viper.GetInt32("POSTGRES_MAX_CONNS"),
		MinConns: viper.GetInt32("POSTGRES_MIN_CONNS"),

		SlowQueryThreshold: viper.GetDuration("POSTGRES_SLOW_QUERY_THRESHOLD"),
	}

	// ── Redis ───────────────────────────────────────────
	cfg.Redis = RedisConfig{
		Host:     viper.GetString("REDIS_HOST"),
		Port:     viper.GetInt("REDIS_PORT"),
		Password: viper.GetString("REDIS_PASSWORD"),
		DB:       viper.GetInt("REDIS_DB"),
		PoolSize: viper.GetInt("REDIS_POOL_SIZE"),
	}

	// ── Scheduling ──────────────────────────────────────
	cfg.Scheduling = SchedulingConfig{
		DefaultPickupTime:     viper.GetString("SCHED_DEFAULT_PICKUP_TIME"),
		NominalTripDuration:   viper.GetDuration("SCHED_NOMINAL_TRIP_DURATION"),
		FullTimeHoursPerWeek:  viper.GetFloat64("SCHED_FULL_TIME_HOURS_PER_WEEK"),
		MinFareThreshold:      viper.GetFloat64("SCHED_MIN_FARE_THRESHOLD"),
		MaxAutoAssignDays:     viper.GetInt("SCHED_MAX_AUTO_ASSIGN_DAYS"),
		AutoAssignWorkers:     viper.GetInt("SCHED_AUTO_ASSIGN_WORKERS"),
		SlotLockTTL:           viper.GetDuration("SCHED_SLOT_LOCK_TTL"),
		CombinationTimeWindow: viper.GetDuration("SCHED_COMBINATION_WINDOW"),
	}

	// ── Maps ────────────────────────────────────────────
	tenants, err := parseTenantList(viper.GetString("MAPS_ENABLED_TENANTS"))
	if err != nil {
		return nil, err
	}
	cfg.Maps = MapsConfig{
		APIKey:             viper.GetString("MAPS_API_KEY"),
		EnabledTenants:     tenants,
		Timeout:            viper.GetDuration("MAPS_TIMEOUT"),
		CacheTTL:           viper.GetDuration("MAPS_CACHE_TTL"),
		DestinationMatchKm: viper.GetFloat64("MAPS_DESTINATION_MATCH_KM"),
	}

	// ── Logging ─────────────────────────────────────────
	cfg.Log = LogConfig{
		Env:   viper.GetString("APP_ENV"),
		Level: viper.GetString("LOG_LEVEL"),
	}

	if cfg.Scheduling.AutoAssignWorkers < 1 {
		cfg.Scheduling.AutoAssignWorkers = 1
	}

	return cfg, nil
}

// parseTenantList parses "1,2, 7" into tenant IDs.
func parseTenantList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: MAPS_ENABLED_TENANTS: invalid tenant id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
