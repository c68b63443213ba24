package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Scheduler SchedulerConfig
	Grid      GridConfig
	Weights   WeightsConfig
	Reports   ReportsConfig
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	Path         string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig tunes the search and the run registry.
type SchedulerConfig struct {
	MaxAttempts    int
	RoundBudget    int
	Seed           int64
	BacktrackLimit int
	AllowPartial   bool
	RunTTL         time.Duration
	Workers        int
	QueueSize      int
	SnapshotTTL    time.Duration
}

// GridConfig describes the weekly grid. DayStart and PeriodLength only affect
// how periods are labelled in reports.
type GridConfig struct {
	DaysPerWeek   int
	PeriodsPerDay int
	DayStart      string
	PeriodLength  time.Duration
}

// WeightsConfig holds the soft-constraint multipliers.
type WeightsConfig struct {
	StaffPreference  float64
	Fragmentation    float64
	FacilityMismatch float64
	CapacityWaste    float64
}

// ReportsConfig configures timetable exports.
type ReportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CleanupInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Driver:       strings.ToLower(v.GetString("DB_DRIVER")),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		Path:         v.GetString("DB_PATH"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduler = SchedulerConfig{
		MaxAttempts:    v.GetInt("SCHEDULER_MAX_ATTEMPTS"),
		RoundBudget:    v.GetInt("SCHEDULER_OPTIMIZER_ROUND_BUDGET"),
		Seed:           v.GetInt64("SCHEDULER_SEED"),
		BacktrackLimit: v.GetInt("SCHEDULER_BACKTRACK_LIMIT"),
		AllowPartial:   v.GetBool("SCHEDULER_ALLOW_PARTIAL"),
		RunTTL:         parseDuration(v.GetString("SCHEDULER_RUN_TTL"), 24*time.Hour),
		Workers:        v.GetInt("SCHEDULER_WORKERS"),
		QueueSize:      v.GetInt("SCHEDULER_QUEUE_SIZE"),
		SnapshotTTL:    parseDuration(v.GetString("SCHEDULER_SNAPSHOT_TTL"), time.Hour),
	}

	cfg.Grid = GridConfig{
		DaysPerWeek:   v.GetInt("GRID_DAYS_PER_WEEK"),
		PeriodsPerDay: v.GetInt("GRID_PERIODS_PER_DAY"),
		DayStart:      v.GetString("GRID_DAY_START"),
		PeriodLength:  parseDuration(v.GetString("GRID_PERIOD_LENGTH"), time.Hour),
	}

	cfg.Weights = WeightsConfig{
		StaffPreference:  v.GetFloat64("COST_WEIGHT_STAFF_PREFERENCE"),
		Fragmentation:    v.GetFloat64("COST_WEIGHT_FRAGMENTATION"),
		FacilityMismatch: v.GetFloat64("COST_WEIGHT_FACILITY_MISMATCH"),
		CapacityWaste:    v.GetFloat64("COST_WEIGHT_CAPACITY_WASTE"),
	}

	cfg.Reports = ReportsConfig{
		StorageDir:      v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval: parseDuration(v.GetString("REPORTS_CLEANUP_INTERVAL"), time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Grid.DaysPerWeek < 1 || c.Grid.DaysPerWeek > 7 {
		return fmt.Errorf("GRID_DAYS_PER_WEEK must be between 1 and 7")
	}
	if c.Grid.PeriodsPerDay < 1 {
		return fmt.Errorf("GRID_PERIODS_PER_DAY must be positive")
	}
	if _, err := time.Parse("15:04", c.Grid.DayStart); err != nil {
		return fmt.Errorf("GRID_DAY_START must be HH:MM: %w", err)
	}
	if c.Scheduler.MaxAttempts < 1 {
		return fmt.Errorf("SCHEDULER_MAX_ATTEMPTS must be positive")
	}
	if c.Scheduler.RoundBudget < 0 || c.Scheduler.BacktrackLimit < 0 {
		return fmt.Errorf("scheduler budgets must not be negative")
	}
	if c.Weights.StaffPreference < 0 || c.Weights.Fragmentation < 0 || c.Weights.FacilityMismatch < 0 || c.Weights.CapacityWaste < 0 {
		return fmt.Errorf("cost weights must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "timetable")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_PATH", "./timetable.db")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "timetable-engine")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULER_MAX_ATTEMPTS", 5)
	v.SetDefault("SCHEDULER_OPTIMIZER_ROUND_BUDGET", 50)
	v.SetDefault("SCHEDULER_SEED", 1)
	v.SetDefault("SCHEDULER_BACKTRACK_LIMIT", 2)
	v.SetDefault("SCHEDULER_ALLOW_PARTIAL", true)
	v.SetDefault("SCHEDULER_RUN_TTL", "24h")
	v.SetDefault("SCHEDULER_WORKERS", 1)
	v.SetDefault("SCHEDULER_QUEUE_SIZE", 32)
	v.SetDefault("SCHEDULER_SNAPSHOT_TTL", "1h")

	v.SetDefault("GRID_DAYS_PER_WEEK", 5)
	v.SetDefault("GRID_PERIODS_PER_DAY", 8)
	v.SetDefault("GRID_DAY_START", "08:00")
	v.SetDefault("GRID_PERIOD_LENGTH", "60m")

	v.SetDefault("COST_WEIGHT_STAFF_PREFERENCE", 5)
	v.SetDefault("COST_WEIGHT_FRAGMENTATION", 2)
	v.SetDefault("COST_WEIGHT_FACILITY_MISMATCH", 3)
	v.SetDefault("COST_WEIGHT_CAPACITY_WASTE", 1.5)

	v.SetDefault("REPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("REPORTS_CLEANUP_INTERVAL", "1h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
