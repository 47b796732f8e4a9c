// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TZ must resolve on minimal images

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/pkordes/little-escape/internal/domain"
)

// Config holds all configuration values for the API server.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string

	// LogLevel controls the minimum log level. Defaults to "info".
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string

	// Location is the zone appointments are scheduled in (TZ). Defaults to UTC.
	Location *time.Location

	// Redis is optional. With Redis nil, trip locks are process-local.
	// REDIS_URL (redis:// or rediss://, with an optional /db) wins over
	// REDIS_ADDR, REDIS_USERNAME, REDIS_PASSWORD and REDIS_DB.
	Redis   *redis.Options
	LockTTL time.Duration

	// NATS is optional. With NATSURL empty, positions arrive over HTTP only
	// and no events are published.
	NATSURL            string
	NATSPositionPrefix string
	NATSEventPrefix    string

	ArrivalRadiusM      float64
	ArrivalMaxAccuracyM float64 // 0 disables the accuracy gate
	CompletionMode      domain.CompletionMode

	MaxBodyBytes   int64
	RateLimitRPS   float64
	RateLimitBurst int

	// Idle trips are evicted from memory every TripSweepInterval: after
	// TripIdleTTL without use, or TripRunTTL while a run is in progress.
	TripIdleTTL       time.Duration
	TripRunTTL        time.Duration
	TripSweepInterval time.Duration

	MigrateOnStart  bool
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables (after an optional
// .env file) and returns a Config. The error lists every required variable
// that is missing and every value that could not be parsed.
func Load() (Config, error) {
	_ = godotenv.Load()

	var problems []string
	p := parser{problems: &problems}

	cfg := Config{
		Port:                getEnv("PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		CORSOrigins:         splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		LockTTL:             p.duration("LOCK_TTL", 5*time.Second),
		NATSURL:             os.Getenv("NATS_URL"),
		NATSPositionPrefix:  getEnv("NATS_POSITION_PREFIX", "escape.positions"),
		NATSEventPrefix:     getEnv("NATS_EVENT_PREFIX", "escape.events"),
		ArrivalRadiusM:      p.float("ARRIVAL_RADIUS_M", 80),
		ArrivalMaxAccuracyM: p.float("ARRIVAL_MAX_ACCURACY_M", 80),
		MaxBodyBytes:        int64(p.int("MAX_BODY_BYTES", 1<<20)),
		RateLimitRPS:        p.float("RATE_LIMIT_RPS", 10),
		RateLimitBurst:      p.int("RATE_LIMIT_BURST", 20),
		TripIdleTTL:         p.duration("TRIP_IDLE_TTL", 2*time.Hour),
		TripRunTTL:          p.duration("TRIP_RUN_TTL", 12*time.Hour),
		TripSweepInterval:   p.duration("TRIP_SWEEP_INTERVAL", 5*time.Minute),
		MigrateOnStart:      p.bool("MIGRATE_ON_START", false),
		ShutdownTimeout:     p.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}

	var missing []string
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	loc, err := time.LoadLocation(getEnv("TZ", "UTC"))
	if err != nil {
		problems = append(problems, fmt.Sprintf("TZ: %v", err))
	}
	cfg.Location = loc

	mode, err := domain.ParseCompletionMode(getEnv("COMPLETION_MODE", string(domain.CompletionGeofence)))
	if err != nil {
		problems = append(problems, fmt.Sprintf("COMPLETION_MODE: %v", err))
	}
	cfg.CompletionMode = mode

	if raw := os.Getenv("REDIS_URL"); raw != "" {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("REDIS_URL: %v", err))
		}
		cfg.Redis = opts
	} else if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis = &redis.Options{
			Addr:     addr,
			Username: os.Getenv("REDIS_USERNAME"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       p.int("REDIS_DB", 0),
		}
	}

	if cfg.TripSweepInterval <= 0 {
		problems = append(problems, "TRIP_SWEEP_INTERVAL: must be positive")
	}
	if cfg.ArrivalRadiusM <= 0 {
		problems = append(problems, "ARRIVAL_RADIUS_M: must be positive")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}
	if len(problems) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parser reads typed values and records unparsable ones.
type parser struct {
	problems *[]string
}

func (p parser) fail(key, v string, err error) {
	*p.problems = append(*p.problems, fmt.Sprintf("%s=%q: %v", key, v, err))
}

// duration accepts Go durations ("1500ms") or plain seconds ("5").
func (p parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func (p parser) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

func (p parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p parser) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
