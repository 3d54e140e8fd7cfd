// Package config loads application configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Required variables are enforced by must() and
// missing values cause the program to exit with a fatal log message; tuning
// knobs fall back to sensible defaults.
type Config struct {
	Env       string // application environment (e.g. "dev", "prod")
	Port      string // HTTP port to listen on
	DBUser    string // database username
	DBPass    string // database password (optional)
	DBHost    string // database host address
	DBPort    string // database port number
	DBName    string // database name
	JWTSecret string // secret used to verify access tokens

	// Reservation engine tuning.
	LockTTL        time.Duration // lease length of a per-ticket lock
	LockRetryCount int           // acquisition attempts before LockUnavailable
	LockRetryDelay time.Duration // base (pre-jitter) delay between attempts
	HoldTimeout    time.Duration // age at which an unpaid hold expires
	SweepInterval  time.Duration // how often the sweeper runs
}

// Load reads configuration from the environment.  A .env file in the
// working directory is applied first when present so local development does
// not need exported variables.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:       must("APP_ENV"),
		Port:      must("APP_PORT"),
		DBUser:    must("DB_USER"),
		DBPass:    os.Getenv("DB_PASS"), // empty allowed
		DBHost:    must("DB_HOST"),
		DBPort:    must("DB_PORT"),
		DBName:    must("DB_NAME"),
		JWTSecret: must("JWT_SECRET"),

		LockTTL:        envDur("LOCK_TTL", 5*time.Second),
		LockRetryCount: envInt("LOCK_RETRY_COUNT", 10),
		LockRetryDelay: envDur("LOCK_RETRY_DELAY", 200*time.Millisecond),
		HoldTimeout:    envDur("HOLD_TIMEOUT", time.Hour),
		SweepInterval:  envDur("SWEEP_INTERVAL", time.Minute),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}
