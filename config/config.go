/*
Package config loads server settings.

PRECEDENCE (lowest to highest):
  1. Defaults
  2. .env file in the working directory (optional)
  3. Environment variables
  4. Command-line flags

ENVIRONMENT:
  PORT                      HTTP port (8080)
  DB_PATH                   SQLite file (recognition.db)
  ENV                       development | production
  LOG_LEVEL                 debug | info | warn | error
  JWT_SECRET                HS256 key for bearer tokens (required in production)
  REDIS_URL                 redis://host:6379/0, enables the Redis sink
  REDIS_CHANNEL             channel prefix (recognition_events)
  ALLOWED_ORIGINS           comma separated CORS origins
  NOTIFY_TIMEOUT            per-sink delivery timeout (3s)
  ALLOWANCE_RESET_INTERVAL  how often the month rollover is checked (1h)
  SEED_DEMO                 load the demo tenant at startup
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port   string
	DBPath string

	Env      string
	LogLevel string

	JWTSecret string

	RedisURL     string
	RedisChannel string

	AllowedOrigins []string
	NotifyTimeout  time.Duration
	ResetInterval  time.Duration
	SeedDemo       bool
}

func Defaults() Config {
	return Config{
		Port:           "8080",
		DBPath:         "recognition.db",
		Env:            "development",
		LogLevel:       "info",
		JWTSecret:      "dev-secret-change-me",
		RedisChannel:   "recognition_events",
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		NotifyTimeout:  3 * time.Second,
		ResetInterval:  time.Hour,
	}
}

// Load reads envFile (ignored when missing), the environment and args.
func Load(envFile string, args []string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := Defaults()
	cfg.Port = GetEnv("PORT", cfg.Port)
	cfg.DBPath = GetEnv("DB_PATH", cfg.DBPath)
	cfg.Env = GetEnv("ENV", cfg.Env)
	cfg.LogLevel = GetEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.JWTSecret = GetEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.RedisURL = GetEnv("REDIS_URL", cfg.RedisURL)
	cfg.RedisChannel = GetEnv("REDIS_CHANNEL", cfg.RedisChannel)
	if v, ok := os.LookupEnv("ALLOWED_ORIGINS"); ok {
		cfg.AllowedOrigins = splitList(v)
	}

	var err error
	if cfg.NotifyTimeout, err = durationEnv("NOTIFY_TIMEOUT", cfg.NotifyTimeout); err != nil {
		return nil, err
	}
	if cfg.ResetInterval, err = durationEnv("ALLOWANCE_RESET_INTERVAL", cfg.ResetInterval); err != nil {
		return nil, err
	}
	if v, ok := os.LookupEnv("SEED_DEMO"); ok {
		if cfg.SeedDemo, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("SEED_DEMO: %w", err)
		}
	}

	fset := flag.NewFlagSet("server", flag.ContinueOnError)
	fset.StringVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fset.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fset.BoolVar(&cfg.SeedDemo, "seed", cfg.SeedDemo, "load the demo tenant at startup")
	if err := fset.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) validate() error {
	if c.Env == "production" && (c.JWTSecret == "" || c.JWTSecret == Defaults().JWTSecret) {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.NotifyTimeout <= 0 {
		return errors.New("NOTIFY_TIMEOUT must be positive")
	}
	if c.ResetInterval <= 0 {
		return errors.New("ALLOWANCE_RESET_INTERVAL must be positive")
	}
	return nil
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
