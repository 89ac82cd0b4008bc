// Package config loads pastebox settings from flags, the environment and
// optional .env files. Flags win over the environment, which wins over .env
// values, which win over defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"pastebox/internal/storage"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreBolt     = "bolt"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreLibSQL   = "libsql"
	StoreMongo    = "mongo"
	StoreDynamoDB = "dynamodb"
	StoreRedis    = "redis"
)

var stores = []string{StoreMemory, StoreBolt, StoreSQLite, StorePostgres, StoreLibSQL, StoreMongo, StoreDynamoDB, StoreRedis}

// Config holds every runtime setting.
type Config struct {
	Addr string

	Store     string
	DSN       string
	Increment storage.IncrementStrategy

	MongoDatabase  string
	DynamoTable    string
	AWSRegion      string
	DynamoEndpoint string

	BaseURL         string
	BehindProxy     bool
	MaxBytes        int
	TestMode        bool
	JanitorInterval time.Duration
	StoreTimeout    time.Duration

	LogLevel  slog.Level
	LogFormat string
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Addr:            ":8080",
		Store:           StoreBolt,
		Increment:       storage.StrategyAuto,
		MongoDatabase:   "pastebox",
		DynamoTable:     "pastebox-pastes",
		MaxBytes:        1_048_576,
		JanitorInterval: time.Minute,
		StoreTimeout:    5 * time.Second,
		LogLevel:        slog.LevelInfo,
		LogFormat:       "text",
	}
}

// Load parses args (without the program name) on top of values found
// through getenv.
func Load(args []string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	e := &env{lookup: getenv}

	fs := flag.NewFlagSet("pastebox", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.Addr, "addr", e.string("PASTEBOX_ADDR", cfg.Addr), "listen address")
	fs.StringVar(&cfg.Store, "store", e.string("PASTEBOX_STORE", cfg.Store), "store backend: "+strings.Join(stores, ", "))
	fs.StringVar(&cfg.DSN, "dsn", e.string("PASTEBOX_DSN", cfg.DSN), "store path, DSN or URL")
	increment := fs.String("increment", e.string("PASTEBOX_INCREMENT", string(cfg.Increment)), "view increment strategy: auto, atomic, locking")

	fs.StringVar(&cfg.MongoDatabase, "mongo-db", e.string("PASTEBOX_MONGO_DB", cfg.MongoDatabase), "MongoDB database name")
	fs.StringVar(&cfg.DynamoTable, "dynamo-table", e.string("PASTEBOX_DYNAMO_TABLE", cfg.DynamoTable), "DynamoDB table name")
	fs.StringVar(&cfg.AWSRegion, "aws-region", e.string("PASTEBOX_AWS_REGION", cfg.AWSRegion), "AWS region for DynamoDB")
	fs.StringVar(&cfg.DynamoEndpoint, "dynamo-endpoint", e.string("PASTEBOX_DYNAMO_ENDPOINT", cfg.DynamoEndpoint), "DynamoDB endpoint override")

	fs.StringVar(&cfg.BaseURL, "base-url", e.string("PASTEBOX_BASE_URL", cfg.BaseURL), "canonical base URL (optional)")
	fs.BoolVar(&cfg.BehindProxy, "behind-proxy", e.bool("PASTEBOX_BEHIND_PROXY", cfg.BehindProxy), "trust proxy headers for client IP and scheme")
	fs.IntVar(&cfg.MaxBytes, "max-bytes", e.int("PASTEBOX_MAX_BYTES", cfg.MaxBytes), "maximum request body size in bytes")
	fs.BoolVar(&cfg.TestMode, "test-mode", e.bool("TEST_MODE", cfg.TestMode), "honor the x-test-now-ms header")
	fs.DurationVar(&cfg.JanitorInterval, "janitor-interval", e.duration("PASTEBOX_JANITOR_INTERVAL", cfg.JanitorInterval), "expired paste sweep interval, 0 disables")
	fs.DurationVar(&cfg.StoreTimeout, "store-timeout", e.duration("PASTEBOX_STORE_TIMEOUT", cfg.StoreTimeout), "per store operation timeout, 0 disables")

	logLevel := fs.String("log-level", e.string("PASTEBOX_LOG_LEVEL", cfg.LogLevel.String()), "log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", e.string("PASTEBOX_LOG_FORMAT", cfg.LogFormat), "log format: text or json")

	if e.err != nil {
		return nil, e.err
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	strategy, err := storage.ParseIncrementStrategy(*increment)
	if err != nil {
		return nil, err
	}
	cfg.Increment = strategy

	if err := cfg.LogLevel.UnmarshalText([]byte(*logLevel)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	known := false
	for _, s := range stores {
		if s == c.Store {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.DSN == "" {
		c.DSN = defaultDSN(c.Store)
	}
	if c.DSN == "" && c.Store != StoreMemory && c.Store != StoreDynamoDB {
		return fmt.Errorf("store %s requires -dsn", c.Store)
	}
	if c.MaxBytes <= 0 {
		return errors.New("max-bytes must be positive")
	}
	if c.JanitorInterval < 0 || c.StoreTimeout < 0 {
		return errors.New("durations must not be negative")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

func defaultDSN(store string) string {
	switch store {
	case StoreBolt:
		return "./pastebox.db"
	case StoreSQLite:
		return "./pastebox.sqlite"
	case StoreMongo:
		return "mongodb://localhost:27017"
	case StoreRedis:
		return "redis://localhost:6379/0"
	}
	return ""
}

// Environ returns a lookup that prefers getenv and falls back to values read
// from the given .env files. Missing files are skipped.
func Environ(getenv func(string) string, files ...string) (func(string) string, error) {
	present := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if len(present) == 0 {
		return getenv, nil
	}
	dotenv, err := godotenv.Read(present...)
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	return func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}, nil
}

type env struct {
	lookup func(string) string
	err    error
}

func (e *env) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%s: %w", key, err)
	}
}

func (e *env) string(key, fallback string) string {
	if v := e.lookup(key); v != "" {
		return v
	}
	return fallback
}

func (e *env) int(key string, fallback int) int {
	v := e.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return fallback
	}
	return n
}

func (e *env) bool(key string, fallback bool) bool {
	v := e.lookup(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return fallback
	}
	return b
}

func (e *env) duration(key string, fallback time.Duration) time.Duration {
	v := e.lookup(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return fallback
	}
	return d
}
