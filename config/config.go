// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a configuration value is missing or malformed.
var ErrInvalidConfig = errors.New("invalid config")

// Backend names a feature store implementation.
type Backend string

const (
	// BackendBadger stores features in an embedded BadgerDB directory.
	BackendBadger Backend = "badger"
	// BackendMemory stores features in an in-memory BadgerDB, lost on close.
	BackendMemory Backend = "memory"
	// BackendPostgres stores features in a PostgreSQL database.
	BackendPostgres Backend = "postgres"
)

// Config holds the settings of a skimap database and its tools.
type Config struct {
	Backend  Backend        `yaml:"backend"`
	Badger   BadgerConfig   `yaml:"badger"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Search   SearchConfig   `yaml:"search"`
	Import   ImportConfig   `yaml:"import"`
}

// BadgerConfig configures the embedded store.
type BadgerConfig struct {
	// Path is the database directory. Created if missing.
	Path string `yaml:"path"`
}

// PostgresConfig configures the relational store.
type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	// ConnectAttempts bounds the pings made while the server comes up.
	ConnectAttempts int `yaml:"connect_attempts"`
}

// RedisConfig configures the search result cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SearchConfig tunes the ranking query.
type SearchConfig struct {
	DefaultLimit int           `yaml:"default_limit"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// ImportConfig tunes the import pipeline.
type ImportConfig struct {
	Concurrency    int `yaml:"concurrency"`
	ReportInterval int `yaml:"report_interval"`
}

// Option is a functional option for configuring a Config.
type Option func(*Config)

// WithBackend selects the feature store.
func WithBackend(backend Backend) Option {
	return func(c *Config) {
		c.Backend = backend
	}
}

// WithBadgerPath sets the BadgerDB directory.
func WithBadgerPath(path string) Option {
	return func(c *Config) {
		c.Badger.Path = path
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(c *Config) {
		c.Postgres.DSN = dsn
	}
}

// WithRedis enables the search cache on the given server.
func WithRedis(addr, password string, db int) Option {
	return func(c *Config) {
		c.Redis = RedisConfig{Addr: addr, Password: password, DB: db}
	}
}

// WithSearchLimit sets the default number of search results.
func WithSearchLimit(limit int) Option {
	return func(c *Config) {
		c.Search.DefaultLimit = limit
	}
}

// WithCacheTTL sets how long cached rankings live.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.Search.CacheTTL = ttl
	}
}

// WithImportConcurrency sets the number of concurrent upserts per source.
func WithImportConcurrency(n int) Option {
	return func(c *Config) {
		c.Import.Concurrency = n
	}
}

// DefaultConfig returns a Config for a local BadgerDB store without caching.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendBadger,
		Badger: BadgerConfig{
			Path: "./skimap-data",
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnectAttempts: 5,
		},
		Search: SearchConfig{
			DefaultLimit: 10,
			CacheTTL:     5 * time.Minute,
		},
		Import: ImportConfig{
			Concurrency:    1,
			ReportInterval: 1000,
		},
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithBackend(BackendPostgres),
//	    WithPostgresDSN("postgres://skimap@localhost:5432/skimap?sslmode=disable"),
//	)
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Load reads a YAML config from path over the defaults.
// If the file does not exist, returns defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// LoadEnvFile loads variables from a .env file into the process environment
// without overriding variables that are already set. An empty path loads
// ./.env if it exists.
func LoadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		return godotenv.Load()
	}
	return godotenv.Load(path)
}

// ApplyEnv overlays environment variables onto c.
//
// SKIMAP_POSTGRES_DSN wins over the PG_* variables, which are only consulted
// when PG_HOST is set.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("SKIMAP_BACKEND"); v != "" {
		c.Backend = Backend(v)
	}
	if v := os.Getenv("SKIMAP_BADGER_PATH"); v != "" {
		c.Badger.Path = v
	}
	if v := os.Getenv("SKIMAP_POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	} else if os.Getenv("PG_HOST") != "" {
		c.Postgres.DSN = BuildPostgresDSNFromEnv()
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}

	var err error
	if c.Redis.DB, err = envInt("REDIS_DB", c.Redis.DB); err != nil {
		return err
	}
	if c.Search.DefaultLimit, err = envInt("SKIMAP_SEARCH_LIMIT", c.Search.DefaultLimit); err != nil {
		return err
	}
	if c.Import.Concurrency, err = envInt("SKIMAP_IMPORT_CONCURRENCY", c.Import.Concurrency); err != nil {
		return err
	}
	if v := os.Getenv("SKIMAP_CACHE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: SKIMAP_CACHE_TTL: %w", ErrInvalidConfig, err)
		}
		c.Search.CacheTTL = ttl
	}
	return nil
}

func envInt(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
	}
	return n, nil
}

// BuildPostgresDSNFromEnv assembles a connection URL from PG_HOST, PG_PORT,
// PG_USER, PG_PASSWORD, PG_DB and PG_SSLMODE.
func BuildPostgresDSNFromEnv() string {
	host := os.Getenv("PG_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("PG_PORT")
	if port == "" {
		port = "5432"
	}
	user := os.Getenv("PG_USER")
	if user == "" {
		user = "postgres"
	}
	pass := os.Getenv("PG_PASSWORD")
	db := os.Getenv("PG_DB")
	if db == "" {
		db = "skimap"
	}
	ssl := os.Getenv("PG_SSLMODE")
	if ssl == "" {
		ssl = "disable"
	}
	dsn := "postgres://" + user
	if pass != "" {
		dsn += ":" + pass
	}
	dsn += "@" + host + ":" + port + "/" + db + "?sslmode=" + ssl
	return dsn
}

// Normalize ensures the configuration is in a canonical form.
// Out-of-range tuning values fall back to their defaults.
func (c *Config) Normalize() {
	defaults := DefaultConfig()

	c.Backend = Backend(strings.ToLower(strings.TrimSpace(string(c.Backend))))
	if c.Backend == "" {
		c.Backend = defaults.Backend
	}
	if c.Postgres.MaxOpenConns <= 0 {
		c.Postgres.MaxOpenConns = defaults.Postgres.MaxOpenConns
	}
	if c.Postgres.MaxIdleConns <= 0 {
		c.Postgres.MaxIdleConns = defaults.Postgres.MaxIdleConns
	}
	if c.Postgres.ConnectAttempts <= 0 {
		c.Postgres.ConnectAttempts = defaults.Postgres.ConnectAttempts
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = defaults.Search.DefaultLimit
	}
	if c.Search.CacheTTL <= 0 {
		c.Search.CacheTTL = defaults.Search.CacheTTL
	}
	if c.Import.Concurrency < 1 {
		c.Import.Concurrency = 1
	}
	if c.Import.ReportInterval < 1 {
		c.Import.ReportInterval = defaults.Import.ReportInterval
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.Backend {
	case BackendBadger:
		if c.Badger.Path == "" {
			return fmt.Errorf("%w: badger.path is required", ErrInvalidConfig)
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("%w: postgres.dsn is required", ErrInvalidConfig)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}

	if c.Redis.DB < 0 {
		return fmt.Errorf("%w: redis.db must not be negative", ErrInvalidConfig)
	}
	return nil
}

// CacheEnabled reports whether a Redis cache is configured.
func (c *Config) CacheEnabled() bool {
	return c.Redis.Addr != ""
}
