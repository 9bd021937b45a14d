package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envVars = []string{
	"SKIMAP_BACKEND", "SKIMAP_BADGER_PATH", "SKIMAP_POSTGRES_DSN",
	"PG_HOST", "PG_PORT", "PG_USER", "PG_PASSWORD", "PG_DB", "PG_SSLMODE",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"SKIMAP_CACHE_TTL", "SKIMAP_SEARCH_LIMIT", "SKIMAP_IMPORT_CONCURRENCY",
}

// clearEnv blanks every variable ApplyEnv reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envVars {
		t.Setenv(name, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, BackendBadger, cfg.Backend)
	assert.Equal(t, "./skimap-data", cfg.Badger.Path)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 5*time.Minute, cfg.Search.CacheTTL)
	assert.Equal(t, 1, cfg.Import.Concurrency)
	assert.False(t, cfg.CacheEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		assert.Equal(t, DefaultConfig(), NewConfig())
	})

	t.Run("with options", func(t *testing.T) {
		cfg := NewConfig(
			WithBackend(BackendPostgres),
			WithPostgresDSN("postgres://u@h/db"),
			WithRedis("localhost:6379", "secret", 2),
			WithSearchLimit(25),
			WithCacheTTL(time.Minute),
			WithImportConcurrency(8),
			WithBadgerPath("/var/lib/skimap"),
		)

		assert.Equal(t, BackendPostgres, cfg.Backend)
		assert.Equal(t, "postgres://u@h/db", cfg.Postgres.DSN)
		assert.Equal(t, RedisConfig{Addr: "localhost:6379", Password: "secret", DB: 2}, cfg.Redis)
		assert.True(t, cfg.CacheEnabled())
		assert.Equal(t, 25, cfg.Search.DefaultLimit)
		assert.Equal(t, time.Minute, cfg.Search.CacheTTL)
		assert.Equal(t, 8, cfg.Import.Concurrency)
		assert.Equal(t, "/var/lib/skimap", cfg.Badger.Path)
	})
}

func TestLoad(t *testing.T) {
	t.Run("missing file returns defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "skimap.yaml")
		data := `
backend: postgres
postgres:
  dsn: postgres://skimap@db:5432/skimap?sslmode=disable
search:
  cache_ttl: 90s
import:
  concurrency: 4
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, BackendPostgres, cfg.Backend)
		assert.Equal(t, "postgres://skimap@db:5432/skimap?sslmode=disable", cfg.Postgres.DSN)
		assert.Equal(t, 50, cfg.Postgres.MaxOpenConns)
		assert.Equal(t, 90*time.Second, cfg.Search.CacheTTL)
		assert.Equal(t, 10, cfg.Search.DefaultLimit)
		assert.Equal(t, 4, cfg.Import.Concurrency)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("backend: [unclosed"), 0o644))

		_, err := Load(path)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestApplyEnv(t *testing.T) {
	t.Run("overlays values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SKIMAP_BACKEND", "postgres")
		t.Setenv("SKIMAP_POSTGRES_DSN", "postgres://env@host/db")
		t.Setenv("REDIS_ADDR", "redis:6379")
		t.Setenv("REDIS_DB", "3")
		t.Setenv("SKIMAP_CACHE_TTL", "30s")
		t.Setenv("SKIMAP_SEARCH_LIMIT", "20")
		t.Setenv("SKIMAP_IMPORT_CONCURRENCY", "6")

		cfg := DefaultConfig()
		require.NoError(t, cfg.ApplyEnv())

		assert.Equal(t, BackendPostgres, cfg.Backend)
		assert.Equal(t, "postgres://env@host/db", cfg.Postgres.DSN)
		assert.Equal(t, "redis:6379", cfg.Redis.Addr)
		assert.Equal(t, 3, cfg.Redis.DB)
		assert.Equal(t, 30*time.Second, cfg.Search.CacheTTL)
		assert.Equal(t, 20, cfg.Search.DefaultLimit)
		assert.Equal(t, 6, cfg.Import.Concurrency)
	})

	t.Run("unset variables keep values", func(t *testing.T) {
		clearEnv(t)
		cfg := NewConfig(WithSearchLimit(7))
		require.NoError(t, cfg.ApplyEnv())
		assert.Equal(t, 7, cfg.Search.DefaultLimit)
		assert.Empty(t, cfg.Postgres.DSN)
	})

	t.Run("PG variables build a DSN", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PG_HOST", "db.internal")
		t.Setenv("PG_USER", "skimap")
		t.Setenv("PG_PASSWORD", "pw")

		cfg := DefaultConfig()
		require.NoError(t, cfg.ApplyEnv())
		assert.Equal(t, "postgres://skimap:pw@db.internal:5432/skimap?sslmode=disable", cfg.Postgres.DSN)
	})

	t.Run("malformed numbers", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SKIMAP_SEARCH_LIMIT", "ten")
		assert.ErrorIs(t, DefaultConfig().ApplyEnv(), ErrInvalidConfig)
	})

	t.Run("malformed duration", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SKIMAP_CACHE_TTL", "soon")
		assert.ErrorIs(t, DefaultConfig().ApplyEnv(), ErrInvalidConfig)
	})
}

func TestBuildPostgresDSNFromEnv(t *testing.T) {
	clearEnv(t)
	assert.Equal(t, "postgres://postgres@localhost:5432/skimap?sslmode=disable", BuildPostgresDSNFromEnv())

	t.Setenv("PG_PORT", "6543")
	t.Setenv("PG_DB", "alps")
	t.Setenv("PG_SSLMODE", "require")
	assert.Equal(t, "postgres://postgres@localhost:6543/alps?sslmode=require", BuildPostgresDSNFromEnv())
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("SKIMAP_SEARCH_LIMIT")
	t.Cleanup(func() { os.Unsetenv("SKIMAP_SEARCH_LIMIT") })

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SKIMAP_SEARCH_LIMIT=42\n"), 0o644))
	require.NoError(t, LoadEnvFile(path))

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, 42, cfg.Search.DefaultLimit)

	assert.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"memory", NewConfig(WithBackend(BackendMemory)), false},
		{"mixed case backend", NewConfig(WithBackend(" Memory ")), false},
		{"empty backend defaults to badger", NewConfig(WithBackend("")), false},
		{"unknown backend", NewConfig(WithBackend("sqlite")), true},
		{"badger without path", NewConfig(WithBadgerPath("")), true},
		{"postgres without dsn", NewConfig(WithBackend(BackendPostgres)), true},
		{"postgres with dsn", NewConfig(WithBackend(BackendPostgres), WithPostgresDSN("postgres://x")), false},
		{"negative redis db", NewConfig(WithRedis("localhost:6379", "", -1)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	cfg := &Config{Backend: " BADGER "}
	cfg.Normalize()

	assert.Equal(t, BackendBadger, cfg.Backend)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 5*time.Minute, cfg.Search.CacheTTL)
	assert.Equal(t, 1, cfg.Import.Concurrency)
	assert.Equal(t, 1000, cfg.Import.ReportInterval)
	assert.Equal(t, 5, cfg.Postgres.ConnectAttempts)
}
