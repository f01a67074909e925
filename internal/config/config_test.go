package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("ENRICH_FAILURE_POLICY", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DriverSQLite, cfg.DBDriver)
	require.Equal(t, "https://www.lego.com/service/building-instructions/", cfg.InstructionBaseURL)
	require.Equal(t, "https://www.lego.com/service/building-instructions/1", cfg.NotFoundInstructionsURL)
	require.Equal(t, "fail-fast", cfg.EnrichFailurePolicy)
	require.Equal(t, 10*time.Second, cfg.ScraperTimeout())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "POSTGRES")
	t.Setenv("PORT", "8081")
	t.Setenv("SCRAPER_TIMEOUT_MS", "250")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("LOG_DEVELOPMENT", "yes")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DriverPostgres, cfg.DBDriver)
	require.Equal(t, ":8081", cfg.ListenAddr())
	require.Equal(t, 250*time.Millisecond, cfg.ScraperTimeout())
	require.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowedOrigins)
	require.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	require.True(t, cfg.LogDevelopment)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")

	_, err := Load()
	require.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	cfg := Config{PGHost: "db", PGPort: 5432, PGUser: "lego", PGPassword: "p@ss", PGDatabase: "bricks", PGSSLMode: "disable"}

	dsn, err := cfg.PostgresDSN()
	require.NoError(t, err)
	require.Equal(t, "postgres://lego:p%40ss@db:5432/bricks?sslmode=disable", dsn)

	cfg.DatabaseURL = "postgres://override"
	dsn, err = cfg.PostgresDSN()
	require.NoError(t, err)
	require.Equal(t, "postgres://override", dsn)

	_, err = Config{}.PostgresDSN()
	require.Error(t, err)
}
