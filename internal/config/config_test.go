package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/bookmate?sslmode=disable")
	t.Setenv("BOOKMATE_SERVICE_SECRET", "0123456789abcdef0123")
}

func TestDecodeDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := LoadFromEnvFile("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 30*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 30*time.Second, cfg.AppsScript.Timeout)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 60*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 5*time.Second, cfg.Cache.InboxTTL)
	assert.Equal(t, 10.0, cfg.HTTP.RateLimitRPS)
	assert.Equal(t, 20, cfg.HTTP.RateLimitBurst)
	assert.Equal(t, "@every 6h", cfg.Reconcile.Cron)
	assert.True(t, cfg.Reconcile.Enabled())
	assert.Equal(t, 720*time.Hour, cfg.Reconcile.Retention)
	assert.Equal(t, "0.01", cfg.Reconcile.ToleranceDecimal().String())
	assert.False(t, cfg.HasDefaultTenant())
}

func TestOverridesAndDefaultTenant(t *testing.T) {
	setRequired(t)
	t.Setenv("BOOKMATE_PORT", "9090")
	t.Setenv("BOOKMATE_INBOX_TTL", "2s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, http://localhost:3000")
	t.Setenv("BOOKMATE_RECONCILE_CRON", "off")
	t.Setenv("BOOKMATE_DEFAULT_TENANT", "acme")
	t.Setenv("GOOGLE_SHEET_ID", "sheet-1")
	t.Setenv("APPS_SCRIPT_URL", "https://script.google.com/macros/s/x/exec")
	t.Setenv("APPS_SCRIPT_SECRET", "s")

	cfg, err := LoadFromEnvFile("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Cache.InboxTTL)
	assert.Equal(t, []string{"https://app.example.com", "http://localhost:3000"}, cfg.HTTP.AllowedOrigins())
	assert.False(t, cfg.Reconcile.Enabled())
	assert.True(t, cfg.HasDefaultTenant())
}

func TestValidateRejectsBadConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("BOOKMATE_SERVICE_SECRET", "short")
	t.Setenv("BOOKMATE_CACHE_BACKEND", "redis")
	t.Setenv("BOOKMATE_DRIFT_TOLERANCE", "-1")
	t.Setenv("LOG_FORMAT", "xml")

	_, err := LoadFromEnvFile("")
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"DATABASE_URL", "BOOKMATE_SERVICE_SECRET", "REDIS_URL", "BOOKMATE_DRIFT_TOLERANCE", "LOG_FORMAT"} {
		assert.Contains(t, msg, want)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DATABASE_URL=postgres://db/bookmate\nBOOKMATE_SERVICE_SECRET=abcdefghijklmnopqrstuvwxyz\nLOG_LEVEL=debug\n"), 0o600))
	// godotenv never overrides variables that are already set
	t.Setenv("DATABASE_URL", "")
	os.Unsetenv("DATABASE_URL")
	t.Setenv("BOOKMATE_SERVICE_SECRET", "")
	os.Unsetenv("BOOKMATE_SERVICE_SECRET")
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")

	cfg, err := LoadFromEnvFile(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://db/bookmate", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// a missing .env is not an error
	_, err = LoadFromEnvFile(filepath.Join(dir, "missing.env"))
	assert.NoError(t, err)
}
