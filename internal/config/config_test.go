package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "HOST", "STATIC_DIR", "DATA_DIR", "LOG_DIR", "DEBUG_MODE",
		"MAX_BODY_BYTES", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "ALLOWED_ORIGINS", "SEED_REMOTE_URL", "SEED_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, ".", cfg.StaticDir)
	assert.False(t, cfg.DebugMode)
	assert.Equal(t, int64(10<<20), cfg.MaxBodyBytes)
	assert.Zero(t, cfg.RateLimitRPS)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.False(t, cfg.SeedEnabled())
	assert.Equal(t, 15*time.Second, cfg.SeedTimeout)
	assert.Equal(t, filepath.Join("data", "bookList.json"), cfg.IndexFile())
	assert.Equal(t, filepath.Join("data", "books"), cfg.BooksDir())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9123")
	t.Setenv("DATA_DIR", "/srv/novels")
	t.Setenv("DEBUG_MODE", "yes")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "4")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("SEED_REMOTE_URL", "https://example.test/data/")
	t.Setenv("SEED_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9123", cfg.Port)
	assert.True(t, cfg.DebugMode)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.Equal(t, 4, cfg.RateLimitBurst)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, "https://example.test/data", cfg.SeedRemoteURL)
	assert.True(t, cfg.SeedEnabled())
	assert.Equal(t, 3*time.Second, cfg.SeedTimeout)
	assert.Equal(t, filepath.Join("/srv/novels", "books"), cfg.BooksDir())
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":           "http",
		"MAX_BODY_BYTES": "lots",
		"RATE_LIMIT_RPS": "-1",
		"SEED_TIMEOUT":   "soon",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestWithPort(t *testing.T) {
	cfg := &Config{Port: "8000", Host: "0.0.0.0", DataDir: "data", MaxBodyBytes: 1}

	overridden, err := cfg.WithPort("8081")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8081", overridden.Addr())
	assert.Equal(t, "8000", cfg.Port, "原配置不应被修改")

	_, err = cfg.WithPort("99999")
	assert.Error(t, err)
}
