package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/shotlist")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.False(t, cfg.Production())
	assert.Equal(t, 5, cfg.AnalysisCost)
	assert.Equal(t, 10*time.Minute, cfg.PendingTimeout)
	assert.Equal(t, 30*time.Minute, cfg.ProcessingTimeout)
	assert.Contains(t, cfg.TestURLKeywords, "sample-videos.com")
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/shotlist")
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("ANALYSIS_COST", "3")
	t.Setenv("PENDING_TIMEOUT", "5m")
	t.Setenv("PROCESSING_TIMEOUT", "1h")
	t.Setenv("TEST_URL_KEYWORDS", "foo, bar ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.Production())
	assert.Equal(t, 3, cfg.AnalysisCost)
	assert.Equal(t, 5*time.Minute, cfg.PendingTimeout)
	assert.Equal(t, time.Hour, cfg.ProcessingTimeout)
	assert.Equal(t, []string{"foo", "bar"}, cfg.TestURLKeywords)
}

func TestLoad_RejectsMalformedValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/shotlist")
	t.Setenv("PORT", "not-a-port")

	_, err := Load()
	require.Error(t, err)
}
