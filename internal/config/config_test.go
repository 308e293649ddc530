package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 0.85, cfg.DBPoolBackpressureThreshold)
	assert.Equal(t, 3, cfg.CircuitBreakerFailureThreshold)
	assert.Equal(t, 5, cfg.FeedCandidatePrefetchMultiplier)
	assert.Equal(t, 1000, cfg.FeedMaxCandidates)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_POOL_BACKPRESSURE_THRESHOLD", "0.5")
	t.Setenv("FEED_MAX_CANDIDATES", "250")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.DBPoolBackpressureThreshold)
	assert.Equal(t, 250, cfg.FeedMaxCandidates)
}

func TestConfig_EnvModeHelpers(t *testing.T) {
	cfg := Config{AppEnv: "prod"}
	assert.True(t, cfg.IsProd())
	assert.False(t, cfg.IsDev())

	cfg.AppEnv = "test"
	assert.True(t, cfg.IsTest())
}

func TestConfig_DurationHelpers(t *testing.T) {
	cfg := Config{
		OLAPQueryTimeoutMS:           2000,
		CircuitBreakerTimeoutSeconds: 30,
		DBAcquireTimeoutSecs:         5,
		DBConnectTimeoutSecs:         5,
	}
	assert.Equal(t, 2000*1e6, float64(cfg.OLAPQueryTimeout()))
	assert.Equal(t, int64(30), cfg.CircuitBreakerTimeout().Nanoseconds()/1e9)
	assert.Equal(t, int64(5), cfg.DBAcquireTimeout().Nanoseconds()/1e9)
	assert.Equal(t, int64(5), cfg.DBConnectTimeout().Nanoseconds()/1e9)
}

