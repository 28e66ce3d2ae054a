package config

import (
	"testing"
	"time"

	"github.com/chris-alexander-pop/ratelimitcore/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesEnvOverridesAndDefaults(t *testing.T) {
	t.Setenv("STORAGE_HOST", "redis.internal")
	t.Setenv("STORAGE_POOL_MAX", "256")

	var cfg storage.Config
	require.NoError(t, Load(&cfg))

	assert.Equal(t, "redis.internal", cfg.Host)
	assert.Equal(t, 256, cfg.PoolMax)
	assert.Equal(t, "6379", cfg.Port, "unset fields fall back to their env-default tag")
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.RetryBackoffUnit)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("STORAGE_POOL_MAX", "0")

	var cfg storage.Config
	err := Load(&cfg)
	require.Error(t, err, "pool_max=0 fails the gt=0 validation tag")
}
