package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "/var/lib/gridseed/cache", cfg.CacheDir)
	assert.Equal(t, "/var/lib/gridseed/out", cfg.OutputDir)
	assert.Equal(t, 0.25, cfg.ResolutionDeg)
	assert.Equal(t, "default", cfg.CompressionLevel)
	assert.Equal(t, int64(42), cfg.MockSeed)
	assert.Equal(t, 12, cfg.RunCadenceHours)
	assert.Equal(t, 6, cfg.RunLatencyHours)
	assert.Equal(t, time.Hour, cfg.SliceInterval)
	assert.Equal(t, 120, cfg.ForecastHours)
	assert.Equal(t, 3, cfg.TimeStepHours)
	assert.Equal(t, 0.5, cfg.BufferDeg)
	assert.Equal(t, "standard", cfg.VariableSet)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "seed-announcements", cfg.KafkaSeedTopic)
	assert.False(t, cfg.AnnounceEnabled)

	require.Len(t, cfg.Regions, 1)
	assert.Equal(t, 20.0, cfg.Regions[0].LatMin)
	assert.Equal(t, -140.0, cfg.Regions[0].LonMax)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("CACHE_DIR", "/tmp/seeds")
	t.Setenv("RESOLUTION_DEG", "0.5")
	t.Setenv("COMPRESSION_LEVEL", "max")
	t.Setenv("MOCK_SEED", "7")
	t.Setenv("RUN_CADENCE_HOURS", "6")
	t.Setenv("RUN_LATENCY_HOURS", "4")
	t.Setenv("SLICE_INTERVAL", "30m")
	t.Setenv("REGIONS", "10,20,-170,-160; -40,-30,150,170")
	t.Setenv("FORECAST_HOURS", "72")
	t.Setenv("TIME_STEP_HOURS", "6")
	t.Setenv("VARIABLE_SET", "extended")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_SEED_TOPIC", "custom-seeds")
	t.Setenv("ANNOUNCE_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "/tmp/seeds", cfg.CacheDir)
	assert.Equal(t, 0.5, cfg.ResolutionDeg)
	assert.Equal(t, "max", cfg.CompressionLevel)
	assert.Equal(t, int64(7), cfg.MockSeed)
	assert.Equal(t, 6, cfg.RunCadenceHours)
	assert.Equal(t, 4, cfg.RunLatencyHours)
	assert.Equal(t, 30*time.Minute, cfg.SliceInterval)
	assert.Equal(t, 72, cfg.ForecastHours)
	assert.Equal(t, 6, cfg.TimeStepHours)
	assert.Equal(t, "extended", cfg.VariableSet)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-seeds", cfg.KafkaSeedTopic)
	assert.True(t, cfg.AnnounceEnabled)

	require.Len(t, cfg.Regions, 2)
	assert.Equal(t, -40.0, cfg.Regions[1].LatMin)
	assert.Equal(t, 170.0, cfg.Regions[1].LonMax)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidCompressionLevel(t *testing.T) {
	t.Setenv("COMPRESSION_LEVEL", "ultra")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COMPRESSION_LEVEL")
}

func TestLoad_InvalidVariableSet(t *testing.T) {
	t.Setenv("VARIABLE_SET", "everything")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VARIABLE_SET")
}

func TestLoad_InvalidRegions(t *testing.T) {
	t.Setenv("REGIONS", "10,20,-170")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REGIONS")
}

func TestLoad_RegionBoundsChecked(t *testing.T) {
	t.Setenv("REGIONS", "30,20,-170,-160")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_InvalidCadence(t *testing.T) {
	t.Setenv("RUN_CADENCE_HOURS", "7")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUN_CADENCE_HOURS")
}
