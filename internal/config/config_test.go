package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, "redis", cfg.QueueBackend)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "local", cfg.ObjectStore)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
	assert.False(t, cfg.Production())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("DATABASE_URL", "file:rollcall.db")
	t.Setenv("QUEUE_BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Production())
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, "file:rollcall.db", cfg.DatabaseURL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30, cfg.RateLimitPerMin)
}

func TestLoad_RejectsUnknownBackends(t *testing.T) {
	t.Setenv("STORE_BACKEND", "dynamo")
	t.Setenv("QUEUE_BACKEND", "sqs")
	t.Setenv("OBJECT_STORE", "cloudinary")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_BACKEND")
	assert.Contains(t, err.Error(), "QUEUE_BACKEND")
	assert.Contains(t, err.Error(), "CLOUDINARY_CLOUD_NAME")
}

func TestLoad_MemoryStoreNeedsInProcessQueue(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")

	for _, backend := range []string{"redis", "kafka"} {
		t.Setenv("QUEUE_BACKEND", backend)
		_, err := Load()
		require.Error(t, err, backend)
		assert.Contains(t, err.Error(), "STORE_BACKEND=memory", backend)
	}

	t.Setenv("QUEUE_BACKEND", "memory")
	_, err := Load()
	assert.NoError(t, err)
}

func TestLoad_BadInteger(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MIN", "lots")

	_, err := Load()
	assert.Error(t, err)
}
