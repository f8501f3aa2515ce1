package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("PURGE_BATCH_SIZE", "")
	t.Setenv("DEDUP_TTL", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 500, cfg.PurgeBatchSize)
	assert.Equal(t, 24*time.Hour, cfg.DedupTTL)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, "storefront", cfg.MongoDBName)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("PURGE_BATCH_SIZE", "50")
	t.Setenv("DEDUP_TTL", "90m")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, 50, cfg.PurgeBatchSize)
	assert.Equal(t, 90*time.Minute, cfg.DedupTTL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 2, cfg.Redis.DB)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown backend":     {"STORE_BACKEND": "firestore"},
		"mongo without uri":   {"STORE_BACKEND": "mongo", "MONGO_URI": ""},
		"postgres without db": {"STORE_BACKEND": "postgres", "DATABASE_URL": ""},
		"bad batch size":      {"STORE_BACKEND": "memory", "PURGE_BATCH_SIZE": "lots"},
		"zero batch size":     {"STORE_BACKEND": "memory", "PURGE_BATCH_SIZE": "0"},
		"bad ttl":             {"STORE_BACKEND": "memory", "DEDUP_TTL": "forever"},
		"bad clickhouse port": {"STORE_BACKEND": "memory", "CLICKHOUSE_NATIVE_PORT": "x"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestClickHouseConfig_Enabled(t *testing.T) {
	assert.False(t, ClickHouseConfig{Host: "ch"}.Enabled())
	assert.True(t, ClickHouseConfig{Host: "ch", NativePort: 9000, Database: "analytics"}.Enabled())
}
