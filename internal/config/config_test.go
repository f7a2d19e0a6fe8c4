package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "POSTGRES_DSN", "REDIS_ADDR", "SCAN_DEBOUNCE_MS", "KAFKA_ENABLED",
		"KAFKA_BROKERS", "QR_SECRET_KEY", "LOOKUP_TIMEOUT_MS", "COMMIT_TIMEOUT_MS",
		"RECENT_VALIDATIONS", "AUTH_MODE",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, ":8086", cfg.Server.Port)
	assert.Equal(t, "", cfg.Redis.Addr)
	assert.Equal(t, 1500*time.Millisecond, cfg.Redis.DebounceWindow)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3*time.Second, cfg.Scanner.LookupTimeout)
	assert.Equal(t, 3*time.Second, cfg.Scanner.CommitTimeout)
	assert.Equal(t, 5, cfg.Scanner.RecentValidations)
	assert.Equal(t, "oidc", cfg.Auth.Mode)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", ":9000")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("SCAN_DEBOUNCE_MS", "250")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("LOOKUP_TIMEOUT_MS", "800")
	t.Setenv("RECENT_VALIDATIONS", "10")
	t.Setenv("AUTH_MODE", "Unverified")

	cfg := Load()

	assert.Equal(t, ":9000", cfg.Server.Port)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Redis.DebounceWindow)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 800*time.Millisecond, cfg.Scanner.LookupTimeout)
	assert.Equal(t, 10, cfg.Scanner.RecentValidations)
	assert.Equal(t, "unverified", cfg.Auth.Mode)
}

func TestLoad_IgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("COMMIT_TIMEOUT_MS", "soon")
	t.Setenv("RECENT_VALIDATIONS", "many")
	t.Setenv("KAFKA_ENABLED", "maybe")

	cfg := Load()

	assert.Equal(t, 3*time.Second, cfg.Scanner.CommitTimeout)
	assert.Equal(t, 5, cfg.Scanner.RecentValidations)
	assert.False(t, cfg.Kafka.Enabled)
}
