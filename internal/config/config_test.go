package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Minute, cfg.LockTTL)
	assert.Equal(t, 30*time.Minute, cfg.PendingTTL)
	assert.Equal(t, 24*time.Hour, cfg.ConsumedTTL)
	assert.Equal(t, 8, cfg.OrderWorkers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("LOCK_TTL", "90s")
	t.Setenv("PENDING_TTL", "600")
	t.Setenv("ORDER_WORKERS", "not-a-number")
	t.Setenv("PLATFORM_RPS", "2.5")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 90*time.Second, cfg.LockTTL)
	assert.Equal(t, 10*time.Minute, cfg.PendingTTL)
	assert.Equal(t, 8, cfg.OrderWorkers)
	assert.Equal(t, 2.5, cfg.PlatformRPS)
}
