package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv(t *testing.T) {
	t.Run("defaults apply when unset", func(t *testing.T) {
		cfg := FromEnv()
		assert.Equal(t, ":8090", cfg.OpsAddr)
		assert.Equal(t, 30*time.Second, cfg.PollInterval)
		assert.Equal(t, "https://njal.la/api/1/", cfg.Njalla.BaseURL)
		assert.Empty(t, cfg.KafkaBrokers)
	})

	t.Run("brokers list is split and trimmed", func(t *testing.T) {
		t.Setenv("VEIL_KAFKA_BROKERS", "broker-1:9092, broker-2:9092,")
		cfg := FromEnv()
		assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	})

	t.Run("invalid poll interval falls back", func(t *testing.T) {
		t.Setenv("VEIL_POLL_INTERVAL", "soon")
		cfg := FromEnv()
		assert.Equal(t, 30*time.Second, cfg.PollInterval)
	})

	t.Run("nonpositive poll interval falls back", func(t *testing.T) {
		t.Setenv("VEIL_POLL_INTERVAL", "-5s")
		cfg := FromEnv()
		assert.Equal(t, 30*time.Second, cfg.PollInterval)
	})
}
