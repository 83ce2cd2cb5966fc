package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("TIMER_INTERVAL", "")

	cfg := Load()

	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 60*time.Second, cfg.TimerInterval)
	assert.Equal(t, 30*time.Minute, cfg.TimerLookahead)
	assert.True(t, cfg.TimerEnabled)
	assert.Empty(t, cfg.OperatorIDs)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("OPERATOR_IDS", "101, 202,abc")
	t.Setenv("TIMER_INTERVAL", "15s")
	t.Setenv("TIMER_ENABLED", "false")
	t.Setenv("NOTIFY_WORKERS", "nope")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []int64{101, 202}, cfg.OperatorIDs)
	assert.Equal(t, 15*time.Second, cfg.TimerInterval)
	assert.False(t, cfg.TimerEnabled)
	assert.Equal(t, 4, cfg.NotifyWorkers)
}
