package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORE_BACKEND", "LOG_LEVEL", "HEARTBEAT_INTERVAL", "TASK_CONCURRENCY"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 60*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 16, cfg.TaskConcurrency)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Firestore")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HEARTBEAT_INTERVAL", "15s")
	t.Setenv("TASK_CONCURRENCY", "4")
	t.Setenv("ENV", "production")

	cfg := Load()
	assert.Equal(t, BackendFirestore, cfg.StoreBackend)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 15*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 4, cfg.TaskConcurrency)
	assert.True(t, cfg.IsProduction())
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")
	t.Setenv("HEARTBEAT_INTERVAL", "soon")
	t.Setenv("TASK_CONCURRENCY", "-2")

	cfg := Load()
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 60*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 16, cfg.TaskConcurrency)
}
