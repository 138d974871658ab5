package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Port)
	assert.Equal(t, "Authorization", cfg.Server.AuthHeader)
	assert.Equal(t, "Bearer ", cfg.Server.AuthPrefix)
	assert.Equal(t, "./data/hostwatch.db", cfg.Database.Path)
	assert.Equal(t, 7*24*time.Hour, cfg.Database.HistoryRetention)
	assert.Equal(t, time.Minute, cfg.Monitoring.SweepInterval)
	assert.Equal(t, time.Hour, cfg.Monitoring.DefaultCooldown)
	assert.Equal(t, "/metrics", cfg.Prometheus.MetricsPath)
	assert.Equal(t, "info", cfg.Logging.Level)

	// Empty checks section gets the built-in catalog.
	require.Len(t, cfg.Checks, 4)
	keys := make(map[string]CheckSeed)
	for _, seed := range cfg.Checks {
		keys[seed.Key] = seed
		require.NotNil(t, seed.Enabled)
		assert.True(t, *seed.Enabled)
		assert.Equal(t, time.Hour, seed.Cooldown)
	}
	assert.Contains(t, keys, "host_online")
	assert.Contains(t, keys, "disk_space")
	assert.Contains(t, keys, "memory_usage")
	assert.Contains(t, keys, "cpu_usage")
	assert.Equal(t, "L1", keys["host_online"].Severity)
	assert.Equal(t, "L2", keys["disk_space"].Severity)
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  port: ":9100"
  auth_header: "X-Host-Key"
  auth_prefix: ""
database:
  path: "/var/lib/hostwatch/db"
  history_retention: 48h
monitoring:
  sweep_interval: 30s
  default_cooldown: 15m
logging:
  level: debug
  format: json
checks:
  - key: disk_space
    name: Disk Space
    severity: L3
    params:
      threshold_pct: 80
    cooldown: 2h
  - key: host_online
    name: Host Online
    severity: L1
    params:
      offline_threshold_minutes: 30
`))
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.Port)
	assert.Equal(t, "X-Host-Key", cfg.Server.AuthHeader)
	assert.Equal(t, 30*time.Second, cfg.Monitoring.SweepInterval)
	assert.Equal(t, 48*time.Hour, cfg.Database.HistoryRetention)
	assert.Equal(t, "json", cfg.Logging.Format)

	require.Len(t, cfg.Checks, 2)
	assert.Equal(t, "L3", cfg.Checks[0].Severity)
	assert.Equal(t, 2*time.Hour, cfg.Checks[0].Cooldown)
	// Unset cooldown falls back to the monitoring default.
	assert.Equal(t, 15*time.Minute, cfg.Checks[1].Cooldown)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"sweep interval too small", "monitoring:\n  sweep_interval: 100ms\n"},
		{"negative retention", "database:\n  history_retention: -1h\n"},
		{"negative cleanup interval", "database:\n  cleanup_interval: -1h\n"},
		{"sub-second cleanup interval", "database:\n  cleanup_interval: 100ms\n"},
		{"missing check key", "checks:\n  - name: Nameless\n    severity: L1\n"},
		{"duplicate check key", "checks:\n  - key: disk_space\n    severity: L2\n  - key: disk_space\n    severity: L2\n"},
		{"bad severity", "checks:\n  - key: disk_space\n    severity: critical\n"},
		{"negative cooldown", "checks:\n  - key: disk_space\n    severity: L2\n    cooldown: -5m\n"},
		{"malformed yaml", "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
