package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostwatch/internal/database"
)

func fp(v float64) *float64 { return &v }

func TestBuiltinEvaluators(t *testing.T) {
	evs := builtinEvaluators()

	for _, kind := range []string{"host_online", "disk_space", "memory_usage", "cpu_usage"} {
		ev, ok := evs[kind]
		require.True(t, ok, "missing evaluator for %s", kind)
		assert.Equal(t, kind, ev.Kind())
	}
}

func TestGaugeEvaluatorThresholdBoundary(t *testing.T) {
	ev := builtinEvaluators()["disk_space"]
	now := time.Now()
	host := &database.Host{Name: "web-01"}

	tests := []struct {
		name     string
		value    float64
		alerting bool
	}{
		{"well below threshold", 40, false},
		{"just below threshold", 89.9, false},
		{"exactly at threshold", 90, true},
		{"above threshold", 97.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading := &database.Reading{DiskPct: fp(tt.value)}
			verdict, err := ev.Evaluate(now, host, reading, nil)
			require.NoError(t, err)
			require.NotNil(t, verdict)
			assert.Equal(t, tt.alerting, verdict.Alerting)
			assert.NotEmpty(t, verdict.Message)
		})
	}
}

func TestGaugeEvaluatorThresholdOverride(t *testing.T) {
	ev := builtinEvaluators()["cpu_usage"]
	now := time.Now()
	host := &database.Host{Name: "db-01"}
	reading := &database.Reading{CPUPct: fp(80)}

	verdict, err := ev.Evaluate(now, host, reading, map[string]interface{}{"threshold_pct": 75.0})
	require.NoError(t, err)
	require.NotNil(t, verdict)
	assert.True(t, verdict.Alerting)

	verdict, err = ev.Evaluate(now, host, reading, map[string]interface{}{"threshold_pct": 85.0})
	require.NoError(t, err)
	require.NotNil(t, verdict)
	assert.False(t, verdict.Alerting)
}

func TestGaugeEvaluatorNoData(t *testing.T) {
	ev := builtinEvaluators()["memory_usage"]
	now := time.Now()
	host := &database.Host{Name: "web-01"}

	verdict, err := ev.Evaluate(now, host, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, verdict, "missing reading must yield no verdict")

	// Reading present but this field absent: still no verdict.
	verdict, err = ev.Evaluate(now, host, &database.Reading{CPUPct: fp(50)}, nil)
	require.NoError(t, err)
	assert.Nil(t, verdict)
}

func TestGaugeEvaluatorInvalidParams(t *testing.T) {
	ev := builtinEvaluators()["disk_space"]
	now := time.Now()
	host := &database.Host{Name: "web-01"}
	reading := &database.Reading{DiskPct: fp(50)}

	_, err := ev.Evaluate(now, host, reading, map[string]interface{}{"threshold_pct": 150.0})
	assert.Error(t, err)

	_, err = ev.Evaluate(now, host, reading, map[string]interface{}{"threshold_pct": "ninety"})
	assert.Error(t, err)
}

func TestOnlineEvaluator(t *testing.T) {
	ev := builtinEvaluators()["host_online"]
	now := time.Now()

	t.Run("never reported", func(t *testing.T) {
		verdict, err := ev.Evaluate(now, &database.Host{Name: "ghost"}, nil, nil)
		require.NoError(t, err)
		require.NotNil(t, verdict)
		assert.True(t, verdict.Alerting)
		assert.Contains(t, verdict.Message, "never reported")
	})

	t.Run("recently seen", func(t *testing.T) {
		host := &database.Host{Name: "web-01", LastSeen: now.Add(-5 * time.Minute)}
		verdict, err := ev.Evaluate(now, host, nil, nil)
		require.NoError(t, err)
		require.NotNil(t, verdict)
		assert.False(t, verdict.Alerting)
	})

	t.Run("exactly at threshold stays online", func(t *testing.T) {
		host := &database.Host{Name: "web-01", LastSeen: now.Add(-60 * time.Minute)}
		verdict, err := ev.Evaluate(now, host, nil, nil)
		require.NoError(t, err)
		require.NotNil(t, verdict)
		assert.False(t, verdict.Alerting)
	})

	t.Run("past threshold", func(t *testing.T) {
		host := &database.Host{Name: "web-01", LastSeen: now.Add(-61 * time.Minute)}
		verdict, err := ev.Evaluate(now, host, nil, nil)
		require.NoError(t, err)
		require.NotNil(t, verdict)
		assert.True(t, verdict.Alerting)
	})

	t.Run("custom threshold", func(t *testing.T) {
		host := &database.Host{Name: "web-01", LastSeen: now.Add(-20 * time.Minute)}
		params := map[string]interface{}{"offline_threshold_minutes": 15}
		verdict, err := ev.Evaluate(now, host, nil, params)
		require.NoError(t, err)
		require.NotNil(t, verdict)
		assert.True(t, verdict.Alerting)
	})

	t.Run("falls back to reading timestamp", func(t *testing.T) {
		host := &database.Host{Name: "imported"}
		reading := &database.Reading{CollectedAt: now.Add(-10 * time.Minute)}
		verdict, err := ev.Evaluate(now, host, reading, nil)
		require.NoError(t, err)
		require.NotNil(t, verdict)
		assert.False(t, verdict.Alerting)
	})

	t.Run("rejects non-positive threshold", func(t *testing.T) {
		host := &database.Host{Name: "web-01", LastSeen: now}
		_, err := ev.Evaluate(now, host, nil, map[string]interface{}{"offline_threshold_minutes": 0})
		assert.Error(t, err)
	})
}

func TestMergeParams(t *testing.T) {
	defaults := map[string]interface{}{"threshold_pct": 90.0, "other": "a"}
	override := map[string]interface{}{"threshold_pct": 75.0}

	merged := mergeParams(defaults, override)
	assert.Equal(t, 75.0, merged["threshold_pct"])
	assert.Equal(t, "a", merged["other"])

	// Inputs are untouched.
	assert.Equal(t, 90.0, defaults["threshold_pct"])
}

func TestParamFloat(t *testing.T) {
	got, err := paramFloat(map[string]interface{}{"v": 42}, "v", 0)
	require.NoError(t, err)
	assert.Equal(t, 42.0, got)

	got, err = paramFloat(map[string]interface{}{"v": 42.5}, "v", 0)
	require.NoError(t, err)
	assert.Equal(t, 42.5, got)

	got, err = paramFloat(nil, "v", 7)
	require.NoError(t, err)
	assert.Equal(t, 7.0, got)

	_, err = paramFloat(map[string]interface{}{"v": []int{1}}, "v", 0)
	assert.Error(t, err)
}
