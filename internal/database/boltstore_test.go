package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	store, err := NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func fp(v float64) *float64 { return &v }

func TestHostLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	host := &Host{Name: "web-01", HostKey: "key-web-01", Active: true}
	require.NoError(t, store.CreateHost(ctx, host))
	assert.NotEmpty(t, host.ID)

	got, err := store.GetHost(ctx, host.ID)
	require.NoError(t, err)
	assert.Equal(t, "web-01", got.Name)

	byKey, err := store.GetHostByKey(ctx, "key-web-01")
	require.NoError(t, err)
	assert.Equal(t, host.ID, byKey.ID)

	_, err = store.GetHostByKey(ctx, "no-such-key")
	assert.ErrorIs(t, err, ErrHostNotFound)

	seen := time.Now().Add(-5 * time.Minute).UTC().Truncate(time.Second)
	require.NoError(t, store.TouchHostLastSeen(ctx, host.ID, seen))

	got, err = store.GetHost(ctx, host.ID)
	require.NoError(t, err)
	assert.True(t, got.LastSeen.Equal(seen))
}

func TestHostKeyUniqueness(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &Host{Name: "web-01", HostKey: "shared-key", Active: true}
	require.NoError(t, store.CreateHost(ctx, first))

	dup := &Host{Name: "web-02", HostKey: "shared-key", Active: true}
	assert.ErrorIs(t, store.CreateHost(ctx, dup), ErrHostKeyExists)

	other := &Host{Name: "web-03", HostKey: "other-key", Active: true}
	require.NoError(t, store.CreateHost(ctx, other))

	// Updating a host onto a taken key is rejected; keeping its own is fine.
	other.HostKey = "shared-key"
	assert.ErrorIs(t, store.UpdateHost(ctx, other), ErrHostKeyExists)

	first.Name = "web-01-renamed"
	require.NoError(t, store.UpdateHost(ctx, first))
}

func TestGetHostsActiveFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateHost(ctx, &Host{Name: "up", HostKey: "k1", Active: true}))
	require.NoError(t, store.CreateHost(ctx, &Host{Name: "retired", HostKey: "k2", Active: false}))

	all, err := store.GetHosts(ctx, HostFilters{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active := true
	up, err := store.GetHosts(ctx, HostFilters{Active: &active})
	require.NoError(t, err)
	require.Len(t, up, 1)
	assert.Equal(t, "up", up[0].Name)
}

func TestLatestReading(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	latest, err := store.GetLatestReading(ctx, "unknown-host")
	require.NoError(t, err)
	assert.Nil(t, latest, "host with no readings should yield nil, not an error")

	host := &Host{Name: "db-01", HostKey: "k", Active: true}
	require.NoError(t, store.CreateHost(ctx, host))

	first := &Reading{HostID: host.ID, CollectedAt: time.Now().Add(-2 * time.Minute), CPUPct: fp(10)}
	second := &Reading{HostID: host.ID, CollectedAt: time.Now().Add(-1 * time.Minute), CPUPct: fp(95)}
	require.NoError(t, store.InsertReading(ctx, first))
	require.NoError(t, store.InsertReading(ctx, second))

	latest, err = store.GetLatestReading(ctx, host.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
	require.NotNil(t, latest.CPUPct)
	assert.InDelta(t, 95, *latest.CPUPct, 0.001)

	history, err := store.GetReadingHistory(ctx, host.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, history, 2)

	recent, err := store.GetReadingHistory(ctx, host.ID, time.Now().Add(-90*time.Second))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, second.ID, recent[0].ID)
}

func TestPurgeKeepsLatestSlot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	host := &Host{Name: "old-timer", HostKey: "k", Active: true}
	require.NoError(t, store.CreateHost(ctx, host))

	old := &Reading{HostID: host.ID, CollectedAt: time.Now().Add(-48 * time.Hour), DiskPct: fp(50)}
	require.NoError(t, store.InsertReading(ctx, old))

	purged, err := store.PurgeReadingsBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	history, err := store.GetReadingHistory(ctx, host.ID, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, history)

	// Sweeps still need the most recent reading, however old.
	latest, err := store.GetLatestReading(ctx, host.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, old.ID, latest.ID)
}

func TestCheckTypeUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetCheckType(ctx, "disk_space")
	assert.ErrorIs(t, err, ErrCheckNotFound)

	ct := &CheckType{
		Key:      "disk_space",
		Name:     "Disk Space",
		Severity: SeverityL2,
		Params:   map[string]interface{}{"threshold_pct": 90.0},
		Enabled:  true,
	}
	require.NoError(t, store.PutCheckType(ctx, ct))
	created := ct.CreatedAt

	ct.Name = "Disk Space (renamed)"
	require.NoError(t, store.PutCheckType(ctx, ct))

	got, err := store.GetCheckType(ctx, "disk_space")
	require.NoError(t, err)
	assert.Equal(t, "Disk Space (renamed)", got.Name)
	assert.True(t, got.CreatedAt.Equal(created))
}

func TestHostCheckUpsertPreservesCreatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cfg := &HostCheckConfig{HostID: "h1", CheckKey: "cpu_usage", Enabled: true}
	require.NoError(t, store.UpsertHostCheck(ctx, cfg))
	created := cfg.CreatedAt

	update := &HostCheckConfig{
		HostID:   "h1",
		CheckKey: "cpu_usage",
		Enabled:  true,
		Params:   map[string]interface{}{"threshold_pct": 75.0},
	}
	require.NoError(t, store.UpsertHostCheck(ctx, update))
	assert.True(t, update.CreatedAt.Equal(created))

	configs, err := store.GetHostChecks(ctx, "h1")
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, 75.0, configs[0].Params["threshold_pct"])

	require.NoError(t, store.DeleteHostCheck(ctx, "h1", "cpu_usage"))
	configs, err = store.GetHostChecks(ctx, "h1")
	require.NoError(t, err)
	assert.Empty(t, configs)
}

func TestCreateAlertRejectsSecondActive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &AlertRecord{HostID: "h1", CheckKey: "disk_space", Severity: SeverityL2, Message: "disk critical"}
	require.NoError(t, store.CreateAlert(ctx, first))
	assert.Equal(t, AlertOpen, first.Status)

	dup := &AlertRecord{HostID: "h1", CheckKey: "disk_space", Severity: SeverityL2, Message: "disk critical again"}
	err := store.CreateAlert(ctx, dup)
	assert.ErrorIs(t, err, ErrActiveAlertExists)

	// A different pair is unaffected.
	other := &AlertRecord{HostID: "h1", CheckKey: "cpu_usage", Severity: SeverityL2, Message: "cpu critical"}
	require.NoError(t, store.CreateAlert(ctx, other))

	active, err := store.GetActiveAlert(ctx, "h1", "disk_space")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, first.ID, active.ID)
}

func TestResolveActiveAlert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	alert := &AlertRecord{HostID: "h1", CheckKey: "memory_usage", Severity: SeverityL2, Message: "memory critical"}
	require.NoError(t, store.CreateAlert(ctx, alert))

	resolved, err := store.ResolveActiveAlert(ctx, "h1", "memory_usage", "memory back to normal", now)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, alert.ID, resolved.ID)
	assert.Equal(t, AlertResolved, resolved.Status)
	assert.Equal(t, "memory back to normal", resolved.ResolvedMessage)
	assert.Equal(t, "memory critical", resolved.Message, "opening message must survive resolution")

	active, err := store.GetActiveAlert(ctx, "h1", "memory_usage")
	require.NoError(t, err)
	assert.Nil(t, active)

	// Resolving with nothing active is a no-op, not an error.
	again, err := store.ResolveActiveAlert(ctx, "h1", "memory_usage", "still fine", now)
	require.NoError(t, err)
	assert.Nil(t, again)

	// The resolved record stays; a new breach opens a fresh one.
	kept, err := store.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, AlertResolved, kept.Status)

	fresh := &AlertRecord{HostID: "h1", CheckKey: "memory_usage", Severity: SeverityL2, Message: "memory critical again"}
	require.NoError(t, store.CreateAlert(ctx, fresh))
	assert.NotEqual(t, alert.ID, fresh.ID)
}

func TestAcknowledgeAlert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	alert := &AlertRecord{HostID: "h1", CheckKey: "host_online", Severity: SeverityL1, Message: "host offline"}
	require.NoError(t, store.CreateAlert(ctx, alert))

	acked, err := store.AcknowledgeAlert(ctx, alert.ID, now)
	require.NoError(t, err)
	assert.Equal(t, AlertAcknowledged, acked.Status)

	// Acknowledged records remain active: the pair can still not re-open.
	active, err := store.GetActiveAlert(ctx, "h1", "host_online")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, AlertAcknowledged, active.Status)

	dup := &AlertRecord{HostID: "h1", CheckKey: "host_online", Severity: SeverityL1, Message: "still offline"}
	assert.ErrorIs(t, store.CreateAlert(ctx, dup), ErrActiveAlertExists)

	_, err = store.AcknowledgeAlert(ctx, alert.ID, now)
	assert.Error(t, err, "only open alerts can be acknowledged")

	// Resolution retires acknowledged records too.
	resolved, err := store.ResolveActiveAlert(ctx, "h1", "host_online", "host back online", now)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, AlertResolved, resolved.Status)

	_, err = store.AcknowledgeAlert(ctx, "no-such-id", now)
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestTouchAlertNotified(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alert := &AlertRecord{HostID: "h1", CheckKey: "cpu_usage", Severity: SeverityL2, Message: "cpu critical"}
	require.NoError(t, store.CreateAlert(ctx, alert))

	stamp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, store.TouchAlertNotified(ctx, alert.ID, stamp))

	got, err := store.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.True(t, got.LastNotifiedAt.Equal(stamp))
	assert.Equal(t, AlertOpen, got.Status)
}

func TestGetAlertsFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.CreateAlert(ctx, &AlertRecord{HostID: "h1", CheckKey: "disk_space", Severity: SeverityL2, Message: "m1"}))
	require.NoError(t, store.CreateAlert(ctx, &AlertRecord{HostID: "h2", CheckKey: "disk_space", Severity: SeverityL2, Message: "m2"}))
	_, err := store.ResolveActiveAlert(ctx, "h2", "disk_space", "ok", now)
	require.NoError(t, err)

	open, err := store.GetAlerts(ctx, AlertFilters{Status: AlertOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "h1", open[0].HostID)

	byHost, err := store.GetAlerts(ctx, AlertFilters{HostID: "h2"})
	require.NoError(t, err)
	require.Len(t, byHost, 1)
	assert.Equal(t, AlertResolved, byHost[0].Status)

	limited, err := store.GetAlerts(ctx, AlertFilters{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestGetAlertsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).UTC()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.CreateAlert(ctx, &AlertRecord{
			HostID:      "h1",
			CheckKey:    "cpu_usage",
			Severity:    SeverityL2,
			TriggeredAt: base.Add(time.Duration(i) * time.Minute),
		}))
		_, err := store.ResolveActiveAlert(ctx, "h1", "cpu_usage", "ok", time.Now())
		require.NoError(t, err)
	}

	alerts, err := store.GetAlerts(ctx, AlertFilters{})
	require.NoError(t, err)
	require.Len(t, alerts, 5)
	for i := 1; i < len(alerts); i++ {
		assert.True(t, alerts[i-1].TriggeredAt.After(alerts[i].TriggeredAt),
			"alerts must be ordered newest first")
	}

	// The limit keeps the most recent, not an arbitrary id-ordered subset.
	limited, err := store.GetAlerts(ctx, AlertFilters{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.True(t, limited[0].TriggeredAt.Equal(base.Add(4*time.Minute)))
	assert.True(t, limited[1].TriggeredAt.Equal(base.Add(3*time.Minute)))
}

func TestGetStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateHost(ctx, &Host{Name: "a", HostKey: "ka", Active: true}))
	require.NoError(t, store.CreateHost(ctx, &Host{Name: "b", HostKey: "kb", Active: false}))
	require.NoError(t, store.PutCheckType(ctx, &CheckType{Key: "disk_space", Severity: SeverityL2, Enabled: true}))
	require.NoError(t, store.CreateAlert(ctx, &AlertRecord{HostID: "h1", CheckKey: "disk_space", Severity: SeverityL2}))

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Hosts)
	assert.Equal(t, 1, stats.ActiveHosts)
	assert.Equal(t, 1, stats.CheckTypes)
	assert.Equal(t, 1, stats.OpenAlerts)
	assert.Equal(t, 1, stats.TotalAlerts)
}
