// internal/monitoring/engine.go
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"hostwatch/internal/config"
	"hostwatch/internal/database"
	"hostwatch/internal/metrics"
)

// Engine owns the alert evaluation loop: the scheduler, the per-kind
// evaluators, and the reading-history retention sweeper. It shares the store
// with the web layer; every alert transition is a single store transaction,
// so neither side blocks the other.
type Engine struct {
	config     *config.Config
	store      database.Store
	metrics    *metrics.Collector
	scheduler  *Scheduler
	retention  *RetentionManager
	evaluators map[string]Evaluator

	mu      sync.RWMutex
	onEvent func(AlertEvent)
	running bool
}

func NewEngine(cfg *config.Config, store database.Store, metricsCollector *metrics.Collector) (*Engine, error) {
	engine := &Engine{
		config:     cfg,
		store:      store,
		metrics:    metricsCollector,
		evaluators: builtinEvaluators(),
		retention:  NewRetentionManager(store, cfg.Database.HistoryRetention),
	}
	engine.scheduler = NewScheduler(engine, cfg.Monitoring.SweepInterval)

	logrus.WithField("evaluators", len(engine.evaluators)).Info("Loaded check evaluators")
	return engine, nil
}

// SetEventHandler registers a callback invoked for every alert transition the
// sweep makes (used by the web layer for the live feed).
func (e *Engine) SetEventHandler(fn func(AlertEvent)) {
	e.mu.Lock()
	e.onEvent = fn
	e.mu.Unlock()
}

func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.mu.Unlock()

	logrus.Info("Starting alert evaluation engine")

	// Seed the check catalog before the first sweep can run.
	if err := e.syncCheckTypes(ctx); err != nil {
		logrus.WithError(err).Error("Failed to sync check types")
		return err
	}

	e.retention.SchedulePeriodic(ctx, e.config.Database.CleanupInterval)

	return e.scheduler.Start(ctx)
}

func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	logrus.Info("Stopping alert evaluation engine")
	e.scheduler.Stop()
	e.running = false
}

// TriggerSweep runs one sweep immediately, serialized with scheduled sweeps.
func (e *Engine) TriggerSweep(ctx context.Context) (*SweepStats, error) {
	return e.scheduler.RunNow(ctx)
}

// PurgeReadings runs the retention purge out of band.
func (e *Engine) PurgeReadings(ctx context.Context) (int, error) {
	return e.retention.PurgeOnce(ctx)
}

// syncCheckTypes upserts the configured check seeds into the store. Existing
// rows are updated in place so config edits take effect on restart; rows for
// kinds the config no longer names are left alone (they may still be
// referenced by historical alerts).
func (e *Engine) syncCheckTypes(ctx context.Context) error {
	for _, seed := range e.config.Checks {
		ct := &database.CheckType{
			Key:             seed.Key,
			Name:            seed.Name,
			Severity:        seed.Severity,
			Params:          seed.Params,
			CooldownMinutes: int(seed.Cooldown / time.Minute),
			Enabled:         seed.Enabled == nil || *seed.Enabled,
			Notes:           seed.Notes,
		}

		if existing, err := e.store.GetCheckType(ctx, seed.Key); err == nil {
			ct.CreatedAt = existing.CreatedAt
		}

		if err := e.store.PutCheckType(ctx, ct); err != nil {
			logrus.WithError(err).WithField("check", seed.Key).Error("Failed to sync check type")
			return err
		}
	}

	logrus.WithField("check_types", len(e.config.Checks)).Info("Synced check catalog")
	return nil
}
