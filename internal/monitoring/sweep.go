// internal/monitoring/sweep.go - One evaluation pass over all active hosts
package monitoring

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"hostwatch/internal/database"
)

// Alert transitions reported to the event handler and metrics.
const (
	TransitionOpened   = "opened"
	TransitionResolved = "resolved"
	TransitionNotified = "notified"
)

// AlertEvent describes a state change the sweep made.
type AlertEvent struct {
	Transition string                `json:"transition"`
	Host       *database.Host        `json:"host"`
	Alert      *database.AlertRecord `json:"alert"`
}

// SweepStats summarizes one sweep.
type SweepStats struct {
	Hosts     int `json:"hosts"`
	ChecksRun int `json:"checks_run"`
	Opened    int `json:"alerts_opened"`
	Resolved  int `json:"alerts_resolved"`
	Notified  int `json:"alerts_notified"`
	Skipped   int `json:"checks_skipped"`
	Errors    int `json:"errors"`
}

// Sweep evaluates every enabled check of every active host and reconciles
// alert state. Failures are scoped to a single (host, check) pair: one bad
// host or config never stops the rest of the pass.
func (e *Engine) Sweep(ctx context.Context) (*SweepStats, error) {
	start := time.Now()
	stats := &SweepStats{}

	active := true
	hosts, err := e.store.GetHosts(ctx, database.HostFilters{Active: &active})
	if err != nil {
		e.metrics.RecordSweep(time.Since(start), true)
		return stats, err
	}

	for i := range hosts {
		if ctx.Err() != nil {
			break
		}
		stats.Hosts++
		e.sweepHost(ctx, start, &hosts[i], stats)
	}

	e.metrics.RecordSweep(time.Since(start), false)

	logrus.WithFields(logrus.Fields{
		"hosts":    stats.Hosts,
		"checks":   stats.ChecksRun,
		"opened":   stats.Opened,
		"resolved": stats.Resolved,
		"skipped":  stats.Skipped,
		"errors":   stats.Errors,
		"duration": time.Since(start),
	}).Debug("Sweep completed")

	return stats, ctx.Err()
}

func (e *Engine) sweepHost(ctx context.Context, now time.Time, host *database.Host, stats *SweepStats) {
	log := logrus.WithField("host", host.Name)

	reading, err := e.store.GetLatestReading(ctx, host.ID)
	if err != nil {
		log.WithError(err).Error("Failed to load latest reading, skipping host this sweep")
		stats.Errors++
		return
	}

	configs, err := e.store.GetHostChecks(ctx, host.ID)
	if err != nil {
		log.WithError(err).Error("Failed to load host check configs, skipping host this sweep")
		stats.Errors++
		return
	}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		e.evaluatePair(ctx, now, host, reading, &cfg, stats)
	}
}

func (e *Engine) evaluatePair(ctx context.Context, now time.Time, host *database.Host, reading *database.Reading, cfg *database.HostCheckConfig, stats *SweepStats) {
	log := logrus.WithFields(logrus.Fields{
		"host":  host.Name,
		"check": cfg.CheckKey,
	})

	ct, err := e.store.GetCheckType(ctx, cfg.CheckKey)
	if err != nil {
		log.WithError(err).Warn("Check type missing, skipping pair")
		stats.Skipped++
		e.metrics.RecordEvaluation(cfg.CheckKey, "skipped")
		return
	}
	if !ct.Enabled {
		return
	}

	evaluator, ok := e.evaluators[ct.Key]
	if !ok {
		log.Warn("Unknown check kind, skipping pair")
		stats.Skipped++
		e.metrics.RecordEvaluation(ct.Key, "skipped")
		return
	}

	params := mergeParams(ct.Params, cfg.Params)

	verdict, err := evaluator.Evaluate(now, host, reading, params)
	if err != nil {
		log.WithError(err).Warn("Check evaluation failed, skipping pair")
		stats.Skipped++
		e.metrics.RecordEvaluation(ct.Key, "error")
		return
	}
	stats.ChecksRun++

	if verdict == nil {
		// No data: neither open nor resolve.
		e.metrics.RecordEvaluation(ct.Key, "no_data")
		return
	}

	if verdict.Alerting {
		e.metrics.RecordEvaluation(ct.Key, "alerting")
	} else {
		e.metrics.RecordEvaluation(ct.Key, "normal")
	}

	if err := e.reconcile(ctx, now, host, reading, ct, verdict, stats); err != nil {
		log.WithError(err).Error("Failed to reconcile alert state for pair")
		stats.Errors++
	}
}

// reconcile applies the state machine for one pair. The store's active index
// makes create-or-resolve atomic per pair, so concurrent sweeps or operator
// acknowledgments are tolerated: an acknowledged record is only ever moved to
// resolved, never back to open.
func (e *Engine) reconcile(ctx context.Context, now time.Time, host *database.Host, reading *database.Reading, ct *database.CheckType, verdict *Verdict, stats *SweepStats) error {
	active, err := e.store.GetActiveAlert(ctx, host.ID, ct.Key)
	if err != nil {
		return err
	}

	switch {
	case verdict.Alerting && active == nil:
		alert := &database.AlertRecord{
			HostID:         host.ID,
			CheckKey:       ct.Key,
			Severity:       ct.Severity,
			Message:        verdict.Message,
			Status:         database.AlertOpen,
			TriggeredAt:    now,
			LastNotifiedAt: now,
		}
		if reading != nil {
			alert.ReadingID = reading.ID
		}

		if err := e.store.CreateAlert(ctx, alert); err != nil {
			if errors.Is(err, database.ErrActiveAlertExists) {
				// Lost a race with a concurrent sweep; the pair already has
				// its alert, so nothing is missing. Shout and move on.
				logrus.WithFields(logrus.Fields{
					"host":  host.Name,
					"check": ct.Key,
				}).Error("Active alert appeared mid-reconcile, skipping pair")
				return nil
			}
			return err
		}

		stats.Opened++
		e.metrics.RecordTransition(ct.Key, TransitionOpened)
		e.emit(AlertEvent{Transition: TransitionOpened, Host: host, Alert: alert})

		logrus.WithFields(logrus.Fields{
			"host":     host.Name,
			"check":    ct.Key,
			"severity": ct.Severity,
			"alert_id": alert.ID,
		}).Info("Alert opened")

	case !verdict.Alerting && active != nil:
		resolved, err := e.store.ResolveActiveAlert(ctx, host.ID, ct.Key, verdict.Message, now)
		if err != nil {
			return err
		}
		if resolved == nil {
			// Resolved out from under us; already in the desired state.
			return nil
		}

		stats.Resolved++
		e.metrics.RecordTransition(ct.Key, TransitionResolved)
		e.emit(AlertEvent{Transition: TransitionResolved, Host: host, Alert: resolved})

		logrus.WithFields(logrus.Fields{
			"host":     host.Name,
			"check":    ct.Key,
			"alert_id": resolved.ID,
		}).Info("Alert resolved")

	case verdict.Alerting && active != nil:
		// Condition persists. Only the notification timestamp may move, and
		// only once the check type's cooldown has elapsed.
		cooldown := time.Duration(ct.CooldownMinutes) * time.Minute
		if cooldown <= 0 || now.Sub(active.LastNotifiedAt) < cooldown {
			return nil
		}

		if err := e.store.TouchAlertNotified(ctx, active.ID, now); err != nil {
			return err
		}
		active.LastNotifiedAt = now

		stats.Notified++
		e.metrics.RecordTransition(ct.Key, TransitionNotified)
		e.emit(AlertEvent{Transition: TransitionNotified, Host: host, Alert: active})
	}

	return nil
}

func (e *Engine) emit(event AlertEvent) {
	e.mu.RLock()
	handler := e.onEvent
	e.mu.RUnlock()

	if handler != nil {
		handler(event)
	}
}
