// internal/monitoring/retention.go - Reading-history retention
package monitoring

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"hostwatch/internal/database"
)

// RetentionManager prunes old reading history on a schedule. Alert records
// are deliberately out of its reach: they are the audit trail.
type RetentionManager struct {
	store     database.Store
	retention time.Duration
}

func NewRetentionManager(store database.Store, retention time.Duration) *RetentionManager {
	return &RetentionManager{
		store:     store,
		retention: retention,
	}
}

// PurgeOnce removes reading history older than the retention window and
// returns how many entries were dropped.
func (rm *RetentionManager) PurgeOnce(ctx context.Context) (int, error) {
	if rm.retention <= 0 {
		return 0, nil
	}

	cutoff := time.Now().Add(-rm.retention)
	deleted, err := rm.store.PurgeReadingsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		logrus.WithFields(logrus.Fields{
			"deleted":   deleted,
			"retention": rm.retention,
		}).Info("Reading history purge completed")
	}

	return deleted, nil
}

// SchedulePeriodic purges immediately and then on every interval until the
// context is cancelled.
func (rm *RetentionManager) SchedulePeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		logrus.WithField("interval", interval).Error("Invalid purge interval, periodic purge disabled")
		return
	}

	go func() {
		if _, err := rm.PurgeOnce(ctx); err != nil {
			logrus.WithError(err).Error("Initial reading purge failed")
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logrus.Debug("Stopping retention scheduler")
				return
			case <-ticker.C:
				if _, err := rm.PurgeOnce(ctx); err != nil {
					logrus.WithError(err).Error("Scheduled reading purge failed")
				}
			}
		}
	}()

	logrus.WithField("interval", interval).Info("Scheduled periodic reading purge")
}
