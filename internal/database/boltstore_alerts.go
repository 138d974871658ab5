// internal/database/boltstore_alerts.go - Alert lifecycle and retention operations
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"
)

func (s *BoltStore) GetAlert(ctx context.Context, id string) (*AlertRecord, error) {
	var alert AlertRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(AlertsBucket).Get([]byte(id))
		if v == nil {
			return ErrAlertNotFound
		}
		return json.Unmarshal(v, &alert)
	})

	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (s *BoltStore) GetAlerts(ctx context.Context, filters AlertFilters) ([]AlertRecord, error) {
	var alerts []AlertRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(AlertsBucket)
		return b.ForEach(func(k, v []byte) error {
			var alert AlertRecord
			if err := json.Unmarshal(v, &alert); err != nil {
				return nil // skip malformed entries
			}

			if filters.HostID != "" && alert.HostID != filters.HostID {
				return nil
			}
			if filters.CheckKey != "" && alert.CheckKey != filters.CheckKey {
				return nil
			}
			if filters.Status != "" && alert.Status != filters.Status {
				return nil
			}
			if filters.Since != nil && alert.TriggeredAt.Before(*filters.Since) {
				return nil
			}

			alerts = append(alerts, alert)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// Bucket order is id order; callers want the most recent first, so the
	// limit is applied after sorting.
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].TriggeredAt.After(alerts[j].TriggeredAt)
	})

	if filters.Limit > 0 && len(alerts) > filters.Limit {
		alerts = alerts[:filters.Limit]
	}

	return alerts, nil
}

func (s *BoltStore) GetActiveAlert(ctx context.Context, hostID, checkKey string) (*AlertRecord, error) {
	var alert *AlertRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(AlertsActiveBucket).Get(pairKey(hostID, checkKey))
		if id == nil {
			return nil
		}

		v := tx.Bucket(AlertsBucket).Get(id)
		if v == nil {
			return fmt.Errorf("active index points at missing alert %s", id)
		}

		var a AlertRecord
		if err := json.Unmarshal(v, &a); err != nil {
			return fmt.Errorf("failed to unmarshal alert %s: %w", id, err)
		}
		alert = &a
		return nil
	})

	if err != nil {
		return nil, err
	}
	return alert, nil
}

// CreateAlert opens a new record for the pair. The check of the active index
// and the two writes happen in one Update transaction, so two concurrent
// sweeps cannot double-open an alert.
func (s *BoltStore) CreateAlert(ctx context.Context, alert *AlertRecord) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.Status == "" {
		alert.Status = AlertOpen
	}
	now := time.Now()
	if alert.TriggeredAt.IsZero() {
		alert.TriggeredAt = now
	}
	alert.UpdatedAt = now

	return s.db.Update(func(tx *bbolt.Tx) error {
		active := tx.Bucket(AlertsActiveBucket)
		key := pairKey(alert.HostID, alert.CheckKey)

		if active.Get(key) != nil {
			return ErrActiveAlertExists
		}

		data, err := json.Marshal(alert)
		if err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}

		if err := tx.Bucket(AlertsBucket).Put([]byte(alert.ID), data); err != nil {
			return err
		}

		return active.Put(key, []byte(alert.ID))
	})
}

// ResolveActiveAlert retires the pair's active record, whether it is open or
// acknowledged, and clears the active index. Returns (nil, nil) when no
// active record exists.
func (s *BoltStore) ResolveActiveAlert(ctx context.Context, hostID, checkKey, message string, now time.Time) (*AlertRecord, error) {
	var resolved *AlertRecord

	err := s.db.Update(func(tx *bbolt.Tx) error {
		active := tx.Bucket(AlertsActiveBucket)
		key := pairKey(hostID, checkKey)

		id := active.Get(key)
		if id == nil {
			return nil
		}

		alerts := tx.Bucket(AlertsBucket)
		v := alerts.Get(id)
		if v == nil {
			// Dangling index entry; drop it so the pair can open again.
			return active.Delete(key)
		}

		var alert AlertRecord
		if err := json.Unmarshal(v, &alert); err != nil {
			return fmt.Errorf("failed to unmarshal alert %s: %w", id, err)
		}

		alert.Status = AlertResolved
		alert.ResolvedMessage = message
		alert.UpdatedAt = now

		data, err := json.Marshal(&alert)
		if err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}
		if err := alerts.Put(id, data); err != nil {
			return err
		}
		if err := active.Delete(key); err != nil {
			return err
		}

		resolved = &alert
		return nil
	})

	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// AcknowledgeAlert is the operator action; the sweep itself never writes the
// acknowledged status.
func (s *BoltStore) AcknowledgeAlert(ctx context.Context, id string, now time.Time) (*AlertRecord, error) {
	var acked *AlertRecord

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(AlertsBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrAlertNotFound
		}

		var alert AlertRecord
		if err := json.Unmarshal(v, &alert); err != nil {
			return fmt.Errorf("failed to unmarshal alert %s: %w", id, err)
		}

		if alert.Status != AlertOpen {
			return fmt.Errorf("alert %s is %s, only open alerts can be acknowledged", id, alert.Status)
		}

		alert.Status = AlertAcknowledged
		alert.UpdatedAt = now

		data, err := json.Marshal(&alert)
		if err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}
		if err := b.Put([]byte(id), data); err != nil {
			return err
		}

		acked = &alert
		return nil
	})

	if err != nil {
		return nil, err
	}
	return acked, nil
}

func (s *BoltStore) TouchAlertNotified(ctx context.Context, id string, now time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(AlertsBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrAlertNotFound
		}

		var alert AlertRecord
		if err := json.Unmarshal(v, &alert); err != nil {
			return fmt.Errorf("failed to unmarshal alert %s: %w", id, err)
		}

		alert.LastNotifiedAt = now
		alert.UpdatedAt = now

		data, err := json.Marshal(&alert)
		if err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}
		return b.Put([]byte(id), data)
	})
}

// PurgeReadingsBefore removes history entries collected before the cutoff.
// The latest-per-host slot is left alone: the sweep always needs the most
// recent reading, however old. Alerts are never purged.
func (s *BoltStore) PurgeReadingsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ReadingsHistBucket)
		c := b.Cursor()

		var keysToDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var reading Reading
			if err := json.Unmarshal(v, &reading); err != nil {
				continue
			}
			if reading.CollectedAt.Before(cutoff) {
				keysToDelete = append(keysToDelete, copyBytes(k))
			}
		}

		for _, key := range keysToDelete {
			if err := b.Delete(key); err != nil {
				return err
			}
			deleted++
		}

		return nil
	})

	if deleted > 0 {
		logrus.WithFields(logrus.Fields{
			"deleted": deleted,
			"cutoff":  cutoff,
		}).Debug("Purged reading history entries")
	}

	return deleted, err
}

func (s *BoltStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(HostsBucket).ForEach(func(k, v []byte) error {
			stats.Hosts++
			var host Host
			if err := json.Unmarshal(v, &host); err == nil && host.Active {
				stats.ActiveHosts++
			}
			return nil
		}); err != nil {
			return err
		}

		stats.CheckTypes = tx.Bucket(CheckTypesBucket).Stats().KeyN
		stats.TotalRecords = tx.Bucket(ReadingsHistBucket).Stats().KeyN

		return tx.Bucket(AlertsBucket).ForEach(func(k, v []byte) error {
			stats.TotalAlerts++
			var alert AlertRecord
			if err := json.Unmarshal(v, &alert); err != nil {
				return nil
			}
			switch alert.Status {
			case AlertOpen:
				stats.OpenAlerts++
			case AlertAcknowledged:
				stats.AckedAlerts++
			}
			return nil
		})
	})

	if err != nil {
		return nil, err
	}
	return stats, nil
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
