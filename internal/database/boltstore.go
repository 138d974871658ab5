// internal/database/boltstore.go - BoltDB implementation of Store
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	HostsBucket          = []byte("hosts")
	CheckTypesBucket     = []byte("check_types")
	HostChecksBucket     = []byte("host_checks")
	ReadingsLatestBucket = []byte("readings_latest")
	ReadingsHistBucket   = []byte("readings_hist")
	AlertsBucket         = []byte("alerts")
	AlertsActiveBucket   = []byte("alerts_active")
)

type BoltStore struct {
	db   *bbolt.DB
	path string
}

func NewBoltStore(path string) (Store, error) {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}

	store := &BoltStore{db: db, path: path}

	if err := store.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return store, nil
}

func (s *BoltStore) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{
			HostsBucket, CheckTypesBucket, HostChecksBucket,
			ReadingsLatestBucket, ReadingsHistBucket,
			AlertsBucket, AlertsActiveBucket,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
}

func pairKey(hostID, checkKey string) []byte {
	return []byte(hostID + ":" + checkKey)
}

// ---- Hosts ----

func (s *BoltStore) GetHosts(ctx context.Context, filters HostFilters) ([]Host, error) {
	var hosts []Host

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HostsBucket)
		return b.ForEach(func(k, v []byte) error {
			var host Host
			if err := json.Unmarshal(v, &host); err != nil {
				return fmt.Errorf("failed to unmarshal host %s: %w", k, err)
			}

			if filters.Active != nil && host.Active != *filters.Active {
				return nil
			}

			hosts = append(hosts, host)
			return nil
		})
	})

	return hosts, err
}

func (s *BoltStore) GetHost(ctx context.Context, id string) (*Host, error) {
	var host Host

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HostsBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrHostNotFound
		}
		return json.Unmarshal(v, &host)
	})

	if err != nil {
		return nil, err
	}
	return &host, nil
}

func (s *BoltStore) GetHostByKey(ctx context.Context, hostKey string) (*Host, error) {
	var found *Host

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HostsBucket)
		return b.ForEach(func(k, v []byte) error {
			var host Host
			if err := json.Unmarshal(v, &host); err != nil {
				return nil // skip malformed entries
			}
			if host.HostKey == hostKey {
				found = &host
			}
			return nil
		})
	})

	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrHostNotFound
	}
	return found, nil
}

func (s *BoltStore) CreateHost(ctx context.Context, host *Host) error {
	if host.ID == "" {
		host.ID = uuid.New().String()
	}
	host.CreatedAt = time.Now()
	host.UpdatedAt = time.Now()

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HostsBucket)

		if err := checkHostKeyFree(b, host.HostKey, host.ID); err != nil {
			return err
		}

		data, err := json.Marshal(host)
		if err != nil {
			return fmt.Errorf("failed to marshal host: %w", err)
		}

		return b.Put([]byte(host.ID), data)
	})
}

func (s *BoltStore) UpdateHost(ctx context.Context, host *Host) error {
	host.UpdatedAt = time.Now()

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HostsBucket)
		if b.Get([]byte(host.ID)) == nil {
			return ErrHostNotFound
		}

		if err := checkHostKeyFree(b, host.HostKey, host.ID); err != nil {
			return err
		}

		data, err := json.Marshal(host)
		if err != nil {
			return fmt.Errorf("failed to marshal host: %w", err)
		}

		return b.Put([]byte(host.ID), data)
	})
}

// checkHostKeyFree scans the bucket for another host carrying the key. It
// runs inside the caller's Update transaction so check and write are atomic.
func checkHostKeyFree(b *bbolt.Bucket, hostKey, selfID string) error {
	return b.ForEach(func(k, v []byte) error {
		var existing Host
		if err := json.Unmarshal(v, &existing); err != nil {
			return nil // skip malformed entries
		}
		if existing.HostKey == hostKey && existing.ID != selfID {
			return ErrHostKeyExists
		}
		return nil
	})
}

func (s *BoltStore) DeleteHost(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HostsBucket)
		return b.Delete([]byte(id))
	})
}

// TouchHostLastSeen bumps only last_seen, inside one transaction so a
// concurrent sweep reads either the old or the new timestamp, never a torn
// record.
func (s *BoltStore) TouchHostLastSeen(ctx context.Context, id string, seen time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HostsBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrHostNotFound
		}

		var host Host
		if err := json.Unmarshal(v, &host); err != nil {
			return fmt.Errorf("failed to unmarshal host %s: %w", id, err)
		}

		host.LastSeen = seen
		host.UpdatedAt = time.Now()

		data, err := json.Marshal(&host)
		if err != nil {
			return fmt.Errorf("failed to marshal host: %w", err)
		}

		return b.Put([]byte(id), data)
	})
}

// ---- Readings ----

func (s *BoltStore) InsertReading(ctx context.Context, reading *Reading) error {
	if reading.ID == "" {
		reading.ID = uuid.New().String()
	}
	if reading.CollectedAt.IsZero() {
		reading.CollectedAt = time.Now()
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(reading)
		if err != nil {
			return fmt.Errorf("failed to marshal reading: %w", err)
		}

		// Latest-per-host slot used by the sweep
		if err := tx.Bucket(ReadingsLatestBucket).Put([]byte(reading.HostID), data); err != nil {
			return err
		}

		// Append-only history
		histKey := fmt.Sprintf("%s:%d:%s", reading.HostID, reading.CollectedAt.Unix(), reading.ID)
		return tx.Bucket(ReadingsHistBucket).Put([]byte(histKey), data)
	})
}

func (s *BoltStore) GetLatestReading(ctx context.Context, hostID string) (*Reading, error) {
	var reading *Reading

	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(ReadingsLatestBucket).Get([]byte(hostID))
		if v == nil {
			return nil
		}
		var r Reading
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("failed to unmarshal reading for host %s: %w", hostID, err)
		}
		reading = &r
		return nil
	})

	return reading, err
}

func (s *BoltStore) GetReadingHistory(ctx context.Context, hostID string, since time.Time) ([]Reading, error) {
	var readings []Reading

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(ReadingsHistBucket).Cursor()
		prefix := hostID + ":"

		for k, v := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			var reading Reading
			if err := json.Unmarshal(v, &reading); err != nil {
				continue
			}
			if reading.CollectedAt.After(since) {
				readings = append(readings, reading)
			}
		}

		return nil
	})

	return readings, err
}

// ---- Check types ----

func (s *BoltStore) GetCheckTypes(ctx context.Context) ([]CheckType, error) {
	var checks []CheckType

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(CheckTypesBucket)
		return b.ForEach(func(k, v []byte) error {
			var ct CheckType
			if err := json.Unmarshal(v, &ct); err != nil {
				return fmt.Errorf("failed to unmarshal check type %s: %w", k, err)
			}
			checks = append(checks, ct)
			return nil
		})
	})

	return checks, err
}

func (s *BoltStore) GetCheckType(ctx context.Context, key string) (*CheckType, error) {
	var ct CheckType

	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(CheckTypesBucket).Get([]byte(key))
		if v == nil {
			return ErrCheckNotFound
		}
		return json.Unmarshal(v, &ct)
	})

	if err != nil {
		return nil, err
	}
	return &ct, nil
}

func (s *BoltStore) PutCheckType(ctx context.Context, ct *CheckType) error {
	if ct.Key == "" {
		return fmt.Errorf("check type key is required")
	}
	if ct.CreatedAt.IsZero() {
		ct.CreatedAt = time.Now()
	}
	ct.UpdatedAt = time.Now()

	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(ct)
		if err != nil {
			return fmt.Errorf("failed to marshal check type: %w", err)
		}
		return tx.Bucket(CheckTypesBucket).Put([]byte(ct.Key), data)
	})
}

// ---- Host check configs ----

func (s *BoltStore) GetHostChecks(ctx context.Context, hostID string) ([]HostCheckConfig, error) {
	var configs []HostCheckConfig

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(HostChecksBucket).Cursor()
		prefix := hostID + ":"

		for k, v := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			var cfg HostCheckConfig
			if err := json.Unmarshal(v, &cfg); err != nil {
				return fmt.Errorf("failed to unmarshal host check %s: %w", k, err)
			}
			configs = append(configs, cfg)
		}

		return nil
	})

	return configs, err
}

func (s *BoltStore) UpsertHostCheck(ctx context.Context, cfg *HostCheckConfig) error {
	if cfg.HostID == "" || cfg.CheckKey == "" {
		return fmt.Errorf("host id and check key are required")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HostChecksBucket)
		key := pairKey(cfg.HostID, cfg.CheckKey)

		if v := b.Get(key); v != nil {
			var existing HostCheckConfig
			if err := json.Unmarshal(v, &existing); err == nil {
				cfg.CreatedAt = existing.CreatedAt
			}
		}
		if cfg.CreatedAt.IsZero() {
			cfg.CreatedAt = time.Now()
		}
		cfg.UpdatedAt = time.Now()

		data, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal host check: %w", err)
		}

		return b.Put(key, data)
	})
}

func (s *BoltStore) DeleteHostCheck(ctx context.Context, hostID, checkKey string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(HostChecksBucket).Delete(pairKey(hostID, checkKey))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
