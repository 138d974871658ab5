// internal/database/store.go
package database

import (
	"context"
	"errors"
	"time"
)

var (
	ErrHostNotFound  = errors.New("host not found")
	ErrCheckNotFound = errors.New("check type not found")
	ErrAlertNotFound = errors.New("alert not found")

	// ErrHostKeyExists is returned by CreateHost and UpdateHost when another
	// host already carries the key. Keys are the agent's only credential, so
	// uniqueness is enforced in the same transaction as the write.
	ErrHostKeyExists = errors.New("host key already exists")

	// ErrActiveAlertExists is returned by CreateAlert when the (host, check)
	// pair already has an open or acknowledged record. The sweep treats it as
	// an integrity violation for that pair, never as a reason to overwrite.
	ErrActiveAlertExists = errors.New("active alert already exists for host/check pair")
)

// Store defines the interface for database operations
type Store interface {
	// Host operations
	GetHosts(ctx context.Context, filters HostFilters) ([]Host, error)
	GetHost(ctx context.Context, id string) (*Host, error)
	GetHostByKey(ctx context.Context, hostKey string) (*Host, error)
	CreateHost(ctx context.Context, host *Host) error
	UpdateHost(ctx context.Context, host *Host) error
	DeleteHost(ctx context.Context, id string) error
	TouchHostLastSeen(ctx context.Context, id string, seen time.Time) error

	// Reading operations. GetLatestReading returns (nil, nil) when the host
	// has never reported.
	InsertReading(ctx context.Context, reading *Reading) error
	GetLatestReading(ctx context.Context, hostID string) (*Reading, error)
	GetReadingHistory(ctx context.Context, hostID string, since time.Time) ([]Reading, error)
	PurgeReadingsBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Check type operations
	GetCheckTypes(ctx context.Context) ([]CheckType, error)
	GetCheckType(ctx context.Context, key string) (*CheckType, error)
	PutCheckType(ctx context.Context, ct *CheckType) error

	// Host check configuration. Keyed by (host, check); upsert keeps the
	// at-most-one-row-per-pair invariant.
	GetHostChecks(ctx context.Context, hostID string) ([]HostCheckConfig, error)
	UpsertHostCheck(ctx context.Context, cfg *HostCheckConfig) error
	DeleteHostCheck(ctx context.Context, hostID, checkKey string) error

	// Alert operations. CreateAlert and ResolveActiveAlert are atomic with
	// respect to the per-pair active index: creation fails with
	// ErrActiveAlertExists if the pair already has an active record, and
	// resolution retires open or acknowledged records without touching
	// anything else.
	GetAlert(ctx context.Context, id string) (*AlertRecord, error)
	GetAlerts(ctx context.Context, filters AlertFilters) ([]AlertRecord, error)
	GetActiveAlert(ctx context.Context, hostID, checkKey string) (*AlertRecord, error)
	CreateAlert(ctx context.Context, alert *AlertRecord) error
	ResolveActiveAlert(ctx context.Context, hostID, checkKey, message string, now time.Time) (*AlertRecord, error)
	AcknowledgeAlert(ctx context.Context, id string, now time.Time) (*AlertRecord, error)
	TouchAlertNotified(ctx context.Context, id string, now time.Time) error

	// Stats for the API layer
	GetStats(ctx context.Context) (*Stats, error)

	// Close the database connection
	Close() error
}

// Stats summarizes store contents for the dashboard/API.
type Stats struct {
	Hosts        int `json:"hosts"`
	ActiveHosts  int `json:"active_hosts"`
	CheckTypes   int `json:"check_types"`
	OpenAlerts   int `json:"open_alerts"`
	AckedAlerts  int `json:"acknowledged_alerts"`
	TotalAlerts  int `json:"total_alerts"`
	TotalRecords int `json:"reading_history_entries"`
}
