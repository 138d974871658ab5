// internal/database/models.go
package database

import (
	"time"
)

// Alert status values. A record is "active" while it is open or acknowledged;
// resolving it is the only way to retire it. Records are never deleted.
const (
	AlertOpen         = "open"
	AlertAcknowledged = "acknowledged"
	AlertResolved     = "resolved"
)

// Severity levels, highest first.
const (
	SeverityL1 = "L1"
	SeverityL2 = "L2"
	SeverityL3 = "L3"
)

type Host struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	HostKey   string    `json:"host_key"`
	OSName    string    `json:"os_name,omitempty"`
	OSVersion string    `json:"os_version,omitempty"`
	Active    bool      `json:"active"`
	LastSeen  time.Time `json:"last_seen"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reading is one metrics snapshot reported by an agent. Percentage fields are
// pointers so a missing value is distinguishable from a measured zero.
type Reading struct {
	ID          string    `json:"id"`
	HostID      string    `json:"host_id"`
	CollectedAt time.Time `json:"collected_at"`
	CPUPct      *float64  `json:"cpu_pct,omitempty"`
	MemPct      *float64  `json:"mem_pct,omitempty"`
	DiskPct     *float64  `json:"disk_pct,omitempty"`
	MemUsedMB   int64     `json:"mem_used_mb,omitempty"`
	MemTotalMB  int64     `json:"mem_total_mb,omitempty"`
	DiskUsedGB  float64   `json:"disk_used_gb,omitempty"`
	DiskTotalGB float64   `json:"disk_total_gb,omitempty"`
	IntIP       string    `json:"int_ip,omitempty"`
	PublicIP    string    `json:"public_ip,omitempty"`
	KernelName  string    `json:"kernel_name,omitempty"`
	KernelVer   string    `json:"kernel_version,omitempty"`
}

// CheckType is a named rule kind with its default parameters. Host-level
// overrides are merged over Params per key at evaluation time.
type CheckType struct {
	Key      string                 `json:"key"`
	Name     string                 `json:"name"`
	Severity string                 `json:"severity"`
	Params   map[string]interface{} `json:"params"`
	// CooldownMinutes gates how often a persisting alert's last_notified_at
	// refreshes. Zero disables the refresh entirely; it never delays opening
	// or resolving.
	CooldownMinutes int `json:"cooldown_minutes"`
	Enabled         bool                   `json:"enabled"`
	Notes           string                 `json:"notes,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// HostCheckConfig enables a check for one host. At most one row exists per
// (host, check) pair; without a row the check is not evaluated for the host.
type HostCheckConfig struct {
	HostID    string                 `json:"host_id"`
	CheckKey  string                 `json:"check_key"`
	Enabled   bool                   `json:"enabled"`
	Params    map[string]interface{} `json:"params,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

type AlertRecord struct {
	ID              string    `json:"id"`
	HostID          string    `json:"host_id"`
	CheckKey        string    `json:"check_key"`
	Severity        string    `json:"severity"`
	ReadingID       string    `json:"reading_id,omitempty"`
	Message         string    `json:"message"`
	ResolvedMessage string    `json:"resolved_message,omitempty"`
	Status          string    `json:"status"`
	TriggeredAt     time.Time `json:"triggered_at"`
	LastNotifiedAt  time.Time `json:"last_notified_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Active reports whether the alert still needs attention.
func (a *AlertRecord) Active() bool {
	return a.Status == AlertOpen || a.Status == AlertAcknowledged
}

type HostFilters struct {
	Active *bool
}

type AlertFilters struct {
	HostID   string
	CheckKey string
	Status   string
	Since    *time.Time
	Limit    int
}
