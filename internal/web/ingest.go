// internal/web/ingest.go - Agent metrics ingestion endpoint
package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"hostwatch/internal/database"
)

// reportPayload is the body agents POST to /report. Percentage fields are
// optional; the evaluators treat a missing field as "no data".
type reportPayload struct {
	HostKey     string     `json:"host_key"`
	CollectedAt *time.Time `json:"collected_at"`
	IntIP       string     `json:"int_ip"`
	PublicIP    string     `json:"public_ip"`
	KernelName  string     `json:"kernel_name"`
	KernelVer   string     `json:"kernel_version"`
	CPUPct      *float64   `json:"cpu_pct"`
	MemUsedMB   int64      `json:"mem_used_mb"`
	MemTotalMB  int64      `json:"mem_total_mb"`
	MemPct      *float64   `json:"mem_pct"`
	DiskUsedGB  float64    `json:"disk_used_gb"`
	DiskTotalGB float64    `json:"disk_total_gb"`
	DiskPct     *float64   `json:"disk_pct"`
}

func (p *reportPayload) validate() string {
	for name, v := range map[string]*float64{
		"cpu_pct":  p.CPUPct,
		"mem_pct":  p.MemPct,
		"disk_pct": p.DiskPct,
	} {
		if v != nil && (*v < 0 || *v > 100) {
			return name + " must be between 0 and 100"
		}
	}
	return ""
}

// hostKeyFromRequest prefers the configured auth header, falling back to the
// host_key body field the way the original agent protocol allows.
func (s *Server) hostKeyFromRequest(c *gin.Context, body *reportPayload) string {
	auth := c.GetHeader(s.config.Server.AuthHeader)
	prefix := s.config.Server.AuthPrefix
	if strings.HasPrefix(strings.ToLower(auth), strings.ToLower(prefix)) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return body.HostKey
}

func (s *Server) reportReading(c *gin.Context) {
	var payload reportPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		s.metrics.RecordIngestion(false)
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_json"})
		return
	}

	hostKey := s.hostKeyFromRequest(c, &payload)
	if hostKey == "" {
		s.metrics.RecordIngestion(false)
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "missing_host_key"})
		return
	}
	if payload.HostKey != "" && payload.HostKey != hostKey {
		s.metrics.RecordIngestion(false)
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "host_key_mismatch"})
		return
	}

	if msg := payload.validate(); msg != "" {
		s.metrics.RecordIngestion(false)
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "validation_error", "details": msg})
		return
	}

	host, err := s.store.GetHostByKey(c.Request.Context(), hostKey)
	if err != nil || !host.Active {
		s.metrics.RecordIngestion(false)
		c.JSON(http.StatusForbidden, gin.H{"ok": false, "error": "invalid_host_key"})
		return
	}

	collectedAt := time.Now()
	if payload.CollectedAt != nil {
		collectedAt = *payload.CollectedAt
	}

	reading := &database.Reading{
		HostID:      host.ID,
		CollectedAt: collectedAt,
		CPUPct:      payload.CPUPct,
		MemPct:      payload.MemPct,
		DiskPct:     payload.DiskPct,
		MemUsedMB:   payload.MemUsedMB,
		MemTotalMB:  payload.MemTotalMB,
		DiskUsedGB:  payload.DiskUsedGB,
		DiskTotalGB: payload.DiskTotalGB,
		IntIP:       payload.IntIP,
		PublicIP:    payload.PublicIP,
		KernelName:  payload.KernelName,
		KernelVer:   payload.KernelVer,
	}

	if err := s.store.InsertReading(c.Request.Context(), reading); err != nil {
		logrus.WithError(err).WithField("host", host.Name).Error("Failed to store reading")
		s.metrics.RecordIngestion(false)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "server_error"})
		return
	}

	if err := s.store.TouchHostLastSeen(c.Request.Context(), host.ID, time.Now()); err != nil {
		logrus.WithError(err).WithField("host", host.Name).Error("Failed to update last_seen")
	}

	s.metrics.RecordIngestion(true)
	c.JSON(http.StatusOK, gin.H{"ok": true, "reading_id": reading.ID})
}
