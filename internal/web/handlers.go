// internal/web/handlers.go - REST API handlers
package web

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"hostwatch/internal/database"
)

// ---- Hosts ----

func (s *Server) getHosts(c *gin.Context) {
	filters := database.HostFilters{}
	if v := c.Query("active"); v != "" {
		active := v == "true"
		filters.Active = &active
	}

	hosts, err := s.store.GetHosts(c.Request.Context(), filters)
	if err != nil {
		logrus.WithError(err).Error("Failed to get hosts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get hosts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  hosts,
		"count": len(hosts),
	})
}

func (s *Server) getHost(c *gin.Context) {
	host, err := s.store.GetHost(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrHostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Host not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get host"})
		return
	}

	reading, err := s.store.GetLatestReading(c.Request.Context(), host.ID)
	if err != nil {
		logrus.WithError(err).WithField("host", host.Name).Error("Failed to get latest reading")
	}

	alerts, err := s.store.GetAlerts(c.Request.Context(), database.AlertFilters{
		HostID: host.ID,
		Limit:  20,
	})
	if err != nil {
		logrus.WithError(err).WithField("host", host.Name).Error("Failed to get host alerts")
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"host":           host,
		"latest_reading": reading,
		"alerts":         alerts,
	}})
}

type hostRequest struct {
	Name        string `json:"name" binding:"required"`
	HostKey     string `json:"host_key"`
	OSName      string `json:"os_name"`
	OSVersion   string `json:"os_version"`
	Active      *bool  `json:"active"`
	GenerateKey bool   `json:"generate_key"`
}

func (s *Server) createHost(c *gin.Context) {
	var req hostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hostKey := req.HostKey
	if req.GenerateKey || hostKey == "" {
		key, err := generateHostKey()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate host key"})
			return
		}
		hostKey = key
	}

	host := &database.Host{
		Name:      req.Name,
		HostKey:   hostKey,
		OSName:    req.OSName,
		OSVersion: req.OSVersion,
		Active:    req.Active == nil || *req.Active,
	}

	if err := s.store.CreateHost(c.Request.Context(), host); err != nil {
		if errors.Is(err, database.ErrHostKeyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Host key already exists"})
			return
		}
		logrus.WithError(err).Error("Failed to create host")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create host"})
		return
	}

	logrus.WithField("host", host.Name).Info("Created host")
	c.JSON(http.StatusCreated, gin.H{"data": host})
}

func (s *Server) updateHost(c *gin.Context) {
	existing, err := s.store.GetHost(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrHostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Host not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get host"})
		return
	}

	var req hostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	existing.Name = req.Name
	if req.HostKey != "" {
		existing.HostKey = req.HostKey
	}
	existing.OSName = req.OSName
	existing.OSVersion = req.OSVersion
	if req.Active != nil {
		existing.Active = *req.Active
	}

	if err := s.store.UpdateHost(c.Request.Context(), existing); err != nil {
		if errors.Is(err, database.ErrHostKeyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Host key already exists"})
			return
		}
		logrus.WithError(err).Error("Failed to update host")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update host"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": existing})
}

func (s *Server) deleteHost(c *gin.Context) {
	if err := s.store.DeleteHost(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete host"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) getReadingHistory(c *gin.Context) {
	since := time.Now().Add(-24 * time.Hour)
	if sinceStr := c.Query("since"); sinceStr != "" {
		if parsed, err := time.Parse(time.RFC3339, sinceStr); err == nil {
			since = parsed
		}
	}

	history, err := s.store.GetReadingHistory(c.Request.Context(), c.Param("id"), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get reading history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  history,
		"count": len(history),
	})
}

// ---- Host check configuration ----

func (s *Server) getHostChecks(c *gin.Context) {
	configs, err := s.store.GetHostChecks(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get host checks"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  configs,
		"count": len(configs),
	})
}

type hostCheckRequest struct {
	Enabled bool                   `json:"enabled"`
	Params  map[string]interface{} `json:"params"`
}

func (s *Server) upsertHostCheck(c *gin.Context) {
	hostID := c.Param("id")
	checkKey := c.Param("check")

	if _, err := s.store.GetHost(c.Request.Context(), hostID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Host not found"})
		return
	}
	if _, err := s.store.GetCheckType(c.Request.Context(), checkKey); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Check type not found"})
		return
	}

	var req hostCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := &database.HostCheckConfig{
		HostID:   hostID,
		CheckKey: checkKey,
		Enabled:  req.Enabled,
		Params:   req.Params,
	}

	if err := s.store.UpsertHostCheck(c.Request.Context(), cfg); err != nil {
		logrus.WithError(err).Error("Failed to upsert host check")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save host check"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cfg})
}

func (s *Server) deleteHostCheck(c *gin.Context) {
	if err := s.store.DeleteHostCheck(c.Request.Context(), c.Param("id"), c.Param("check")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete host check"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ---- Check types ----

func (s *Server) getCheckTypes(c *gin.Context) {
	checks, err := s.store.GetCheckTypes(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Failed to get check types")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get check types"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  checks,
		"count": len(checks),
	})
}

func (s *Server) getCheckType(c *gin.Context) {
	ct, err := s.store.GetCheckType(c.Request.Context(), c.Param("key"))
	if err != nil {
		if errors.Is(err, database.ErrCheckNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Check type not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get check type"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ct})
}

type checkTypeRequest struct {
	Name            string                 `json:"name"`
	Severity        string                 `json:"severity"`
	Params          map[string]interface{} `json:"params"`
	CooldownMinutes *int                   `json:"cooldown_minutes"`
	Enabled         *bool                  `json:"enabled"`
	Notes           string                 `json:"notes"`
}

func (s *Server) updateCheckType(c *gin.Context) {
	ct, err := s.store.GetCheckType(c.Request.Context(), c.Param("key"))
	if err != nil {
		if errors.Is(err, database.ErrCheckNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Check type not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get check type"})
		return
	}

	var req checkTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Name != "" {
		ct.Name = req.Name
	}
	if req.Severity != "" {
		switch req.Severity {
		case database.SeverityL1, database.SeverityL2, database.SeverityL3:
			ct.Severity = req.Severity
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "severity must be L1, L2 or L3"})
			return
		}
	}
	if req.Params != nil {
		ct.Params = req.Params
	}
	if req.CooldownMinutes != nil {
		ct.CooldownMinutes = *req.CooldownMinutes
	}
	if req.Enabled != nil {
		ct.Enabled = *req.Enabled
	}
	if req.Notes != "" {
		ct.Notes = req.Notes
	}

	if err := s.store.PutCheckType(c.Request.Context(), ct); err != nil {
		logrus.WithError(err).Error("Failed to update check type")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update check type"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ct})
}

// ---- Alerts ----

func (s *Server) getAlerts(c *gin.Context) {
	filters := database.AlertFilters{
		HostID:   c.Query("host"),
		CheckKey: c.Query("check"),
		Status:   c.Query("status"),
		Limit:    100,
	}

	alerts, err := s.store.GetAlerts(c.Request.Context(), filters)
	if err != nil {
		logrus.WithError(err).Error("Failed to get alerts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  alerts,
		"count": len(alerts),
	})
}

func (s *Server) getAlert(c *gin.Context) {
	alert, err := s.store.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get alert"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alert})
}

// acknowledgeAlert is the operator action; the sweep never acknowledges and
// never reopens an acknowledged record.
func (s *Server) acknowledgeAlert(c *gin.Context) {
	alert, err := s.store.AcknowledgeAlert(c.Request.Context(), c.Param("id"), time.Now())
	if err != nil {
		if errors.Is(err, database.ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alert})
}

// ---- Stats & admin ----

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.store.GetStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (s *Server) triggerSweep(c *gin.Context) {
	stats, err := s.engine.TriggerSweep(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Manual sweep failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Sweep failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (s *Server) triggerPurge(c *gin.Context) {
	deleted, err := s.engine.PurgeReadings(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Manual purge failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Purge failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": deleted}})
}

func generateHostKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
