// internal/web/server.go
package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"hostwatch/internal/config"
	"hostwatch/internal/database"
	"hostwatch/internal/metrics"
	"hostwatch/internal/monitoring"
)

type Server struct {
	config  *config.Config
	store   database.Store
	engine  *monitoring.Engine
	metrics *metrics.Collector
	router  *gin.Engine
	server  *http.Server

	wsMu      sync.Mutex
	wsClients map[*WSClient]bool
}

func NewServer(cfg *config.Config, store database.Store, engine *monitoring.Engine, metricsCollector *metrics.Collector) *Server {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	server := &Server{
		config:    cfg,
		store:     store,
		engine:    engine,
		metrics:   metricsCollector,
		router:    router,
		wsClients: make(map[*WSClient]bool),
	}

	server.setupRoutes()

	// Push every alert transition from the sweep to connected clients.
	engine.SetEventHandler(func(event monitoring.AlertEvent) {
		server.broadcast(WSMessage{Type: "alert_" + event.Transition, Data: event})
	})

	return server
}

func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Server.Port,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	logrus.WithField("port", s.config.Server.Port).Info("Starting web server")

	go s.updateMetricsRoutine(ctx)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) setupRoutes() {
	// Agent ingestion
	s.router.POST("/report", s.reportReading)

	s.router.GET("/healthz", s.healthCheck)
	s.router.GET("/version", s.getBuildInfo)

	api := s.router.Group("/api")
	{
		api.GET("/hosts", s.getHosts)
		api.GET("/hosts/:id", s.getHost)
		api.POST("/hosts", s.createHost)
		api.PUT("/hosts/:id", s.updateHost)
		api.DELETE("/hosts/:id", s.deleteHost)
		api.GET("/hosts/:id/readings", s.getReadingHistory)

		api.GET("/hosts/:id/checks", s.getHostChecks)
		api.PUT("/hosts/:id/checks/:check", s.upsertHostCheck)
		api.DELETE("/hosts/:id/checks/:check", s.deleteHostCheck)

		api.GET("/checks", s.getCheckTypes)
		api.GET("/checks/:key", s.getCheckType)
		api.PUT("/checks/:key", s.updateCheckType)

		api.GET("/alerts", s.getAlerts)
		api.GET("/alerts/:id", s.getAlert)
		api.POST("/alerts/:id/ack", s.acknowledgeAlert)

		api.GET("/stats", s.getStats)

		api.POST("/admin/sweep", s.triggerSweep)
		api.POST("/admin/purge", s.triggerPurge)
	}

	// WebSocket alert feed
	s.router.GET("/ws", s.handleWebSocket)

	// Prometheus metrics
	if s.config.Prometheus.Enabled {
		s.router.GET(s.config.Prometheus.MetricsPath, gin.WrapH(promhttp.Handler()))
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

func (s *Server) updateMetricsRoutine(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.metrics.UpdateSystemMetrics(ctx); err != nil {
				logrus.WithError(err).Error("Failed to update system metrics")
			}
		}
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
