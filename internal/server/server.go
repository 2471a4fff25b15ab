// file: internal/server/server.go
// version: 2.1.0
// guid: 4c5d6e7f-8a9b-0c1d-2e3f-4a5b6c7d8e9f

package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/opencatalog/streamvault/internal/catalogsync"
	"github.com/opencatalog/streamvault/internal/engine"
	"github.com/opencatalog/streamvault/internal/metrics"
	"github.com/opencatalog/streamvault/internal/realtime"
	"github.com/opencatalog/streamvault/internal/server/middleware"
)

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	engine     *engine.Engine
	hub        *realtime.EventHub
	fetcher    catalogsync.Fetcher
	log        logrus.FieldLogger
	started    time.Time
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Addr                  string
	ReadTimeout           time.Duration
	WriteTimeout          time.Duration
	IdleTimeout           time.Duration
	APIRateLimitPerMinute int
	JSONBodyLimitMB       int
}

// NewServer creates a new server instance. The fetcher backs the refresh
// endpoint and may be nil when no document source is configured.
func NewServer(eng *engine.Engine, hub *realtime.EventHub, fetcher catalogsync.Fetcher, cfg ServerConfig, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	if cfg.APIRateLimitPerMinute > 0 {
		limiter := middleware.NewIPRateLimiter(cfg.APIRateLimitPerMinute, cfg.APIRateLimitPerMinute/4+1)
		router.Use(limiter.Middleware())
	}
	jsonLimit := int64(cfg.JSONBodyLimitMB) << 20
	if jsonLimit < 1 {
		jsonLimit = 10 << 20
	}
	router.Use(middleware.MaxRequestBodySize(jsonLimit, jsonLimit*10))

	// Register metrics (idempotent)
	metrics.Register()

	server := &Server{
		router:  router,
		engine:  eng,
		hub:     hub,
		fetcher: fetcher,
		log:     log,
		started: time.Now(),
	}

	server.setupRoutes()

	return server
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Start starts the HTTP server and blocks until SIGINT/SIGTERM.
func (s *Server) Start(cfg ServerConfig) error {
	s.httpServer = &http.Server{
		Addr:           cfg.Addr,
		Handler:        s.router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		s.log.WithField("addr", s.httpServer.Addr).Info("starting server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Fatal("failed to start server")
		}
	}()

	// Heartbeat: push periodic system.status events via SSE while running
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if s.hub == nil {
					continue
				}
				catalogCount := 0
				if catalogs, err := s.engine.Catalogs(); err == nil {
					catalogCount = len(catalogs)
					metrics.SetCatalogs(catalogCount)
				}
				s.hub.SendSystemStatus(map[string]any{
					"catalogs":       catalogCount,
					"cached_results": s.engine.ResultCache().Len(),
					"goroutines":     runtime.NumGoroutine(),
					"timestamp":      time.Now().Unix(),
				})
			case <-quit:
				return
			}
		}
	}()

	<-quit

	s.log.Info("shutting down server")

	if s.hub != nil {
		s.hub.Broadcast(&realtime.Event{
			Type: realtime.EventSystemStatus,
			Data: map[string]any{"message": "server is shutting down"},
		})
		// Give clients a moment to receive the event
		time.Sleep(500 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.log.Info("server exited")
	return nil
}

// setupRoutes configures all the routes
func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint (standard path)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoint (both paths for compatibility)
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/api/health", s.healthCheck)

	// Real-time events (SSE)
	s.router.GET("/api/events", s.handleEvents)

	api := s.router.Group("/api/v1")
	{
		api.GET("/settings", s.getSettings)
		api.PUT("/settings", s.updateSettings)

		api.GET("/catalogs", s.listCatalogs)
		api.GET("/catalogs/default", s.getDefaultCatalog)
		api.PUT("/catalogs/default", s.setDefaultCatalog)

		api.POST("/catalogs/:key/refresh", s.refreshCatalog)
		api.POST("/catalogs/:key/refresh/cancel", s.cancelRefresh)
		api.POST("/catalogs/:key/import", s.importCatalog)
		api.GET("/catalogs/:key/export", s.exportCatalog)
		api.GET("/catalogs/:key/search", s.search)
		api.POST("/catalogs/:key/query", s.runQuery)

		api.GET("/catalogs/:key/:collection/categories", s.getCategories)
		api.GET("/catalogs/:key/:collection/window", s.getWindow)
		api.POST("/catalogs/:key/:collection/window/load-more", s.loadMore)
		api.POST("/catalogs/:key/:collection/window/scroll", s.scrollWindow)
		api.DELETE("/catalogs/:key/:collection/window", s.closeWindow)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	status := "ok"
	catalogCount := 0
	if catalogs, err := s.engine.Catalogs(); err == nil {
		catalogCount = len(catalogs)
	} else {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"catalogs":       catalogCount,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"timestamp":      time.Now().Unix(),
	})
}

func (s *Server) handleEvents(c *gin.Context) {
	if s.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event hub not initialized"})
		return
	}
	s.hub.HandleSSE(c)
}
