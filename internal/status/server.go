package status

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lgfreitas/eproc-monitor/internal/cache"
	"github.com/lgfreitas/eproc-monitor/internal/config"
	"github.com/lgfreitas/eproc-monitor/internal/database"
	"github.com/lgfreitas/eproc-monitor/pkg/logger"
)

// ModeReporter exposes the scheduler's current cadence
type ModeReporter interface {
	Mode() string
}

// Server is a read-only status listener: health, recent runs and a case
// summary. It exposes nothing that mutates state and is disabled unless an
// address is configured.
type Server struct {
	cfg    *config.Config
	store  *database.Store
	paths  *cache.PathCache
	sched  ModeReporter
	logger *logger.Logger
	router *gin.Engine
	srv    *http.Server
}

func New(cfg *config.Config, store *database.Store, paths *cache.PathCache, sched ModeReporter, log *logger.Logger) *Server {
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(log))

	s := &Server{
		cfg:    cfg,
		store:  store,
		paths:  paths,
		sched:  sched,
		logger: log,
		router: router,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.healthz)

	api := s.router.Group("/api")
	{
		api.GET("/runs", s.recentRuns)
		api.GET("/cases/summary", s.caseSummary)
	}
}

// Start begins serving in the background
func (s *Server) Start() {
	s.srv = &http.Server{
		Addr:         s.cfg.StatusAddr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Status listener failed", "error", err)
		}
	}()
	s.logger.Info("Status listener started", "address", s.cfg.StatusAddr)
}

// Stop shuts the listener down within the context's deadline
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"mode":   s.sched.Mode(),
		"time":   time.Now().UTC(),
	})
}

func (s *Server) recentRuns(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	runs, err := s.store.RecentRuns(limit)
	if err != nil {
		s.logger.Error("Failed to load recent runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (s *Server) caseSummary(c *gin.Context) {
	total, err := s.store.CountCases()
	if err != nil {
		s.logger.Error("Failed to count cases", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count cases"})
		return
	}

	hits, misses, size := s.paths.Stats()
	c.JSON(http.StatusOK, gin.H{
		"cases": total,
		"mode":  s.sched.Mode(),
		"documentCache": gin.H{
			"hits":   hits,
			"misses": misses,
			"size":   size,
		},
	})
}

func loggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("Status request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
