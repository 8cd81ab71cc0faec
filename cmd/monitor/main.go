package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lgfreitas/eproc-monitor/internal/cache"
	"github.com/lgfreitas/eproc-monitor/internal/config"
	"github.com/lgfreitas/eproc-monitor/internal/database"
	"github.com/lgfreitas/eproc-monitor/internal/monitor"
	"github.com/lgfreitas/eproc-monitor/internal/status"
	"github.com/lgfreitas/eproc-monitor/internal/storage"
	"github.com/lgfreitas/eproc-monitor/pkg/logger"
)

func main() {
	var migrate bool
	flag.BoolVar(&migrate, "migrate", false, "Run database migrations and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to initialize database", "error", err)
	}

	if migrate {
		if err := database.Migrate(db); err != nil {
			log.Fatal("Failed to run migrations", "error", err)
		}
		log.Info("Database migrations completed successfully")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := database.NewStore(db)

	blobs, err := storage.NewBlobStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize object storage", "error", err)
	}

	paths := cache.NewPathCache(cfg.CacheTTL)

	orch := monitor.NewOrchestrator(cfg, store, blobs, paths, log)
	sched := monitor.NewScheduler(cfg, orch, log)

	var statusSrv *status.Server
	if cfg.StatusAddr != "" {
		statusSrv = status.New(cfg, store, paths, sched, log)
		statusSrv.Start()
	}

	log.Info("Starting deadline monitor",
		"portal", cfg.PanelURL,
		"activeInterval", cfg.ActiveInterval,
		"dormantInterval", cfg.DormantInterval,
	)
	sched.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := sched.Shutdown(shutdownCtx); err != nil {
		log.Error("Scheduler did not stop cleanly", "error", err)
	}
	if statusSrv != nil {
		if err := statusSrv.Stop(shutdownCtx); err != nil {
			log.Error("Status listener did not stop cleanly", "error", err)
		}
	}
	log.Info("Shutdown complete")
}
