package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"detectsuite/internal/config"
	"detectsuite/internal/logger"
	"detectsuite/internal/repository"
	"detectsuite/internal/repository/sqlite"
	"detectsuite/internal/routes"
	"detectsuite/internal/services"
	"detectsuite/internal/services/ai"
	"detectsuite/internal/services/pipeline"
	"detectsuite/internal/services/storage"
	"detectsuite/internal/services/websocket"
)

const pruneInterval = time.Hour

type App struct {
	config         *config.Config
	logger         *logger.Logger
	db             *sqlite.DB
	preferences    repository.PreferenceRepository
	detector       ai.Detector
	stagingService *storage.StagingService
	hubService     *websocket.HubService
	manager        *services.Manager
}

func NewApp() *App {
	cfg := config.Load()
	log := logger.NewLogger(cfg)

	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration: %v", err)
		os.Exit(1)
	}

	detector, err := ai.New(cfg, log)
	if err != nil {
		log.Error("Failed to load detector: %v", err)
		os.Exit(1)
	}

	p, err := pipeline.New(detector, log)
	if err != nil {
		log.Error("Failed to build pipeline: %v", err)
		os.Exit(1)
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Error("Failed to open database: %v", err)
		os.Exit(1)
	}

	staging := storage.NewStagingService(cfg, log)
	if _, err := staging.Sweep(); err != nil {
		log.Warning("Failed to sweep staged files: %v", err)
	}

	hub := websocket.NewHubService(log)
	mng := services.NewManager(p, staging, hub, cfg, log)

	return &App{
		config:         cfg,
		logger:         log,
		db:             db,
		preferences:    sqlite.NewPreferenceRepository(db),
		detector:       detector,
		stagingService: staging,
		hubService:     hub,
		manager:        mng,
	}
}

func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background services
	go a.hubService.Run()
	go a.prunePreferences(ctx)

	// Setup routes
	router := routes.SetupRoutes(a.manager, a.preferences, a.config, a.logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("🚀 Object Detection Server\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("🤖 Detector: %s (%s)\n", a.detector.Name(), a.config.Detector)
	fmt.Printf("📦 Classes: %d\n", a.detector.Catalog().Len())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		stop()
		a.close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.manager.Shutdown()
	err := server.Shutdown(shutdownCtx)
	a.close()
	return err
}

func (a *App) close() {
	a.hubService.Stop()
	if err := a.detector.Close(); err != nil {
		a.logger.Error("Failed to close detector: %v", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close database: %v", err)
	}
	a.logger.Close()
}

// prunePreferences drops preferences older than the retention period, once
// at startup and then hourly.
func (a *App) prunePreferences(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		cutoff := time.Now().Add(-a.config.PreferenceRetention)
		if n, err := a.preferences.PruneBefore(cutoff); err != nil {
			a.logger.Error("Failed to prune preferences: %v", err)
		} else if n > 0 {
			a.logger.Info("Pruned %d stale preference record(s)", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
