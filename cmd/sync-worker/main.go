package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/config"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/database"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/google"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/logging"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/models"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/repository"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/server"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/syncer"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

// target bundles everything one provider needs wired together.
type target struct {
	function string
	oauth    *google.OAuth
	tokens   *repository.TokenRepository
	statuses *repository.SyncStatusRepository
	orch     *syncer.Orchestrator
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New("sync-worker")
	defer logger.Sync()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	logger.Info("database connected")

	logger.Info("running database migrations")
	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return err
	}
	logger.Info("migrations completed")

	runner := syncer.NewRunner(logger)
	contacts := repository.NewContactRepository(db)

	gmail := buildTarget(cfg, db, models.ProviderGmail, "gmail-sync", runner, contacts, logger)
	calendar := buildTarget(cfg, db, models.ProviderCalendar, "calendar-sync", runner, contacts, logger)

	srv := server.New(cfg.JWTSecret)
	for _, t := range []*target{gmail, calendar} {
		srv.Register(server.NewProviderHandler(t.function, t.oauth, t.tokens, t.orch, logger))
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 2)

	go func() {
		logger.Infof("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if cfg.WatcherEnabled {
		w := watcher.New(cfg, logger,
			watcher.Target{Name: "gmail", Statuses: gmail.statuses, Sync: gmail.orch},
			watcher.Target{Name: "calendar", Statuses: calendar.statuses, Sync: calendar.orch},
		)
		go func() {
			if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errChan <- err
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-errChan:
		logger.Errorf("fatal: %v", err)
	}
	cancel()

	shutdownTimeout := time.Duration(cfg.ShutdownTimeout) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	runner.Shutdown(shutdownTimeout)

	logger.Info("application stopped")
	return nil
}

func buildTarget(
	cfg *config.Config,
	db *gorm.DB,
	provider models.Provider,
	function string,
	runner *syncer.Runner,
	contacts *repository.ContactRepository,
	logger *zap.SugaredLogger,
) *target {
	tokens := repository.NewTokenRepository(db, provider)
	statuses := repository.NewSyncStatusRepository(db, provider)
	progress := repository.NewPeriodProgressRepository(db, provider)
	items := repository.NewItemRepository(db, provider, logger)
	console := repository.NewConsoleRepository(db)

	oauth := google.NewOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, provider, tokens, logger)

	var prov syncer.Provider
	switch provider {
	case models.ProviderCalendar:
		prov = google.NewCalendarProvider(oauth, logger)
	default:
		prov = google.NewGmailProvider(oauth, logger)
	}

	pipeline := syncer.NewPipeline(prov, items, progress, contacts, syncer.DefaultPipelineConfig(), logger)
	orch := syncer.NewOrchestrator(prov, statuses, progress, pipeline, console, runner, cfg.SyncStartDate, cfg.ExecutionBudget, logger)

	return &target{
		function: function,
		oauth:    oauth,
		tokens:   tokens,
		statuses: statuses,
		orch:     orch,
	}
}
