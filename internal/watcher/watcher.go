package watcher

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/config"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/models"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/repository"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/syncer"
)

// SyncStarter restarts a paused run for one user.
type SyncStarter interface {
	StartSync(ctx context.Context, userID string) (*syncer.RunInfo, error)
}

// StatusLister finds runs the watcher should pick back up.
type StatusLister interface {
	ListPausedWithMessage(ctx context.Context, message string, limit int) ([]models.SyncStatus, error)
}

// Target pairs one provider's status table with its orchestrator.
type Target struct {
	Name     string
	Statuses StatusLister
	Sync     SyncStarter
}

// Watcher resumes runs that paused themselves, either because the execution
// budget ran out mid-window or because a period finished and the next one is
// waiting. User-requested pauses are left alone.
type Watcher struct {
	cfg     *config.Config
	targets []Target
	log     *zap.SugaredLogger
}

func New(cfg *config.Config, log *zap.SugaredLogger, targets ...Target) *Watcher {
	return &Watcher{cfg: cfg, targets: targets, log: log}
}

func (w *Watcher) Start(ctx context.Context) error {
	w.log.Infof("starting watcher, polling every %ds", w.cfg.PollInterval)

	// Pick up anything left paused by a previous process before the first tick.
	w.resumePending(ctx)

	ticker := time.NewTicker(time.Duration(w.cfg.PollInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watcher shutting down")
			return ctx.Err()
		case <-ticker.C:
			w.resumePending(ctx)
		}
	}
}

func (w *Watcher) resumePending(ctx context.Context) {
	for _, t := range w.targets {
		for _, message := range []string{syncer.AutoPauseMessage, syncer.PeriodPauseMessage} {
			rows, err := t.Statuses.ListPausedWithMessage(ctx, message, 5)
			if err != nil {
				w.log.Errorf("listing paused %s runs: %v", t.Name, err)
				continue
			}
			for _, row := range rows {
				info, err := t.Sync.StartSync(ctx, row.UserID)
				if errors.Is(err, repository.ErrAlreadyRunning) {
					continue
				}
				if err != nil {
					w.log.Errorf("resuming %s sync for user %s: %v", t.Name, row.UserID, err)
					continue
				}
				w.log.Infof("resumed %s sync for user %s (run %s)", t.Name, row.UserID, info.RunID)
			}
		}
	}
}
