package watcher

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/config"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/models"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/repository"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/syncer"
)

type fakeStatusLister struct {
	rowsByMessage map[string][]models.SyncStatus
}

func (f *fakeStatusLister) ListPausedWithMessage(ctx context.Context, message string, limit int) ([]models.SyncStatus, error) {
	return f.rowsByMessage[message], nil
}

type fakeSyncStarter struct {
	mu      sync.Mutex
	started []string
	errs    map[string]error
}

func (f *fakeSyncStarter) StartSync(ctx context.Context, userID string) (*syncer.RunInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[userID]; err != nil {
		return nil, err
	}
	f.started = append(f.started, userID)
	return &syncer.RunInfo{RunID: "run-" + userID}, nil
}

func testConfig() *config.Config {
	return &config.Config{PollInterval: 1}
}

func TestResumePendingRestartsSelfPausedRuns(t *testing.T) {
	lister := &fakeStatusLister{rowsByMessage: map[string][]models.SyncStatus{
		syncer.AutoPauseMessage:   {{UserID: "u1"}},
		syncer.PeriodPauseMessage: {{UserID: "u2"}, {UserID: "u3"}},
	}}
	starter := &fakeSyncStarter{}
	w := New(testConfig(), zap.NewNop().Sugar(), Target{Name: "gmail", Statuses: lister, Sync: starter})

	w.resumePending(context.Background())

	if len(starter.started) != 3 {
		t.Fatalf("started = %v, want u1 u2 u3", starter.started)
	}
}

func TestResumePendingIgnoresUserPauses(t *testing.T) {
	// User pauses carry a different message and never show up in the
	// auto-pause queries
	lister := &fakeStatusLister{rowsByMessage: map[string][]models.SyncStatus{
		syncer.UserPauseMessage: {{UserID: "u1"}},
	}}
	starter := &fakeSyncStarter{}
	w := New(testConfig(), zap.NewNop().Sugar(), Target{Name: "gmail", Statuses: lister, Sync: starter})

	w.resumePending(context.Background())

	if len(starter.started) != 0 {
		t.Errorf("started = %v, want none", starter.started)
	}
}

func TestResumePendingToleratesConcurrentClaims(t *testing.T) {
	lister := &fakeStatusLister{rowsByMessage: map[string][]models.SyncStatus{
		syncer.AutoPauseMessage: {{UserID: "u1"}, {UserID: "u2"}},
	}}
	starter := &fakeSyncStarter{errs: map[string]error{"u1": repository.ErrAlreadyRunning}}
	w := New(testConfig(), zap.NewNop().Sugar(), Target{Name: "gmail", Statuses: lister, Sync: starter})

	w.resumePending(context.Background())

	if len(starter.started) != 1 || starter.started[0] != "u2" {
		t.Errorf("started = %v, want only u2", starter.started)
	}
}

func TestWatcherStopsOnContextCancel(t *testing.T) {
	w := New(testConfig(), zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.Start(ctx); err != context.Canceled {
		t.Errorf("Start returned %v, want context.Canceled", err)
	}
}
