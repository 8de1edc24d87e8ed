package syncer

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRunnerTracksAndWaits(t *testing.T) {
	r := NewRunner(zap.NewNop().Sugar())

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	r.Spawn("gmail:u1", func(ctx context.Context) {
		close(started)
		<-release
		close(done)
	})

	<-started
	if active := r.Active(); len(active) != 1 || active[0] != "gmail:u1" {
		t.Errorf("active = %v, want [gmail:u1]", active)
	}

	close(release)
	r.Shutdown(5 * time.Second)

	select {
	case <-done:
	default:
		t.Error("shutdown returned before the job finished")
	}
	if active := r.Active(); len(active) != 0 {
		t.Errorf("active after shutdown = %v", active)
	}
}

func TestRunnerCancelsJobsOnShutdown(t *testing.T) {
	r := NewRunner(zap.NewNop().Sugar())

	cancelled := make(chan struct{})
	r.Spawn("gmail:u1", func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	})

	go r.Shutdown(5 * time.Second)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("job context not cancelled on shutdown")
	}
}

func TestRunnerDropsJobsAfterShutdown(t *testing.T) {
	r := NewRunner(zap.NewNop().Sugar())
	r.Shutdown(time.Second)

	ran := false
	r.Spawn("gmail:u1", func(ctx context.Context) { ran = true })
	time.Sleep(10 * time.Millisecond)
	if ran {
		t.Error("job ran after shutdown")
	}
}
