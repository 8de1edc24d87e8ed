package syncer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Runner executes sync loops in the background and keeps track of them so
// shutdown can wait for in-flight work. It makes the "respond immediately,
// keep working" contract structural instead of a dangling goroutine. The
// database claim, not this tracker, is what prevents duplicate runs.
type Runner struct {
	log    *zap.SugaredLogger
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	wg     sync.WaitGroup
	active map[string]int
	closed bool
}

func NewRunner(log *zap.SugaredLogger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		active: make(map[string]int),
	}
}

// Spawn runs fn on a tracked goroutine with the runner's lifecycle context.
// After Shutdown, new jobs are dropped.
func (r *Runner) Spawn(key string, fn func(ctx context.Context)) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.log.Warnf("runner closed, dropping job %s", key)
		return
	}
	r.active[key]++
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer func() {
			r.mu.Lock()
			r.active[key]--
			if r.active[key] == 0 {
				delete(r.active, key)
			}
			r.mu.Unlock()
			r.wg.Done()
		}()
		fn(r.ctx)
	}()
}

// Active returns the keys of currently running jobs.
func (r *Runner) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.active))
	for key := range r.active {
		keys = append(keys, key)
	}
	return keys
}

// Shutdown cancels the lifecycle context and waits up to timeout for running
// jobs to finish.
func (r *Runner) Shutdown(timeout time.Duration) {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		r.log.Warnf("shutdown timeout exceeded with jobs still running: %v", r.Active())
	}
}
