package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/models"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/repository"
)

// Status messages persisted into sync_status.error_message. The watcher keys
// off the first two to tell resumable self-pauses apart from user pauses and
// quota stops.
const (
	AutoPauseMessage   = "auto-paused to prevent timeout"
	PeriodPauseMessage = "period complete, awaiting next invocation"
	UserPauseMessage   = "paused by user"
	QuotaPauseMessage  = "paused: Google API quota exceeded"
)

// RunInfo is returned to the caller immediately; the pipeline keeps running
// in the background.
type RunInfo struct {
	RunID     string
	StartedAt time.Time
}

// Orchestrator drives the sync state machine for one provider. Each
// StartSync claims the run atomically, processes at most one period, then
// self-pauses; an external re-invocation loop (the watcher or the client)
// keeps calling StartSync until the global status reaches completed.
type Orchestrator struct {
	provider Provider
	status   StatusStore
	progress ProgressStore
	pipeline *Pipeline
	console  ConsoleStore
	runner   *Runner
	epoch    time.Time
	budget   time.Duration
	now      func() time.Time
	log      *zap.SugaredLogger
}

func NewOrchestrator(provider Provider, status StatusStore, progress ProgressStore, pipeline *Pipeline, console ConsoleStore, runner *Runner, epoch time.Time, budget time.Duration, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{
		provider: provider,
		status:   status,
		progress: progress,
		pipeline: pipeline,
		console:  console,
		runner:   runner,
		epoch:    epoch,
		budget:   budget,
		now:      time.Now,
		log:      log,
	}
}

// StartSync begins or resumes the sync loop. The run is claimed with an
// atomic conditional update, so concurrent calls for the same user resolve
// to exactly one winner; the loser gets repository.ErrAlreadyRunning. The
// claimed run id is persisted before this returns; no process-local state.
func (o *Orchestrator) StartSync(ctx context.Context, userID string) (*RunInfo, error) {
	runID := uuid.NewString()
	startedAt := o.now()

	if err := o.status.ClaimRun(ctx, userID, runID, startedAt); err != nil {
		return nil, err
	}

	o.consolef(ctx, userID, runID, "sync run %s started", runID)
	o.runner.Spawn(fmt.Sprintf("%s:%s", o.provider.Name(), userID), func(jobCtx context.Context) {
		o.run(jobCtx, userID, runID)
	})

	return &RunInfo{RunID: runID, StartedAt: startedAt}, nil
}

// PauseSync sets the cooperative pause flag. The running loop observes it at
// the next page or batch boundary; in-flight requests complete first.
func (o *Orchestrator) PauseSync(ctx context.Context, userID string) (bool, error) {
	return o.status.RequestPause(ctx, userID, UserPauseMessage)
}

// run executes one invocation of the loop: select the oldest incomplete
// period, push it through the stages, persist the outcome, stop. All failure
// paths write a terminal status before returning.
func (o *Orchestrator) run(ctx context.Context, userID, runID string) {
	start := o.now()
	deadline := start.Add(o.budget)

	checkpoint := func(cctx context.Context) error {
		if o.now().After(deadline) {
			return errBudgetExceeded
		}
		st, err := o.status.Get(cctx, userID)
		if err == nil && st.Status == models.SyncPaused {
			return errPauseRequested
		}
		return cctx.Err()
	}

	// Query from the start of the period containing the epoch, not the epoch
	// itself: a mid-week or mid-month epoch would otherwise filter out the
	// first period's row and the selector would re-pick it forever.
	rows, err := o.progress.ListSince(ctx, userID, o.provider.Kind().PeriodFor(o.epoch).Start)
	if err != nil {
		o.log.Errorf("listing periods for user %s failed: %v", userID, err)
		msg := err.Error()
		_ = o.status.SetState(ctx, userID, models.SyncError, &msg)
		return
	}

	per, ok := o.provider.Kind().nextIncomplete(rows, o.epoch, o.now())
	if !ok {
		_ = o.status.SetState(ctx, userID, models.SyncCompleted, nil)
		o.consolef(ctx, userID, runID, "all periods synced through the current period")
		return
	}

	err = o.runPeriod(ctx, userID, runID, per, checkpoint)
	switch {
	case err == nil:
		// Deliberate self-pause after a single period: each invocation is
		// bounded to one period of work so it stays under host limits.
		msg := PeriodPauseMessage
		_ = o.status.SetState(ctx, userID, models.SyncPaused, &msg)
		o.consolef(ctx, userID, runID, "period %d/%d done, self-pausing", per.Year, per.Number)

	case errors.Is(err, errPauseRequested):
		// Status was already flipped to paused by the requester
		o.consolef(ctx, userID, runID, "pause observed, stopping after period %d/%d", per.Year, per.Number)

	case errors.Is(err, errBudgetExceeded):
		msg := AutoPauseMessage
		_ = o.status.SetState(ctx, userID, models.SyncPaused, &msg)
		o.consolef(ctx, userID, runID, "execution budget reached in period %d/%d, auto-pausing", per.Year, per.Number)

	case isQuota(err):
		errMsg := err.Error()
		_ = o.progress.SetStatus(ctx, userID, per.Year, per.Number, models.PeriodError, &errMsg)
		msg := QuotaPauseMessage
		_ = o.status.SetState(ctx, userID, models.SyncPaused, &msg)
		o.consolef(ctx, userID, runID, "quota exceeded in period %d/%d, pausing run", per.Year, per.Number)

	default:
		o.log.Errorf("period %d/%d failed for user %s: %v", per.Year, per.Number, userID, err)
		errMsg := err.Error()
		_ = o.progress.SetStatus(ctx, userID, per.Year, per.Number, models.PeriodError, &errMsg)
		_ = o.status.SetState(ctx, userID, models.SyncPaused, &errMsg)
		o.consolef(ctx, userID, runID, "period %d/%d failed: %v", per.Year, per.Number, err)
	}
}

// runPeriod pushes one period through list → headers → persist → match →
// backfill, persisting counters as each stage completes. A pause or budget
// stop leaves the period in_progress for the next invocation to resume.
func (o *Orchestrator) runPeriod(ctx context.Context, userID, runID string, per Period, checkpoint checkpointFunc) error {
	w := o.provider.Kind().WindowOf(per)
	started := o.now()

	row := &models.PeriodProgress{
		UserID:       userID,
		Provider:     o.provider.Name(),
		Year:         per.Year,
		PeriodNumber: per.Number,
		PeriodStart:  per.Start,
		Status:       models.PeriodInProgress,
		StartedAt:    &started,
	}
	if err := o.progress.Upsert(ctx, row); err != nil {
		return err
	}
	o.consolef(ctx, userID, runID, "syncing period %d/%d (%s to %s)",
		per.Year, per.Number, w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
	if stored, err := o.pipeline.storedInWindow(ctx, userID, w); err == nil && stored > 0 {
		o.consolef(ctx, userID, runID, "resuming period %d/%d, %d items already stored", per.Year, per.Number, stored)
	}

	ids, err := o.pipeline.fetchList(ctx, userID, w, checkpoint)
	if err != nil {
		return err
	}
	if err := o.progress.SetTotalItems(ctx, userID, per.Year, per.Number, len(ids)); err != nil {
		return err
	}
	o.consolef(ctx, userID, runID, "listed %d items for period %d/%d", len(ids), per.Year, per.Number)

	headers, synced, err := o.pipeline.fetchHeaders(ctx, userID, per, ids, checkpoint)
	if err != nil {
		return err
	}

	if err := checkpoint(ctx); err != nil {
		return err
	}
	perUser, err := o.pipeline.matchWindow(ctx, w)
	if err != nil {
		return err
	}
	matched := perUser[userID]
	if err := o.progress.BumpCounters(ctx, userID, per.Year, per.Number, repository.Counters{
		HeadersFetched: headers,
		ItemsSynced:    synced,
		ItemsMatched:   matched,
	}); err != nil {
		return err
	}
	o.consolef(ctx, userID, runID, "matched %d of %d items to contacts", matched, len(ids))

	bodies, backfillErr := o.pipeline.backfillBodies(ctx, userID, w, checkpoint)
	if bodies > 0 {
		_ = o.progress.BumpCounters(ctx, userID, per.Year, per.Number, repository.Counters{
			HeadersFetched: headers,
			ItemsSynced:    synced,
			ItemsMatched:   matched,
			BodiesFetched:  bodies,
		})
	}
	if backfillErr != nil {
		return backfillErr
	}

	// The still-ongoing bucket can only ever be partially synced; it is
	// reselected until it fully elapses.
	state := models.PeriodCompleted
	if w.End.After(o.now()) {
		state = models.PeriodPartial
	}
	if err := o.progress.SetStatus(ctx, userID, per.Year, per.Number, state, nil); err != nil {
		return err
	}
	o.consolef(ctx, userID, runID, "period %d/%d %s: %d headers, %d synced, %d matched, %d bodies",
		per.Year, per.Number, state, headers, synced, matched, bodies)
	return nil
}

func (o *Orchestrator) consolef(ctx context.Context, userID, runID, format string, args ...interface{}) {
	if err := o.console.Append(ctx, userID, runID, fmt.Sprintf(format, args...)); err != nil {
		o.log.Warnf("console append failed: %v", err)
	}
}

func isQuota(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}
