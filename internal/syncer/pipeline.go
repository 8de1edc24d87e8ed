package syncer

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/models"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/repository"
)

// PipelineConfig tunes batch sizes and timeouts for the fetch stages.
type PipelineConfig struct {
	HeaderBatchSize int           // concurrent header fetches per batch
	HeaderTimeout   time.Duration // per-item fetch timeout
	HeaderRetries   int           // extra attempts after a timeout
	EmptyBatchLimit int           // consecutive all-empty batches before aborting
	FlushThreshold  int           // buffered headers before flushing to storage
	UpsertChunkSize int           // rows per upsert statement
	BodyBatchSize   int           // concurrent body fetches per batch
	Stagger         time.Duration // delay between request starts within a batch
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		HeaderBatchSize: 50,
		HeaderTimeout:   10 * time.Second,
		HeaderRetries:   2,
		EmptyBatchLimit: 3,
		FlushThreshold:  200,
		UpsertChunkSize: 100,
		BodyBatchSize:   20,
		Stagger:         25 * time.Millisecond,
	}
}

// Pipeline runs the per-period stages: list ids, fetch headers, persist,
// match contacts, backfill bodies. Stages run strictly in sequence;
// concurrency lives only inside a stage.
type Pipeline struct {
	provider Provider
	items    ItemStore
	progress ProgressStore
	contacts ContactStore
	cfg      PipelineConfig
	pace     *rate.Limiter
	log      *zap.SugaredLogger
}

func NewPipeline(provider Provider, items ItemStore, progress ProgressStore, contacts ContactStore, cfg PipelineConfig, log *zap.SugaredLogger) *Pipeline {
	stagger := cfg.Stagger
	if stagger <= 0 {
		stagger = time.Millisecond
	}
	return &Pipeline{
		provider: provider,
		items:    items,
		progress: progress,
		contacts: contacts,
		cfg:      cfg,
		pace:     rate.NewLimiter(rate.Every(stagger), 1),
		log:      log,
	}
}

// storedInWindow reports how many of the user's items are already persisted
// for the window. A resumed period uses it to show what a prior pass left.
func (p *Pipeline) storedInWindow(ctx context.Context, userID string, w Window) (int, error) {
	return p.items.CountInWindow(ctx, userID, w.Start, w.End)
}

// checkpointFunc is consulted between pages and between batches. It returns
// errPauseRequested or errBudgetExceeded when the stage should stop early;
// in-flight work is flushed first so nothing already fetched is lost.
type checkpointFunc func(ctx context.Context) error

// fetchList pages through the provider's list endpoint for the window and
// returns the full ordered id set. On an early stop the partial id set is
// returned alongside the stop error; partial results are still useful.
func (p *Pipeline) fetchList(ctx context.Context, userID string, w Window, checkpoint checkpointFunc) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		if err := checkpoint(ctx); err != nil {
			return ids, err
		}

		page, next, err := p.provider.ListIDs(ctx, userID, w, pageToken)
		if err != nil {
			return ids, err
		}
		ids = append(ids, page...)

		if next == "" {
			return ids, nil
		}
		pageToken = next
	}
}

// fetchHeaders fetches item metadata in fixed-size concurrent batches,
// buffering rows and flushing them to the upsert layer to bound memory.
// Per-stage counters are persisted on every flush so a crash mid-period
// leaves inspectable progress. Returns (headers fetched, rows written).
func (p *Pipeline) fetchHeaders(ctx context.Context, userID string, per Period, ids []string, checkpoint checkpointFunc) (int, int, error) {
	var (
		buffer         []models.Item
		headersFetched int
		itemsSynced    int
		emptyBatches   int
	)

	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		written, err := p.items.UpsertHeaders(ctx, buffer, p.cfg.UpsertChunkSize)
		if err != nil {
			return err
		}
		itemsSynced += written
		buffer = buffer[:0]
		return p.progress.BumpCounters(ctx, userID, per.Year, per.Number, repository.Counters{
			HeadersFetched: headersFetched,
			ItemsSynced:    itemsSynced,
		})
	}

	for start := 0; start < len(ids); start += p.cfg.HeaderBatchSize {
		if err := checkpoint(ctx); err != nil {
			if ferr := flush(); ferr != nil {
				p.log.Warnf("flush on early stop failed: %v", ferr)
			}
			return headersFetched, itemsSynced, err
		}

		end := start + p.cfg.HeaderBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		fetched, err := p.fetchHeaderBatch(ctx, userID, batch, &buffer)
		if err != nil {
			if ferr := flush(); ferr != nil {
				p.log.Warnf("flush after batch error failed: %v", ferr)
			}
			return headersFetched, itemsSynced, err
		}
		headersFetched += fetched

		if fetched == 0 {
			emptyBatches++
			if emptyBatches >= p.cfg.EmptyBatchLimit {
				p.log.Warnf("aborting header fetch for user %s after %d consecutive empty batches", userID, emptyBatches)
				break
			}
		} else {
			emptyBatches = 0
		}

		if len(buffer) >= p.cfg.FlushThreshold {
			if err := flush(); err != nil {
				return headersFetched, itemsSynced, err
			}
		}
	}

	if err := flush(); err != nil {
		return headersFetched, itemsSynced, err
	}
	return headersFetched, itemsSynced, nil
}

// fetchHeaderBatch fetches one batch concurrently with a small stagger
// between request starts. A timed-out item is retried a bounded number of
// times and then dropped with a diagnostic; quota, auth, and API errors
// propagate.
func (p *Pipeline) fetchHeaderBatch(ctx context.Context, userID string, batch []string, buffer *[]models.Item) (int, error) {
	results := make([]*models.Item, len(batch))
	errs := make([]error, len(batch))

	var wg sync.WaitGroup
	for i, id := range batch {
		if err := p.pace.Wait(ctx); err != nil {
			wg.Wait()
			return 0, err
		}
		wg.Add(1)
		go func(i int, itemID string) {
			defer wg.Done()
			results[i], errs[i] = p.fetchHeaderWithRetry(ctx, userID, itemID)
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return 0, err
		}
	}

	fetched := 0
	for _, item := range results {
		if item != nil {
			*buffer = append(*buffer, *item)
			fetched++
		}
	}
	return fetched, nil
}

// fetchHeaderWithRetry returns (nil, nil) for an item dropped after repeated
// timeouts; only errors that must abort the stage are returned.
func (p *Pipeline) fetchHeaderWithRetry(ctx context.Context, userID, itemID string) (*models.Item, error) {
	attempts := 1 + p.cfg.HeaderRetries
	for attempt := 1; attempt <= attempts; attempt++ {
		itemCtx, cancel := context.WithTimeout(ctx, p.cfg.HeaderTimeout)
		item, err := p.provider.FetchHeader(itemCtx, userID, itemID)
		cancel()

		if err == nil {
			return item, nil
		}
		if isTimeout(err) {
			if attempt < attempts {
				continue
			}
			p.log.Warnf("dropping item %s for user %s after %d timeouts", itemID, userID, attempts)
			return nil, nil
		}
		return nil, err
	}
	return nil, nil
}

// matchWindow cross-references every item in the window against the contact
// directory and overwrites each item's matched-contact list. It runs
// globally, not per-user: one directory load and one pass cover all users'
// items in the window. Re-running with an unchanged directory yields the
// same match sets. Returns per-user counts of items with at least one match.
func (p *Pipeline) matchWindow(ctx context.Context, w Window) (map[string]int, error) {
	index, err := p.contacts.EmailIndex(ctx)
	if err != nil {
		return nil, err
	}

	items, err := p.items.ListWindow(ctx, w.Start, w.End)
	if err != nil {
		return nil, err
	}

	perUser := make(map[string]int)
	for _, item := range items {
		matched := matchEmails(index, item.Sender, item.Recipients)
		if len(matched) > 0 {
			perUser[item.UserID]++
		}

		// Skip the write when nothing changed and nothing needs clearing
		if len(matched) == 0 && len(item.MatchedContactIDs) == 0 {
			continue
		}
		if err := p.items.UpdateMatches(ctx, item.UserID, item.ItemID, matched); err != nil {
			return nil, err
		}
	}
	return perUser, nil
}

// backfillBodies fetches full content for the user's matched items that lack
// bodies, in bounded concurrent batches. A failed item is logged and stays
// body_fetched = false for a later invocation; quota and auth errors
// propagate. Returns the number of bodies written.
func (p *Pipeline) backfillBodies(ctx context.Context, userID string, w Window, checkpoint checkpointFunc) (int, error) {
	items, err := p.items.ListNeedingBodies(ctx, userID, w.Start, w.End)
	if err != nil {
		return 0, err
	}

	fetched := 0
	for start := 0; start < len(items); start += p.cfg.BodyBatchSize {
		if err := checkpoint(ctx); err != nil {
			return fetched, err
		}

		end := start + p.cfg.BodyBatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		bodies := make([]*Body, len(batch))
		errs := make([]error, len(batch))
		var wg sync.WaitGroup
		for i := range batch {
			if err := p.pace.Wait(ctx); err != nil {
				wg.Wait()
				return fetched, err
			}
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				itemCtx, cancel := context.WithTimeout(ctx, p.cfg.HeaderTimeout)
				defer cancel()
				bodies[i], errs[i] = p.provider.FetchBody(itemCtx, userID, batch[i].ItemID)
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				var quotaErr *QuotaError
				var authErr *AuthError
				if errors.As(err, &quotaErr) || errors.As(err, &authErr) {
					return fetched, err
				}
				p.log.Warnf("body fetch for item %s failed, will retry later: %v", batch[i].ItemID, err)
				continue
			}
			body := bodies[i]
			if body == nil {
				continue
			}
			if err := p.items.UpdateBody(ctx, userID, batch[i].ItemID, body.Text, body.HTML, body.HasAttachments); err != nil {
				return fetched, err
			}
			fetched++
		}
	}
	return fetched, nil
}

// isTimeout reports whether an error is a per-item deadline, as opposed to a
// provider-level failure.
func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// matchEmails returns the contact ids whose email appears among the item's
// participants. Deterministic for a fixed directory.
func matchEmails(index map[string]string, sender string, recipients []string) []string {
	if len(index) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var matched []string
	addresses := append([]string{sender}, recipients...)
	for _, raw := range addresses {
		addr := normalizeEmail(raw)
		if addr == "" {
			continue
		}
		if id, ok := index[addr]; ok && !seen[id] {
			seen[id] = true
			matched = append(matched, id)
		}
	}
	return matched
}

// normalizeEmail extracts the bare lowercase address from forms like
// "Name <a@b.org>".
func normalizeEmail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if parsed, err := mail.ParseAddress(s); err == nil {
		return strings.ToLower(parsed.Address)
	}
	return strings.ToLower(s)
}
