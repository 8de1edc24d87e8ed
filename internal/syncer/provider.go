package syncer

import (
	"context"
	"time"

	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/models"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/repository"
)

// Body is the full content fetched for one item during backfill.
type Body struct {
	Text           string
	HTML           string
	HasAttachments bool
}

// Provider is one Google surface (Gmail or Calendar) seen through the three
// fetch shapes the pipeline needs. Implementations route every call through
// the rate-limited, token-refreshing caller.
type Provider interface {
	Name() models.Provider
	Kind() PeriodKind

	// ListIDs returns one page of item ids for the window plus the next
	// page token ("" when exhausted).
	ListIDs(ctx context.Context, userID string, w Window, pageToken string) ([]string, string, error)

	// FetchHeader returns the header-level fields for one item.
	FetchHeader(ctx context.Context, userID, itemID string) (*models.Item, error)

	// FetchBody returns the full decoded content for one item.
	FetchBody(ctx context.Context, userID, itemID string) (*Body, error)
}

// Store interfaces are defined here, on the consumer side, so the pipeline
// and orchestrator can be exercised without a database.

type StatusStore interface {
	Get(ctx context.Context, userID string) (*models.SyncStatus, error)
	ClaimRun(ctx context.Context, userID, runID string, startedAt time.Time) error
	SetState(ctx context.Context, userID string, state models.SyncState, message *string) error
	RequestPause(ctx context.Context, userID string, message string) (bool, error)
}

type ProgressStore interface {
	ListSince(ctx context.Context, userID string, epoch time.Time) ([]models.PeriodProgress, error)
	Upsert(ctx context.Context, row *models.PeriodProgress) error
	SetStatus(ctx context.Context, userID string, year, periodNumber int, status models.PeriodState, errMsg *string) error
	SetTotalItems(ctx context.Context, userID string, year, periodNumber, total int) error
	BumpCounters(ctx context.Context, userID string, year, periodNumber int, c repository.Counters) error
}

type ItemStore interface {
	UpsertHeaders(ctx context.Context, items []models.Item, batchSize int) (int, error)
	CountInWindow(ctx context.Context, userID string, start, end time.Time) (int, error)
	ListWindow(ctx context.Context, start, end time.Time) ([]models.Item, error)
	UpdateMatches(ctx context.Context, userID, itemID string, contactIDs []string) error
	ListNeedingBodies(ctx context.Context, userID string, start, end time.Time) ([]models.Item, error)
	UpdateBody(ctx context.Context, userID, itemID, bodyText, bodyHTML string, hasAttachments bool) error
}

type ContactStore interface {
	EmailIndex(ctx context.Context) (map[string]string, error)
}

type ConsoleStore interface {
	Append(ctx context.Context, userID, runID, message string) error
}
