package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/models"
)

type PeriodProgressRepository struct {
	db       *gorm.DB
	provider models.Provider
}

func NewPeriodProgressRepository(db *gorm.DB, provider models.Provider) *PeriodProgressRepository {
	return &PeriodProgressRepository{db: db, provider: provider}
}

// ListSince returns all progress rows for a user whose period starts at or
// after the epoch, oldest first. The selector walks these chronologically.
func (r *PeriodProgressRepository) ListSince(ctx context.Context, userID string, epoch time.Time) ([]models.PeriodProgress, error) {
	var rows []models.PeriodProgress
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ? AND period_start >= ?", userID, r.provider, epoch).
		Order("period_start ASC").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list period progress: %w", result.Error)
	}
	return rows, nil
}

// Get retrieves one period's progress row
func (r *PeriodProgressRepository) Get(ctx context.Context, userID string, year, periodNumber int) (*models.PeriodProgress, error) {
	var row models.PeriodProgress
	result := r.db.WithContext(ctx).
		First(&row, "user_id = ? AND provider = ? AND year = ? AND period_number = ?",
			userID, r.provider, year, periodNumber)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get period progress: %w", result.Error)
	}
	return &row, nil
}

// Upsert creates the progress row when a period is first selected, or marks
// an existing row in_progress again on resume. Counters are left alone so a
// resumed period keeps its checkpoint.
func (r *PeriodProgressRepository) Upsert(ctx context.Context, row *models.PeriodProgress) error {
	row.Provider = r.provider
	row.UpdatedAt = time.Now()
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"}, {Name: "provider"}, {Name: "year"}, {Name: "period_number"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"sync_status", "started_at", "updated_at",
		}),
	}).Create(row)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert period progress: %w", result.Error)
	}
	return nil
}

// SetStatus transitions a period's status. completed_at is stamped for the
// terminal completed/partial states.
func (r *PeriodProgressRepository) SetStatus(ctx context.Context, userID string, year, periodNumber int, status models.PeriodState, errMsg *string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"sync_status":   status,
		"error_message": errMsg,
		"updated_at":    now,
	}
	if status == models.PeriodCompleted || status == models.PeriodPartial {
		updates["completed_at"] = now
	}

	result := r.db.WithContext(ctx).Model(&models.PeriodProgress{}).
		Where("user_id = ? AND provider = ? AND year = ? AND period_number = ?",
			userID, r.provider, year, periodNumber).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to set period status: %w", result.Error)
	}
	return nil
}

// SetTotalItems records the period's item count once the list stage knows it
func (r *PeriodProgressRepository) SetTotalItems(ctx context.Context, userID string, year, periodNumber, total int) error {
	result := r.db.WithContext(ctx).Model(&models.PeriodProgress{}).
		Where("user_id = ? AND provider = ? AND year = ? AND period_number = ?",
			userID, r.provider, year, periodNumber).
		Updates(map[string]interface{}{
			"total_items": total,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to set total items: %w", result.Error)
	}
	return nil
}

// Counters carries cumulative per-stage counts for one period.
type Counters struct {
	HeadersFetched int
	ItemsSynced    int
	ItemsMatched   int
	BodiesFetched  int
}

// BumpCounters raises the period's counters to the given cumulative values.
// GREATEST keeps them monotonically non-decreasing even if a resumed run
// reports a smaller partial count.
func (r *PeriodProgressRepository) BumpCounters(ctx context.Context, userID string, year, periodNumber int, c Counters) error {
	result := r.db.WithContext(ctx).Model(&models.PeriodProgress{}).
		Where("user_id = ? AND provider = ? AND year = ? AND period_number = ?",
			userID, r.provider, year, periodNumber).
		Updates(map[string]interface{}{
			"headers_fetched": gorm.Expr("GREATEST(headers_fetched, ?)", c.HeadersFetched),
			"items_synced":    gorm.Expr("GREATEST(items_synced, ?)", c.ItemsSynced),
			"items_matched":   gorm.Expr("GREATEST(items_matched, ?)", c.ItemsMatched),
			"bodies_fetched":  gorm.Expr("GREATEST(bodies_fetched, ?)", c.BodiesFetched),
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to bump counters: %w", result.Error)
	}
	return nil
}

// Reset clears completed periods in [from, to) back to not_started so the
// selector revisits them. Used when the sync start date moves earlier.
func (r *PeriodProgressRepository) Reset(ctx context.Context, userID string, from, to time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.PeriodProgress{}).
		Where("user_id = ? AND provider = ? AND period_start >= ? AND period_start < ?",
			userID, r.provider, from, to).
		Updates(map[string]interface{}{
			"sync_status":     models.PeriodNotStarted,
			"error_message":   nil,
			"total_items":     0,
			"headers_fetched": 0,
			"items_synced":    0,
			"items_matched":   0,
			"bodies_fetched":  0,
			"completed_at":    nil,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to reset periods: %w", result.Error)
	}
	return nil
}
