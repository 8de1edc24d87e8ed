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

// ErrAlreadyRunning is returned when a run claim loses to an active run.
var ErrAlreadyRunning = errors.New("sync already running")

type SyncStatusRepository struct {
	db       *gorm.DB
	provider models.Provider
}

func NewSyncStatusRepository(db *gorm.DB, provider models.Provider) *SyncStatusRepository {
	return &SyncStatusRepository{db: db, provider: provider}
}

// Get retrieves the status row for a user, or a synthetic not_started row if
// none exists yet
func (r *SyncStatusRepository) Get(ctx context.Context, userID string) (*models.SyncStatus, error) {
	var status models.SyncStatus
	result := r.db.WithContext(ctx).
		First(&status, "user_id = ? AND provider = ?", userID, r.provider)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return &models.SyncStatus{
				UserID:   userID,
				Provider: r.provider,
				Status:   models.SyncNotStarted,
			}, nil
		}
		return nil, fmt.Errorf("failed to get sync status: %w", result.Error)
	}
	return &status, nil
}

// ClaimRun atomically transitions the status row to running and records the
// run id. The conditional update is the only duplicate-run guard: two
// concurrent claims race on the WHERE clause and exactly one wins.
func (r *SyncStatusRepository) ClaimRun(ctx context.Context, userID, runID string, startedAt time.Time) error {
	// Make sure the row exists before claiming it
	seed := models.SyncStatus{
		UserID:    userID,
		Provider:  r.provider,
		Status:    models.SyncNotStarted,
		UpdatedAt: startedAt,
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoNothing: true,
	}).Create(&seed)
	if result.Error != nil {
		return fmt.Errorf("failed to seed sync status: %w", result.Error)
	}

	result = r.db.WithContext(ctx).Model(&models.SyncStatus{}).
		Where("user_id = ? AND provider = ? AND sync_status <> ?", userID, r.provider, models.SyncRunning).
		Updates(map[string]interface{}{
			"sync_status":    models.SyncRunning,
			"current_run_id": runID,
			"error_message":  nil,
			"started_at":     startedAt,
			"completed_at":   nil,
			"updated_at":     startedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to claim run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyRunning
	}
	return nil
}

// SetState transitions the status row. completed_at is stamped for the
// completed state and cleared otherwise.
func (r *SyncStatusRepository) SetState(ctx context.Context, userID string, state models.SyncState, message *string) error {
	now := time.Now()
	var completedAt *time.Time
	if state == models.SyncCompleted {
		completedAt = &now
	}

	result := r.db.WithContext(ctx).Model(&models.SyncStatus{}).
		Where("user_id = ? AND provider = ?", userID, r.provider).
		Updates(map[string]interface{}{
			"sync_status":   state,
			"error_message": message,
			"completed_at":  completedAt,
			"updated_at":    now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to set sync state: %w", result.Error)
	}
	return nil
}

// RequestPause flips a running row to paused. Reports whether anything was
// running; pausing an idle row is a no-op.
func (r *SyncStatusRepository) RequestPause(ctx context.Context, userID string, message string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.SyncStatus{}).
		Where("user_id = ? AND provider = ? AND sync_status = ?", userID, r.provider, models.SyncRunning).
		Updates(map[string]interface{}{
			"sync_status":   models.SyncPaused,
			"error_message": message,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to request pause: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListPausedWithMessage returns paused rows carrying the given status
// message, oldest first. Used by the watcher to find auto-paused backlogs.
func (r *SyncStatusRepository) ListPausedWithMessage(ctx context.Context, message string, limit int) ([]models.SyncStatus, error) {
	var rows []models.SyncStatus
	result := r.db.WithContext(ctx).
		Where("provider = ? AND sync_status = ? AND error_message = ?", r.provider, models.SyncPaused, message).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list paused syncs: %w", result.Error)
	}
	return rows, nil
}
