package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/models"
)

// headerColumns are the columns a header re-run may overwrite. Body and
// match columns are filled by later stages and must survive re-upserts of
// the same window.
var headerColumns = []string{
	"thread_id", "sender", "recipients", "subject", "item_ts",
	"snippet", "has_attachments", "is_private", "updated_at",
}

// ItemRepository persists fetched provider items. One instance serves one
// item table (g_emails or g_events); the two tables share a column shape.
type ItemRepository struct {
	db    *gorm.DB
	table string
	log   *zap.SugaredLogger
}

func NewItemRepository(db *gorm.DB, provider models.Provider, log *zap.SugaredLogger) *ItemRepository {
	return &ItemRepository{db: db, table: provider.ItemTable(), log: log}
}

// UpsertHeaders writes header rows in chunks of batchSize using the
// (user_id, item_id) conflict key. A failed chunk is logged and skipped;
// remaining chunks still run, and the checkpoint model retries the window on
// the next invocation. Returns the number of rows written.
func (r *ItemRepository) UpsertHeaders(ctx context.Context, items []models.Item, batchSize int) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	now := time.Now()
	for i := range items {
		items[i].UpdatedAt = now
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = now
		}
	}

	written := 0
	var firstErr error
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		result := r.db.WithContext(ctx).Table(r.table).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns(headerColumns),
		}).Create(&chunk)
		if result.Error != nil {
			r.log.Warnf("upsert chunk of %d into %s failed: %v", len(chunk), r.table, result.Error)
			if firstErr == nil {
				firstErr = result.Error
			}
			continue
		}
		written += len(chunk)
	}

	if written == 0 && firstErr != nil {
		return 0, fmt.Errorf("failed to upsert items into %s: %w", r.table, firstErr)
	}
	return written, nil
}

// ListWindow returns all items whose timestamp falls in [start, end), across
// users. Matching runs globally per window.
func (r *ItemRepository) ListWindow(ctx context.Context, start, end time.Time) ([]models.Item, error) {
	var items []models.Item
	result := r.db.WithContext(ctx).Table(r.table).
		Where("item_ts >= ? AND item_ts < ?", start, end).
		Order("item_ts ASC").
		Find(&items)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list items in window: %w", result.Error)
	}
	return items, nil
}

// UpdateMatches overwrites the matched-contact column for one item
func (r *ItemRepository) UpdateMatches(ctx context.Context, userID, itemID string, contactIDs []string) error {
	result := r.db.WithContext(ctx).Table(r.table).
		Where("user_id = ? AND item_id = ?", userID, itemID).
		Updates(map[string]interface{}{
			"matched_contact_ids": pq.StringArray(contactIDs),
			"updated_at":          time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update matches: %w", result.Error)
	}
	return nil
}

// ListNeedingBodies returns a user's matched items in the window that still
// lack body content
func (r *ItemRepository) ListNeedingBodies(ctx context.Context, userID string, start, end time.Time) ([]models.Item, error) {
	var items []models.Item
	result := r.db.WithContext(ctx).Table(r.table).
		Where("user_id = ? AND item_ts >= ? AND item_ts < ?", userID, start, end).
		Where("body_fetched = FALSE AND cardinality(matched_contact_ids) > 0").
		Order("item_ts ASC").
		Find(&items)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list items needing bodies: %w", result.Error)
	}
	return items, nil
}

// UpdateBody writes the backfilled content for one item and marks it fetched
func (r *ItemRepository) UpdateBody(ctx context.Context, userID, itemID, bodyText, bodyHTML string, hasAttachments bool) error {
	result := r.db.WithContext(ctx).Table(r.table).
		Where("user_id = ? AND item_id = ?", userID, itemID).
		Updates(map[string]interface{}{
			"body_text":       bodyText,
			"body_html":       bodyHTML,
			"has_attachments": hasAttachments,
			"body_fetched":    true,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update body: %w", result.Error)
	}
	return nil
}

// CountInWindow returns how many of a user's items landed in the window
func (r *ItemRepository) CountInWindow(ctx context.Context, userID string, start, end time.Time) (int, error) {
	var count int64
	result := r.db.WithContext(ctx).Table(r.table).
		Where("user_id = ? AND item_ts >= ? AND item_ts < ?", userID, start, end).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count items in window: %w", result.Error)
	}
	return int(count), nil
}
