package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/models"
)

type ConsoleRepository struct {
	db *gorm.DB
}

func NewConsoleRepository(db *gorm.DB) *ConsoleRepository {
	return &ConsoleRepository{db: db}
}

// Append adds one human-readable progress line for a run. The UI subscribes
// to this stream; the pipeline never reads it back.
func (r *ConsoleRepository) Append(ctx context.Context, userID, runID, message string) error {
	msg := models.ConsoleMessage{
		UserID:    userID,
		RunID:     runID,
		Message:   message,
		CreatedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return fmt.Errorf("failed to append console message: %w", err)
	}
	return nil
}
