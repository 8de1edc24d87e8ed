package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/models"
)

type ContactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// EmailIndex loads the contact directory as a lowercase email -> contact id
// map. Loaded once per matching pass.
func (r *ContactRepository) EmailIndex(ctx context.Context) (map[string]string, error) {
	var contacts []models.Contact
	result := r.db.WithContext(ctx).
		Where("email <> ''").
		Find(&contacts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", result.Error)
	}

	index := make(map[string]string, len(contacts))
	for _, c := range contacts {
		index[strings.ToLower(strings.TrimSpace(c.Email))] = c.ID
	}
	return index, nil
}
