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

var ErrTokenNotFound = errors.New("oauth token not found")

type TokenRepository struct {
	db       *gorm.DB
	provider models.Provider
}

func NewTokenRepository(db *gorm.DB, provider models.Provider) *TokenRepository {
	return &TokenRepository{db: db, provider: provider}
}

// Get retrieves the token row for a user
func (r *TokenRepository) Get(ctx context.Context, userID string) (*models.OAuthToken, error) {
	var token models.OAuthToken
	result := r.db.WithContext(ctx).
		First(&token, "user_id = ? AND provider = ?", userID, r.provider)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", result.Error)
	}
	return &token, nil
}

// Upsert writes the token row for a user, replacing any previous credentials.
// No history is kept.
func (r *TokenRepository) Upsert(ctx context.Context, token *models.OAuthToken) error {
	token.Provider = r.provider
	token.UpdatedAt = time.Now()
	if token.CreatedAt.IsZero() {
		token.CreatedAt = token.UpdatedAt
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "refresh_token", "expires_at", "updated_at",
		}),
	}).Create(token)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert token: %w", result.Error)
	}
	return nil
}

// UpdateTokens updates access token, refresh token, and expiry after a refresh
func (r *TokenRepository) UpdateTokens(ctx context.Context, userID string, accessToken, refreshToken string, expiresAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.OAuthToken{}).
		Where("user_id = ? AND provider = ?", userID, r.provider).
		Updates(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_at":    expiresAt,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update tokens: %w", result.Error)
	}
	return nil
}

// IsConnected reports whether a token row with a non-empty access token exists
func (r *TokenRepository) IsConnected(ctx context.Context, userID string) (bool, error) {
	token, err := r.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return false, nil
		}
		return false, err
	}
	return token.AccessToken != "", nil
}
