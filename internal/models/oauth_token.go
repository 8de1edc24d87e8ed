package models

import "time"

// OAuthToken holds the Google OAuth credentials for one user and provider.
// One row per (user, provider); refresh overwrites in place, no history.
type OAuthToken struct {
	UserID       string    `gorm:"column:user_id;primaryKey"`
	Provider     Provider  `gorm:"column:provider;primaryKey"`
	AccessToken  string    `gorm:"column:access_token"`
	RefreshToken string    `gorm:"column:refresh_token"`
	ExpiresAt    time.Time `gorm:"column:expires_at"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (OAuthToken) TableName() string {
	return "oauth_tokens"
}
