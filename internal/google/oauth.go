package google

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"

	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/models"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/repository"
	"github.com/matthewlkramer/Wildflower-TLs-and-Schools-sub004/internal/syncer"
)

// TokenStore is the slice of the token repository the OAuth flow needs.
type TokenStore interface {
	Get(ctx context.Context, userID string) (*models.OAuthToken, error)
	Upsert(ctx context.Context, token *models.OAuthToken) error
	UpdateTokens(ctx context.Context, userID string, accessToken, refreshToken string, expiresAt time.Time) error
}

// OAuth handles the consent/exchange/refresh flow for one provider's scopes.
type OAuth struct {
	clientID     string
	clientSecret string
	scopes       []string
	tokens       TokenStore
	log          *zap.SugaredLogger
}

func NewOAuth(clientID, clientSecret string, provider models.Provider, tokens TokenStore, log *zap.SugaredLogger) *OAuth {
	scopes := []string{gmail.GmailReadonlyScope}
	if provider == models.ProviderCalendar {
		scopes = []string{calendar.CalendarReadonlyScope}
	}
	return &OAuth{
		clientID:     clientID,
		clientSecret: clientSecret,
		scopes:       scopes,
		tokens:       tokens,
		log:          log,
	}
}

func (o *OAuth) config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     o.clientID,
		ClientSecret: o.clientSecret,
		Endpoint:     googleoauth.Endpoint,
		RedirectURL:  redirectURI,
		Scopes:       o.scopes,
	}
}

// ConsentURL builds the consent URL with offline access and forced consent,
// which guarantees Google returns a refresh token.
func (o *OAuth) ConsentURL(redirectURI, state string) string {
	return o.config(redirectURI).AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange completes the one-time code-for-tokens handshake and persists the
// resulting credentials.
func (o *OAuth) Exchange(ctx context.Context, code, redirectURI, userID string) error {
	tok, err := o.config(redirectURI).Exchange(ctx, code)
	if err != nil {
		return &syncer.AuthError{Reason: "authorization code exchange rejected", Err: err}
	}

	return o.tokens.Upsert(ctx, &models.OAuthToken{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	})
}

// ValidToken returns a usable access token, refreshing first if the stored
// one expires within the skew window.
func (o *OAuth) ValidToken(ctx context.Context, userID string) (string, error) {
	row, err := o.tokens.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return "", &syncer.AuthError{Reason: "account not connected"}
		}
		return "", err
	}
	if !tokenExpired(row.ExpiresAt) {
		return row.AccessToken, nil
	}
	return o.refresh(ctx, row)
}

// ForceRefresh refreshes unconditionally. Used when a call comes back 401
// despite a token that looked valid.
func (o *OAuth) ForceRefresh(ctx context.Context, userID string) (string, error) {
	row, err := o.tokens.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return "", &syncer.AuthError{Reason: "account not connected"}
		}
		return "", err
	}
	return o.refresh(ctx, row)
}

func (o *OAuth) refresh(ctx context.Context, row *models.OAuthToken) (string, error) {
	if row.RefreshToken == "" {
		return "", &syncer.AuthError{Reason: "no refresh token, reauthorization required"}
	}

	source := o.config("").TokenSource(ctx, &oauth2.Token{RefreshToken: row.RefreshToken})
	newTok, err := source.Token()
	if err != nil {
		return "", &syncer.AuthError{Reason: "token refresh failed", Err: err}
	}

	// Google occasionally rotates the refresh token
	refreshToken := row.RefreshToken
	if newTok.RefreshToken != "" {
		refreshToken = newTok.RefreshToken
	}

	if err := o.tokens.UpdateTokens(ctx, row.UserID, newTok.AccessToken, refreshToken, newTok.Expiry); err != nil {
		return "", err
	}
	o.log.Infof("token refreshed for user %s, expires at %s", row.UserID, newTok.Expiry)

	return newTok.AccessToken, nil
}

// tokenExpired treats a token expiring within 5 minutes as already expired.
func tokenExpired(expiresAt time.Time) bool {
	return time.Now().Add(5 * time.Minute).After(expiresAt)
}
