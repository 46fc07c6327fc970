package integrations

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"fieldcrm/config"
	"fieldcrm/models"
	"fieldcrm/utils"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/sheets/v4"
	"gorm.io/gorm"
)

// ErrGoogleNotConnected is returned when the user has no stored grant.
var ErrGoogleNotConnected = errors.New("google account is not connected")

// Google runs the OAuth code flow and hands out authorized HTTP clients for
// a user's stored grant. Tokens are encrypted at rest.
type Google struct {
	oauth   *oauth2.Config
	db      *gorm.DB
	crypter *utils.Crypter
}

func NewGoogle(cfg config.OAuthConfig, db *gorm.DB, crypter *utils.Crypter) *Google {
	return &Google{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes: []string{
				calendar.CalendarEventsScope,
				sheets.SpreadsheetsScope,
			},
			Endpoint: google.Endpoint,
		},
		db:      db,
		crypter: crypter,
	}
}

func (g *Google) Configured() bool {
	return g.oauth.ClientID != "" && g.oauth.ClientSecret != ""
}

// AuthCodeURL asks for offline access so a refresh token is issued.
func (g *Google) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens and stores them for userID.
func (g *Google) Exchange(ctx context.Context, userID uint, code string) (*models.GoogleIntegration, error) {
	if !g.Configured() {
		return nil, fmt.Errorf("google oauth is not configured")
	}
	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	var integration models.GoogleIntegration
	err = g.db.WithContext(ctx).Where("user_id = ?", userID).First(&integration).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	integration.UserID = userID
	if integration.CalendarID == "" {
		integration.CalendarID = "primary"
	}
	if err := g.storeToken(&integration, token); err != nil {
		return nil, err
	}
	if err := g.db.WithContext(ctx).Save(&integration).Error; err != nil {
		return nil, fmt.Errorf("failed to save google integration: %w", err)
	}
	return &integration, nil
}

func (g *Google) storeToken(integration *models.GoogleIntegration, token *oauth2.Token) error {
	access, err := g.crypter.Encrypt(token.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	integration.AccessToken = access
	// Google omits the refresh token on re-consent; keep the stored one.
	if token.RefreshToken != "" {
		refresh, err := g.crypter.Encrypt(token.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		integration.RefreshToken = refresh
	}
	integration.TokenType = token.TokenType
	integration.Expiry = token.Expiry
	return nil
}

// Integration returns the user's stored grant.
func (g *Google) Integration(ctx context.Context, userID uint) (*models.GoogleIntegration, error) {
	var integration models.GoogleIntegration
	err := g.db.WithContext(ctx).Where("user_id = ?", userID).First(&integration).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGoogleNotConnected
	}
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

// Client returns an HTTP client authorized as userID. A refreshed access
// token is written back before the client is returned.
func (g *Google) Client(ctx context.Context, userID uint) (*http.Client, *models.GoogleIntegration, error) {
	integration, err := g.Integration(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	access, err := g.crypter.Decrypt(integration.AccessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	refresh, err := g.crypter.Decrypt(integration.RefreshToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	stored := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    integration.TokenType,
		Expiry:       integration.Expiry,
	}

	source := oauth2.ReuseTokenSource(stored, g.oauth.TokenSource(ctx, stored))
	current, err := source.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to refresh google token: %w", err)
	}
	if current.AccessToken != stored.AccessToken {
		if err := g.storeToken(integration, current); err != nil {
			return nil, nil, err
		}
		if err := g.db.WithContext(ctx).Save(integration).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
	}
	return oauth2.NewClient(ctx, source), integration, nil
}

// Disconnect forgets the user's grant.
func (g *Google) Disconnect(ctx context.Context, userID uint) error {
	res := g.db.WithContext(ctx).Unscoped().Where("user_id = ?", userID).Delete(&models.GoogleIntegration{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrGoogleNotConnected
	}
	return nil
}
