package models

import (
	"time"

	"gorm.io/gorm"
)

// GoogleIntegration stores a user's Google OAuth grant. Tokens are encrypted
// in the application layer.
type GoogleIntegration struct {
	gorm.Model
	UserID        uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	AccessToken   string    `gorm:"type:text" json:"-"`
	RefreshToken  string    `gorm:"type:text" json:"-"`
	TokenType     string    `json:"-"`
	Expiry        time.Time `json:"expiry"`
	CalendarID    string    `gorm:"default:'primary'" json:"calendar_id"`
	SpreadsheetID string    `json:"spreadsheet_id"`
}
