package models

import (
	"gorm.io/gorm"
)

// Organization is the tenant every CRM row is scoped to.
type Organization struct {
	gorm.Model
	Name     string `gorm:"not null" json:"name"`
	Timezone string `gorm:"default:'UTC'" json:"timezone"`
	Currency string `gorm:"default:'usd'" json:"currency"`

	Users []User `gorm:"foreignKey:OrganizationID" json:"users,omitempty"`
}

// User is a CRM operator. Credentials live with the hosted auth provider;
// AuthID is the provider's subject claim.
type User struct {
	gorm.Model
	OrganizationID uint    `gorm:"not null;index" json:"organization_id"`
	AuthID         string  `gorm:"uniqueIndex;not null" json:"auth_id"`
	Email          string  `gorm:"uniqueIndex;not null" json:"email"`
	Name           *string `json:"name,omitempty"`
	Phone          string  `json:"phone"`
	Role           string  `gorm:"not null;default:'viewer'" json:"role"` // admin, manager, technician, viewer
	IsActive       bool    `gorm:"default:true" json:"is_active"`

	Organization *Organization `json:"organization,omitempty"`
}

// AuditLog records deletes, permission-sensitive changes and background
// failures that are never surfaced to a caller.
type AuditLog struct {
	gorm.Model
	OrganizationID uint    `gorm:"index" json:"organization_id"`
	UserID         *uint   `gorm:"index" json:"user_id,omitempty"`
	Action         string  `gorm:"not null;index" json:"action"`
	EntityType     string  `gorm:"index" json:"entity_type"`
	EntityID       uint    `json:"entity_id"`
	Details        JSONMap `json:"details,omitempty"`
}
