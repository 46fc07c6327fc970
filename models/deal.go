package models

import (
	"time"

	"gorm.io/gorm"
)

// PipelineStage is one column of the sales pipeline. Any stage may follow any
// other; IsWon/IsLost mark terminal stages for reporting only.
type PipelineStage struct {
	gorm.Model
	OrganizationID uint   `gorm:"not null;index" json:"organization_id"`
	Name           string `gorm:"not null" json:"name"`
	Position       int    `gorm:"not null" json:"position"`
	Probability    int    `json:"probability"` // default probability for deals entering the stage
	IsWon          bool   `json:"is_won"`
	IsLost         bool   `json:"is_lost"`
}

// Deal represents a sales opportunity
type Deal struct {
	gorm.Model
	OrganizationID    uint       `gorm:"not null;index" json:"organization_id"`
	Title             string     `gorm:"not null" json:"title"`
	ContactID         *uint      `gorm:"index" json:"contact_id,omitempty"`
	StageID           uint       `gorm:"not null;index" json:"stage_id"`
	Value             int64      `json:"value"` // in cents
	Currency          string     `gorm:"default:'usd'" json:"currency"`
	Probability       int        `json:"probability"`
	ExpectedCloseDate *time.Time `json:"expected_close_date,omitempty"`
	OwnerID           *uint      `gorm:"index" json:"owner_id,omitempty"`
	Notes             string     `gorm:"type:text" json:"notes"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`

	// Relations
	Contact *Contact       `json:"contact,omitempty"`
	Stage   *PipelineStage `gorm:"foreignKey:StageID" json:"stage,omitempty"`
}

// Task is a to-do item optionally linked to a contact, deal or service
type Task struct {
	gorm.Model
	OrganizationID uint       `gorm:"not null;index" json:"organization_id"`
	Title          string     `gorm:"not null" json:"title"`
	Description    string     `gorm:"type:text" json:"description"`
	ContactID      *uint      `gorm:"index" json:"contact_id,omitempty"`
	DealID         *uint      `gorm:"index" json:"deal_id,omitempty"`
	ServiceID      *uint      `gorm:"index" json:"service_id,omitempty"`
	AssignedTo     *uint      `gorm:"index" json:"assigned_to,omitempty"`
	Priority       string     `gorm:"default:'normal'" json:"priority"` // low, normal, high
	DueDate        *time.Time `json:"due_date,omitempty"`
	Completed      bool       `gorm:"not null;index" json:"completed"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`

	// Relations
	Contact *Contact `json:"contact,omitempty"`
	Deal    *Deal    `json:"deal,omitempty"`
}
