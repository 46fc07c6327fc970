package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service statuses. No transition graph is enforced.
const (
	ServiceStatusNew           = "new"
	ServiceStatusScheduled     = "scheduled"
	ServiceStatusInProgress    = "in_progress"
	ServiceStatusAwaitingParts = "awaiting_parts"
	ServiceStatusCompleted     = "completed"
	ServiceStatusCancelled     = "cancelled"
)

var ServiceStatuses = []string{
	ServiceStatusNew, ServiceStatusScheduled, ServiceStatusInProgress,
	ServiceStatusAwaitingParts, ServiceStatusCompleted, ServiceStatusCancelled,
}

// Triage urgency levels
const (
	UrgencyEmergency = "emergency"
	UrgencyHigh      = "high"
	UrgencyNormal    = "normal"
	UrgencyLow       = "low"
)

// Appliance is a customer-owned unit that services are performed on
type Appliance struct {
	gorm.Model
	OrganizationID uint       `gorm:"not null;index" json:"organization_id"`
	ContactID      uint       `gorm:"not null;index" json:"contact_id"`
	ApplianceType  string     `gorm:"not null" json:"appliance_type"` // furnace, washer, fridge...
	Brand          string     `json:"brand"`
	ModelNumber    string     `json:"model_number"`
	SerialNumber   string     `json:"serial_number"`
	InstalledAt    *time.Time `json:"installed_at,omitempty"`
	Notes          string     `gorm:"type:text" json:"notes"`
}

// Service is a scheduled or requested job for a contact
type Service struct {
	gorm.Model
	OrganizationID  uint       `gorm:"not null;index" json:"organization_id"`
	ContactID       uint       `gorm:"not null;index" json:"contact_id"`
	ApplianceID     *uint      `gorm:"index" json:"appliance_id,omitempty"`
	Title           string     `json:"title"`
	Description     string     `gorm:"type:text;not null" json:"description"`
	Status          string     `gorm:"not null;default:'new';index" json:"status"`
	Urgency         string     `gorm:"default:'normal'" json:"urgency"`
	Address         string     `json:"address"`
	PreferredDate   *time.Time `json:"preferred_date,omitempty"`
	ScheduledAt     *time.Time `gorm:"index" json:"scheduled_at,omitempty"`
	DurationMinutes int        `gorm:"default:60" json:"duration_minutes"`
	TechnicianID    *uint      `gorm:"index" json:"technician_id,omitempty"`
	CalendarEventID string     `json:"calendar_event_id,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`

	// Relations
	Contact    *Contact   `json:"contact,omitempty"`
	Appliance  *Appliance `json:"appliance,omitempty"`
	Technician *User      `gorm:"foreignKey:TechnicianID" json:"technician,omitempty"`
}

// ServiceSheet is a reference document (repair guide, spec sheet) matched
// against service requests during triage.
type ServiceSheet struct {
	gorm.Model
	OrganizationID uint                        `gorm:"not null;index" json:"organization_id"`
	Title          string                      `gorm:"not null" json:"title"`
	URL            string                      `gorm:"not null" json:"url"`
	ApplianceType  string                      `json:"appliance_type"`
	Brand          string                      `json:"brand"`
	Keywords       datatypes.JSONSlice[string] `json:"keywords"`
}

// MissingField is a required piece of information absent from a request
type MissingField struct {
	Field  string `json:"field"`
	Label  string `json:"label"`
	Reason string `json:"reason"`
}

// SheetMatch is a service sheet ranked against a request
type SheetMatch struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Score int    `json:"score"`
}

// ServiceTriage is the persisted result of one triage run
type ServiceTriage struct {
	gorm.Model
	ServiceID     uint                              `gorm:"not null;index" json:"service_id"`
	Urgency       string                            `gorm:"not null" json:"urgency"`
	MissingFields datatypes.JSONSlice[MissingField] `json:"missing_fields"`
	MatchedSheets datatypes.JSONSlice[SheetMatch]   `json:"matched_sheets"`
	Summary       string                            `gorm:"type:text" json:"summary"`
	Source        string                            `json:"source"` // rules, llm
	ModelName     string                            `json:"model,omitempty"`
}
