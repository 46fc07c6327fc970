package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Automation action types
const (
	ActionSendEmail           = "send_email"
	ActionSendSMS             = "send_sms"
	ActionCreateTask          = "create_task"
	ActionWebhook             = "webhook"
	ActionUpdateServiceStatus = "update_service_status"
)

// Automation run statuses
const (
	RunStatusSuccess = "success"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"
)

// AutomationAction is one step of an automation
type AutomationAction struct {
	Type   string                 `json:"type"`
	Config map[string]interface{} `json:"config"`
}

// Automation fires its ordered actions when an event of TriggerType matches
// TriggerConfig. A nil OrganizationID applies to every organization.
type Automation struct {
	gorm.Model
	OrganizationID *uint                                 `gorm:"index" json:"organization_id,omitempty"`
	Name           string                                `gorm:"not null" json:"name"`
	Description    string                                `json:"description"`
	TriggerType    string                                `gorm:"not null;index" json:"trigger_type"`
	TriggerConfig  datatypes.JSONMap                     `json:"trigger_config"`
	Actions        datatypes.JSONSlice[AutomationAction] `json:"actions"`
	Active         bool                                  `gorm:"not null;index" json:"active"`
	RunCount       int                                   `gorm:"default:0" json:"run_count"`
	LastRunAt      *time.Time                            `json:"last_run_at,omitempty"`
}

// ActionResult is the outcome of one action within a run
type ActionResult struct {
	Index  int    `json:"index"`
	Type   string `json:"type"`
	Status string `json:"status"` // success, failed
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// AutomationRun is an append-only execution record
type AutomationRun struct {
	gorm.Model
	AutomationID   uint                              `gorm:"not null;index" json:"automation_id"`
	OrganizationID uint                              `gorm:"index" json:"organization_id"`
	EventType      string                            `gorm:"not null" json:"event_type"`
	Payload        datatypes.JSONMap                 `json:"payload"`
	Status         string                            `gorm:"not null" json:"status"`
	Results        datatypes.JSONSlice[ActionResult] `json:"results"`
	StartedAt      time.Time                         `json:"started_at"`
	FinishedAt     time.Time                         `json:"finished_at"`
}
