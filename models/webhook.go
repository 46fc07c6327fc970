package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Webhook delivery statuses
const (
	DeliveryPending   = "pending"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// Webhook is a user-registered outbound endpoint
type Webhook struct {
	gorm.Model
	OrganizationID uint                        `gorm:"not null;index" json:"organization_id"`
	URL            string                      `gorm:"not null" json:"url"`
	Description    string                      `json:"description"`
	Events         datatypes.JSONSlice[string] `json:"events"` // event types, "*" for all
	Secret         string                      `gorm:"not null" json:"secret"`
	Active         bool                        `gorm:"not null" json:"active"`
	LastDeliveryAt *time.Time                  `json:"last_delivery_at,omitempty"`
}

// Subscribes reports whether the webhook wants events of the given type.
func (w Webhook) Subscribes(eventType string) bool {
	for _, e := range w.Events {
		if e == "*" || e == eventType {
			return true
		}
	}
	return false
}

// WebhookDelivery is a queued outbound POST, processed by the batch job
type WebhookDelivery struct {
	gorm.Model
	WebhookID    uint           `gorm:"not null;index" json:"webhook_id"`
	DeliveryID   string         `gorm:"uniqueIndex;not null" json:"delivery_id"`
	EventType    string         `gorm:"not null" json:"event_type"`
	Payload      datatypes.JSON `json:"payload"`
	Status       string         `gorm:"not null;default:'pending';index" json:"status"`
	Attempts     int            `gorm:"default:0" json:"attempts"`
	ResponseCode int            `json:"response_code"`
	LastError    string         `json:"last_error,omitempty"`
	DeliveredAt  *time.Time     `json:"delivered_at,omitempty"`

	Webhook *Webhook `json:"webhook,omitempty"`
}
