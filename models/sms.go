package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SMS thread statuses
const (
	ThreadStatusOpen             = "open"
	ThreadStatusAwaitingResponse = "awaiting_response"
	ThreadStatusResponded        = "responded"
	ThreadStatusClosed           = "closed"
)

// SMS directions
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

// SMSMessage is one entry of a thread's append-only log
type SMSMessage struct {
	Direction string    `json:"direction"`
	Body      string    `json:"body"`
	SID       string    `json:"sid,omitempty"`
	Kind      string    `json:"kind,omitempty"` // info_request, manual, automation
	SentAt    time.Time `json:"sent_at"`
}

// SMSThread is the message log for one phone number
type SMSThread struct {
	gorm.Model
	OrganizationID uint                            `gorm:"not null;index" json:"organization_id"`
	PhoneNumber    string                          `gorm:"not null;index" json:"phone_number"`
	ContactID      *uint                           `gorm:"index" json:"contact_id,omitempty"`
	ServiceID      *uint                           `gorm:"index" json:"service_id,omitempty"`
	Status         string                          `gorm:"not null;default:'open'" json:"status"`
	Messages       datatypes.JSONSlice[SMSMessage] `json:"messages"`
	LastMessageAt  *time.Time                      `json:"last_message_at,omitempty"`
}
