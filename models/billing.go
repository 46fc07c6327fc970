package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Invoice statuses
const (
	InvoiceStatusDraft = "draft"
	InvoiceStatusSent  = "sent"
	InvoiceStatusPaid  = "paid"
	InvoiceStatusVoid  = "void"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// LineItem is one billed line. Amount = Quantity * UnitPrice, in cents.
type LineItem struct {
	Description string  `json:"description" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice   int64   `json:"unit_price" validate:"gte=0"`
	Amount      int64   `json:"amount"`
}

// InvoiceSequence holds the last issued invoice number per organization and year
type InvoiceSequence struct {
	OrganizationID uint `gorm:"primaryKey;autoIncrement:false" json:"organization_id"`
	Year           int  `gorm:"primaryKey;autoIncrement:false" json:"year"`
	LastValue      int  `gorm:"not null" json:"last_value"`
}

// Invoice bills a contact, optionally for a deal or service
type Invoice struct {
	gorm.Model
	OrganizationID uint                          `gorm:"not null;uniqueIndex:idx_invoice_org_number" json:"organization_id"`
	Number         string                        `gorm:"not null;uniqueIndex:idx_invoice_org_number" json:"number"`
	ContactID      *uint                         `gorm:"index" json:"contact_id,omitempty"`
	DealID         *uint                         `gorm:"index" json:"deal_id,omitempty"`
	ServiceID      *uint                         `gorm:"index" json:"service_id,omitempty"`
	Status         string                        `gorm:"not null;default:'draft';index" json:"status"`
	IssueDate      time.Time                     `json:"issue_date"`
	DueDate        *time.Time                    `json:"due_date,omitempty"`
	Currency       string                        `gorm:"default:'usd'" json:"currency"`
	LineItems      datatypes.JSONSlice[LineItem] `json:"line_items"`
	TaxRate        float64                       `json:"tax_rate"` // percent
	Subtotal       int64                         `json:"subtotal"` // in cents
	Tax            int64                         `json:"tax"`
	Total          int64                         `json:"total"`
	Notes          string                        `gorm:"type:text" json:"notes"`
	SentAt         *time.Time                    `json:"sent_at,omitempty"`
	PaidAt         *time.Time                    `json:"paid_at,omitempty"`

	// Relations
	Contact  *Contact  `json:"contact,omitempty"`
	Deal     *Deal     `json:"deal,omitempty"`
	Payments []Payment `gorm:"foreignKey:InvoiceID" json:"payments,omitempty"`
}

// Payment records a payment attempt through the payment provider. It is
// written after the provider call and is not atomic with invoice state.
type Payment struct {
	gorm.Model
	OrganizationID    uint       `gorm:"not null;index" json:"organization_id"`
	InvoiceID         *uint      `gorm:"index" json:"invoice_id,omitempty"`
	DealID            *uint      `gorm:"index" json:"deal_id,omitempty"`
	ContactID         *uint      `gorm:"index" json:"contact_id,omitempty"`
	Amount            int64      `gorm:"not null" json:"amount"` // in cents
	Currency          string     `gorm:"default:'usd'" json:"currency"`
	Status            string     `gorm:"not null;default:'pending';index" json:"status"`
	Provider          string     `gorm:"default:'stripe'" json:"provider"`
	PaymentIntentID   string     `gorm:"index" json:"payment_intent_id,omitempty"`
	CheckoutSessionID string     `gorm:"index" json:"checkout_session_id,omitempty"`
	ChargeID          string     `json:"charge_id,omitempty"`
	ReceiptURL        string     `json:"receipt_url,omitempty"`
	FailureMessage    string     `json:"failure_message,omitempty"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
}
