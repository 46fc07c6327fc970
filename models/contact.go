package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Contact represents a person or business the organization works with
type Contact struct {
	gorm.Model
	OrganizationID uint `gorm:"not null;index" json:"organization_id"`

	FirstName  string `gorm:"not null" json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `gorm:"index" json:"email"`
	Phone      string `gorm:"index" json:"phone"`
	// PhoneE164 is Phone normalized for inbound SMS matching
	PhoneE164  string `gorm:"column:phone_e164;index" json:"-"`
	Company    string `json:"company"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Notes      string `gorm:"type:text" json:"notes"`
	Source     string `json:"source"` // manual, web_form, import, sms
	OwnerID    *uint  `gorm:"index" json:"owner_id,omitempty"`

	// Relations
	Categories   []Category              `gorm:"many2many:contact_categories;" json:"categories,omitempty"`
	ProfileTypes []ProfileTypeAssignment `gorm:"foreignKey:ContactID" json:"profile_types,omitempty"`
	CustomFields []CustomFieldValue      `gorm:"foreignKey:ContactID" json:"custom_fields,omitempty"`
	Appliances   []Appliance             `gorm:"foreignKey:ContactID" json:"appliances,omitempty"`
}

// BeforeSave keeps PhoneE164 in step with Phone on create and save. Map
// updates set the column themselves.
func (c *Contact) BeforeSave(tx *gorm.DB) error {
	c.PhoneE164 = NormalizePhone(c.Phone)
	return nil
}

// FullName joins first and last name.
func (c Contact) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Category is a free-form label; contacts and categories are many-to-many.
type Category struct {
	gorm.Model
	OrganizationID uint   `gorm:"not null;index" json:"organization_id"`
	Name           string `gorm:"not null" json:"name"`
	Color          string `json:"color"`
}

// ProfileType classifies a contact (homeowner, landlord, property manager...).
type ProfileType struct {
	gorm.Model
	OrganizationID uint   `gorm:"not null;index" json:"organization_id"`
	Name           string `gorm:"not null" json:"name"`
	Description    string `json:"description"`
}

// ProfileTypeAssignment binds a ProfileType to a Contact. At most one
// assignment per contact has IsPrimary set.
type ProfileTypeAssignment struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ContactID     uint      `gorm:"not null;uniqueIndex:idx_contact_profile_type" json:"contact_id"`
	ProfileTypeID uint      `gorm:"not null;uniqueIndex:idx_contact_profile_type" json:"profile_type_id"`
	IsPrimary     bool      `gorm:"not null" json:"is_primary"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	ProfileType *ProfileType `json:"profile_type,omitempty"`
}

// Custom field types
const (
	FieldTypeText    = "text"
	FieldTypeNumber  = "number"
	FieldTypeDate    = "date"
	FieldTypeSelect  = "select"
	FieldTypeBoolean = "boolean"
)

// CustomFieldDefinition describes an organization-defined contact attribute
type CustomFieldDefinition struct {
	gorm.Model
	OrganizationID uint                        `gorm:"not null;index" json:"organization_id"`
	Name           string                      `gorm:"not null" json:"name"`
	FieldType      string                      `gorm:"not null" json:"field_type"`
	Options        datatypes.JSONSlice[string] `json:"options,omitempty"` // select only
	Required       bool                        `json:"required"`
	Position       int                         `json:"position"`
}

// CustomFieldValue holds one contact's value for one definition, unique per
// (contact, definition).
type CustomFieldValue struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ContactID         uint      `gorm:"not null;uniqueIndex:idx_contact_field" json:"contact_id"`
	FieldDefinitionID uint      `gorm:"not null;uniqueIndex:idx_contact_field" json:"field_definition_id"`
	Value             string    `gorm:"type:text" json:"value"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	FieldDefinition *CustomFieldDefinition `json:"field_definition,omitempty"`
}
