package models

import "gorm.io/gorm"

// Attachment binds an uploaded blob to an (entity_type, entity_id) pair
type Attachment struct {
	gorm.Model
	OrganizationID uint   `gorm:"not null;index" json:"organization_id"`
	EntityType     string `gorm:"not null;index:idx_attachment_entity" json:"entity_type"`
	EntityID       uint   `gorm:"not null;index:idx_attachment_entity" json:"entity_id"`
	FileName       string `gorm:"not null" json:"file_name"`
	Bucket         string `gorm:"not null" json:"bucket"`
	ObjectName     string `gorm:"not null" json:"object_name"`
	ContentType    string `json:"content_type"`
	Size           int64  `json:"size"`
	PublicURL      string `json:"public_url"`
	UploadedBy     uint   `json:"uploaded_by"`
}
