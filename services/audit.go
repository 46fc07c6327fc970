package services

import (
	"context"

	"fieldcrm/models"
	"fieldcrm/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Auditor appends audit log entries. Failures are logged, never returned.
type Auditor struct {
	db     *gorm.DB
	logger logrus.FieldLogger
}

func NewAuditor(db *gorm.DB, logger logrus.FieldLogger) *Auditor {
	return &Auditor{db: db, logger: logger}
}

func (a *Auditor) Record(ctx context.Context, user *models.User, action, entityType string, entityID uint, details map[string]interface{}) {
	if a == nil {
		return
	}
	entry := models.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
	}
	if user != nil {
		entry.OrganizationID = user.OrganizationID
		entry.UserID = &user.ID
	}
	if err := a.db.WithContext(ctx).Create(&entry).Error; err != nil {
		utils.LogError(a.logger, "audit_log", err, map[string]interface{}{
			"action":      action,
			"entity_type": entityType,
			"entity_id":   entityID,
		})
	}
}
