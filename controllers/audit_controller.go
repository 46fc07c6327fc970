package controller

import (
	"fieldcrm/models"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AuditController struct {
	DB *gorm.DB
}

func NewAuditController(db *gorm.DB) *AuditController {
	return &AuditController{DB: db}
}

func (ac *AuditController) GetAuditLogs(c *fiber.Ctx) error {
	user := currentUser(c)
	page, limit, offset := utils.Pagination(c)

	query := ac.DB.WithContext(c.UserContext()).Model(&models.AuditLog{}).Where("organization_id = ?", user.OrganizationID)
	if action := c.Query("action"); action != "" {
		query = query.Where("action = ?", action)
	}
	if entityType := c.Query("entity_type"); entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}
	if userID := c.Query("user_id"); userID != "" {
		query = query.Where("user_id = ?", utils.ParseUint(userID))
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count audit logs", err)
	}
	var logs []models.AuditLog
	if err := query.Order("created_at desc, id desc").Offset(offset).Limit(limit).Find(&logs).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch audit logs", err)
	}
	return paginated(c, logs, total, page, limit)
}
