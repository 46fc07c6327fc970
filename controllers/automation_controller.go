package controller

import (
	"time"

	"fieldcrm/models"
	"fieldcrm/services"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type AutomationController struct {
	DB         *gorm.DB
	Logger     logrus.FieldLogger
	Dispatcher *services.AutomationDispatcher
	Audit      *services.Auditor
}

func NewAutomationController(db *gorm.DB, logger logrus.FieldLogger, dispatcher *services.AutomationDispatcher, audit *services.Auditor) *AutomationController {
	return &AutomationController{DB: db, Logger: logger, Dispatcher: dispatcher, Audit: audit}
}

type automationInput struct {
	Name          string                    `json:"name" validate:"required,max=200"`
	Description   string                    `json:"description"`
	TriggerType   string                    `json:"trigger_type" validate:"required"`
	TriggerConfig map[string]interface{}    `json:"trigger_config"`
	Actions       []models.AutomationAction `json:"actions" validate:"required,min=1"`
	Active        *bool                     `json:"active"`
}

// own loads an automation the caller's organization may change. Global
// automations are visible but not editable.
func (ac *AutomationController) own(c *fiber.Ctx, id, organizationID uint) (*models.Automation, error) {
	var automation models.Automation
	err := ac.DB.WithContext(c.UserContext()).Where("id = ? AND organization_id = ?", id, organizationID).First(&automation).Error
	if err != nil {
		return nil, err
	}
	return &automation, nil
}

func (ac *AutomationController) CreateAutomation(c *fiber.Ctx) error {
	user := currentUser(c)
	var input automationInput
	if ok, err := parseBody(c, &input); !ok {
		return err
	}
	if !services.KnownEvent(input.TriggerType) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown trigger type", nil)
	}
	if err := ac.Dispatcher.ValidateActions(input.Actions); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid actions", err)
	}

	automation := models.Automation{
		OrganizationID: &user.OrganizationID,
		Name:           input.Name,
		Description:    input.Description,
		TriggerType:    input.TriggerType,
		TriggerConfig:  input.TriggerConfig,
		Actions:        input.Actions,
		Active:         true,
	}
	if input.Active != nil {
		automation.Active = *input.Active
	}
	if err := ac.DB.WithContext(c.UserContext()).Create(&automation).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create automation", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(automation))
}

func (ac *AutomationController) GetAutomations(c *fiber.Ctx) error {
	user := currentUser(c)
	query := ac.DB.WithContext(c.UserContext()).
		Where("organization_id = ? OR organization_id IS NULL", user.OrganizationID)
	if trigger := c.Query("trigger_type"); trigger != "" {
		query = query.Where("trigger_type = ?", trigger)
	}
	var automations []models.Automation
	if err := query.Order("created_at desc").Find(&automations).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch automations", err)
	}
	return c.JSON(utils.SuccessResponse(automations))
}

func (ac *AutomationController) GetAutomation(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid automation ID", err)
	}
	var automation models.Automation
	if err := ac.DB.WithContext(c.UserContext()).
		Where("id = ? AND (organization_id = ? OR organization_id IS NULL)", id, user.OrganizationID).
		First(&automation).Error; err != nil {
		return findError(c, err, "Automation")
	}
	return c.JSON(utils.SuccessResponse(automation))
}

func (ac *AutomationController) UpdateAutomation(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid automation ID", err)
	}
	var input struct {
		Name          *string                    `json:"name" validate:"omitempty,min=1,max=200"`
		Description   *string                    `json:"description"`
		TriggerType   *string                    `json:"trigger_type"`
		TriggerConfig map[string]interface{}     `json:"trigger_config"`
		Actions       *[]models.AutomationAction `json:"actions"`
		Active        *bool                      `json:"active"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}

	automation, err := ac.own(c, id, user.OrganizationID)
	if err != nil {
		return findError(c, err, "Automation")
	}
	if input.Name != nil {
		automation.Name = *input.Name
	}
	if input.Description != nil {
		automation.Description = *input.Description
	}
	if input.TriggerType != nil {
		if !services.KnownEvent(*input.TriggerType) {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown trigger type", nil)
		}
		automation.TriggerType = *input.TriggerType
	}
	if input.TriggerConfig != nil {
		automation.TriggerConfig = input.TriggerConfig
	}
	if input.Actions != nil {
		if err := ac.Dispatcher.ValidateActions(*input.Actions); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid actions", err)
		}
		automation.Actions = *input.Actions
	}
	if input.Active != nil {
		automation.Active = *input.Active
	}
	automation.UpdatedAt = time.Now()

	if err := ac.DB.WithContext(c.UserContext()).Save(automation).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update automation", err)
	}
	return c.JSON(utils.SuccessResponse(automation))
}

func (ac *AutomationController) DeleteAutomation(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid automation ID", err)
	}
	if err := deleteScoped(c.UserContext(), ac.DB, &models.Automation{}, id, user.OrganizationID); err != nil {
		return findError(c, err, "Automation")
	}
	ac.Audit.Record(c.UserContext(), user, "automation.deleted", "automation", id, nil)
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id}))
}

// ToggleAutomation flips the active flag
func (ac *AutomationController) ToggleAutomation(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid automation ID", err)
	}
	automation, err := ac.own(c, id, user.OrganizationID)
	if err != nil {
		return findError(c, err, "Automation")
	}
	automation.Active = !automation.Active
	if err := ac.DB.WithContext(c.UserContext()).Model(automation).Updates(map[string]interface{}{
		"active":     automation.Active,
		"updated_at": time.Now(),
	}).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to toggle automation", err)
	}
	return c.JSON(utils.SuccessResponse(automation))
}

func (ac *AutomationController) GetRuns(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid automation ID", err)
	}
	page, limit, offset := utils.Pagination(c)

	query := ac.DB.WithContext(c.UserContext()).Model(&models.AutomationRun{}).
		Where("automation_id = ? AND organization_id = ?", id, user.OrganizationID).
		Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count automation runs", err)
	}
	var runs []models.AutomationRun
	if err := query.Order("created_at desc, id desc").Offset(offset).Limit(limit).Find(&runs).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch automation runs", err)
	}
	return paginated(c, runs, total, page, limit)
}

// TriggerEvent fires an event by hand and returns the runs it produced.
// Webhooks are not notified.
func (ac *AutomationController) TriggerEvent(c *fiber.Ctx) error {
	user := currentUser(c)
	var input struct {
		EventType string                 `json:"event_type" validate:"required"`
		Payload   map[string]interface{} `json:"payload"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}
	if !services.KnownEvent(input.EventType) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown event type", nil)
	}
	if input.Payload == nil {
		input.Payload = map[string]interface{}{}
	}

	runs, err := ac.Dispatcher.Dispatch(c.UserContext(), services.Event{
		OrganizationID: user.OrganizationID,
		Type:           input.EventType,
		Payload:        input.Payload,
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to run automations", err)
	}
	if runs == nil {
		runs = []models.AutomationRun{}
	}
	return c.JSON(utils.SuccessResponse(runs))
}
