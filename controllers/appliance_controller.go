package controller

import (
	"errors"

	"fieldcrm/models"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type ApplianceController struct {
	DB     *gorm.DB
	Logger logrus.FieldLogger
}

func NewApplianceController(db *gorm.DB, logger logrus.FieldLogger) *ApplianceController {
	return &ApplianceController{DB: db, Logger: logger}
}

func (ac *ApplianceController) GetAppliances(c *fiber.Ctx) error {
	user := currentUser(c)
	contactID, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid contact ID", err)
	}
	var appliances []models.Appliance
	if err := ac.DB.WithContext(c.UserContext()).
		Where("contact_id = ? AND organization_id = ?", contactID, user.OrganizationID).
		Order("created_at desc").Find(&appliances).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch appliances", err)
	}
	return c.JSON(utils.SuccessResponse(appliances))
}

func (ac *ApplianceController) CreateAppliance(c *fiber.Ctx) error {
	user := currentUser(c)
	contactID, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid contact ID", err)
	}
	var input struct {
		ApplianceType string `json:"appliance_type" validate:"required,max=100"`
		Brand         string `json:"brand" validate:"max=100"`
		ModelNumber   string `json:"model_number" validate:"max=100"`
		SerialNumber  string `json:"serial_number" validate:"max=100"`
		InstalledAt   string `json:"installed_at"`
		Notes         string `json:"notes"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}
	installedAt, err := parseDate(input.InstalledAt)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid installed_at", err)
	}

	if found, err := exists(c.UserContext(), ac.DB, &models.Contact{}, contactID, user.OrganizationID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
	} else if !found {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}

	appliance := models.Appliance{
		OrganizationID: user.OrganizationID,
		ContactID:      contactID,
		ApplianceType:  input.ApplianceType,
		Brand:          input.Brand,
		ModelNumber:    input.ModelNumber,
		SerialNumber:   input.SerialNumber,
		InstalledAt:    installedAt,
		Notes:          input.Notes,
	}
	if err := ac.DB.WithContext(c.UserContext()).Create(&appliance).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create appliance", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(appliance))
}

func (ac *ApplianceController) DeleteAppliance(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid appliance ID", err)
	}
	ctx := c.UserContext()

	err = ac.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteScoped(ctx, tx, &models.Appliance{}, id, user.OrganizationID); err != nil {
			return err
		}
		return tx.Model(&models.Service{}).Where("appliance_id = ?", id).Update("appliance_id", nil).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Appliance not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete appliance", err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id}))
}
