package controller

import (
	"strings"

	"fieldcrm/models"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type ServiceSheetController struct {
	DB     *gorm.DB
	Logger logrus.FieldLogger
}

func NewServiceSheetController(db *gorm.DB, logger logrus.FieldLogger) *ServiceSheetController {
	return &ServiceSheetController{DB: db, Logger: logger}
}

func (sc *ServiceSheetController) GetSheets(c *fiber.Ctx) error {
	user := currentUser(c)
	query := sc.DB.WithContext(c.UserContext()).Where("organization_id = ?", user.OrganizationID)
	if applianceType := c.Query("appliance_type"); applianceType != "" {
		query = query.Where("LOWER(appliance_type) = ?", strings.ToLower(applianceType))
	}
	var sheets []models.ServiceSheet
	if err := query.Order("title asc").Find(&sheets).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch service sheets", err)
	}
	return c.JSON(utils.SuccessResponse(sheets))
}

func (sc *ServiceSheetController) CreateSheet(c *fiber.Ctx) error {
	user := currentUser(c)
	var input struct {
		Title         string   `json:"title" validate:"required,max=200"`
		URL           string   `json:"url" validate:"required,url"`
		ApplianceType string   `json:"appliance_type" validate:"max=100"`
		Brand         string   `json:"brand" validate:"max=100"`
		Keywords      []string `json:"keywords" validate:"omitempty,dive,required"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}

	keywords := make([]string, 0, len(input.Keywords))
	for _, k := range input.Keywords {
		keywords = append(keywords, strings.ToLower(strings.TrimSpace(k)))
	}
	sheet := models.ServiceSheet{
		OrganizationID: user.OrganizationID,
		Title:          input.Title,
		URL:            input.URL,
		ApplianceType:  input.ApplianceType,
		Brand:          input.Brand,
		Keywords:       keywords,
	}
	if err := sc.DB.WithContext(c.UserContext()).Create(&sheet).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create service sheet", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(sheet))
}

func (sc *ServiceSheetController) DeleteSheet(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid service sheet ID", err)
	}
	if err := deleteScoped(c.UserContext(), sc.DB, &models.ServiceSheet{}, id, user.OrganizationID); err != nil {
		return findError(c, err, "Service sheet")
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id}))
}
