package controller

import (
	"fmt"
	"strconv"
	"time"

	"fieldcrm/models"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CustomFieldController struct {
	DB     *gorm.DB
	Logger logrus.FieldLogger
}

func NewCustomFieldController(db *gorm.DB, logger logrus.FieldLogger) *CustomFieldController {
	return &CustomFieldController{DB: db, Logger: logger}
}

func (fc *CustomFieldController) GetDefinitions(c *fiber.Ctx) error {
	user := currentUser(c)
	var defs []models.CustomFieldDefinition
	if err := fc.DB.WithContext(c.UserContext()).Where("organization_id = ?", user.OrganizationID).Order("position asc, id asc").Find(&defs).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch custom fields", err)
	}
	return c.JSON(utils.SuccessResponse(defs))
}

func (fc *CustomFieldController) CreateDefinition(c *fiber.Ctx) error {
	user := currentUser(c)
	var input struct {
		Name      string   `json:"name" validate:"required,max=100"`
		FieldType string   `json:"field_type" validate:"required,oneof=text number date select boolean"`
		Options   []string `json:"options" validate:"omitempty,dive,required"`
		Required  bool     `json:"required"`
		Position  int      `json:"position" validate:"gte=0"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}
	if input.FieldType == models.FieldTypeSelect && len(input.Options) == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", fmt.Errorf("options are required for select fields"))
	}

	def := models.CustomFieldDefinition{
		OrganizationID: user.OrganizationID,
		Name:           input.Name,
		FieldType:      input.FieldType,
		Options:        input.Options,
		Required:       input.Required,
		Position:       input.Position,
	}
	if err := fc.DB.WithContext(c.UserContext()).Create(&def).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create custom field", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(def))
}

// UpdateDefinition changes name, options, required or position. The field
// type is fixed once values exist, so it is not editable.
func (fc *CustomFieldController) UpdateDefinition(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid custom field ID", err)
	}
	var input struct {
		Name     *string   `json:"name" validate:"omitempty,min=1,max=100"`
		Options  *[]string `json:"options"`
		Required *bool     `json:"required"`
		Position *int      `json:"position" validate:"omitempty,gte=0"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}

	var def models.CustomFieldDefinition
	if err := fc.DB.WithContext(c.UserContext()).Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&def).Error; err != nil {
		return findError(c, err, "Custom field")
	}
	if input.Name != nil {
		def.Name = *input.Name
	}
	if input.Options != nil {
		if def.FieldType == models.FieldTypeSelect && len(*input.Options) == 0 {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", fmt.Errorf("options are required for select fields"))
		}
		def.Options = *input.Options
	}
	if input.Required != nil {
		def.Required = *input.Required
	}
	if input.Position != nil {
		def.Position = *input.Position
	}
	def.UpdatedAt = time.Now()
	if err := fc.DB.WithContext(c.UserContext()).Save(&def).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update custom field", err)
	}
	return c.JSON(utils.SuccessResponse(def))
}

func (fc *CustomFieldController) DeleteDefinition(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid custom field ID", err)
	}

	var def models.CustomFieldDefinition
	if err := fc.DB.WithContext(c.UserContext()).Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&def).Error; err != nil {
		return findError(c, err, "Custom field")
	}
	err = fc.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("field_definition_id = ?", def.ID).Delete(&models.CustomFieldValue{}).Error; err != nil {
			return err
		}
		return tx.Delete(&def).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete custom field", err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": def.ID}))
}

// GetValues returns a contact's custom field values
func (fc *CustomFieldController) GetValues(c *fiber.Ctx) error {
	user := currentUser(c)
	contactID, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid contact ID", err)
	}
	if found, err := exists(c.UserContext(), fc.DB, &models.Contact{}, contactID, user.OrganizationID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
	} else if !found {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}

	var values []models.CustomFieldValue
	if err := fc.DB.WithContext(c.UserContext()).Preload("FieldDefinition").Where("contact_id = ?", contactID).Order("id asc").Find(&values).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch custom field values", err)
	}
	return c.JSON(utils.SuccessResponse(values))
}

type customValueInput struct {
	FieldDefinitionID uint   `json:"field_definition_id" validate:"required"`
	Value             string `json:"value" validate:"required"`
}

// UpsertValues writes values keyed by (contact, field definition); a second
// write for the same pair replaces the first.
func (fc *CustomFieldController) UpsertValues(c *fiber.Ctx) error {
	user := currentUser(c)
	contactID, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid contact ID", err)
	}
	var input struct {
		Values []customValueInput `json:"values" validate:"required,min=1,dive"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}
	ctx := c.UserContext()

	if found, err := exists(ctx, fc.DB, &models.Contact{}, contactID, user.OrganizationID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
	} else if !found {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}

	ids := make([]uint, 0, len(input.Values))
	for _, v := range input.Values {
		ids = append(ids, v.FieldDefinitionID)
	}
	var defs []models.CustomFieldDefinition
	if err := fc.DB.WithContext(ctx).Where("id IN ? AND organization_id = ?", ids, user.OrganizationID).Find(&defs).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch custom fields", err)
	}
	byID := make(map[uint]models.CustomFieldDefinition, len(defs))
	for _, d := range defs {
		byID[d.ID] = d
	}

	rows := make([]models.CustomFieldValue, 0, len(input.Values))
	for _, v := range input.Values {
		def, found := byID[v.FieldDefinitionID]
		if !found {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown custom field", fmt.Errorf("field_definition_id %d", v.FieldDefinitionID))
		}
		if err := checkFieldValue(def, v.Value); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
		}
		rows = append(rows, models.CustomFieldValue{
			ContactID:         contactID,
			FieldDefinitionID: def.ID,
			Value:             v.Value,
		})
	}

	err = fc.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contact_id"}, {Name: "field_definition_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save custom field values", err)
	}

	var values []models.CustomFieldValue
	if err := fc.DB.WithContext(ctx).Preload("FieldDefinition").Where("contact_id = ?", contactID).Order("id asc").Find(&values).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch custom field values", err)
	}
	return c.JSON(utils.SuccessResponse(values))
}

func checkFieldValue(def models.CustomFieldDefinition, value string) error {
	switch def.FieldType {
	case models.FieldTypeNumber:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("%s must be a number", def.Name)
		}
	case models.FieldTypeBoolean:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%s must be true or false", def.Name)
		}
	case models.FieldTypeDate:
		if _, err := parseDate(value); err != nil {
			return fmt.Errorf("%s must be a date", def.Name)
		}
	case models.FieldTypeSelect:
		for _, opt := range def.Options {
			if opt == value {
				return nil
			}
		}
		return fmt.Errorf("%s must be one of the field options", def.Name)
	}
	return nil
}
