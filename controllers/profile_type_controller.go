package controller

import (
	"time"

	"fieldcrm/models"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProfileTypeController struct {
	DB     *gorm.DB
	Logger logrus.FieldLogger
}

func NewProfileTypeController(db *gorm.DB, logger logrus.FieldLogger) *ProfileTypeController {
	return &ProfileTypeController{DB: db, Logger: logger}
}

func (pc *ProfileTypeController) GetProfileTypes(c *fiber.Ctx) error {
	user := currentUser(c)
	var types []models.ProfileType
	if err := pc.DB.WithContext(c.UserContext()).Where("organization_id = ?", user.OrganizationID).Order("name asc").Find(&types).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch profile types", err)
	}
	return c.JSON(utils.SuccessResponse(types))
}

func (pc *ProfileTypeController) CreateProfileType(c *fiber.Ctx) error {
	user := currentUser(c)
	var input struct {
		Name        string `json:"name" validate:"required,max=100"`
		Description string `json:"description" validate:"max=500"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}

	pt := models.ProfileType{OrganizationID: user.OrganizationID, Name: input.Name, Description: input.Description}
	if err := pc.DB.WithContext(c.UserContext()).Create(&pt).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create profile type", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(pt))
}

func (pc *ProfileTypeController) UpdateProfileType(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid profile type ID", err)
	}
	var input struct {
		Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
		Description *string `json:"description" validate:"omitempty,max=500"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}

	var pt models.ProfileType
	if err := pc.DB.WithContext(c.UserContext()).Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&pt).Error; err != nil {
		return findError(c, err, "Profile type")
	}
	updates := map[string]interface{}{"updated_at": time.Now()}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if err := pc.DB.WithContext(c.UserContext()).Model(&pt).Updates(updates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update profile type", err)
	}
	return c.JSON(utils.SuccessResponse(pt))
}

func (pc *ProfileTypeController) DeleteProfileType(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid profile type ID", err)
	}

	var pt models.ProfileType
	if err := pc.DB.WithContext(c.UserContext()).Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&pt).Error; err != nil {
		return findError(c, err, "Profile type")
	}
	err = pc.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("profile_type_id = ?", pt.ID).Delete(&models.ProfileTypeAssignment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&pt).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete profile type", err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": pt.ID}))
}

// GetAssignments lists the profile types of a contact, primary first
func (pc *ProfileTypeController) GetAssignments(c *fiber.Ctx) error {
	user := currentUser(c)
	contactID, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid contact ID", err)
	}
	if found, err := exists(c.UserContext(), pc.DB, &models.Contact{}, contactID, user.OrganizationID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
	} else if !found {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}

	var assignments []models.ProfileTypeAssignment
	if err := pc.DB.WithContext(c.UserContext()).Preload("ProfileType").
		Where("contact_id = ?", contactID).
		Order("is_primary desc, id asc").
		Find(&assignments).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch profile types", err)
	}
	return c.JSON(utils.SuccessResponse(assignments))
}

// AssignProfileType binds a profile type to a contact. Marking it primary
// clears the flag on the contact's other assignments in the same transaction.
func (pc *ProfileTypeController) AssignProfileType(c *fiber.Ctx) error {
	user := currentUser(c)
	contactID, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid contact ID", err)
	}
	var input struct {
		ProfileTypeID uint `json:"profile_type_id" validate:"required"`
		IsPrimary     bool `json:"is_primary"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}
	ctx := c.UserContext()

	if found, err := exists(ctx, pc.DB, &models.Contact{}, contactID, user.OrganizationID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
	} else if !found {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}
	if found, err := exists(ctx, pc.DB, &models.ProfileType{}, input.ProfileTypeID, user.OrganizationID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch profile type", err)
	} else if !found {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown profile type", nil)
	}

	assignment := models.ProfileTypeAssignment{
		ContactID:     contactID,
		ProfileTypeID: input.ProfileTypeID,
		IsPrimary:     input.IsPrimary,
	}
	err = pc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if input.IsPrimary {
			if err := tx.Model(&models.ProfileTypeAssignment{}).
				Where("contact_id = ? AND profile_type_id <> ?", contactID, input.ProfileTypeID).
				Updates(map[string]interface{}{"is_primary": false, "updated_at": time.Now()}).Error; err != nil {
				return err
			}
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "contact_id"}, {Name: "profile_type_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_primary", "updated_at"}),
		}).Create(&assignment).Error; err != nil {
			return err
		}
		return tx.Preload("ProfileType").
			Where("contact_id = ? AND profile_type_id = ?", contactID, input.ProfileTypeID).
			First(&assignment).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to assign profile type", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(assignment))
}

func (pc *ProfileTypeController) RemoveAssignment(c *fiber.Ctx) error {
	user := currentUser(c)
	contactID, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid contact ID", err)
	}
	typeID, err := paramID(c, "typeId")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid profile type ID", err)
	}
	if found, err := exists(c.UserContext(), pc.DB, &models.Contact{}, contactID, user.OrganizationID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
	} else if !found {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", nil)
	}

	res := pc.DB.WithContext(c.UserContext()).Where("contact_id = ? AND profile_type_id = ?", contactID, typeID).Delete(&models.ProfileTypeAssignment{})
	if res.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to remove profile type", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Profile type assignment not found", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"contact_id": contactID, "profile_type_id": typeID}))
}
