package controller

import (
	"time"

	"fieldcrm/models"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type CategoryController struct {
	DB     *gorm.DB
	Logger logrus.FieldLogger
}

func NewCategoryController(db *gorm.DB, logger logrus.FieldLogger) *CategoryController {
	return &CategoryController{DB: db, Logger: logger}
}

func (cc *CategoryController) GetCategories(c *fiber.Ctx) error {
	user := currentUser(c)
	var categories []models.Category
	if err := cc.DB.WithContext(c.UserContext()).Where("organization_id = ?", user.OrganizationID).Order("name asc").Find(&categories).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch categories", err)
	}
	return c.JSON(utils.SuccessResponse(categories))
}

func (cc *CategoryController) CreateCategory(c *fiber.Ctx) error {
	user := currentUser(c)
	var input struct {
		Name  string `json:"name" validate:"required,max=100"`
		Color string `json:"color" validate:"omitempty,hexcolor"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}

	category := models.Category{OrganizationID: user.OrganizationID, Name: input.Name, Color: input.Color}
	if err := cc.DB.WithContext(c.UserContext()).Create(&category).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create category", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(category))
}

func (cc *CategoryController) UpdateCategory(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid category ID", err)
	}
	var input struct {
		Name  *string `json:"name" validate:"omitempty,min=1,max=100"`
		Color *string `json:"color" validate:"omitempty,hexcolor"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}

	var category models.Category
	if err := cc.DB.WithContext(c.UserContext()).Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&category).Error; err != nil {
		return findError(c, err, "Category")
	}
	updates := map[string]interface{}{"updated_at": time.Now()}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Color != nil {
		updates["color"] = *input.Color
	}
	if err := cc.DB.WithContext(c.UserContext()).Model(&category).Updates(updates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update category", err)
	}
	return c.JSON(utils.SuccessResponse(category))
}

// DeleteCategory untags every contact, then removes the category
func (cc *CategoryController) DeleteCategory(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid category ID", err)
	}

	var category models.Category
	if err := cc.DB.WithContext(c.UserContext()).Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&category).Error; err != nil {
		return findError(c, err, "Category")
	}
	err = cc.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM contact_categories WHERE category_id = ?", category.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&category).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete category", err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": category.ID}))
}
