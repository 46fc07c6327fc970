package controller

import (
	"context"
	"strings"
	"time"

	"fieldcrm/models"
	"fieldcrm/policy"
	"fieldcrm/services"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RoleResolver reports the effective role of a user
type RoleResolver interface {
	RoleOf(ctx context.Context, user *models.User) (string, error)
}

type UserController struct {
	DB     *gorm.DB
	Logger logrus.FieldLogger
	Roles  RoleResolver
	Audit  *services.Auditor
}

func NewUserController(db *gorm.DB, logger logrus.FieldLogger, roles RoleResolver, audit *services.Auditor) *UserController {
	return &UserController{DB: db, Logger: logger, Roles: roles, Audit: audit}
}

// GetCurrentUser returns the caller with their organization and grants
func (uc *UserController) GetCurrentUser(c *fiber.Ctx) error {
	user := currentUser(c)
	role, err := uc.Roles.RoleOf(c.UserContext(), user)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to resolve role", err)
	}
	var org models.Organization
	if err := uc.DB.WithContext(c.UserContext()).First(&org, user.OrganizationID).Error; err != nil {
		return findError(c, err, "Organization")
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"user":         user,
		"organization": org,
		"role":         role,
		"permissions":  policy.Permissions(role),
	}))
}

func (uc *UserController) GetUsers(c *fiber.Ctx) error {
	user := currentUser(c)
	var users []models.User
	if err := uc.DB.WithContext(c.UserContext()).Where("organization_id = ?", user.OrganizationID).
		Order("created_at asc").Find(&users).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch users", err)
	}
	return c.JSON(utils.SuccessResponse(users))
}

// CreateUser registers an operator already known to the auth provider
func (uc *UserController) CreateUser(c *fiber.Ctx) error {
	admin := currentUser(c)
	var input struct {
		AuthID string `json:"auth_id" validate:"required,max=200"`
		Email  string `json:"email" validate:"required,mailformat"`
		Name   string `json:"name" validate:"max=200"`
		Phone  string `json:"phone" validate:"max=40"`
		Role   string `json:"role" validate:"required"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}
	if !policy.ValidRole(input.Role) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid role", nil)
	}

	user := models.User{
		OrganizationID: admin.OrganizationID,
		AuthID:         input.AuthID,
		Email:          strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:          input.Phone,
		Role:           input.Role,
		IsActive:       true,
	}
	if input.Name != "" {
		user.Name = utils.Pointer(input.Name)
	}

	var count int64
	if err := uc.DB.WithContext(c.UserContext()).Model(&models.User{}).
		Where("auth_id = ? OR email = ?", user.AuthID, user.Email).Count(&count).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check existing users", err)
	}
	if count > 0 {
		return utils.ErrorResponse(c, fiber.StatusConflict, "User already exists", nil)
	}
	if err := uc.DB.WithContext(c.UserContext()).Create(&user).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create user", err)
	}

	uc.Audit.Record(c.UserContext(), admin, "user.created", "user", user.ID, map[string]interface{}{"role": user.Role})
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(user))
}

// UpdateRole changes a user's role or active flag. Admins cannot demote or
// deactivate themselves.
func (uc *UserController) UpdateRole(c *fiber.Ctx) error {
	admin := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid user ID", err)
	}
	var input struct {
		Role     string `json:"role" validate:"required"`
		IsActive *bool  `json:"is_active"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}
	if !policy.ValidRole(input.Role) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid role", nil)
	}
	if id == admin.ID && (input.Role != admin.Role || (input.IsActive != nil && !*input.IsActive)) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "You cannot change your own role", nil)
	}

	var user models.User
	if err := uc.DB.WithContext(c.UserContext()).Where("id = ? AND organization_id = ?", id, admin.OrganizationID).First(&user).Error; err != nil {
		return findError(c, err, "User")
	}
	previous := user.Role
	updates := map[string]interface{}{"role": input.Role, "updated_at": time.Now()}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if err := uc.DB.WithContext(c.UserContext()).Model(&user).Updates(updates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update user", err)
	}

	uc.Audit.Record(c.UserContext(), admin, "user.role_changed", "user", user.ID, map[string]interface{}{
		"from": previous,
		"to":   input.Role,
	})
	return c.JSON(utils.SuccessResponse(user))
}
