package middleware

import (
	"errors"
	"strings"

	"fieldcrm/models"
	"fieldcrm/policy"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const userLocalsKey = "user"

// Gate resolves the caller's identity and enforces permissions.
type Gate struct {
	DB                  *gorm.DB
	Secret              string
	CookieName          string
	Authority           Authority
	BootstrapAdminEmail string
	Logger              logrus.FieldLogger
}

// Protected authenticates the request. The Authorization header wins over the
// session cookie.
func (g *Gate) Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var token string
		authHeader := c.Get("Authorization")
		if authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "Bearer") {
				return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Unauthorized", nil)
			}
			token = tokenParts[1]
		} else {
			token = utils.TokenFromSessionCookie(c.Cookies(g.CookieName))
		}
		if token == "" {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Unauthorized", nil)
		}

		claims, err := utils.ParseAccessToken(token, g.Secret)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Unauthorized", nil)
		}

		user, err := g.resolveUser(c, claims)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Unauthorized", nil)
			}
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to resolve user", err)
		}

		if !user.IsActive {
			return utils.ErrorResponse(c, fiber.StatusForbidden, "Forbidden", nil)
		}

		c.Locals(userLocalsKey, user)
		c.Locals("userID", user.ID)
		c.Locals("organizationID", user.OrganizationID)
		return c.Next()
	}
}

func (g *Gate) resolveUser(c *fiber.Ctx, claims *utils.Claims) (*models.User, error) {
	var user models.User
	err := g.DB.WithContext(c.UserContext()).Where("auth_id = ?", claims.Subject).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) || g.BootstrapAdminEmail == "" ||
		!strings.EqualFold(claims.Email, g.BootstrapAdminEmail) {
		return nil, err
	}
	return g.bootstrapAdmin(c, claims)
}

// bootstrapAdmin provisions the first administrator and their organization.
func (g *Gate) bootstrapAdmin(c *fiber.Ctx, claims *utils.Claims) (*models.User, error) {
	user := models.User{
		AuthID:   claims.Subject,
		Email:    strings.ToLower(claims.Email),
		Role:     policy.RoleAdmin,
		IsActive: true,
	}
	err := g.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		org := models.Organization{Name: "My Organization"}
		if err := tx.Create(&org).Error; err != nil {
			return err
		}
		user.OrganizationID = org.ID
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return models.CreateDefaultStages(tx, org.ID)
	})
	if err != nil {
		return nil, err
	}
	if g.Logger != nil {
		utils.LogEvent(g.Logger, "admin_bootstrapped", map[string]interface{}{
			"user_id": user.ID,
			"email":   user.Email,
		})
	}
	return &user, nil
}

// RequirePermission rejects callers whose role lacks perm.
func (g *Gate) RequirePermission(perm string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Unauthorized", nil)
		}
		allowed, err := g.Authority.HasPermission(c.UserContext(), user, perm)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check permission", err)
		}
		if !allowed {
			return utils.ErrorResponse(c, fiber.StatusForbidden, "Forbidden", nil)
		}
		return c.Next()
	}
}

// RequireRole rejects callers whose role is not one of roles.
func (g *Gate) RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Unauthorized", nil)
		}
		role, err := g.Authority.RoleOf(c.UserContext(), user)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to resolve role", err)
		}
		for _, r := range roles {
			if r == role {
				return c.Next()
			}
		}
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Forbidden", nil)
	}
}

// CurrentUser returns the authenticated user, or nil outside Protected.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(userLocalsKey).(*models.User)
	return user
}
