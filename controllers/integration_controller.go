package controller

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fieldcrm/integrations"
	"fieldcrm/models"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const oauthStateCookie = "oauth_state"

type IntegrationController struct {
	DB     *gorm.DB
	Logger logrus.FieldLogger
	Google *integrations.Google
	Sheets *integrations.Sheets
	AppURL string
	Secure bool
}

func NewIntegrationController(db *gorm.DB, logger logrus.FieldLogger, google *integrations.Google, sheets *integrations.Sheets, appURL string, secure bool) *IntegrationController {
	return &IntegrationController{DB: db, Logger: logger, Google: google, Sheets: sheets, AppURL: appURL, Secure: secure}
}

// ConnectGoogle starts the OAuth flow. The state carries the user id and a
// random token, and is mirrored in a short-lived cookie.
func (ic *IntegrationController) ConnectGoogle(c *fiber.Ctx) error {
	user := currentUser(c)
	if !ic.Google.Configured() {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Google integration is not configured", nil)
	}
	token, err := utils.GenerateSecureToken(16)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate state token", err)
	}
	state := fmt.Sprintf("%d.%s", user.ID, token)

	cookie := new(fiber.Cookie)
	cookie.Name = oauthStateCookie
	cookie.Value = state
	cookie.Expires = time.Now().Add(10 * time.Minute)
	cookie.HTTPOnly = true
	cookie.Secure = ic.Secure
	cookie.SameSite = "Lax"
	c.Cookie(cookie)

	return c.JSON(utils.SuccessResponse(fiber.Map{"url": ic.Google.AuthCodeURL(state)}))
}

func (ic *IntegrationController) GoogleCallback(c *fiber.Ctx) error {
	state := c.Query("state")
	cookieState := c.Cookies(oauthStateCookie)
	if state == "" || cookieState == "" || state != cookieState {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid state parameter", nil)
	}
	c.ClearCookie(oauthStateCookie)

	if errParam := c.Query("error"); errParam != "" {
		return c.Redirect(ic.AppURL+"/settings/integrations?google=denied", fiber.StatusTemporaryRedirect)
	}
	code := c.Query("code")
	if code == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Authorization code not provided", nil)
	}

	rawID, _, _ := strings.Cut(state, ".")
	userID, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil || userID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid state parameter", nil)
	}

	if _, err := ic.Google.Exchange(c.UserContext(), uint(userID), code); err != nil {
		utils.LogError(ic.Logger, "google_oauth_exchange", err, map[string]interface{}{"user_id": userID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to exchange token", err)
	}
	utils.LogEvent(ic.Logger, "google_connected", map[string]interface{}{"user_id": userID})
	return c.Redirect(ic.AppURL+"/settings/integrations?google=connected", fiber.StatusTemporaryRedirect)
}

func (ic *IntegrationController) GoogleStatus(c *fiber.Ctx) error {
	user := currentUser(c)
	integration, err := ic.Google.Integration(c.UserContext(), user.ID)
	if errors.Is(err, integrations.ErrGoogleNotConnected) {
		return c.JSON(utils.SuccessResponse(fiber.Map{"connected": false, "configured": ic.Google.Configured()}))
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch integration", err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"connected":      true,
		"configured":     ic.Google.Configured(),
		"calendar_id":    integration.CalendarID,
		"spreadsheet_id": integration.SpreadsheetID,
		"connected_at":   integration.CreatedAt,
	}))
}

func (ic *IntegrationController) DisconnectGoogle(c *fiber.Ctx) error {
	user := currentUser(c)
	err := ic.Google.Disconnect(c.UserContext(), user.ID)
	if errors.Is(err, integrations.ErrGoogleNotConnected) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Google account is not connected", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to disconnect Google", err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"connected": false}))
}

// ExportContacts appends the organization's contacts to a Google sheet
func (ic *IntegrationController) ExportContacts(c *fiber.Ctx) error {
	user := currentUser(c)
	var input struct {
		SpreadsheetID string `json:"spreadsheet_id" validate:"max=200"`
		CategoryID    uint   `json:"category_id"`
	}
	if len(c.Body()) > 0 {
		if ok, err := parseBody(c, &input); !ok {
			return err
		}
	}
	ctx := c.UserContext()

	query := ic.DB.WithContext(ctx).Where("contacts.organization_id = ?", user.OrganizationID)
	if input.CategoryID != 0 {
		query = query.Joins("JOIN contact_categories cc ON cc.contact_id = contacts.id AND cc.category_id = ?", input.CategoryID)
	}
	var contacts []models.Contact
	if err := query.Order("contacts.id asc").Find(&contacts).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contacts", err)
	}

	result, err := ic.Sheets.ExportContacts(ctx, user.ID, input.SpreadsheetID, contacts)
	if errors.Is(err, integrations.ErrGoogleNotConnected) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Google account is not connected", err)
	}
	if err != nil {
		utils.LogError(ic.Logger, "sheets_export", err, map[string]interface{}{"user_id": user.ID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to export contacts", err)
	}
	return c.JSON(utils.SuccessResponse(result))
}
