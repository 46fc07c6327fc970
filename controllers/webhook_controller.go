package controller

import (
	"crypto/subtle"
	"net/url"
	"time"

	"fieldcrm/models"
	"fieldcrm/services"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type WebhookController struct {
	DB         *gorm.DB
	Logger     logrus.FieldLogger
	Processor  *services.WebhookProcessor
	CronSecret string
	BatchSize  int
}

func NewWebhookController(db *gorm.DB, logger logrus.FieldLogger, processor *services.WebhookProcessor, cronSecret string, batchSize int) *WebhookController {
	return &WebhookController{DB: db, Logger: logger, Processor: processor, CronSecret: cronSecret, BatchSize: batchSize}
}

func validWebhookURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func validEvents(events []string) bool {
	for _, e := range events {
		if e != "*" && !services.KnownEvent(e) {
			return false
		}
	}
	return true
}

// CreateWebhook registers an endpoint. The signing secret is generated here.
func (wc *WebhookController) CreateWebhook(c *fiber.Ctx) error {
	user := currentUser(c)
	var input struct {
		URL         string   `json:"url" validate:"required"`
		Description string   `json:"description" validate:"max=500"`
		Events      []string `json:"events" validate:"required,min=1"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}
	if !validWebhookURL(input.URL) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "url must be an http or https URL", nil)
	}
	if !validEvents(input.Events) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown event type", nil)
	}

	secret, err := utils.GenerateSecureToken(32)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate secret", err)
	}
	webhook := models.Webhook{
		OrganizationID: user.OrganizationID,
		URL:            input.URL,
		Description:    input.Description,
		Events:         input.Events,
		Secret:         secret,
		Active:         true,
	}
	if err := wc.DB.WithContext(c.UserContext()).Create(&webhook).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create webhook", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(webhook))
}

func (wc *WebhookController) GetWebhooks(c *fiber.Ctx) error {
	user := currentUser(c)
	var webhooks []models.Webhook
	if err := wc.DB.WithContext(c.UserContext()).Where("organization_id = ?", user.OrganizationID).
		Order("created_at desc").Find(&webhooks).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch webhooks", err)
	}
	return c.JSON(utils.SuccessResponse(webhooks))
}

func (wc *WebhookController) UpdateWebhook(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid webhook ID", err)
	}
	var input struct {
		URL         *string   `json:"url"`
		Description *string   `json:"description" validate:"omitempty,max=500"`
		Events      *[]string `json:"events" validate:"omitempty,min=1"`
		Active      *bool     `json:"active"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}

	var webhook models.Webhook
	if err := wc.DB.WithContext(c.UserContext()).Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&webhook).Error; err != nil {
		return findError(c, err, "Webhook")
	}
	if input.URL != nil {
		if !validWebhookURL(*input.URL) {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "url must be an http or https URL", nil)
		}
		webhook.URL = *input.URL
	}
	if input.Description != nil {
		webhook.Description = *input.Description
	}
	if input.Events != nil {
		if !validEvents(*input.Events) {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown event type", nil)
		}
		webhook.Events = *input.Events
	}
	if input.Active != nil {
		webhook.Active = *input.Active
	}
	webhook.UpdatedAt = time.Now()
	if err := wc.DB.WithContext(c.UserContext()).Save(&webhook).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update webhook", err)
	}
	return c.JSON(utils.SuccessResponse(webhook))
}

func (wc *WebhookController) DeleteWebhook(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid webhook ID", err)
	}
	ctx := c.UserContext()
	err = wc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteScoped(ctx, tx, &models.Webhook{}, id, user.OrganizationID); err != nil {
			return err
		}
		return tx.Where("webhook_id = ? AND status = ?", id, models.DeliveryPending).Delete(&models.WebhookDelivery{}).Error
	})
	if err != nil {
		return findError(c, err, "Webhook")
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id}))
}

func (wc *WebhookController) GetDeliveries(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid webhook ID", err)
	}
	ctx := c.UserContext()
	if found, err := exists(ctx, wc.DB, &models.Webhook{}, id, user.OrganizationID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch webhook", err)
	} else if !found {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Webhook not found", nil)
	}

	page, limit, offset := utils.Pagination(c)
	query := wc.DB.WithContext(ctx).Model(&models.WebhookDelivery{}).Where("webhook_id = ?", id)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count deliveries", err)
	}
	var deliveries []models.WebhookDelivery
	if err := query.Order("created_at desc, id desc").Offset(offset).Limit(limit).Find(&deliveries).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch deliveries", err)
	}
	return paginated(c, deliveries, total, page, limit)
}

// ProcessDeliveries runs one delivery batch for an external scheduler. The
// caller authenticates with the shared X-Cron-Secret header.
func (wc *WebhookController) ProcessDeliveries(c *fiber.Ctx) error {
	given := c.Get("X-Cron-Secret")
	if wc.CronSecret == "" || subtle.ConstantTimeCompare([]byte(given), []byte(wc.CronSecret)) != 1 {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Unauthorized", nil)
	}
	limit := c.QueryInt("limit", wc.BatchSize)
	result, err := wc.Processor.ProcessBatch(c.UserContext(), limit)
	if err != nil {
		utils.LogError(wc.Logger, "webhook_batch", err, nil)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to process webhook deliveries", err)
	}
	return c.JSON(utils.SuccessResponse(result))
}
