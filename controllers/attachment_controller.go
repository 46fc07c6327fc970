package controller

import (
	"errors"

	"fieldcrm/models"
	"fieldcrm/services"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type AttachmentController struct {
	DB          *gorm.DB
	Logger      logrus.FieldLogger
	Attachments *services.Attachments
}

func NewAttachmentController(db *gorm.DB, logger logrus.FieldLogger, attachments *services.Attachments) *AttachmentController {
	return &AttachmentController{DB: db, Logger: logger, Attachments: attachments}
}

// entityModel maps an attachment owner type to its table.
func entityModel(entityType string) interface{} {
	switch entityType {
	case models.EntityContact:
		return &models.Contact{}
	case models.EntityDeal:
		return &models.Deal{}
	case models.EntityTask:
		return &models.Task{}
	case models.EntityService:
		return &models.Service{}
	case models.EntityInvoice:
		return &models.Invoice{}
	}
	return nil
}

func (ac *AttachmentController) GetAttachments(c *fiber.Ctx) error {
	user := currentUser(c)
	query := ac.DB.WithContext(c.UserContext()).Where("organization_id = ?", user.OrganizationID)
	if entityType := c.Query("entity_type"); entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}
	if entityID := c.Query("entity_id"); entityID != "" {
		query = query.Where("entity_id = ?", utils.ParseUint(entityID))
	}
	var attachments []models.Attachment
	if err := query.Order("created_at desc").Find(&attachments).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch attachments", err)
	}
	return c.JSON(utils.SuccessResponse(attachments))
}

// UploadAttachment accepts a multipart file for one record
func (ac *AttachmentController) UploadAttachment(c *fiber.Ctx) error {
	user := currentUser(c)

	entityType := c.FormValue("entity_type")
	model := entityModel(entityType)
	if model == nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "entity_type must be one of contact, deal, task, service, invoice", nil)
	}
	entityID := utils.ParseUint(c.FormValue("entity_id"))
	if entityID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "entity_id is required", nil)
	}
	header, err := c.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "file is required", err)
	}
	ctx := c.UserContext()

	if found, err := exists(ctx, ac.DB, model, entityID, user.OrganizationID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch "+entityType, err)
	} else if !found {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Attached record not found", nil)
	}

	file, err := header.Open()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to read file", err)
	}
	defer file.Close()

	attachment, err := ac.Attachments.Upload(ctx, services.Upload{
		OrganizationID: user.OrganizationID,
		UploadedBy:     user.ID,
		EntityType:     entityType,
		EntityID:       entityID,
		FileName:       header.Filename,
		Size:           header.Size,
		Body:           file,
	})
	if errors.Is(err, services.ErrUploadRejected) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File rejected", err)
	}
	if err != nil {
		utils.LogError(ac.Logger, "attachment_upload", err, map[string]interface{}{"entity_type": entityType, "entity_id": entityID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to upload file", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(attachment))
}

func (ac *AttachmentController) DeleteAttachment(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid attachment ID", err)
	}
	var attachment models.Attachment
	if err := ac.DB.WithContext(c.UserContext()).Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&attachment).Error; err != nil {
		return findError(c, err, "Attachment")
	}
	if err := ac.Attachments.Delete(c.UserContext(), &attachment); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete attachment", err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id}))
}
