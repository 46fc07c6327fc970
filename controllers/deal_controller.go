package controller

import (
	"errors"
	"time"

	"fieldcrm/models"
	"fieldcrm/services"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type DealController struct {
	DB          *gorm.DB
	Logger      logrus.FieldLogger
	Events      services.Emitter
	Attachments *services.Attachments
	Audit       *services.Auditor
}

func NewDealController(db *gorm.DB, logger logrus.FieldLogger, events services.Emitter, attachments *services.Attachments, audit *services.Auditor) *DealController {
	return &DealController{DB: db, Logger: logger, Events: events, Attachments: attachments, Audit: audit}
}

func (dc *DealController) stage(c *fiber.Ctx, id, organizationID uint) (*models.PipelineStage, error) {
	var stage models.PipelineStage
	if err := dc.DB.WithContext(c.UserContext()).Where("id = ? AND organization_id = ?", id, organizationID).First(&stage).Error; err != nil {
		return nil, err
	}
	return &stage, nil
}

func (dc *DealController) CreateDeal(c *fiber.Ctx) error {
	user := currentUser(c)
	var input struct {
		Title             string `json:"title" validate:"required,max=200"`
		StageID           uint   `json:"stage_id" validate:"required"`
		ContactID         *uint  `json:"contact_id"`
		Value             int64  `json:"value" validate:"gte=0"`
		Currency          string `json:"currency" validate:"omitempty,len=3"`
		Probability       *int   `json:"probability" validate:"omitempty,gte=0,lte=100"`
		ExpectedCloseDate string `json:"expected_close_date"`
		OwnerID           *uint  `json:"owner_id"`
		Notes             string `json:"notes"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}
	closeDate, err := parseDate(input.ExpectedCloseDate)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid expected_close_date", err)
	}

	stage, err := dc.stage(c, input.StageID, user.OrganizationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown pipeline stage", nil)
	} else if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch pipeline stage", err)
	}
	if input.ContactID != nil {
		if found, err := exists(c.UserContext(), dc.DB, &models.Contact{}, *input.ContactID, user.OrganizationID); err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
		} else if !found {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown contact", nil)
		}
	}

	deal := models.Deal{
		OrganizationID:    user.OrganizationID,
		Title:             input.Title,
		ContactID:         input.ContactID,
		StageID:           stage.ID,
		Value:             input.Value,
		Currency:          input.Currency,
		Probability:       stage.Probability,
		ExpectedCloseDate: closeDate,
		OwnerID:           input.OwnerID,
		Notes:             input.Notes,
	}
	if input.Probability != nil {
		deal.Probability = *input.Probability
	}
	if deal.Currency == "" {
		deal.Currency = "usd"
	}
	if deal.OwnerID == nil {
		deal.OwnerID = &user.ID
	}
	if stage.IsWon || stage.IsLost {
		deal.ClosedAt = utils.Pointer(time.Now())
	}

	if err := dc.DB.WithContext(c.UserContext()).Create(&deal).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create deal", err)
	}
	deal.Stage = stage

	emit(c.UserContext(), dc.Events, user.OrganizationID, services.EventDealCreated, deal)
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(deal))
}

func (dc *DealController) GetDeals(c *fiber.Ctx) error {
	user := currentUser(c)
	page, limit, offset := utils.Pagination(c)

	query := dc.DB.WithContext(c.UserContext()).Model(&models.Deal{}).Where("organization_id = ?", user.OrganizationID)
	if stageID := c.Query("stage_id"); stageID != "" {
		query = query.Where("stage_id = ?", utils.ParseUint(stageID))
	}
	if contactID := c.Query("contact_id"); contactID != "" {
		query = query.Where("contact_id = ?", utils.ParseUint(contactID))
	}
	if ownerID := c.Query("owner_id"); ownerID != "" {
		query = query.Where("owner_id = ?", utils.ParseUint(ownerID))
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count deals", err)
	}
	var deals []models.Deal
	if err := query.Preload("Contact").Preload("Stage").Order("created_at desc").Offset(offset).Limit(limit).Find(&deals).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch deals", err)
	}
	return paginated(c, deals, total, page, limit)
}

func (dc *DealController) GetDeal(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid deal ID", err)
	}
	var deal models.Deal
	if err := dc.DB.WithContext(c.UserContext()).Preload("Contact").Preload("Stage").
		Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&deal).Error; err != nil {
		return findError(c, err, "Deal")
	}
	return c.JSON(utils.SuccessResponse(deal))
}

// UpdateDeal applies present fields. Moving into a won or lost stage stamps
// closed_at; moving out clears it.
func (dc *DealController) UpdateDeal(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid deal ID", err)
	}
	var input struct {
		Title             *string `json:"title" validate:"omitempty,min=1,max=200"`
		StageID           *uint   `json:"stage_id"`
		ContactID         *uint   `json:"contact_id"`
		Value             *int64  `json:"value" validate:"omitempty,gte=0"`
		Currency          *string `json:"currency" validate:"omitempty,len=3"`
		Probability       *int    `json:"probability" validate:"omitempty,gte=0,lte=100"`
		ExpectedCloseDate *string `json:"expected_close_date"`
		OwnerID           *uint   `json:"owner_id"`
		Notes             *string `json:"notes"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}
	ctx := c.UserContext()

	var deal models.Deal
	if err := dc.DB.WithContext(ctx).Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&deal).Error; err != nil {
		return findError(c, err, "Deal")
	}
	previousStage := deal.StageID

	updates := map[string]interface{}{"updated_at": time.Now()}
	if input.Title != nil {
		updates["title"] = *input.Title
	}
	if input.ContactID != nil {
		updates["contact_id"] = *input.ContactID
	}
	if input.Value != nil {
		updates["value"] = *input.Value
	}
	if input.Currency != nil {
		updates["currency"] = *input.Currency
	}
	if input.Probability != nil {
		updates["probability"] = *input.Probability
	}
	if input.ExpectedCloseDate != nil {
		closeDate, err := parseDate(*input.ExpectedCloseDate)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid expected_close_date", err)
		}
		updates["expected_close_date"] = closeDate
	}
	if input.OwnerID != nil {
		updates["owner_id"] = *input.OwnerID
	}
	if input.Notes != nil {
		updates["notes"] = *input.Notes
	}

	var newStage *models.PipelineStage
	if input.StageID != nil && *input.StageID != deal.StageID {
		newStage, err = dc.stage(c, *input.StageID, user.OrganizationID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown pipeline stage", nil)
		} else if err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch pipeline stage", err)
		}
		updates["stage_id"] = newStage.ID
		if input.Probability == nil {
			updates["probability"] = newStage.Probability
		}
		if newStage.IsWon || newStage.IsLost {
			updates["closed_at"] = time.Now()
		} else {
			updates["closed_at"] = nil
		}
	}

	if err := dc.DB.WithContext(ctx).Model(&deal).Updates(updates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update deal", err)
	}
	if err := dc.DB.WithContext(ctx).Preload("Contact").Preload("Stage").First(&deal, deal.ID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to reload deal", err)
	}

	if newStage != nil {
		payload := services.ToPayload(deal)
		payload["from_stage_id"] = previousStage
		payload["to_stage_id"] = newStage.ID
		payload["stage_name"] = newStage.Name
		payload["won"] = newStage.IsWon
		payload["lost"] = newStage.IsLost
		if dc.Events != nil {
			dc.Events.Emit(ctx, services.Event{OrganizationID: user.OrganizationID, Type: services.EventDealStageChanged, Payload: payload})
		}
	}
	return c.JSON(utils.SuccessResponse(deal))
}

func (dc *DealController) DeleteDeal(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid deal ID", err)
	}
	ctx := c.UserContext()

	if found, err := exists(ctx, dc.DB, &models.Deal{}, id, user.OrganizationID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch deal", err)
	} else if !found {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Deal not found", nil)
	}
	if err := dc.Attachments.DeleteFor(ctx, user.OrganizationID, models.EntityDeal, id); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete deal attachments", err)
	}
	if err := deleteScoped(ctx, dc.DB, &models.Deal{}, id, user.OrganizationID); err != nil {
		return findError(c, err, "Deal")
	}

	dc.Audit.Record(ctx, user, "deal.deleted", models.EntityDeal, id, nil)
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id}))
}
