package controller

import (
	"errors"
	"time"

	"fieldcrm/models"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type PipelineController struct {
	DB     *gorm.DB
	Logger logrus.FieldLogger
}

func NewPipelineController(db *gorm.DB, logger logrus.FieldLogger) *PipelineController {
	return &PipelineController{DB: db, Logger: logger}
}

func (pc *PipelineController) GetStages(c *fiber.Ctx) error {
	user := currentUser(c)
	var stages []models.PipelineStage
	if err := pc.DB.WithContext(c.UserContext()).Where("organization_id = ?", user.OrganizationID).Order("position asc, id asc").Find(&stages).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch pipeline stages", err)
	}
	return c.JSON(utils.SuccessResponse(stages))
}

func (pc *PipelineController) CreateStage(c *fiber.Ctx) error {
	user := currentUser(c)
	var input struct {
		Name        string `json:"name" validate:"required,max=100"`
		Position    *int   `json:"position" validate:"required,gte=0"`
		Probability int    `json:"probability" validate:"gte=0,lte=100"`
		IsWon       bool   `json:"is_won"`
		IsLost      bool   `json:"is_lost"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}
	if input.IsWon && input.IsLost {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "A stage cannot be both won and lost", nil)
	}

	stage := models.PipelineStage{
		OrganizationID: user.OrganizationID,
		Name:           input.Name,
		Position:       *input.Position,
		Probability:    input.Probability,
		IsWon:          input.IsWon,
		IsLost:         input.IsLost,
	}
	if err := pc.DB.WithContext(c.UserContext()).Create(&stage).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create pipeline stage", err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(stage))
}

func (pc *PipelineController) UpdateStage(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid stage ID", err)
	}
	var input struct {
		Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
		Position    *int    `json:"position" validate:"omitempty,gte=0"`
		Probability *int    `json:"probability" validate:"omitempty,gte=0,lte=100"`
		IsWon       *bool   `json:"is_won"`
		IsLost      *bool   `json:"is_lost"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}

	var stage models.PipelineStage
	if err := pc.DB.WithContext(c.UserContext()).Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&stage).Error; err != nil {
		return findError(c, err, "Pipeline stage")
	}
	if input.Name != nil {
		stage.Name = *input.Name
	}
	if input.Position != nil {
		stage.Position = *input.Position
	}
	if input.Probability != nil {
		stage.Probability = *input.Probability
	}
	if input.IsWon != nil {
		stage.IsWon = *input.IsWon
	}
	if input.IsLost != nil {
		stage.IsLost = *input.IsLost
	}
	if stage.IsWon && stage.IsLost {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "A stage cannot be both won and lost", nil)
	}
	stage.UpdatedAt = time.Now()
	if err := pc.DB.WithContext(c.UserContext()).Save(&stage).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update pipeline stage", err)
	}
	return c.JSON(utils.SuccessResponse(stage))
}

// DeleteStage refuses to orphan deals
func (pc *PipelineController) DeleteStage(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid stage ID", err)
	}
	ctx := c.UserContext()

	var deals int64
	if err := pc.DB.WithContext(ctx).Model(&models.Deal{}).Where("stage_id = ? AND organization_id = ?", id, user.OrganizationID).Count(&deals).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count deals", err)
	}
	if deals > 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Stage still has deals; move them first", nil)
	}

	if err := deleteScoped(ctx, pc.DB, &models.PipelineStage{}, id, user.OrganizationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Pipeline stage not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete pipeline stage", err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id}))
}
