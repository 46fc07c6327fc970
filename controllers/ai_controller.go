package controller

import (
	"errors"

	"fieldcrm/services"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type AIController struct {
	Assistant *services.Assistant
	Logger    logrus.FieldLogger
}

func NewAIController(assistant *services.Assistant, logger logrus.FieldLogger) *AIController {
	return &AIController{Assistant: assistant, Logger: logger}
}

// Ask answers one assistant turn
func (ac *AIController) Ask(c *fiber.Ctx) error {
	user := currentUser(c)
	var input struct {
		Message string                 `json:"message" validate:"required,max=4000"`
		History []services.ChatMessage `json:"history" validate:"omitempty,dive"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}

	reply, err := ac.Assistant.Reply(c.UserContext(), user, input.Message, input.History)
	if errors.Is(err, services.ErrAssistantNotConfigured) {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, err.Error(), nil)
	}
	if err != nil {
		utils.LogError(ac.Logger, "ai_assistant", err, map[string]interface{}{"user_id": user.ID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get a reply", err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"reply": reply}))
}
