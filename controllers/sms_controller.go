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

// RequestValidator checks the provider signature of an inbound webhook
type RequestValidator interface {
	ValidRequest(url string, params map[string]string, signature string) bool
}

type SMSController struct {
	DB         *gorm.DB
	Logger     logrus.FieldLogger
	Flow       *services.SMSFlow
	Events     services.Emitter
	Validator  RequestValidator
	InboundURL string
}

func NewSMSController(db *gorm.DB, logger logrus.FieldLogger, flow *services.SMSFlow, events services.Emitter, validator RequestValidator, inboundURL string) *SMSController {
	return &SMSController{DB: db, Logger: logger, Flow: flow, Events: events, Validator: validator, InboundURL: inboundURL}
}

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

func (sc *SMSController) GetThreads(c *fiber.Ctx) error {
	user := currentUser(c)
	page, limit, offset := utils.Pagination(c)

	query := sc.DB.WithContext(c.UserContext()).Model(&models.SMSThread{}).Where("organization_id = ?", user.OrganizationID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if contactID := c.Query("contact_id"); contactID != "" {
		query = query.Where("contact_id = ?", utils.ParseUint(contactID))
	}
	if phone := c.Query("phone"); phone != "" {
		query = query.Where("phone_number = ?", models.NormalizePhone(phone))
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count threads", err)
	}
	var threads []models.SMSThread
	if err := query.Order("last_message_at desc, id desc").Offset(offset).Limit(limit).Find(&threads).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch threads", err)
	}
	return paginated(c, threads, total, page, limit)
}

func (sc *SMSController) GetThread(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid thread ID", err)
	}
	var thread models.SMSThread
	if err := sc.DB.WithContext(c.UserContext()).Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&thread).Error; err != nil {
		return findError(c, err, "Thread")
	}
	return c.JSON(utils.SuccessResponse(thread))
}

// SendSMS sends an ad-hoc text and logs it on the number's thread
func (sc *SMSController) SendSMS(c *fiber.Ctx) error {
	user := currentUser(c)
	var input struct {
		To        string `json:"to" validate:"required,max=40"`
		Body      string `json:"body" validate:"required,max=1600"`
		ContactID *uint  `json:"contact_id"`
		ServiceID *uint  `json:"service_id"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}
	if models.NormalizePhone(input.To) == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid phone number", nil)
	}

	thread, err := sc.Flow.Send(c.UserContext(), services.OutboundSMS{
		OrganizationID: user.OrganizationID,
		Phone:          input.To,
		Body:           input.Body,
		Kind:           services.KindManual,
		ContactID:      input.ContactID,
		ServiceID:      input.ServiceID,
	})
	if err != nil {
		utils.LogError(sc.Logger, "sms_send", err, map[string]interface{}{"user_id": user.ID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to send SMS", err)
	}
	return c.JSON(utils.SuccessResponse(thread))
}

// HandleInbound receives Twilio's inbound message webhook. Replies from
// unknown numbers are acknowledged and dropped.
func (sc *SMSController) HandleInbound(c *fiber.Ctx) error {
	if sc.Validator == nil {
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "SMS is not configured", nil)
	}

	params := map[string]string{}
	c.Request().PostArgs().VisitAll(func(key, value []byte) {
		params[string(key)] = string(value)
	})
	url := sc.InboundURL
	if url == "" {
		url = c.BaseURL() + c.OriginalURL()
	}
	if !sc.Validator.ValidRequest(url, params, c.Get("X-Twilio-Signature")) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Invalid signature", nil)
	}

	from, body, sid := params["From"], params["Body"], params["MessageSid"]
	if from == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "From is required", nil)
	}

	ctx := c.UserContext()
	thread, err := sc.Flow.RecordInbound(ctx, from, body, sid)
	switch {
	case errors.Is(err, services.ErrUnknownSender):
		utils.LogEvent(sc.Logger, "sms_inbound_unmatched", map[string]interface{}{"sid": sid})
	case err != nil:
		utils.LogError(sc.Logger, "sms_inbound", err, map[string]interface{}{"sid": sid})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to record message", err)
	default:
		if sc.Events != nil {
			payload := services.ToPayload(thread)
			payload["thread_id"] = thread.ID
			payload["from"] = thread.PhoneNumber
			payload["body"] = body
			if thread.ServiceID != nil {
				payload["service_id"] = *thread.ServiceID
			}
			sc.Events.Emit(ctx, services.Event{OrganizationID: thread.OrganizationID, Type: services.EventSMSReceived, Payload: payload})
		}
	}

	c.Set(fiber.HeaderContentType, "text/xml")
	return c.SendString(emptyTwiML)
}
