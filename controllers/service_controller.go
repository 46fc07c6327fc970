package controller

import (
	"errors"
	"fmt"
	"time"

	"fieldcrm/integrations"
	"fieldcrm/models"
	"fieldcrm/services"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type ServiceController struct {
	DB          *gorm.DB
	Logger      logrus.FieldLogger
	Events      services.Emitter
	Triage      *services.TriageService
	SMS         *services.SMSFlow
	Calendar    services.CalendarProvider
	Attachments *services.Attachments
	Audit       *services.Auditor
}

func NewServiceController(
	db *gorm.DB,
	logger logrus.FieldLogger,
	events services.Emitter,
	triage *services.TriageService,
	sms *services.SMSFlow,
	calendar services.CalendarProvider,
	attachments *services.Attachments,
	audit *services.Auditor,
) *ServiceController {
	return &ServiceController{
		DB:          db,
		Logger:      logger,
		Events:      events,
		Triage:      triage,
		SMS:         sms,
		Calendar:    calendar,
		Attachments: attachments,
		Audit:       audit,
	}
}

func validStatus(status string) bool {
	for _, s := range models.ServiceStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (sc *ServiceController) find(c *fiber.Ctx, id, organizationID uint) (*models.Service, error) {
	var service models.Service
	err := sc.DB.WithContext(c.UserContext()).Preload("Contact").Preload("Appliance").
		Where("id = ? AND organization_id = ?", id, organizationID).First(&service).Error
	if err != nil {
		return nil, err
	}
	return &service, nil
}

// CreateService stores the request and triages it before responding. A failed
// triage is logged; the service is still created.
func (sc *ServiceController) CreateService(c *fiber.Ctx) error {
	user := currentUser(c)
	var input struct {
		ContactID       uint   `json:"contact_id" validate:"required"`
		Description     string `json:"description" validate:"required"`
		ApplianceID     *uint  `json:"appliance_id"`
		Title           string `json:"title" validate:"max=200"`
		Address         string `json:"address"`
		PreferredDate   string `json:"preferred_date"`
		ScheduledAt     string `json:"scheduled_at"`
		DurationMinutes int    `json:"duration_minutes" validate:"gte=0,lte=1440"`
		TechnicianID    *uint  `json:"technician_id"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}
	preferred, err := parseDate(input.PreferredDate)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid preferred_date", err)
	}
	scheduled, err := parseDate(input.ScheduledAt)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid scheduled_at", err)
	}
	ctx := c.UserContext()

	if found, err := exists(ctx, sc.DB, &models.Contact{}, input.ContactID, user.OrganizationID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
	} else if !found {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown contact", nil)
	}

	service := models.Service{
		OrganizationID:  user.OrganizationID,
		ContactID:       input.ContactID,
		ApplianceID:     input.ApplianceID,
		Title:           input.Title,
		Description:     input.Description,
		Status:          models.ServiceStatusNew,
		Urgency:         models.UrgencyNormal,
		Address:         input.Address,
		PreferredDate:   preferred,
		ScheduledAt:     scheduled,
		DurationMinutes: input.DurationMinutes,
		TechnicianID:    input.TechnicianID,
	}
	if service.DurationMinutes == 0 {
		service.DurationMinutes = 60
	}
	if service.ScheduledAt != nil {
		service.Status = models.ServiceStatusScheduled
	}
	if err := sc.DB.WithContext(ctx).Create(&service).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create service", err)
	}
	emit(ctx, sc.Events, user.OrganizationID, services.EventServiceCreated, service)

	var triage *models.ServiceTriage
	if sc.Triage != nil {
		triage, err = sc.Triage.Run(ctx, user.OrganizationID, service.ID)
		if err != nil {
			utils.LogError(sc.Logger, "service_triage", err, map[string]interface{}{"service_id": service.ID})
		} else {
			service.Urgency = triage.Urgency
		}
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{
		"service": service,
		"triage":  triage,
	}))
}

func (sc *ServiceController) GetServices(c *fiber.Ctx) error {
	user := currentUser(c)
	page, limit, offset := utils.Pagination(c)

	query := sc.DB.WithContext(c.UserContext()).Model(&models.Service{}).Where("organization_id = ?", user.OrganizationID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if urgency := c.Query("urgency"); urgency != "" {
		query = query.Where("urgency = ?", urgency)
	}
	if contactID := c.Query("contact_id"); contactID != "" {
		query = query.Where("contact_id = ?", utils.ParseUint(contactID))
	}
	if technicianID := c.Query("technician_id"); technicianID != "" {
		query = query.Where("technician_id = ?", utils.ParseUint(technicianID))
	}
	if from, err := parseDate(c.Query("from")); err == nil && from != nil {
		query = query.Where("scheduled_at >= ?", *from)
	}
	if to, err := parseDate(c.Query("to")); err == nil && to != nil {
		query = query.Where("scheduled_at < ?", *to)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count services", err)
	}
	var list []models.Service
	if err := query.Preload("Contact").Preload("Appliance").Order("created_at desc").
		Offset(offset).Limit(limit).Find(&list).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch services", err)
	}
	return paginated(c, list, total, page, limit)
}

func (sc *ServiceController) GetService(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid service ID", err)
	}
	service, err := sc.find(c, id, user.OrganizationID)
	if err != nil {
		return findError(c, err, "Service")
	}
	return c.JSON(utils.SuccessResponse(service))
}

// UpdateService applies present fields. Status changes emit an event;
// rescheduling a synced service moves its calendar event.
func (sc *ServiceController) UpdateService(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid service ID", err)
	}
	var input struct {
		Title           *string `json:"title" validate:"omitempty,max=200"`
		Description     *string `json:"description" validate:"omitempty,min=1"`
		ApplianceID     *uint   `json:"appliance_id"`
		Status          *string `json:"status"`
		Urgency         *string `json:"urgency" validate:"omitempty,oneof=emergency high normal low"`
		Address         *string `json:"address"`
		PreferredDate   *string `json:"preferred_date"`
		ScheduledAt     *string `json:"scheduled_at"`
		DurationMinutes *int    `json:"duration_minutes" validate:"omitempty,gt=0,lte=1440"`
		TechnicianID    *uint   `json:"technician_id"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}
	if input.Status != nil && !validStatus(*input.Status) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid service status", nil)
	}
	ctx := c.UserContext()

	service, err := sc.find(c, id, user.OrganizationID)
	if err != nil {
		return findError(c, err, "Service")
	}
	previousStatus := service.Status

	updates := map[string]interface{}{"updated_at": time.Now()}
	if input.Title != nil {
		updates["title"] = *input.Title
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.ApplianceID != nil {
		updates["appliance_id"] = *input.ApplianceID
	}
	if input.Urgency != nil {
		updates["urgency"] = *input.Urgency
	}
	if input.Address != nil {
		updates["address"] = *input.Address
	}
	if input.PreferredDate != nil {
		preferred, err := parseDate(*input.PreferredDate)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid preferred_date", err)
		}
		updates["preferred_date"] = preferred
	}
	rescheduled := false
	if input.ScheduledAt != nil {
		scheduled, err := parseDate(*input.ScheduledAt)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid scheduled_at", err)
		}
		updates["scheduled_at"] = scheduled
		rescheduled = true
	}
	if input.DurationMinutes != nil {
		updates["duration_minutes"] = *input.DurationMinutes
		rescheduled = true
	}
	if input.TechnicianID != nil {
		updates["technician_id"] = *input.TechnicianID
	}
	if input.Status != nil && *input.Status != previousStatus {
		updates["status"] = *input.Status
		if *input.Status == models.ServiceStatusCompleted {
			updates["completed_at"] = time.Now()
		}
	}

	if err := sc.DB.WithContext(ctx).Model(service).Updates(updates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update service", err)
	}
	service, err = sc.find(c, id, user.OrganizationID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to reload service", err)
	}

	if rescheduled && service.CalendarEventID != "" && service.ScheduledAt != nil && sc.Calendar != nil {
		if _, err := sc.Calendar.UpsertEvent(ctx, user.ID, calendarEventFor(service)); err != nil {
			utils.LogError(sc.Logger, "calendar_reschedule", err, map[string]interface{}{"service_id": service.ID})
		}
	}

	if service.Status != previousStatus && sc.Events != nil {
		payload := services.ToPayload(service)
		payload["service_id"] = service.ID
		payload["previous_status"] = previousStatus
		sc.Events.Emit(ctx, services.Event{OrganizationID: user.OrganizationID, Type: services.EventServiceStatusChanged, Payload: payload})
	}
	return c.JSON(utils.SuccessResponse(service))
}

// DeleteService removes the calendar event and attachments before the row
func (sc *ServiceController) DeleteService(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid service ID", err)
	}
	ctx := c.UserContext()

	var service models.Service
	if err := sc.DB.WithContext(ctx).Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&service).Error; err != nil {
		return findError(c, err, "Service")
	}
	if service.CalendarEventID != "" && sc.Calendar != nil {
		if err := sc.Calendar.DeleteEvent(ctx, user.ID, service.CalendarEventID); err != nil {
			utils.LogError(sc.Logger, "calendar_delete", err, map[string]interface{}{"service_id": service.ID})
		}
	}
	if err := sc.Attachments.DeleteFor(ctx, user.OrganizationID, models.EntityService, id); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete service attachments", err)
	}
	err = sc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("service_id = ?", id).Delete(&models.ServiceTriage{}).Error; err != nil {
			return err
		}
		return deleteScoped(ctx, tx, &models.Service{}, id, user.OrganizationID)
	})
	if err != nil {
		return findError(c, err, "Service")
	}

	sc.Audit.Record(ctx, user, "service.deleted", models.EntityService, id, nil)
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id}))
}

// RunTriage re-triages a service. Analyzer failures surface as 500.
func (sc *ServiceController) RunTriage(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid service ID", err)
	}
	triage, err := sc.Triage.Run(c.UserContext(), user.OrganizationID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Service not found", nil)
	}
	if err != nil {
		utils.LogError(sc.Logger, "service_triage", err, map[string]interface{}{"service_id": id})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to triage service", err)
	}
	return c.JSON(utils.SuccessResponse(triage))
}

func (sc *ServiceController) GetTriage(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid service ID", err)
	}
	ctx := c.UserContext()
	if found, err := exists(ctx, sc.DB, &models.Service{}, id, user.OrganizationID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch service", err)
	} else if !found {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Service not found", nil)
	}
	triage, err := sc.Triage.Latest(ctx, id)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch triage", err)
	}
	if triage == nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Service has not been triaged", nil)
	}
	return c.JSON(utils.SuccessResponse(triage))
}

// RequestInfo texts the customer for the fields the request lacks. Fields
// default to the latest triage's findings.
func (sc *ServiceController) RequestInfo(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid service ID", err)
	}
	var input struct {
		Phone         string   `json:"phone" validate:"max=40"`
		MissingFields []string `json:"missing_fields"`
	}
	if len(c.Body()) > 0 {
		if ok, err := parseBody(c, &input); !ok {
			return err
		}
	}
	ctx := c.UserContext()

	service, err := sc.find(c, id, user.OrganizationID)
	if err != nil {
		return findError(c, err, "Service")
	}

	fields := services.NamedFields(input.MissingFields)
	if len(fields) == 0 {
		triage, err := sc.Triage.Latest(ctx, service.ID)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch triage", err)
		}
		if triage != nil {
			fields = triage.MissingFields
		}
	}
	if len(fields) == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "No missing fields to request", nil)
	}

	req := services.InfoRequest{
		OrganizationID: user.OrganizationID,
		Phone:          input.Phone,
		MissingFields:  fields,
		ContactID:      &service.ContactID,
		ServiceID:      &service.ID,
	}
	if service.Contact != nil {
		req.FirstName = service.Contact.FirstName
		if req.Phone == "" {
			req.Phone = service.Contact.Phone
		}
	}
	if service.Appliance != nil {
		req.Appliance = service.Appliance.ApplianceType
	}
	if req.Phone == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Contact has no phone number", nil)
	}

	thread, err := sc.SMS.RequestInfo(ctx, req)
	if err != nil {
		utils.LogError(sc.Logger, "sms_info_request", err, map[string]interface{}{"service_id": service.ID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to send info request", err)
	}
	return c.JSON(utils.SuccessResponse(thread))
}

func calendarEventFor(service *models.Service) services.CalendarEvent {
	start := *service.ScheduledAt
	duration := service.DurationMinutes
	if duration <= 0 {
		duration = 60
	}
	summary := service.Title
	if summary == "" {
		summary = "Service visit"
	}
	if service.Contact != nil {
		summary = fmt.Sprintf("%s: %s %s", summary, service.Contact.FirstName, service.Contact.LastName)
	}
	location := service.Address
	if location == "" && service.Contact != nil {
		location = service.Contact.Address
	}
	return services.CalendarEvent{
		ID:          service.CalendarEventID,
		Summary:     summary,
		Description: service.Description,
		Location:    location,
		Start:       start,
		End:         start.Add(time.Duration(duration) * time.Minute),
	}
}

// SyncCalendar writes the scheduled service to the caller's Google calendar
func (sc *ServiceController) SyncCalendar(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid service ID", err)
	}
	if sc.Calendar == nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Google Calendar is not configured", nil)
	}
	ctx := c.UserContext()

	service, err := sc.find(c, id, user.OrganizationID)
	if err != nil {
		return findError(c, err, "Service")
	}
	if service.ScheduledAt == nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Service is not scheduled", nil)
	}

	eventID, err := sc.Calendar.UpsertEvent(ctx, user.ID, calendarEventFor(service))
	if errors.Is(err, integrations.ErrGoogleNotConnected) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Google account is not connected", err)
	}
	if err != nil {
		utils.LogError(sc.Logger, "calendar_sync", err, map[string]interface{}{"service_id": service.ID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to sync calendar", err)
	}
	if err := sc.DB.WithContext(ctx).Model(service).Update("calendar_event_id", eventID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save calendar event", err)
	}
	service.CalendarEventID = eventID
	return c.JSON(utils.SuccessResponse(service))
}
