package controller

import (
	"time"

	"fieldcrm/models"
	"fieldcrm/services"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type TaskController struct {
	DB          *gorm.DB
	Logger      logrus.FieldLogger
	Events      services.Emitter
	Attachments *services.Attachments
}

func NewTaskController(db *gorm.DB, logger logrus.FieldLogger, events services.Emitter, attachments *services.Attachments) *TaskController {
	return &TaskController{DB: db, Logger: logger, Events: events, Attachments: attachments}
}

func (tc *TaskController) CreateTask(c *fiber.Ctx) error {
	user := currentUser(c)
	var input struct {
		Title       string `json:"title" validate:"required,max=200"`
		Description string `json:"description"`
		ContactID   *uint  `json:"contact_id"`
		DealID      *uint  `json:"deal_id"`
		ServiceID   *uint  `json:"service_id"`
		AssignedTo  *uint  `json:"assigned_to"`
		Priority    string `json:"priority" validate:"omitempty,oneof=low normal high"`
		DueDate     string `json:"due_date"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}
	dueDate, err := parseDate(input.DueDate)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid due_date", err)
	}

	task := models.Task{
		OrganizationID: user.OrganizationID,
		Title:          input.Title,
		Description:    input.Description,
		ContactID:      input.ContactID,
		DealID:         input.DealID,
		ServiceID:      input.ServiceID,
		AssignedTo:     input.AssignedTo,
		Priority:       input.Priority,
		DueDate:        dueDate,
	}
	if task.Priority == "" {
		task.Priority = "normal"
	}
	if err := tc.DB.WithContext(c.UserContext()).Create(&task).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create task", err)
	}

	emit(c.UserContext(), tc.Events, user.OrganizationID, services.EventTaskCreated, task)
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(task))
}

// GetTasks lists tasks ordered by due date, undated last
func (tc *TaskController) GetTasks(c *fiber.Ctx) error {
	user := currentUser(c)
	page, limit, offset := utils.Pagination(c)

	query := tc.DB.WithContext(c.UserContext()).Model(&models.Task{}).Where("organization_id = ?", user.OrganizationID)
	switch c.Query("completed") {
	case "true":
		query = query.Where("completed = ?", true)
	case "false":
		query = query.Where("completed = ?", false)
	}
	if assignee := c.Query("assigned_to"); assignee != "" {
		query = query.Where("assigned_to = ?", utils.ParseUint(assignee))
	}
	if contactID := c.Query("contact_id"); contactID != "" {
		query = query.Where("contact_id = ?", utils.ParseUint(contactID))
	}
	if dealID := c.Query("deal_id"); dealID != "" {
		query = query.Where("deal_id = ?", utils.ParseUint(dealID))
	}
	if serviceID := c.Query("service_id"); serviceID != "" {
		query = query.Where("service_id = ?", utils.ParseUint(serviceID))
	}
	if c.Query("overdue") == "true" {
		query = query.Where("completed = ? AND due_date < ?", false, time.Now())
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count tasks", err)
	}
	var tasks []models.Task
	if err := query.Preload("Contact").Preload("Deal").
		Order("due_date IS NULL, due_date asc, created_at desc").
		Offset(offset).Limit(limit).Find(&tasks).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch tasks", err)
	}
	return paginated(c, tasks, total, page, limit)
}

func (tc *TaskController) GetTask(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid task ID", err)
	}
	var task models.Task
	if err := tc.DB.WithContext(c.UserContext()).Preload("Contact").Preload("Deal").
		Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&task).Error; err != nil {
		return findError(c, err, "Task")
	}
	return c.JSON(utils.SuccessResponse(task))
}

// UpdateTask stamps completed_at when a task becomes completed and clears it
// when reopened.
func (tc *TaskController) UpdateTask(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid task ID", err)
	}
	var input struct {
		Title       *string `json:"title" validate:"omitempty,min=1,max=200"`
		Description *string `json:"description"`
		ContactID   *uint   `json:"contact_id"`
		DealID      *uint   `json:"deal_id"`
		ServiceID   *uint   `json:"service_id"`
		AssignedTo  *uint   `json:"assigned_to"`
		Priority    *string `json:"priority" validate:"omitempty,oneof=low normal high"`
		DueDate     *string `json:"due_date"`
		Completed   *bool   `json:"completed"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}
	ctx := c.UserContext()

	var task models.Task
	if err := tc.DB.WithContext(ctx).Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&task).Error; err != nil {
		return findError(c, err, "Task")
	}
	wasCompleted := task.Completed

	updates := map[string]interface{}{"updated_at": time.Now()}
	if input.Title != nil {
		updates["title"] = *input.Title
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.ContactID != nil {
		updates["contact_id"] = *input.ContactID
	}
	if input.DealID != nil {
		updates["deal_id"] = *input.DealID
	}
	if input.ServiceID != nil {
		updates["service_id"] = *input.ServiceID
	}
	if input.AssignedTo != nil {
		updates["assigned_to"] = *input.AssignedTo
	}
	if input.Priority != nil {
		updates["priority"] = *input.Priority
	}
	if input.DueDate != nil {
		dueDate, err := parseDate(*input.DueDate)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid due_date", err)
		}
		updates["due_date"] = dueDate
	}
	if input.Completed != nil && *input.Completed != wasCompleted {
		updates["completed"] = *input.Completed
		if *input.Completed {
			updates["completed_at"] = time.Now()
		} else {
			updates["completed_at"] = nil
		}
	}

	if err := tc.DB.WithContext(ctx).Model(&task).Updates(updates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update task", err)
	}
	if err := tc.DB.WithContext(ctx).First(&task, task.ID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to reload task", err)
	}

	if !wasCompleted && task.Completed {
		emit(ctx, tc.Events, user.OrganizationID, services.EventTaskCompleted, task)
	}
	return c.JSON(utils.SuccessResponse(task))
}

func (tc *TaskController) DeleteTask(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid task ID", err)
	}
	ctx := c.UserContext()

	if found, err := exists(ctx, tc.DB, &models.Task{}, id, user.OrganizationID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch task", err)
	} else if !found {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Task not found", nil)
	}
	if err := tc.Attachments.DeleteFor(ctx, user.OrganizationID, models.EntityTask, id); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete task attachments", err)
	}
	if err := deleteScoped(ctx, tc.DB, &models.Task{}, id, user.OrganizationID); err != nil {
		return findError(c, err, "Task")
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id}))
}
