package controller

import (
	"context"
	"errors"
	"strconv"
	"time"

	"fieldcrm/models"
	"fieldcrm/services"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// errInvalidID is reported for a path id that is not a positive integer.
var errInvalidID = errors.New("invalid id")

func currentUser(c *fiber.Ctx) *models.User {
	return c.Locals("user").(*models.User)
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, errInvalidID
	}
	return uint(id), nil
}

// parseBody decodes the JSON body and runs the validate tags. It writes the
// 400 response itself and reports whether the handler may continue.
func parseBody(c *fiber.Ctx, dst interface{}) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		return false, utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(dst); err != nil {
		return false, utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	return true, nil
}

// findError maps a lookup error to 404 or 500.
func findError(c *fiber.Ctx, err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, entity+" not found", nil)
	}
	return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch "+entity, err)
}

// deleteScoped soft-deletes one row of the caller's organization and
// reports gorm.ErrRecordNotFound when nothing matched.
func deleteScoped(ctx context.Context, db *gorm.DB, model interface{}, id, organizationID uint) error {
	res := db.WithContext(ctx).Where("id = ? AND organization_id = ?", id, organizationID).Delete(model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// exists reports whether a row of the caller's organization has the id.
func exists(ctx context.Context, db *gorm.DB, model interface{}, id, organizationID uint) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(model).Where("id = ? AND organization_id = ?", id, organizationID).Count(&count).Error
	return count > 0, err
}

func emit(ctx context.Context, events services.Emitter, organizationID uint, eventType string, record interface{}) {
	if events == nil {
		return
	}
	events.Emit(ctx, services.Event{
		OrganizationID: organizationID,
		Type:           eventType,
		Payload:        services.ToPayload(record),
	})
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func paginated(c *fiber.Ctx, data interface{}, total int64, page, limit int) error {
	return c.JSON(utils.PaginatedResponse{
		Success: true,
		Data:    data,
		Total:   total,
		Page:    page,
		Limit:   limit,
	})
}
