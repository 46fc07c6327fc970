package controller

import (
	"strings"
	"time"

	"fieldcrm/integrations"
	"fieldcrm/models"
	"fieldcrm/services"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type ContactController struct {
	DB          *gorm.DB
	Logger      logrus.FieldLogger
	Events      services.Emitter
	Attachments *services.Attachments
	Audit       *services.Auditor
	Whois       func(domain string) (*integrations.DomainInfo, error)
	MX          utils.MXResolver
}

func NewContactController(db *gorm.DB, logger logrus.FieldLogger, events services.Emitter, attachments *services.Attachments, audit *services.Auditor) *ContactController {
	return &ContactController{
		DB:          db,
		Logger:      logger,
		Events:      events,
		Attachments: attachments,
		Audit:       audit,
		Whois:       integrations.LookupDomain,
		MX:          utils.LookupMX,
	}
}

type contactInput struct {
	FirstName   string `json:"first_name" validate:"required_without=Company,max=100"`
	LastName    string `json:"last_name" validate:"max=100"`
	Email       string `json:"email" validate:"mailformat"`
	Phone       string `json:"phone" validate:"max=40"`
	Company     string `json:"company" validate:"max=200"`
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state"`
	PostalCode  string `json:"postal_code"`
	Notes       string `json:"notes"`
	Source      string `json:"source" validate:"omitempty,oneof=manual web_form import sms"`
	OwnerID     *uint  `json:"owner_id"`
	CategoryIDs []uint `json:"category_ids"`
}

// CreateContact creates a contact and optionally tags it with categories
func (cc *ContactController) CreateContact(c *fiber.Ctx) error {
	user := currentUser(c)

	var input contactInput
	if ok, err := parseBody(c, &input); !ok {
		return err
	}

	contact := models.Contact{
		OrganizationID: user.OrganizationID,
		FirstName:      strings.TrimSpace(input.FirstName),
		LastName:       strings.TrimSpace(input.LastName),
		Email:          strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:          input.Phone,
		Company:        input.Company,
		Address:        input.Address,
		City:           input.City,
		State:          input.State,
		PostalCode:     input.PostalCode,
		Notes:          input.Notes,
		Source:         input.Source,
		OwnerID:        input.OwnerID,
	}
	if contact.Source == "" {
		contact.Source = "manual"
	}

	err := cc.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&contact).Error; err != nil {
			return err
		}
		if len(input.CategoryIDs) == 0 {
			return nil
		}
		var categories []models.Category
		if err := tx.Where("id IN ? AND organization_id = ?", input.CategoryIDs, user.OrganizationID).Find(&categories).Error; err != nil {
			return err
		}
		contact.Categories = categories
		return tx.Model(&contact).Association("Categories").Replace(categories)
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create contact", err)
	}

	emit(c.UserContext(), cc.Events, user.OrganizationID, services.EventContactCreated, contact)
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(contact))
}

// GetContacts returns a filtered, paginated contact list
func (cc *ContactController) GetContacts(c *fiber.Ctx) error {
	user := currentUser(c)
	page, limit, offset := utils.Pagination(c)

	query := cc.DB.WithContext(c.UserContext()).Model(&models.Contact{}).Where("contacts.organization_id = ?", user.OrganizationID)
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ? OR LOWER(company) LIKE ?",
			like, like, like, like, like)
	}
	if source := c.Query("source"); source != "" {
		query = query.Where("source = ?", source)
	}
	if categoryID := c.Query("category_id"); categoryID != "" {
		query = query.Joins("JOIN contact_categories ON contact_categories.contact_id = contacts.id").
			Where("contact_categories.category_id = ?", utils.ParseUint(categoryID))
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count contacts", err)
	}

	var contacts []models.Contact
	if err := query.Preload("Categories").Order("contacts.created_at desc").Offset(offset).Limit(limit).Find(&contacts).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contacts", err)
	}

	return paginated(c, contacts, total, page, limit)
}

// GetContact returns one contact with its tags, profile types and custom fields
func (cc *ContactController) GetContact(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid contact ID", err)
	}

	var contact models.Contact
	err = cc.DB.WithContext(c.UserContext()).
		Preload("Categories").
		Preload("ProfileTypes.ProfileType").
		Preload("CustomFields.FieldDefinition").
		Preload("Appliances").
		Where("id = ? AND organization_id = ?", id, user.OrganizationID).
		First(&contact).Error
	if err != nil {
		return findError(c, err, "Contact")
	}
	return c.JSON(utils.SuccessResponse(contact))
}

// UpdateContact applies the fields present in the body
func (cc *ContactController) UpdateContact(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid contact ID", err)
	}

	var input struct {
		FirstName  *string `json:"first_name" validate:"omitempty,min=1,max=100"`
		LastName   *string `json:"last_name" validate:"omitempty,max=100"`
		Email      *string `json:"email" validate:"omitempty,mailformat"`
		Phone      *string `json:"phone" validate:"omitempty,max=40"`
		Company    *string `json:"company" validate:"omitempty,max=200"`
		Address    *string `json:"address"`
		City       *string `json:"city"`
		State      *string `json:"state"`
		PostalCode *string `json:"postal_code"`
		Notes      *string `json:"notes"`
		Source     *string `json:"source" validate:"omitempty,oneof=manual web_form import sms"`
		OwnerID    *uint   `json:"owner_id"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}

	var contact models.Contact
	if err := cc.DB.WithContext(c.UserContext()).Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&contact).Error; err != nil {
		return findError(c, err, "Contact")
	}

	updates := map[string]interface{}{"updated_at": time.Now()}
	if input.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*input.LastName)
	}
	if input.Email != nil {
		updates["email"] = strings.ToLower(strings.TrimSpace(*input.Email))
	}
	if input.Phone != nil {
		updates["phone"] = *input.Phone
		updates["phone_e164"] = models.NormalizePhone(*input.Phone)
	}
	if input.Company != nil {
		updates["company"] = *input.Company
	}
	if input.Address != nil {
		updates["address"] = *input.Address
	}
	if input.City != nil {
		updates["city"] = *input.City
	}
	if input.State != nil {
		updates["state"] = *input.State
	}
	if input.PostalCode != nil {
		updates["postal_code"] = *input.PostalCode
	}
	if input.Notes != nil {
		updates["notes"] = *input.Notes
	}
	if input.Source != nil {
		updates["source"] = *input.Source
	}
	if input.OwnerID != nil {
		updates["owner_id"] = *input.OwnerID
	}

	if err := cc.DB.WithContext(c.UserContext()).Model(&contact).Updates(updates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update contact", err)
	}
	if err := cc.DB.WithContext(c.UserContext()).Preload("Categories").First(&contact, contact.ID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to reload contact", err)
	}

	emit(c.UserContext(), cc.Events, user.OrganizationID, services.EventContactUpdated, contact)
	return c.JSON(utils.SuccessResponse(contact))
}

// DeleteContact removes attachments first, then the contact and its
// dependent rows
func (cc *ContactController) DeleteContact(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid contact ID", err)
	}
	ctx := c.UserContext()

	var contact models.Contact
	if err := cc.DB.WithContext(ctx).Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&contact).Error; err != nil {
		return findError(c, err, "Contact")
	}

	if err := cc.Attachments.DeleteFor(ctx, user.OrganizationID, models.EntityContact, contact.ID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete contact attachments", err)
	}

	err = cc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("contact_id = ?", contact.ID).Delete(&models.CustomFieldValue{}).Error; err != nil {
			return err
		}
		if err := tx.Where("contact_id = ?", contact.ID).Delete(&models.ProfileTypeAssignment{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&contact).Association("Categories").Clear(); err != nil {
			return err
		}
		if err := tx.Where("contact_id = ?", contact.ID).Delete(&models.Appliance{}).Error; err != nil {
			return err
		}
		return tx.Delete(&contact).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete contact", err)
	}

	cc.Audit.Record(ctx, user, "contact.deleted", models.EntityContact, contact.ID, map[string]interface{}{
		"name": contact.FullName(),
	})
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": contact.ID}))
}

// SetCategories replaces the contact's category set
func (cc *ContactController) SetCategories(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid contact ID", err)
	}

	var input struct {
		CategoryIDs []uint `json:"category_ids"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}

	var contact models.Contact
	if err := cc.DB.WithContext(c.UserContext()).Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&contact).Error; err != nil {
		return findError(c, err, "Contact")
	}

	categories := []models.Category{}
	if len(input.CategoryIDs) > 0 {
		if err := cc.DB.WithContext(c.UserContext()).Where("id IN ? AND organization_id = ?", input.CategoryIDs, user.OrganizationID).Find(&categories).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch categories", err)
		}
		if len(categories) != len(uniqueIDs(input.CategoryIDs)) {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown category ID", nil)
		}
	}

	if err := cc.DB.WithContext(c.UserContext()).Model(&contact).Association("Categories").Replace(categories); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update categories", err)
	}
	contact.Categories = categories
	return c.JSON(utils.SuccessResponse(contact))
}

// GetDomainInfo looks up WHOIS data for the domain of the contact's email
func (cc *ContactController) GetDomainInfo(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid contact ID", err)
	}

	var contact models.Contact
	if err := cc.DB.WithContext(c.UserContext()).Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&contact).Error; err != nil {
		return findError(c, err, "Contact")
	}

	domain := integrations.DomainFromEmail(contact.Email)
	if domain == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Contact has no email domain", nil)
	}

	info, err := cc.Whois(domain)
	if err != nil {
		utils.LogError(cc.Logger, "whois_lookup", err, map[string]interface{}{"domain": domain})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to look up domain", err)
	}
	return c.JSON(utils.SuccessResponse(info))
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
