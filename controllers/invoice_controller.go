package controller

import (
	"strconv"
	"time"

	"fieldcrm/models"
	"fieldcrm/services"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type InvoiceController struct {
	DB          *gorm.DB
	Logger      logrus.FieldLogger
	Events      services.Emitter
	Mailer      services.EmailSender
	Attachments *services.Attachments
	Audit       *services.Auditor
	AppURL      string
}

func NewInvoiceController(
	db *gorm.DB,
	logger logrus.FieldLogger,
	events services.Emitter,
	mailer services.EmailSender,
	attachments *services.Attachments,
	audit *services.Auditor,
	appURL string,
) *InvoiceController {
	return &InvoiceController{
		DB:          db,
		Logger:      logger,
		Events:      events,
		Mailer:      mailer,
		Attachments: attachments,
		Audit:       audit,
		AppURL:      appURL,
	}
}

func (ic *InvoiceController) CreateInvoice(c *fiber.Ctx) error {
	user := currentUser(c)
	var input struct {
		ContactID *uint             `json:"contact_id"`
		DealID    *uint             `json:"deal_id"`
		ServiceID *uint             `json:"service_id"`
		IssueDate string            `json:"issue_date"`
		DueDate   string            `json:"due_date"`
		Currency  string            `json:"currency" validate:"omitempty,len=3"`
		LineItems []models.LineItem `json:"line_items" validate:"required,min=1,dive"`
		TaxRate   float64           `json:"tax_rate" validate:"gte=0,lte=100"`
		Notes     string            `json:"notes"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}
	issueDate, err := parseDate(input.IssueDate)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid issue_date", err)
	}
	dueDate, err := parseDate(input.DueDate)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid due_date", err)
	}
	if input.ContactID != nil {
		if found, err := exists(c.UserContext(), ic.DB, &models.Contact{}, *input.ContactID, user.OrganizationID); err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
		} else if !found {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown contact", nil)
		}
	}

	invoice := models.Invoice{
		OrganizationID: user.OrganizationID,
		ContactID:      input.ContactID,
		DealID:         input.DealID,
		ServiceID:      input.ServiceID,
		DueDate:        dueDate,
		Currency:       input.Currency,
		LineItems:      input.LineItems,
		TaxRate:        input.TaxRate,
		Notes:          input.Notes,
	}
	if issueDate != nil {
		invoice.IssueDate = *issueDate
	}
	if invoice.Currency == "" {
		invoice.Currency = "usd"
	}

	if err := services.CreateInvoice(c.UserContext(), ic.DB, &invoice); err != nil {
		utils.LogError(ic.Logger, "invoice_create", err, map[string]interface{}{"organization_id": user.OrganizationID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create invoice", err)
	}

	emit(c.UserContext(), ic.Events, user.OrganizationID, services.EventInvoiceCreated, invoice)
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(invoice))
}

func (ic *InvoiceController) GetInvoices(c *fiber.Ctx) error {
	user := currentUser(c)
	page, limit, offset := utils.Pagination(c)

	query := ic.DB.WithContext(c.UserContext()).Model(&models.Invoice{}).Where("organization_id = ?", user.OrganizationID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if contactID := c.Query("contact_id"); contactID != "" {
		query = query.Where("contact_id = ?", utils.ParseUint(contactID))
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count invoices", err)
	}
	var invoices []models.Invoice
	if err := query.Preload("Contact").Order("created_at desc").Offset(offset).Limit(limit).Find(&invoices).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch invoices", err)
	}
	return paginated(c, invoices, total, page, limit)
}

func (ic *InvoiceController) GetInvoice(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid invoice ID", err)
	}
	var invoice models.Invoice
	if err := ic.DB.WithContext(c.UserContext()).Preload("Contact").Preload("Deal").Preload("Payments").
		Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&invoice).Error; err != nil {
		return findError(c, err, "Invoice")
	}
	return c.JSON(utils.SuccessResponse(invoice))
}

// UpdateInvoice recomputes totals whenever items or the tax rate change.
// Paid and void invoices are frozen.
func (ic *InvoiceController) UpdateInvoice(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid invoice ID", err)
	}
	var input struct {
		ContactID *uint              `json:"contact_id"`
		DueDate   *string            `json:"due_date"`
		LineItems *[]models.LineItem `json:"line_items" validate:"omitempty,min=1,dive"`
		TaxRate   *float64           `json:"tax_rate" validate:"omitempty,gte=0,lte=100"`
		Notes     *string            `json:"notes"`
		Status    *string            `json:"status" validate:"omitempty,oneof=draft sent paid void"`
	}
	if ok, err := parseBody(c, &input); !ok {
		return err
	}
	ctx := c.UserContext()

	var invoice models.Invoice
	if err := ic.DB.WithContext(ctx).Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&invoice).Error; err != nil {
		return findError(c, err, "Invoice")
	}
	if invoice.Status == models.InvoiceStatusPaid || invoice.Status == models.InvoiceStatusVoid {
		if input.LineItems != nil || input.TaxRate != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invoice is "+invoice.Status+" and cannot be changed", nil)
		}
	}

	if input.ContactID != nil {
		invoice.ContactID = input.ContactID
	}
	if input.DueDate != nil {
		dueDate, err := parseDate(*input.DueDate)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid due_date", err)
		}
		invoice.DueDate = dueDate
	}
	if input.LineItems != nil {
		invoice.LineItems = *input.LineItems
	}
	if input.TaxRate != nil {
		invoice.TaxRate = *input.TaxRate
	}
	if input.Notes != nil {
		invoice.Notes = *input.Notes
	}
	if input.Status != nil && *input.Status != invoice.Status {
		invoice.Status = *input.Status
		if invoice.Status == models.InvoiceStatusPaid && invoice.PaidAt == nil {
			invoice.PaidAt = utils.Pointer(time.Now())
		}
	}
	invoice.Subtotal, invoice.Tax, invoice.Total = services.ComputeTotals(invoice.LineItems, invoice.TaxRate)
	invoice.UpdatedAt = time.Now()

	if err := ic.DB.WithContext(ctx).Omit("Contact", "Deal", "Payments").Save(&invoice).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update invoice", err)
	}
	return c.JSON(utils.SuccessResponse(invoice))
}

func (ic *InvoiceController) DeleteInvoice(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid invoice ID", err)
	}
	ctx := c.UserContext()

	var invoice models.Invoice
	if err := ic.DB.WithContext(ctx).Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&invoice).Error; err != nil {
		return findError(c, err, "Invoice")
	}
	if invoice.Status == models.InvoiceStatusPaid {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Paid invoices cannot be deleted; void them instead", nil)
	}
	if err := ic.Attachments.DeleteFor(ctx, user.OrganizationID, models.EntityInvoice, id); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete invoice attachments", err)
	}
	if err := deleteScoped(ctx, ic.DB, &models.Invoice{}, id, user.OrganizationID); err != nil {
		return findError(c, err, "Invoice")
	}

	ic.Audit.Record(ctx, user, "invoice.deleted", models.EntityInvoice, id, map[string]interface{}{"number": invoice.Number})
	return c.JSON(utils.SuccessResponse(fiber.Map{"id": id}))
}

// SendInvoice emails the invoice to its contact and marks it sent
func (ic *InvoiceController) SendInvoice(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid invoice ID", err)
	}
	if ic.Mailer == nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Email is not configured", nil)
	}
	ctx := c.UserContext()

	var invoice models.Invoice
	if err := ic.DB.WithContext(ctx).Preload("Contact").
		Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&invoice).Error; err != nil {
		return findError(c, err, "Invoice")
	}
	if invoice.Status == models.InvoiceStatusVoid || invoice.Status == models.InvoiceStatusPaid {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invoice is "+invoice.Status, nil)
	}
	if invoice.Contact == nil || invoice.Contact.Email == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invoice contact has no email address", nil)
	}

	var org models.Organization
	if err := ic.DB.WithContext(ctx).First(&org, user.OrganizationID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch organization", err)
	}

	body, err := utils.RenderEmail("invoice", invoiceEmail(&invoice, org.Name, ic.AppURL))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to render invoice", err)
	}
	subject := "Invoice " + invoice.Number + " from " + org.Name
	if err := ic.Mailer.SendEmail(ctx, invoice.Contact.Email, subject, body); err != nil {
		utils.LogError(ic.Logger, "invoice_send", err, map[string]interface{}{"invoice_id": invoice.ID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to send invoice", err)
	}

	now := time.Now()
	if err := ic.DB.WithContext(ctx).Model(&invoice).Updates(map[string]interface{}{
		"status":     models.InvoiceStatusSent,
		"sent_at":    now,
		"updated_at": now,
	}).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update invoice", err)
	}
	invoice.Status = models.InvoiceStatusSent
	invoice.SentAt = &now

	emit(ctx, ic.Events, user.OrganizationID, services.EventInvoiceSent, invoice)
	return c.JSON(utils.SuccessResponse(invoice))
}

func invoiceEmail(invoice *models.Invoice, companyName, appURL string) utils.InvoiceEmailData {
	data := utils.InvoiceEmailData{
		Subject:     "Invoice " + invoice.Number,
		CompanyName: companyName,
		Number:      invoice.Number,
		IssueDate:   invoice.IssueDate.Format("Jan 2, 2006"),
		Subtotal:    services.FormatCents(invoice.Subtotal),
		Tax:         services.FormatCents(invoice.Tax),
		Total:       services.FormatCents(invoice.Total),
		Notes:       invoice.Notes,
		Year:        utils.CurrentYear(),
	}
	if invoice.Contact != nil {
		data.CustomerName = invoice.Contact.FullName()
	}
	if invoice.DueDate != nil {
		data.DueDate = invoice.DueDate.Format("Jan 2, 2006")
	}
	if appURL != "" {
		data.PayURL = appURL + "/pay/invoices/" + strconv.FormatUint(uint64(invoice.ID), 10)
	}
	for _, item := range invoice.LineItems {
		data.Lines = append(data.Lines, utils.InvoiceEmailLine{
			Description: item.Description,
			Quantity:    strconv.FormatFloat(item.Quantity, 'f', -1, 64),
			UnitPrice:   services.FormatCents(item.UnitPrice),
			Amount:      services.FormatCents(item.Amount),
		})
	}
	return data
}
