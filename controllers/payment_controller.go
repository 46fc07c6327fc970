package controller

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"fieldcrm/integrations"
	"fieldcrm/models"
	"fieldcrm/services"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"gorm.io/gorm"
)

// PaymentGateway is the payment provider surface used by the handlers
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, req integrations.PaymentIntentRequest) (*stripe.PaymentIntent, error)
	CreateCheckoutSession(ctx context.Context, req integrations.CheckoutRequest) (*stripe.CheckoutSession, error)
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
}

type PaymentController struct {
	DB      *gorm.DB
	Logger  logrus.FieldLogger
	Events  services.Emitter
	Gateway PaymentGateway
	AppURL  string
}

func NewPaymentController(db *gorm.DB, logger logrus.FieldLogger, events services.Emitter, gateway PaymentGateway, appURL string) *PaymentController {
	return &PaymentController{DB: db, Logger: logger, Events: events, Gateway: gateway, AppURL: appURL}
}

type PaymentRequest struct {
	InvoiceID uint `json:"invoice_id" validate:"required"`
}

func (pc *PaymentController) GetPayments(c *fiber.Ctx) error {
	user := currentUser(c)
	page, limit, offset := utils.Pagination(c)

	query := pc.DB.WithContext(c.UserContext()).Model(&models.Payment{}).Where("organization_id = ?", user.OrganizationID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if invoiceID := c.Query("invoice_id"); invoiceID != "" {
		query = query.Where("invoice_id = ?", utils.ParseUint(invoiceID))
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count payments", err)
	}
	var payments []models.Payment
	if err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&payments).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch payments", err)
	}
	return paginated(c, payments, total, page, limit)
}

// payableInvoice loads an invoice of the caller's organization that can still
// be paid.
func (pc *PaymentController) payableInvoice(c *fiber.Ctx, user *models.User) (*models.Invoice, error) {
	var req PaymentRequest
	if ok, err := parseBody(c, &req); !ok {
		return nil, err
	}
	var invoice models.Invoice
	if err := pc.DB.WithContext(c.UserContext()).Preload("Contact").
		Where("id = ? AND organization_id = ?", req.InvoiceID, user.OrganizationID).First(&invoice).Error; err != nil {
		return nil, findError(c, err, "Invoice")
	}
	switch {
	case invoice.Status == models.InvoiceStatusPaid:
		return nil, utils.ErrorResponse(c, fiber.StatusBadRequest, "Invoice is already paid", nil)
	case invoice.Status == models.InvoiceStatusVoid:
		return nil, utils.ErrorResponse(c, fiber.StatusBadRequest, "Invoice is void", nil)
	case invoice.Total <= 0:
		return nil, utils.ErrorResponse(c, fiber.StatusBadRequest, "Invoice total must be positive", nil)
	}
	return &invoice, nil
}

func paymentMetadata(invoice *models.Invoice) map[string]string {
	return map[string]string{
		"organization_id": strconv.FormatUint(uint64(invoice.OrganizationID), 10),
		"invoice_id":      strconv.FormatUint(uint64(invoice.ID), 10),
		"invoice_number":  invoice.Number,
	}
}

// CreatePaymentIntent starts a card payment for an invoice. The payment row
// is written after the provider call succeeds.
func (pc *PaymentController) CreatePaymentIntent(c *fiber.Ctx) error {
	user := currentUser(c)
	invoice, err := pc.payableInvoice(c, user)
	if invoice == nil {
		return err
	}

	req := integrations.PaymentIntentRequest{
		Amount:      invoice.Total,
		Currency:    invoice.Currency,
		Description: "Invoice " + invoice.Number,
		Metadata:    paymentMetadata(invoice),
	}
	if invoice.Contact != nil {
		req.ReceiptEmail = invoice.Contact.Email
	}
	pi, err := pc.Gateway.CreatePaymentIntent(c.UserContext(), req)
	if err != nil {
		utils.LogError(pc.Logger, "stripe_payment_intent", err, map[string]interface{}{"invoice_id": invoice.ID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to process payment", err)
	}

	payment := models.Payment{
		OrganizationID:  user.OrganizationID,
		InvoiceID:       &invoice.ID,
		DealID:          invoice.DealID,
		ContactID:       invoice.ContactID,
		Amount:          invoice.Total,
		Currency:        invoice.Currency,
		Status:          models.PaymentStatusPending,
		Provider:        "stripe",
		PaymentIntentID: pi.ID,
	}
	if err := pc.DB.WithContext(c.UserContext()).Create(&payment).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to record payment", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{
		"client_secret": pi.ClientSecret,
		"payment":       payment,
	}))
}

// CreateCheckoutSession returns a hosted checkout URL for an invoice
func (pc *PaymentController) CreateCheckoutSession(c *fiber.Ctx) error {
	user := currentUser(c)
	invoice, err := pc.payableInvoice(c, user)
	if invoice == nil {
		return err
	}

	invoiceURL := pc.AppURL + "/invoices/" + strconv.FormatUint(uint64(invoice.ID), 10)
	req := integrations.CheckoutRequest{
		Amount:      invoice.Total,
		Currency:    invoice.Currency,
		ProductName: "Invoice " + invoice.Number,
		SuccessURL:  invoiceURL + "?payment=success",
		CancelURL:   invoiceURL + "?payment=cancelled",
		ReferenceID: strconv.FormatUint(uint64(invoice.ID), 10),
		Metadata:    paymentMetadata(invoice),
	}
	if invoice.Contact != nil {
		req.CustomerEmail = invoice.Contact.Email
	}
	session, err := pc.Gateway.CreateCheckoutSession(c.UserContext(), req)
	if err != nil {
		utils.LogError(pc.Logger, "stripe_checkout", err, map[string]interface{}{"invoice_id": invoice.ID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create checkout session", err)
	}

	payment := models.Payment{
		OrganizationID:    user.OrganizationID,
		InvoiceID:         &invoice.ID,
		DealID:            invoice.DealID,
		ContactID:         invoice.ContactID,
		Amount:            invoice.Total,
		Currency:          invoice.Currency,
		Status:            models.PaymentStatusPending,
		Provider:          "stripe",
		CheckoutSessionID: session.ID,
	}
	if err := pc.DB.WithContext(c.UserContext()).Create(&payment).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to record payment", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{
		"url":     session.URL,
		"payment": payment,
	}))
}

// HandleStripeWebhook handles Stripe webhook events
func (pc *PaymentController) HandleStripeWebhook(c *fiber.Ctx) error {
	event, err := pc.Gateway.ConstructEvent(c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		utils.LogError(pc.Logger, "stripe_webhook_signature", err, nil)
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid webhook payload", err)
	}

	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Error parsing payment intent", err)
		}
		return pc.settle(c, "payment_intent_id = ?", pi.ID, func(p *models.Payment) {
			p.Status = models.PaymentStatusSucceeded
			if pi.LatestCharge != nil {
				p.ChargeID = pi.LatestCharge.ID
				p.ReceiptURL = pi.LatestCharge.ReceiptURL
			}
		})

	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Error parsing payment intent", err)
		}
		return pc.settle(c, "payment_intent_id = ?", pi.ID, func(p *models.Payment) {
			p.Status = models.PaymentStatusFailed
			p.FailureMessage = "Payment failed"
			if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
				p.FailureMessage = "Payment failed: " + pi.LastPaymentError.Msg
			}
		})

	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Error parsing checkout session", err)
		}
		if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return c.SendStatus(fiber.StatusOK)
		}
		return pc.settle(c, "checkout_session_id = ?", session.ID, func(p *models.Payment) {
			p.Status = models.PaymentStatusSucceeded
			if session.PaymentIntent != nil {
				p.PaymentIntentID = session.PaymentIntent.ID
			}
		})

	default:
		return c.SendStatus(fiber.StatusOK)
	}
}

// settle updates the matching payment and, on success, marks its invoice paid.
// Unknown payments are acknowledged so Stripe stops retrying.
func (pc *PaymentController) settle(c *fiber.Ctx, where string, ref string, apply func(*models.Payment)) error {
	ctx := c.UserContext()

	var payment models.Payment
	err := pc.DB.WithContext(ctx).Where(where, ref).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.LogEvent(pc.Logger, "stripe_webhook_unmatched", map[string]interface{}{"reference": ref})
		return c.SendStatus(fiber.StatusOK)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch payment", err)
	}
	if payment.Status == models.PaymentStatusSucceeded {
		return c.SendStatus(fiber.StatusOK)
	}

	apply(&payment)
	now := time.Now()
	err = pc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if payment.Status == models.PaymentStatusSucceeded {
			payment.PaidAt = &now
			if payment.InvoiceID != nil {
				if err := tx.Model(&models.Invoice{}).Where("id = ?", *payment.InvoiceID).Updates(map[string]interface{}{
					"status":     models.InvoiceStatusPaid,
					"paid_at":    now,
					"updated_at": now,
				}).Error; err != nil {
					return err
				}
			}
		}
		return tx.Save(&payment).Error
	})
	if err != nil {
		utils.LogError(pc.Logger, "stripe_webhook_update", err, map[string]interface{}{"payment_id": payment.ID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update payment", err)
	}

	eventType := services.EventPaymentFailed
	if payment.Status == models.PaymentStatusSucceeded {
		eventType = services.EventPaymentSucceeded
	}
	emit(ctx, pc.Events, payment.OrganizationID, eventType, payment)
	return c.SendStatus(fiber.StatusOK)
}
