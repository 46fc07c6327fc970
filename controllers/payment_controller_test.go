package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"fieldcrm/integrations"
	"fieldcrm/models"
	"fieldcrm/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

type fakeGateway struct {
	intents []integrations.PaymentIntentRequest
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, req integrations.PaymentIntentRequest) (*stripe.PaymentIntent, error) {
	g.intents = append(g.intents, req)
	return &stripe.PaymentIntent{ID: "pi_test", ClientSecret: "pi_test_secret"}, nil
}

func (g *fakeGateway) CreateCheckoutSession(context.Context, integrations.CheckoutRequest) (*stripe.CheckoutSession, error) {
	return &stripe.CheckoutSession{ID: "cs_test", URL: "https://checkout.example/cs_test"}, nil
}

// ConstructEvent accepts the body as the event itself when signed "ok".
func (g *fakeGateway) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	if signature != "ok" {
		return stripe.Event{}, errors.New("bad signature")
	}
	var event stripe.Event
	err := json.Unmarshal(payload, &event)
	return event, err
}

func stripeEvent(t *testing.T, eventType string, object interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]interface{}{
		"id":   "evt_test",
		"type": eventType,
		"data": map[string]json.RawMessage{"object": raw},
	})
	require.NoError(t, err)
	return body
}

func paymentApp(t *testing.T) (*models.User, *fakeGateway, *recordingEmitter, *PaymentController, *fiber.App) {
	t.Helper()
	db := newTestDB(t)
	user := seedUser(t, db, "owner@example.com")
	gateway := &fakeGateway{}
	events := &recordingEmitter{}
	pc := NewPaymentController(db, testLogger(), events, gateway, "https://app.example")
	app := testApp(user, func(app *fiber.App) {
		app.Post("/payments/intent", pc.CreatePaymentIntent)
		app.Post("/stripe/webhook", pc.HandleStripeWebhook)
	})
	return user, gateway, events, pc, app
}

func seedInvoice(t *testing.T, pc *PaymentController, user *models.User, total int64) models.Invoice {
	t.Helper()
	invoice := models.Invoice{
		OrganizationID: user.OrganizationID,
		Number:         "INV-2026-00001",
		Status:         models.InvoiceStatusSent,
		Currency:       "usd",
		Total:          total,
	}
	require.NoError(t, pc.DB.Create(&invoice).Error)
	return invoice
}

func postWebhook(t *testing.T, app *fiber.App, body []byte, signature string) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/stripe/webhook", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", signature)
	status, _ := do(t, app, req)
	return status
}

func TestPaymentIntentThenWebhookMarksInvoicePaid(t *testing.T) {
	user, gateway, events, pc, app := paymentApp(t)
	invoice := seedInvoice(t, pc, user, 16778)

	status, env := do(t, app, jsonRequest(t, "POST", "/payments/intent", fiber.Map{"invoice_id": invoice.ID}))
	require.Equal(t, fiber.StatusCreated, status, env.Details)
	require.Len(t, gateway.intents, 1)
	assert.Equal(t, int64(16778), gateway.intents[0].Amount)
	assert.Equal(t, itoa(invoice.ID), gateway.intents[0].Metadata["invoice_id"])

	body := stripeEvent(t, "payment_intent.succeeded", map[string]interface{}{"id": "pi_test", "object": "payment_intent"})
	assert.Equal(t, fiber.StatusOK, postWebhook(t, app, body, "ok"))

	var payment models.Payment
	require.NoError(t, pc.DB.Where("payment_intent_id = ?", "pi_test").First(&payment).Error)
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)
	assert.NotNil(t, payment.PaidAt)

	var stored models.Invoice
	require.NoError(t, pc.DB.First(&stored, invoice.ID).Error)
	assert.Equal(t, models.InvoiceStatusPaid, stored.Status)
	assert.NotNil(t, stored.PaidAt)

	// redelivery is acknowledged without a second event
	assert.Equal(t, fiber.StatusOK, postWebhook(t, app, body, "ok"))
	assert.Equal(t, []string{services.EventPaymentSucceeded}, events.types())

	status, env = do(t, app, jsonRequest(t, "POST", "/payments/intent", fiber.Map{"invoice_id": invoice.ID}))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Invoice is already paid", env.Error)
}

func TestStripeWebhookFailedPayment(t *testing.T) {
	user, _, events, pc, app := paymentApp(t)
	invoice := seedInvoice(t, pc, user, 5000)
	require.NoError(t, pc.DB.Create(&models.Payment{
		OrganizationID:  user.OrganizationID,
		InvoiceID:       &invoice.ID,
		Amount:          5000,
		Status:          models.PaymentStatusPending,
		PaymentIntentID: "pi_declined",
	}).Error)

	body := stripeEvent(t, "payment_intent.payment_failed", map[string]interface{}{
		"id":                 "pi_declined",
		"object":             "payment_intent",
		"last_payment_error": map[string]string{"message": "Your card was declined."},
	})
	assert.Equal(t, fiber.StatusOK, postWebhook(t, app, body, "ok"))

	var payment models.Payment
	require.NoError(t, pc.DB.Where("payment_intent_id = ?", "pi_declined").First(&payment).Error)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)
	assert.Equal(t, "Payment failed: Your card was declined.", payment.FailureMessage)

	var stored models.Invoice
	require.NoError(t, pc.DB.First(&stored, invoice.ID).Error)
	assert.Equal(t, models.InvoiceStatusSent, stored.Status)
	assert.Equal(t, []string{services.EventPaymentFailed}, events.types())
}

func TestStripeWebhookEdgeCases(t *testing.T) {
	_, _, events, _, app := paymentApp(t)

	unknown := stripeEvent(t, "payment_intent.succeeded", map[string]interface{}{"id": "pi_unknown", "object": "payment_intent"})
	assert.Equal(t, fiber.StatusOK, postWebhook(t, app, unknown, "ok"))
	assert.Equal(t, fiber.StatusBadRequest, postWebhook(t, app, unknown, "forged"))

	ignored := stripeEvent(t, "customer.created", map[string]interface{}{"id": "cus_1", "object": "customer"})
	assert.Equal(t, fiber.StatusOK, postWebhook(t, app, ignored, "ok"))
	assert.Empty(t, events.types())
}
