package controller

import (
	"context"
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"fieldcrm/models"
	"fieldcrm/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValidator struct {
	url    string
	params map[string]string
}

func (v *fakeValidator) ValidRequest(url string, params map[string]string, signature string) bool {
	v.url, v.params = url, params
	return signature == "valid"
}

func postInbound(t *testing.T, app *fiber.App, form url.Values, signature string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("POST", "/sms/inbound", strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	req.Header.Set("X-Twilio-Signature", signature)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestInboundSMS(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "owner@example.com")
	contact := models.Contact{OrganizationID: user.OrganizationID, FirstName: "Ada", Phone: "(555) 010-1234"}
	require.NoError(t, db.Create(&contact).Error)

	events := &recordingEmitter{}
	validator := &fakeValidator{}
	flow := services.NewSMSFlow(db, nil, services.NewLocalLocker(), nil, testLogger())
	sc := NewSMSController(db, testLogger(), flow, events, validator, "https://crm.example/api/sms/inbound")
	app := testApp(nil, func(app *fiber.App) {
		app.Post("/sms/inbound", sc.HandleInbound)
	})

	form := url.Values{"From": {"+15550101234"}, "Body": {"It's a Carrier"}, "MessageSid": {"SM1"}}

	status, _ := postInbound(t, app, form, "forged")
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "https://crm.example/api/sms/inbound", validator.url)
	assert.Equal(t, "SM1", validator.params["MessageSid"])

	status, body := postInbound(t, app, form, "valid")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, emptyTwiML, body)

	var thread models.SMSThread
	require.NoError(t, db.Where("contact_id = ?", contact.ID).First(&thread).Error)
	require.Len(t, thread.Messages, 1)
	assert.Equal(t, "It's a Carrier", thread.Messages[0].Body)
	assert.Equal(t, []string{services.EventSMSReceived}, events.types())

	// unknown senders are acknowledged and dropped
	stranger := url.Values{"From": {"+15559990000"}, "Body": {"hello"}, "MessageSid": {"SM2"}}
	status, body = postInbound(t, app, stranger, "valid")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, emptyTwiML, body)
	assert.Len(t, events.types(), 1)
}

func TestInboundSMSWithoutProvider(t *testing.T) {
	sc := NewSMSController(nil, testLogger(), nil, nil, nil, "")
	app := testApp(nil, func(app *fiber.App) {
		app.Post("/sms/inbound", sc.HandleInbound)
	})
	status, _ := postInbound(t, app, url.Values{"From": {"+15550101234"}}, "valid")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
}

type fakePoster struct {
	calls int
}

func (p *fakePoster) Post(context.Context, string, map[string]string, []byte) (int, []byte, error) {
	p.calls++
	return fiber.StatusOK, nil, nil
}

func TestProcessDeliveriesRequiresCronSecret(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "owner@example.com")
	hook := models.Webhook{
		OrganizationID: user.OrganizationID,
		URL:            "https://hooks.example/crm",
		Secret:         "whsec",
		Events:         []string{services.EventContactCreated},
		Active:         true,
	}
	require.NoError(t, db.Create(&hook).Error)
	queued, err := services.NewWebhookQueue(db).Enqueue(context.Background(), services.Event{
		OrganizationID: user.OrganizationID,
		Type:           services.EventContactCreated,
		Payload:        map[string]interface{}{"id": 1},
	})
	require.NoError(t, err)
	require.Equal(t, 1, queued)

	poster := &fakePoster{}
	wc := NewWebhookController(db, testLogger(), services.NewWebhookProcessor(db, poster, testLogger()), "cron-secret", 10)
	app := testApp(nil, func(app *fiber.App) {
		app.Post("/webhooks/process", wc.ProcessDeliveries)
	})

	req := jsonRequest(t, "POST", "/webhooks/process", nil)
	req.Header.Set("X-Cron-Secret", "guess")
	status, _ := do(t, app, req)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Zero(t, poster.calls)

	req = jsonRequest(t, "POST", "/webhooks/process", nil)
	req.Header.Set("X-Cron-Secret", "cron-secret")
	status, env := do(t, app, req)
	require.Equal(t, fiber.StatusOK, status, env.Details)
	assert.Equal(t, 1, poster.calls)
}
