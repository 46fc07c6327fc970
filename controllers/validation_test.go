package controller

import (
	"encoding/json"
	"testing"

	"fieldcrm/models"
	"fieldcrm/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestCreateRejectsMissingRequiredField(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "owner@example.com")
	events := &recordingEmitter{}
	logger := testLogger()

	dc := NewDealController(db, logger, events, nil, nil)
	tc := NewTaskController(db, logger, events, nil)
	sc := NewServiceController(db, logger, events, nil, nil, nil, nil, nil)
	ic := NewInvoiceController(db, logger, events, nil, nil, nil, "https://app.example")
	ac := NewAutomationController(db, logger, services.NewAutomationDispatcher(db, services.DefaultExecutors(db, nil, nil, nil), logger), nil)
	wc := NewWebhookController(db, logger, nil, "", 10)
	app := testApp(user, func(app *fiber.App) {
		app.Post("/deals", dc.CreateDeal)
		app.Post("/tasks", tc.CreateTask)
		app.Post("/services", sc.CreateService)
		app.Post("/invoices", ic.CreateInvoice)
		app.Post("/automations", ac.CreateAutomation)
		app.Post("/webhooks", wc.CreateWebhook)
	})

	cases := []struct {
		name  string
		path  string
		body  fiber.Map
		model interface{}
	}{
		{"deal without title", "/deals", fiber.Map{"stage_id": 1}, &models.Deal{}},
		{"task without title", "/tasks", fiber.Map{"description": "call back"}, &models.Task{}},
		{"service without description", "/services", fiber.Map{"contact_id": 1}, &models.Service{}},
		{"invoice without line items", "/invoices", fiber.Map{"currency": "usd"}, &models.Invoice{}},
		{"automation without actions", "/automations", fiber.Map{"name": "Welcome", "trigger_type": services.EventContactCreated}, &models.Automation{}},
		{"webhook without events", "/webhooks", fiber.Map{"url": "https://hooks.example/crm"}, &models.Webhook{}},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			var before int64
			require.NoError(t, db.Model(tt.model).Count(&before).Error)

			status, env := do(t, app, jsonRequest(t, "POST", tt.path, tt.body))
			assert.Equal(t, fiber.StatusBadRequest, status)
			assert.Equal(t, "Validation failed", env.Error)

			var after int64
			require.NoError(t, db.Model(tt.model).Count(&after).Error)
			assert.Equal(t, before, after)
		})
	}
	assert.Empty(t, events.types())
}

func TestCreateServiceRunsAutomations(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "owner@example.com")
	contact := models.Contact{OrganizationID: user.OrganizationID, FirstName: "Ada", Phone: "+15550101234"}
	require.NoError(t, db.Create(&contact).Error)
	require.NoError(t, db.Create(&models.Automation{
		OrganizationID: &user.OrganizationID,
		Name:           "Book new requests",
		TriggerType:    services.EventServiceCreated,
		Actions: datatypes.JSONSlice[models.AutomationAction]{
			{Type: models.ActionCreateTask, Config: map[string]interface{}{"title": "Call {{contact_id}}"}},
			{Type: models.ActionUpdateServiceStatus, Config: map[string]interface{}{"status": models.ServiceStatusScheduled}},
		},
		Active: true,
	}).Error)

	logger := testLogger()
	dispatcher := services.NewAutomationDispatcher(db, services.DefaultExecutors(db, nil, nil, nil), logger)
	bus := services.NewEventBus(dispatcher, nil, logger)
	sc := NewServiceController(db, logger, bus, nil, nil, nil, nil, nil)
	app := testApp(user, func(app *fiber.App) {
		app.Post("/services", sc.CreateService)
	})

	status, env := do(t, app, jsonRequest(t, "POST", "/services", fiber.Map{
		"contact_id":  contact.ID,
		"description": "Furnace will not light",
	}))
	require.Equal(t, fiber.StatusCreated, status, env.Details)
	var created struct {
		Service models.Service `json:"service"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.NotZero(t, created.Service.ID)

	var stored models.Service
	require.NoError(t, db.First(&stored, created.Service.ID).Error)
	assert.Equal(t, models.ServiceStatusScheduled, stored.Status)

	var task models.Task
	require.NoError(t, db.Where("organization_id = ?", user.OrganizationID).First(&task).Error)
	assert.Equal(t, "Call "+itoa(contact.ID), task.Title)
	require.NotNil(t, task.ServiceID)
	assert.Equal(t, created.Service.ID, *task.ServiceID)

	var run models.AutomationRun
	require.NoError(t, db.First(&run).Error)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
}
