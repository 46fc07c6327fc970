package services

import (
	"context"
	"errors"
	"testing"

	"fieldcrm/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type stubExecutor struct {
	output string
	err    error
	calls  int
}

func (s *stubExecutor) Validate(map[string]interface{}) error { return nil }

func (s *stubExecutor) Execute(context.Context, models.AutomationAction, Event) (string, error) {
	s.calls++
	return s.output, s.err
}

func TestDispatchRunsRemainingActionsAfterFailure(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db, "Acme")

	failing := &stubExecutor{err: errors.New("smtp down")}
	ok := &stubExecutor{output: "done"}
	dispatcher := NewAutomationDispatcher(db, map[string]ActionExecutor{"fail": failing, "ok": ok}, testLogger())

	automation := models.Automation{
		OrganizationID: &org.ID,
		Name:           "Welcome",
		TriggerType:    EventContactCreated,
		Actions: datatypes.JSONSlice[models.AutomationAction]{
			{Type: "fail"},
			{Type: "ok"},
		},
		Active: true,
	}
	require.NoError(t, db.Create(&automation).Error)

	runs, err := dispatcher.Dispatch(context.Background(), Event{
		OrganizationID: org.ID,
		Type:           EventContactCreated,
		Payload:        map[string]interface{}{"id": 1},
	})
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run := runs[0]
	assert.Equal(t, models.RunStatusPartial, run.Status)
	require.Len(t, run.Results, 2)
	assert.Equal(t, "failed", run.Results[0].Status)
	assert.Equal(t, "smtp down", run.Results[0].Error)
	assert.Equal(t, "success", run.Results[1].Status)
	assert.Equal(t, 1, ok.calls)

	var stored models.Automation
	require.NoError(t, db.First(&stored, automation.ID).Error)
	assert.Equal(t, 1, stored.RunCount)
	assert.NotNil(t, stored.LastRunAt)

	var count int64
	require.NoError(t, db.Model(&models.AutomationRun{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDispatchStatusWhenAllActionsFail(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db, "Acme")
	dispatcher := NewAutomationDispatcher(db, map[string]ActionExecutor{}, testLogger())

	require.NoError(t, db.Create(&models.Automation{
		OrganizationID: &org.ID,
		Name:           "Broken",
		TriggerType:    EventTaskCreated,
		Actions:        datatypes.JSONSlice[models.AutomationAction]{{Type: "missing"}},
		Active:         true,
	}).Error)

	runs, err := dispatcher.Dispatch(context.Background(), Event{OrganizationID: org.ID, Type: EventTaskCreated})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Results[0].Error, "unknown action type")
}

func TestDispatchScopesByOrganizationAndTrigger(t *testing.T) {
	db := newTestDB(t)
	acme := seedOrganization(t, db, "Acme")
	other := seedOrganization(t, db, "Other")

	exec := &stubExecutor{}
	dispatcher := NewAutomationDispatcher(db, map[string]ActionExecutor{"ok": exec}, testLogger())
	actions := datatypes.JSONSlice[models.AutomationAction]{{Type: "ok"}}

	automations := []models.Automation{
		{OrganizationID: &acme.ID, Name: "own", TriggerType: EventServiceStatusChanged, Actions: actions, Active: true,
			TriggerConfig: datatypes.JSONMap{"status": "completed"}},
		{OrganizationID: &other.ID, Name: "foreign", TriggerType: EventServiceStatusChanged, Actions: actions, Active: true},
		{Name: "global", TriggerType: EventServiceStatusChanged, Actions: actions, Active: true},
		{OrganizationID: &acme.ID, Name: "inactive", TriggerType: EventServiceStatusChanged, Actions: actions, Active: false},
	}
	require.NoError(t, db.Create(&automations).Error)

	runs, err := dispatcher.Dispatch(context.Background(), Event{
		OrganizationID: acme.ID,
		Type:           EventServiceStatusChanged,
		Payload:        map[string]interface{}{"status": "scheduled"},
	})
	require.NoError(t, err)
	require.Len(t, runs, 1, "only the global automation matches a scheduled status")

	runs, err = dispatcher.Dispatch(context.Background(), Event{
		OrganizationID: acme.ID,
		Type:           EventServiceStatusChanged,
		Payload:        map[string]interface{}{"status": "completed"},
	})
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestServiceCreatedActionsTargetTheService(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db, "Acme")
	contact := models.Contact{OrganizationID: org.ID, FirstName: "Ada"}
	require.NoError(t, db.Create(&contact).Error)
	service := models.Service{OrganizationID: org.ID, ContactID: contact.ID, Description: "Furnace out", Status: models.ServiceStatusNew}
	require.NoError(t, db.Create(&service).Error)

	dispatcher := NewAutomationDispatcher(db, DefaultExecutors(db, nil, nil, nil), testLogger())
	require.NoError(t, db.Create(&models.Automation{
		OrganizationID: &org.ID,
		Name:           "Follow up",
		TriggerType:    EventServiceCreated,
		Actions: datatypes.JSONSlice[models.AutomationAction]{
			{Type: models.ActionCreateTask, Config: map[string]interface{}{"title": "Call about {{description}}"}},
			{Type: models.ActionUpdateServiceStatus, Config: map[string]interface{}{"status": models.ServiceStatusScheduled}},
		},
		Active: true,
	}).Error)

	runs, err := dispatcher.Dispatch(context.Background(), Event{
		OrganizationID: org.ID,
		Type:           EventServiceCreated,
		Payload:        ToPayload(service),
	})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusSuccess, runs[0].Status, runs[0].Results)

	var task models.Task
	require.NoError(t, db.Where("organization_id = ?", org.ID).First(&task).Error)
	assert.Equal(t, "Call about Furnace out", task.Title)
	require.NotNil(t, task.ServiceID)
	assert.Equal(t, service.ID, *task.ServiceID)
	require.NotNil(t, task.ContactID)
	assert.Equal(t, contact.ID, *task.ContactID)

	var stored models.Service
	require.NoError(t, db.First(&stored, service.ID).Error)
	assert.Equal(t, models.ServiceStatusScheduled, stored.Status)
}

func TestToPayloadCarriesRecordKey(t *testing.T) {
	deal := models.Deal{Model: gormModel(9)}
	payload := ToPayload(&deal)
	assert.EqualValues(t, 9, payload["id"])
	assert.EqualValues(t, 9, payload["deal_id"])

	assert.NotContains(t, ToPayload(map[string]interface{}{"ID": 3}), "service_id")
}

func TestMatchesTrigger(t *testing.T) {
	payload := map[string]interface{}{
		"status":  "completed",
		"urgency": "high",
		"contact": map[string]interface{}{"city": "Springfield"},
		"amount":  float64(1200),
	}

	tests := []struct {
		name   string
		config map[string]interface{}
		want   bool
	}{
		{"empty config matches", nil, true},
		{"equal value", map[string]interface{}{"status": "completed"}, true},
		{"different value", map[string]interface{}{"status": "new"}, false},
		{"missing key", map[string]interface{}{"technician_id": 3}, false},
		{"nested key", map[string]interface{}{"contact.city": "Springfield"}, true},
		{"number compared by text", map[string]interface{}{"amount": 1200}, true},
		{"all conditions required", map[string]interface{}{"status": "completed", "urgency": "low"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesTrigger(tt.config, payload))
		})
	}
}

func TestRenderTemplate(t *testing.T) {
	payload := map[string]interface{}{
		"first_name": "Ada",
		"service":    map[string]interface{}{"title": "Furnace repair"},
	}
	got := RenderTemplate("Hi {{first_name}}, your {{ service.title }} is booked{{unknown}}.", payload)
	assert.Equal(t, "Hi Ada, your Furnace repair is booked.", got)
}

func TestValidateActions(t *testing.T) {
	dispatcher := NewAutomationDispatcher(nil, DefaultExecutors(nil, nil, nil, nil), testLogger())

	assert.Error(t, dispatcher.ValidateActions(nil))
	assert.Error(t, dispatcher.ValidateActions([]models.AutomationAction{{Type: "teleport"}}))
	assert.Error(t, dispatcher.ValidateActions([]models.AutomationAction{
		{Type: models.ActionSendEmail, Config: map[string]interface{}{"subject": "hi"}},
	}))
	assert.NoError(t, dispatcher.ValidateActions([]models.AutomationAction{
		{Type: models.ActionSendEmail, Config: map[string]interface{}{"to": "a@b.co", "subject": "hi", "body": "x"}},
	}))
}
