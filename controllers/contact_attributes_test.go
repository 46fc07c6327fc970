package controller

import (
	"encoding/json"
	"testing"

	"fieldcrm/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAssignProfileTypeKeepsOnePrimary(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "owner@example.com")
	contact := models.Contact{OrganizationID: user.OrganizationID, FirstName: "Ada", Phone: "5550100"}
	require.NoError(t, db.Create(&contact).Error)
	homeowner := models.ProfileType{OrganizationID: user.OrganizationID, Name: "Homeowner"}
	landlord := models.ProfileType{OrganizationID: user.OrganizationID, Name: "Landlord"}
	require.NoError(t, db.Create(&homeowner).Error)
	require.NoError(t, db.Create(&landlord).Error)

	pc := NewProfileTypeController(db, testLogger())
	app := testApp(user, func(app *fiber.App) {
		app.Post("/contacts/:id/profile-types", pc.AssignProfileType)
	})
	path := "/contacts/" + itoa(contact.ID) + "/profile-types"

	status, env := do(t, app, jsonRequest(t, "POST", path, fiber.Map{"profile_type_id": homeowner.ID, "is_primary": true}))
	require.Equal(t, fiber.StatusCreated, status, env.Details)
	var assignment models.ProfileTypeAssignment
	require.NoError(t, json.Unmarshal(env.Data, &assignment))
	require.NotNil(t, assignment.ProfileType)
	assert.Equal(t, "Homeowner", assignment.ProfileType.Name)

	status, _ = do(t, app, jsonRequest(t, "POST", path, fiber.Map{"profile_type_id": landlord.ID, "is_primary": true}))
	require.Equal(t, fiber.StatusCreated, status)

	var rows []models.ProfileTypeAssignment
	require.NoError(t, db.Where("contact_id = ?", contact.ID).Order("profile_type_id asc").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.False(t, rows[0].IsPrimary)
	assert.True(t, rows[1].IsPrimary)

	// assigning again updates the existing row
	status, _ = do(t, app, jsonRequest(t, "POST", path, fiber.Map{"profile_type_id": homeowner.ID, "is_primary": true}))
	require.Equal(t, fiber.StatusCreated, status)
	require.NoError(t, db.Where("contact_id = ?", contact.ID).Order("profile_type_id asc").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].IsPrimary)
	assert.False(t, rows[1].IsPrimary)

	status, env = do(t, app, jsonRequest(t, "POST", path, fiber.Map{"profile_type_id": 999}))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Unknown profile type", env.Error)
}

func TestUpsertCustomFieldValues(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "owner@example.com")
	contact := models.Contact{OrganizationID: user.OrganizationID, FirstName: "Ada", Phone: "5550100"}
	require.NoError(t, db.Create(&contact).Error)
	tank := models.CustomFieldDefinition{OrganizationID: user.OrganizationID, Name: "Tank size", FieldType: models.FieldTypeNumber}
	fuel := models.CustomFieldDefinition{
		OrganizationID: user.OrganizationID,
		Name:           "Fuel",
		FieldType:      models.FieldTypeSelect,
		Options:        datatypes.JSONSlice[string]{"gas", "electric"},
	}
	require.NoError(t, db.Create(&tank).Error)
	require.NoError(t, db.Create(&fuel).Error)

	fc := NewCustomFieldController(db, testLogger())
	app := testApp(user, func(app *fiber.App) {
		app.Put("/contacts/:id/custom-fields", fc.UpsertValues)
	})
	path := "/contacts/" + itoa(contact.ID) + "/custom-fields"

	status, env := do(t, app, jsonRequest(t, "PUT", path, fiber.Map{"values": []fiber.Map{
		{"field_definition_id": tank.ID, "value": "40"},
		{"field_definition_id": fuel.ID, "value": "gas"},
	}}))
	require.Equal(t, fiber.StatusOK, status, env.Details)
	var values []models.CustomFieldValue
	require.NoError(t, json.Unmarshal(env.Data, &values))
	require.Len(t, values, 2)

	status, env = do(t, app, jsonRequest(t, "PUT", path, fiber.Map{"values": []fiber.Map{
		{"field_definition_id": fuel.ID, "value": "electric"},
	}}))
	require.Equal(t, fiber.StatusOK, status, env.Details)
	require.NoError(t, json.Unmarshal(env.Data, &values))
	require.Len(t, values, 2)
	assert.Equal(t, "40", values[0].Value)
	assert.Equal(t, "electric", values[1].Value)

	cases := []struct {
		name    string
		value   fiber.Map
		details string
	}{
		{"number", fiber.Map{"field_definition_id": tank.ID, "value": "forty"}, "Tank size must be a number"},
		{"select", fiber.Map{"field_definition_id": fuel.ID, "value": "diesel"}, "Fuel must be one of the field options"},
		{"unknown", fiber.Map{"field_definition_id": 999, "value": "x"}, "field_definition_id 999"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := do(t, app, jsonRequest(t, "PUT", path, fiber.Map{"values": []fiber.Map{tc.value}}))
			assert.Equal(t, fiber.StatusBadRequest, status)
			assert.Equal(t, tc.details, env.Details)
		})
	}

	var stored []models.CustomFieldValue
	require.NoError(t, db.Where("contact_id = ?", contact.ID).Order("id asc").Find(&stored).Error)
	require.Len(t, stored, 2)
	assert.Equal(t, "electric", stored[1].Value)
}

func TestDeleteStageWithDeals(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, "owner@example.com")
	var stages []models.PipelineStage
	require.NoError(t, db.Where("organization_id = ?", user.OrganizationID).Order("position asc").Find(&stages).Error)
	require.Len(t, stages, 6)
	require.NoError(t, db.Create(&models.Deal{OrganizationID: user.OrganizationID, Title: "Boiler swap", StageID: stages[0].ID}).Error)

	pc := NewPipelineController(db, testLogger())
	app := testApp(user, func(app *fiber.App) {
		app.Delete("/pipeline/stages/:id", pc.DeleteStage)
	})

	status, env := do(t, app, jsonRequest(t, "DELETE", "/pipeline/stages/"+itoa(stages[0].ID), nil))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Stage still has deals; move them first", env.Error)

	status, _ = do(t, app, jsonRequest(t, "DELETE", "/pipeline/stages/"+itoa(stages[1].ID), nil))
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = do(t, app, jsonRequest(t, "DELETE", "/pipeline/stages/"+itoa(stages[1].ID), nil))
	assert.Equal(t, fiber.StatusNotFound, status)
}
