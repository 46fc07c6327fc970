package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net"
	"net/http/httptest"
	"strings"
	"testing"

	"fieldcrm/models"
	"fieldcrm/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func contactApp(t *testing.T) (*gorm.DB, *models.User, *recordingEmitter, *ContactController, *fiber.App) {
	t.Helper()
	db := newTestDB(t)
	user := seedUser(t, db, "owner@example.com")
	events := &recordingEmitter{}
	attachments := services.NewAttachments(db, nil, services.BucketPolicy{}, testLogger())
	cc := NewContactController(db, testLogger(), events, attachments, services.NewAuditor(db, testLogger()))

	app := testApp(user, func(app *fiber.App) {
		app.Post("/contacts", cc.CreateContact)
		app.Post("/contacts/import", cc.ImportContacts)
		app.Get("/contacts/export", cc.ExportContactsCSV)
		app.Get("/contacts/:id/verify-email", cc.VerifyEmail)
		app.Delete("/contacts/:id", cc.DeleteContact)
	})
	return db, user, events, cc, app
}

func TestCreateContactRejectsMissingName(t *testing.T) {
	db, _, events, _, app := contactApp(t)

	status, env := do(t, app, jsonRequest(t, "POST", "/contacts", fiber.Map{"last_name": "Lovelace"}))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Validation failed", env.Error)

	var count int64
	require.NoError(t, db.Model(&models.Contact{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, events.types())
}

func TestCreateContact(t *testing.T) {
	db, user, events, _, app := contactApp(t)

	status, env := do(t, app, jsonRequest(t, "POST", "/contacts", fiber.Map{
		"first_name": " Ada ",
		"email":      "Ada@Example.com",
	}))
	require.Equal(t, fiber.StatusCreated, status)

	var created models.Contact
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "Ada", created.FirstName)
	assert.Equal(t, "ada@example.com", created.Email)
	assert.Equal(t, "manual", created.Source)
	assert.Equal(t, user.OrganizationID, created.OrganizationID)

	var stored models.Contact
	require.NoError(t, db.First(&stored, created.ID).Error)
	assert.Equal(t, []string{services.EventContactCreated}, events.types())
}

func TestDeleteContactNotFound(t *testing.T) {
	_, _, _, _, app := contactApp(t)

	status, env := do(t, app, jsonRequest(t, "DELETE", "/contacts/999", nil))
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "Contact not found", env.Error)
}

func TestDeleteContactOfAnotherOrganization(t *testing.T) {
	db, _, _, _, app := contactApp(t)
	other := seedUser(t, db, "other@example.com")
	contact := models.Contact{OrganizationID: other.OrganizationID, FirstName: "Grace", Phone: "5550100"}
	require.NoError(t, db.Create(&contact).Error)

	status, _ := do(t, app, jsonRequest(t, "DELETE", "/contacts/"+itoa(contact.ID), nil))
	assert.Equal(t, fiber.StatusNotFound, status)

	var count int64
	require.NoError(t, db.Model(&models.Contact{}).Where("id = ?", contact.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestImportContacts(t *testing.T) {
	db, user, events, _, app := contactApp(t)
	require.NoError(t, db.Create(&models.Contact{
		OrganizationID: user.OrganizationID,
		FirstName:      "Grace",
		Email:          "grace@example.com",
	}).Error)

	// spreadsheet exports lead with a byte-order mark
	csvBody := strings.Join([]string{
		"\ufeffFirst_Name,last_name,email,phone,company",
		"Ada,Lovelace,ada@example.com,,",
		"Grace,Hopper,GRACE@example.com,555,",
		",,,,",
		"Alan,Turing,,,",
		"Bad,Email,not-an-email,,",
		",,,5550100,Acme Plumbing",
		"Ada,Again,ada@example.com,,",
		"Short,row",
	}, "\n")

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "contacts.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csvBody))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest("POST", "/contacts/import", &buf)
	req.Header.Set(fiber.HeaderContentType, form.FormDataContentType())
	status, env := do(t, app, req)
	require.Equal(t, fiber.StatusOK, status, env.Details)

	var summary importSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, importSummary{Created: 2, Skipped: 4, Existing: 2}, summary)

	var imported []models.Contact
	require.NoError(t, db.Where("source = ?", "import").Order("id asc").Find(&imported).Error)
	require.Len(t, imported, 2)
	assert.Equal(t, "ada@example.com", imported[0].Email)
	assert.Equal(t, "Acme Plumbing", imported[1].Company)
	assert.Len(t, events.types(), 2)

	var audits int64
	require.NoError(t, db.Model(&models.AuditLog{}).Where("action = ?", "contact.imported").Count(&audits).Error)
	assert.Equal(t, int64(1), audits)
}

func TestExportContactsCSV(t *testing.T) {
	db, user, _, _, app := contactApp(t)
	require.NoError(t, db.Create(&models.Contact{
		OrganizationID: user.OrganizationID,
		FirstName:      "Ada",
		LastName:       "Lovelace",
		Email:          "ada@example.com",
		Source:         "manual",
	}).Error)

	resp, err := app.Test(httptest.NewRequest("GET", "/contacts/export", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/csv", resp.Header.Get(fiber.HeaderContentType))
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "contacts-")

	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(exportHeader, ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Ada,Lovelace,ada@example.com,"))
}

func TestVerifyEmail(t *testing.T) {
	db, user, _, cc, app := contactApp(t)
	cc.MX = func(_ context.Context, domain string) ([]*net.MX, error) {
		return []*net.MX{{Host: "mx." + domain + ".", Pref: 10}}, nil
	}
	withEmail := models.Contact{OrganizationID: user.OrganizationID, FirstName: "Ada", Email: "ada@fieldco.example"}
	withoutEmail := models.Contact{OrganizationID: user.OrganizationID, FirstName: "Alan", Phone: "5550100"}
	require.NoError(t, db.Create(&withEmail).Error)
	require.NoError(t, db.Create(&withoutEmail).Error)

	status, env := do(t, app, jsonRequest(t, "GET", "/contacts/"+itoa(withEmail.ID)+"/verify-email", nil))
	require.Equal(t, fiber.StatusOK, status)
	var check struct {
		Status string `json:"status"`
		HasMX  bool   `json:"has_mx"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &check))
	assert.Equal(t, "valid", check.Status)
	assert.True(t, check.HasMX)

	status, _ = do(t, app, jsonRequest(t, "GET", "/contacts/"+itoa(withoutEmail.ID)+"/verify-email", nil))
	assert.Equal(t, fiber.StatusBadRequest, status)
}
