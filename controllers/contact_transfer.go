package controller

import (
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"fieldcrm/models"
	"fieldcrm/services"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
)

const (
	importMaxBytes  = 5 << 20
	importBatchSize = 100
)

var exportHeader = []string{"first_name", "last_name", "email", "phone", "company", "address", "city", "state", "postal_code", "source", "created_at"}

type importSummary struct {
	Created  int `json:"created"`
	Skipped  int `json:"skipped"`
	Existing int `json:"existing"`
}

// ImportContacts creates contacts from an uploaded CSV. The header row names
// the columns; rows without a name or an email/phone are skipped and known
// emails are not duplicated.
func (cc *ContactController) ImportContacts(c *fiber.Ctx) error {
	user := currentUser(c)

	file, err := c.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File upload error", err)
	}
	if file.Size > importMaxBytes {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File too large (max 5MB)", nil)
	}

	src, err := file.Open()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to open file", err)
	}
	defer src.Close()

	reader := csv.NewReader(src)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to parse CSV file", err)
	}
	if len(records) < 2 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "CSV file must have at least a header and one row", nil)
	}

	header := make([]string, len(records[0]))
	for i, col := range records[0] {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
	}

	var known []string
	if err := cc.DB.WithContext(c.UserContext()).Model(&models.Contact{}).
		Where("organization_id = ? AND email <> ''", user.OrganizationID).
		Pluck("email", &known).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contacts", err)
	}
	seen := make(map[string]bool, len(known))
	for _, email := range known {
		seen[strings.ToLower(email)] = true
	}

	var summary importSummary
	var batch []models.Contact
	for _, row := range records[1:] {
		if len(row) != len(header) {
			summary.Skipped++
			continue
		}
		data := make(map[string]string, len(header))
		for i, col := range header {
			data[col] = strings.TrimSpace(row[i])
		}

		contact := models.Contact{
			OrganizationID: user.OrganizationID,
			FirstName:      data["first_name"],
			LastName:       data["last_name"],
			Email:          strings.ToLower(data["email"]),
			Phone:          data["phone"],
			Company:        data["company"],
			Address:        data["address"],
			City:           data["city"],
			State:          data["state"],
			PostalCode:     data["postal_code"],
			Notes:          data["notes"],
			Source:         "import",
		}
		if (contact.FirstName == "" && contact.Company == "") || (contact.Email == "" && contact.Phone == "") {
			summary.Skipped++
			continue
		}
		if contact.Email != "" {
			if !utils.ValidEmail(contact.Email) {
				summary.Skipped++
				continue
			}
			if seen[contact.Email] {
				summary.Existing++
				continue
			}
			seen[contact.Email] = true
		}
		batch = append(batch, contact)
	}

	for start := 0; start < len(batch); start += importBatchSize {
		end := start + importBatchSize
		if end > len(batch) {
			end = len(batch)
		}
		chunk := batch[start:end]
		if err := cc.DB.WithContext(c.UserContext()).Create(&chunk).Error; err != nil {
			utils.LogError(cc.Logger, "contact_import", err, map[string]interface{}{
				"organization_id": user.OrganizationID,
				"imported":        summary.Created,
			})
			return utils.ErrorResponse(c, fiber.StatusInternalServerError,
				fmt.Sprintf("Import stopped after %d contacts", summary.Created), err)
		}
		summary.Created += len(chunk)
		for _, contact := range chunk {
			emit(c.UserContext(), cc.Events, user.OrganizationID, services.EventContactCreated, contact)
		}
	}

	cc.Audit.Record(c.UserContext(), user, "contact.imported", "contact", 0, map[string]interface{}{
		"created": summary.Created, "skipped": summary.Skipped, "existing": summary.Existing,
	})
	return c.JSON(utils.SuccessResponse(summary))
}

// ExportContactsCSV streams the organization's contacts as CSV
func (cc *ContactController) ExportContactsCSV(c *fiber.Ctx) error {
	user := currentUser(c)

	var contacts []models.Contact
	if err := cc.DB.WithContext(c.UserContext()).Where("organization_id = ?", user.OrganizationID).
		Order("id asc").Find(&contacts).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch contacts", err)
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="contacts-%s.csv"`, time.Now().Format("20060102")))

	writer := csv.NewWriter(c)
	if err := writer.Write(exportHeader); err != nil {
		return err
	}
	for _, contact := range contacts {
		if err := writer.Write([]string{
			contact.FirstName, contact.LastName, contact.Email, contact.Phone, contact.Company,
			contact.Address, contact.City, contact.State, contact.PostalCode, contact.Source,
			contact.CreatedAt.Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// VerifyEmail reports whether the contact's email looks deliverable
func (cc *ContactController) VerifyEmail(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid contact ID", err)
	}

	var contact models.Contact
	if err := cc.DB.WithContext(c.UserContext()).Where("id = ? AND organization_id = ?", id, user.OrganizationID).First(&contact).Error; err != nil {
		return findError(c, err, "Contact")
	}
	if contact.Email == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Contact has no email", nil)
	}

	return c.JSON(utils.SuccessResponse(utils.CheckEmail(c.UserContext(), contact.Email, cc.MX)))
}
