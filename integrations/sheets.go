package integrations

import (
	"context"
	"fmt"
	"time"

	"fieldcrm/models"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Sheets exports CRM data to the user's Google spreadsheet.
type Sheets struct {
	google *Google
}

func NewSheets(g *Google) *Sheets {
	return &Sheets{google: g}
}

// ExportResult reports where rows were written
type ExportResult struct {
	SpreadsheetID  string `json:"spreadsheet_id"`
	SpreadsheetURL string `json:"spreadsheet_url"`
	Rows           int64  `json:"rows"`
}

// ExportContacts appends one row per contact. Without a spreadsheet id the
// user's saved export sheet is used, created on first export.
func (s *Sheets) ExportContacts(ctx context.Context, userID uint, spreadsheetID string, contacts []models.Contact) (*ExportResult, error) {
	client, integration, err := s.google.Client(ctx, userID)
	if err != nil {
		return nil, err
	}
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	if spreadsheetID == "" {
		spreadsheetID = integration.SpreadsheetID
	}
	if spreadsheetID == "" {
		created, err := svc.Spreadsheets.Create(&sheets.Spreadsheet{
			Properties: &sheets.SpreadsheetProperties{Title: "CRM contacts"},
		}).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to create spreadsheet: %w", err)
		}
		spreadsheetID = created.SpreadsheetId
		integration.SpreadsheetID = spreadsheetID
		if err := s.google.db.WithContext(ctx).Save(integration).Error; err != nil {
			return nil, err
		}
	}

	values := [][]interface{}{{"ID", "Name", "Email", "Phone", "Company", "Created"}}
	for _, c := range contacts {
		values = append(values, []interface{}{
			c.ID, c.FullName(), c.Email, c.Phone, c.Company, c.CreatedAt.Format(time.RFC3339),
		})
	}

	resp, err := svc.Spreadsheets.Values.Append(spreadsheetID, "A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to append rows: %w", err)
	}

	result := &ExportResult{
		SpreadsheetID:  spreadsheetID,
		SpreadsheetURL: "https://docs.google.com/spreadsheets/d/" + spreadsheetID,
	}
	if resp.Updates != nil {
		result.Rows = resp.Updates.UpdatedRows
	}
	return result, nil
}
