package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"fieldcrm/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ComputeTotals fills each line amount and returns subtotal, tax and total in
// cents. taxRate is a percentage.
func ComputeTotals(items []models.LineItem, taxRate float64) (subtotal, tax, total int64) {
	for i := range items {
		items[i].Amount = int64(math.Round(items[i].Quantity * float64(items[i].UnitPrice)))
		subtotal += items[i].Amount
	}
	tax = int64(math.Round(float64(subtotal) * taxRate / 100))
	return subtotal, tax, subtotal + tax
}

// NextInvoiceNumber increments the organization's sequence for year and
// formats the result. Call it inside the transaction that inserts the
// invoice; the row update holds the sequence until commit.
func NextInvoiceNumber(tx *gorm.DB, organizationID uint, year int) (string, error) {
	seq := models.InvoiceSequence{OrganizationID: organizationID, Year: year}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seq).Error; err != nil {
		return "", fmt.Errorf("failed to initialise invoice sequence: %w", err)
	}
	res := tx.Model(&models.InvoiceSequence{}).
		Where("organization_id = ? AND year = ?", organizationID, year).
		Update("last_value", gorm.Expr("last_value + 1"))
	if res.Error != nil {
		return "", fmt.Errorf("failed to advance invoice sequence: %w", res.Error)
	}
	if err := tx.Where("organization_id = ? AND year = ?", organizationID, year).First(&seq).Error; err != nil {
		return "", err
	}
	return FormatInvoiceNumber(year, seq.LastValue), nil
}

func FormatInvoiceNumber(year, seq int) string {
	return fmt.Sprintf("INV-%d-%05d", year, seq)
}

// CreateInvoice computes totals, allocates the number and inserts the invoice
// in one transaction.
func CreateInvoice(ctx context.Context, db *gorm.DB, invoice *models.Invoice) error {
	if len(invoice.LineItems) == 0 {
		return fmt.Errorf("at least one line item is required")
	}
	if invoice.IssueDate.IsZero() {
		invoice.IssueDate = time.Now().UTC()
	}
	if invoice.Status == "" {
		invoice.Status = models.InvoiceStatusDraft
	}
	invoice.Subtotal, invoice.Tax, invoice.Total = ComputeTotals(invoice.LineItems, invoice.TaxRate)

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := NextInvoiceNumber(tx, invoice.OrganizationID, invoice.IssueDate.Year())
		if err != nil {
			return err
		}
		invoice.Number = number
		return tx.Create(invoice).Error
	})
}
