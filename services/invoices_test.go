package services

import (
	"context"
	"testing"
	"time"

	"fieldcrm/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestComputeTotals(t *testing.T) {
	items := []models.LineItem{
		{Description: "Labour", Quantity: 1.5, UnitPrice: 8000},
		{Description: "Ignitor", Quantity: 1, UnitPrice: 3499},
	}
	subtotal, tax, total := ComputeTotals(items, 8.25)

	assert.Equal(t, int64(12000), items[0].Amount)
	assert.Equal(t, int64(3499), items[1].Amount)
	assert.Equal(t, int64(15499), subtotal)
	assert.Equal(t, int64(1279), tax)
	assert.Equal(t, int64(16778), total)
}

func TestCreateInvoiceNumbersPerOrganizationAndYear(t *testing.T) {
	db := newTestDB(t)
	acme := seedOrganization(t, db, "Acme")
	other := seedOrganization(t, db, "Other")
	ctx := context.Background()

	newInvoice := func(orgID uint, issued time.Time) *models.Invoice {
		return &models.Invoice{
			OrganizationID: orgID,
			IssueDate:      issued,
			LineItems:      datatypes.JSONSlice[models.LineItem]{{Description: "Visit", Quantity: 1, UnitPrice: 9900}},
		}
	}

	this := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	next := time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC)

	first := newInvoice(acme.ID, this)
	second := newInvoice(acme.ID, this)
	foreign := newInvoice(other.ID, this)
	nextYear := newInvoice(acme.ID, next)
	for _, inv := range []*models.Invoice{first, second, foreign, nextYear} {
		require.NoError(t, CreateInvoice(ctx, db, inv))
	}

	assert.Equal(t, "INV-2026-00001", first.Number)
	assert.Equal(t, "INV-2026-00002", second.Number)
	assert.Equal(t, "INV-2026-00001", foreign.Number)
	assert.Equal(t, "INV-2027-00001", nextYear.Number)
	assert.Equal(t, models.InvoiceStatusDraft, first.Status)
	assert.Equal(t, int64(9900), first.Total)
}

func TestCreateInvoiceRequiresLineItems(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db, "Acme")

	err := CreateInvoice(context.Background(), db, &models.Invoice{OrganizationID: org.ID})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.InvoiceSequence{}).Count(&count).Error)
	assert.Zero(t, count)
}
