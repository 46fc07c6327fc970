package services

import (
	"context"
	"time"

	"fieldcrm/models"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Snapshot is the organization-wide summary behind the dashboard and the
// assistant prompt.
type Snapshot struct {
	Contacts          int64                  `json:"contacts"`
	OpenDeals         int64                  `json:"open_deals"`
	PipelineValue     int64                  `json:"pipeline_value"` // in cents
	OpenTasks         int64                  `json:"open_tasks"`
	OverdueTasks      int64                  `json:"overdue_tasks"`
	ServicesByStatus  map[string]int64       `json:"services_by_status"`
	UnpaidInvoices    int64                  `json:"unpaid_invoices"`
	UnpaidTotal       int64                  `json:"unpaid_total"` // in cents
	RecentAutomations []models.AutomationRun `json:"recent_automation_runs"`
}

// BuildSnapshot runs the independent summary queries in parallel.
func BuildSnapshot(ctx context.Context, db *gorm.DB, organizationID uint) (*Snapshot, error) {
	s := &Snapshot{ServicesByStatus: map[string]int64{}}
	db = db.WithContext(ctx)
	now := time.Now()

	openDeals := func() *gorm.DB {
		return db.Model(&models.Deal{}).
			Joins("JOIN pipeline_stages ON pipeline_stages.id = deals.stage_id").
			Where("deals.organization_id = ? AND pipeline_stages.is_won = ? AND pipeline_stages.is_lost = ?", organizationID, false, false)
	}
	unpaid := func() *gorm.DB {
		return db.Model(&models.Invoice{}).
			Where("organization_id = ? AND status IN ?", organizationID, []string{models.InvoiceStatusDraft, models.InvoiceStatusSent})
	}

	var g errgroup.Group
	g.Go(func() error {
		return db.Model(&models.Contact{}).Where("organization_id = ?", organizationID).Count(&s.Contacts).Error
	})
	g.Go(func() error {
		return openDeals().Count(&s.OpenDeals).Error
	})
	g.Go(func() error {
		return openDeals().Select("COALESCE(SUM(deals.value), 0)").Scan(&s.PipelineValue).Error
	})
	g.Go(func() error {
		return db.Model(&models.Task{}).Where("organization_id = ? AND completed = ?", organizationID, false).Count(&s.OpenTasks).Error
	})
	g.Go(func() error {
		return db.Model(&models.Task{}).
			Where("organization_id = ? AND completed = ? AND due_date < ?", organizationID, false, now).
			Count(&s.OverdueTasks).Error
	})

	var byStatus []struct {
		Status string
		Count  int64
	}
	g.Go(func() error {
		return db.Model(&models.Service{}).Select("status, COUNT(*) AS count").
			Where("organization_id = ?", organizationID).
			Group("status").Scan(&byStatus).Error
	})
	g.Go(func() error {
		return unpaid().Count(&s.UnpaidInvoices).Error
	})
	g.Go(func() error {
		return unpaid().Select("COALESCE(SUM(total), 0)").Scan(&s.UnpaidTotal).Error
	})
	g.Go(func() error {
		return db.Where("organization_id = ?", organizationID).Order("created_at desc").Limit(5).Find(&s.RecentAutomations).Error
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, row := range byStatus {
		s.ServicesByStatus[row.Status] = row.Count
	}
	return s, nil
}
