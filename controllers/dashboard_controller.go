package controller

import (
	"time"

	"fieldcrm/models"
	"fieldcrm/services"
	"fieldcrm/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type DashboardController struct {
	DB     *gorm.DB
	Logger logrus.FieldLogger
}

func NewDashboardController(db *gorm.DB, logger logrus.FieldLogger) *DashboardController {
	return &DashboardController{
		DB:     db,
		Logger: logger,
	}
}

type TimeSeriesData struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

type Dataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BorderColor     string    `json:"borderColor"`
	BackgroundColor string    `json:"backgroundColor"`
}

// GetDashboard returns the summary cards
func (dc *DashboardController) GetDashboard(c *fiber.Ctx) error {
	user := currentUser(c)
	snapshot, err := services.BuildSnapshot(c.UserContext(), dc.DB, user.OrganizationID)
	if err != nil {
		utils.LogError(dc.Logger, "dashboard_snapshot", err, map[string]interface{}{"organization_id": user.OrganizationID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to build dashboard", err)
	}
	return c.JSON(utils.SuccessResponse(snapshot))
}

// GetActivityOverTime charts services opened, services completed and
// revenue collected per week (range=month) or per month (range=year).
func (dc *DashboardController) GetActivityOverTime(c *fiber.Ctx) error {
	user := currentUser(c)
	timeRange := c.Query("range", "year") // month, year
	ctx := c.UserContext()

	now := time.Now()
	var labels []string
	var buckets [][2]time.Time

	if timeRange == "month" {
		start := now.AddDate(0, 0, -28)
		for i := 0; i < 4; i++ {
			from := start.AddDate(0, 0, 7*i)
			buckets = append(buckets, [2]time.Time{from, from.AddDate(0, 0, 7)})
			labels = append(labels, from.Format("Jan 2"))
		}
	} else {
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -11, 0)
		for i := 0; i < 12; i++ {
			from := first.AddDate(0, i, 0)
			buckets = append(buckets, [2]time.Time{from, from.AddDate(0, 1, 0)})
			labels = append(labels, from.Format("Jan"))
		}
	}

	data := TimeSeriesData{
		Labels: labels,
		Datasets: []Dataset{
			{
				Label:           "Services Opened",
				BorderColor:     "#3B82F6",
				BackgroundColor: "rgba(59, 130, 246, 0.1)",
			},
			{
				Label:           "Services Completed",
				BorderColor:     "#10B981",
				BackgroundColor: "rgba(16, 185, 129, 0.1)",
			},
			{
				Label:           "Revenue",
				BorderColor:     "#8B5CF6",
				BackgroundColor: "rgba(139, 92, 246, 0.1)",
			},
		},
	}

	for _, b := range buckets {
		var opened, completed int64
		var revenue struct{ Sum int64 }

		if err := dc.DB.WithContext(ctx).Model(&models.Service{}).
			Where("organization_id = ? AND created_at >= ? AND created_at < ?", user.OrganizationID, b[0], b[1]).
			Count(&opened).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count services", err)
		}
		if err := dc.DB.WithContext(ctx).Model(&models.Service{}).
			Where("organization_id = ? AND completed_at >= ? AND completed_at < ?", user.OrganizationID, b[0], b[1]).
			Count(&completed).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count services", err)
		}
		if err := dc.DB.WithContext(ctx).Model(&models.Payment{}).
			Select("COALESCE(SUM(amount), 0) AS sum").
			Where("organization_id = ? AND status = ? AND paid_at >= ? AND paid_at < ?",
				user.OrganizationID, models.PaymentStatusSucceeded, b[0], b[1]).
			Scan(&revenue).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to sum revenue", err)
		}

		data.Datasets[0].Data = append(data.Datasets[0].Data, float64(opened))
		data.Datasets[1].Data = append(data.Datasets[1].Data, float64(completed))
		data.Datasets[2].Data = append(data.Datasets[2].Data, float64(revenue.Sum)/100)
	}

	return c.JSON(utils.SuccessResponse(data))
}
