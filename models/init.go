package models

import "gorm.io/gorm"

// CreateDefaultStages seeds the pipeline of a new organization
func CreateDefaultStages(db *gorm.DB, organizationID uint) error {
	defaultStages := []PipelineStage{
		{Name: "Lead", Position: 1, Probability: 10},
		{Name: "Qualified", Position: 2, Probability: 25},
		{Name: "Quote Sent", Position: 3, Probability: 50},
		{Name: "Negotiation", Position: 4, Probability: 75},
		{Name: "Won", Position: 5, Probability: 100, IsWon: true},
		{Name: "Lost", Position: 6, Probability: 0, IsLost: true},
	}
	for _, stage := range defaultStages {
		stage.OrganizationID = organizationID
		if err := db.FirstOrCreate(&stage, "organization_id = ? AND name = ?", organizationID, stage.Name).Error; err != nil {
			return err
		}
	}
	return nil
}
