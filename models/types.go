package models

import "gorm.io/datatypes"

// JSONMap is a free-form JSON object column.
type JSONMap = datatypes.JSONMap

// Attachment entity types.
const (
	EntityContact = "contact"
	EntityDeal    = "deal"
	EntityTask    = "task"
	EntityService = "service"
	EntityInvoice = "invoice"
)

// EntityTypes lists the values accepted for Attachment.EntityType.
var EntityTypes = []string{EntityContact, EntityDeal, EntityTask, EntityService, EntityInvoice}

// AllModels returns every persisted model in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&Organization{},
		&User{},
		&AuditLog{},
		&Category{},
		&ProfileType{},
		&Contact{},
		&ProfileTypeAssignment{},
		&CustomFieldDefinition{},
		&CustomFieldValue{},
		&PipelineStage{},
		&Deal{},
		&Task{},
		&Appliance{},
		&Service{},
		&ServiceSheet{},
		&ServiceTriage{},
		&InvoiceSequence{},
		&Invoice{},
		&Payment{},
		&Attachment{},
		&Automation{},
		&AutomationRun{},
		&Webhook{},
		&WebhookDelivery{},
		&SMSThread{},
		&GoogleIntegration{},
	}
}
