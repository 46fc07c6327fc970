package services

import (
	"context"
	"encoding/json"

	"fieldcrm/models"
	"fieldcrm/utils"

	"github.com/sirupsen/logrus"
)

// Event types
const (
	EventContactCreated       = "contact.created"
	EventContactUpdated       = "contact.updated"
	EventDealCreated          = "deal.created"
	EventDealStageChanged     = "deal.stage_changed"
	EventTaskCreated          = "task.created"
	EventTaskCompleted        = "task.completed"
	EventServiceCreated       = "service.created"
	EventServiceStatusChanged = "service.status_changed"
	EventServiceTriaged       = "service.triaged"
	EventInvoiceCreated       = "invoice.created"
	EventInvoiceSent          = "invoice.sent"
	EventPaymentSucceeded     = "payment.succeeded"
	EventPaymentFailed        = "payment.failed"
	EventSMSReceived          = "sms.received"
)

// EventTypes lists every event an automation or webhook may subscribe to.
var EventTypes = []string{
	EventContactCreated, EventContactUpdated, EventDealCreated, EventDealStageChanged,
	EventTaskCreated, EventTaskCompleted, EventServiceCreated, EventServiceStatusChanged,
	EventServiceTriaged, EventInvoiceCreated, EventInvoiceSent, EventPaymentSucceeded,
	EventPaymentFailed, EventSMSReceived,
}

// KnownEvent reports whether t is a defined event type.
func KnownEvent(t string) bool {
	for _, e := range EventTypes {
		if e == t {
			return true
		}
	}
	return false
}

// Event is something that happened to a CRM record.
type Event struct {
	OrganizationID uint                   `json:"organization_id"`
	Type           string                 `json:"type"`
	Payload        map[string]interface{} `json:"payload"`
}

// Emitter is what handlers use to publish events.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// EventBus runs automations and queues webhook deliveries for each event.
type EventBus struct {
	automations *AutomationDispatcher
	webhooks    *WebhookQueue
	logger      logrus.FieldLogger
}

func NewEventBus(automations *AutomationDispatcher, webhooks *WebhookQueue, logger logrus.FieldLogger) *EventBus {
	return &EventBus{automations: automations, webhooks: webhooks, logger: logger}
}

// Emit is synchronous and never fails the caller; errors are logged.
func (b *EventBus) Emit(ctx context.Context, ev Event) {
	utils.LogEvent(b.logger, ev.Type, map[string]interface{}{"organization_id": ev.OrganizationID})

	if b.automations != nil {
		if _, err := b.automations.Dispatch(ctx, ev); err != nil {
			utils.LogError(b.logger, "automation_dispatch", err, map[string]interface{}{"event": ev.Type})
		}
	}
	if b.webhooks != nil {
		if _, err := b.webhooks.Enqueue(ctx, ev); err != nil {
			utils.LogError(b.logger, "webhook_enqueue", err, map[string]interface{}{"event": ev.Type})
		}
	}
}

// ToPayload converts a record into the generic map carried by events.
func ToPayload(v interface{}) map[string]interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{}
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]interface{}{}
	}
	// gorm.Model serializes its primary key as ID
	if id, ok := out["ID"]; ok {
		out["id"] = id
		if key := recordKey(v); key != "" {
			out[key] = id
		}
	}
	return out
}

// recordKey names the reference key actions read for the record's own id.
func recordKey(v interface{}) string {
	switch v.(type) {
	case models.Contact, *models.Contact:
		return "contact_id"
	case models.Deal, *models.Deal:
		return "deal_id"
	case models.Task, *models.Task:
		return "task_id"
	case models.Service, *models.Service:
		return "service_id"
	case models.Invoice, *models.Invoice:
		return "invoice_id"
	case models.Payment, *models.Payment:
		return "payment_id"
	}
	return ""
}
