package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fieldcrm/models"

	"gorm.io/gorm"
)

// DefaultExecutors wires every action type to its adapter. Nil adapters
// produce executors that fail at run time with "not configured".
func DefaultExecutors(db *gorm.DB, mail EmailSender, sms SMSSender, http HTTPPoster) map[string]ActionExecutor {
	return map[string]ActionExecutor{
		models.ActionSendEmail:           &SendEmailAction{Mailer: mail},
		models.ActionSendSMS:             &SendSMSAction{SMS: sms},
		models.ActionCreateTask:          &CreateTaskAction{DB: db},
		models.ActionWebhook:             &WebhookAction{Client: http},
		models.ActionUpdateServiceStatus: &UpdateServiceStatusAction{DB: db},
	}
}

// SendEmailAction config: to, subject, body
type SendEmailAction struct {
	Mailer EmailSender
}

func (a *SendEmailAction) Validate(config map[string]interface{}) error {
	return requireKeys(config, "to", "subject", "body")
}

func (a *SendEmailAction) Execute(ctx context.Context, action models.AutomationAction, ev Event) (string, error) {
	if a.Mailer == nil {
		return "", fmt.Errorf("email is not configured")
	}
	to := RenderTemplate(configString(action.Config, "to"), ev.Payload)
	if to == "" {
		return "", fmt.Errorf("recipient resolved to an empty address")
	}
	subject := RenderTemplate(configString(action.Config, "subject"), ev.Payload)
	body := RenderTemplate(configString(action.Config, "body"), ev.Payload)
	if err := a.Mailer.SendEmail(ctx, to, subject, body); err != nil {
		return "", err
	}
	return "email sent to " + to, nil
}

// SendSMSAction config: to, body
type SendSMSAction struct {
	SMS SMSSender
}

func (a *SendSMSAction) Validate(config map[string]interface{}) error {
	return requireKeys(config, "to", "body")
}

func (a *SendSMSAction) Execute(ctx context.Context, action models.AutomationAction, ev Event) (string, error) {
	if a.SMS == nil {
		return "", fmt.Errorf("sms is not configured")
	}
	to := models.NormalizePhone(RenderTemplate(configString(action.Config, "to"), ev.Payload))
	if to == "" {
		return "", fmt.Errorf("recipient resolved to an empty number")
	}
	sid, err := a.SMS.SendSMS(ctx, to, RenderTemplate(configString(action.Config, "body"), ev.Payload))
	if err != nil {
		return "", err
	}
	return sid, nil
}

// CreateTaskAction config: title, description, due_in_days, assigned_to
type CreateTaskAction struct {
	DB *gorm.DB
}

func (a *CreateTaskAction) Validate(config map[string]interface{}) error {
	if err := requireKeys(config, "title"); err != nil {
		return err
	}
	if v := configString(config, "due_in_days"); v != "" {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("due_in_days must be a number")
		}
	}
	return nil
}

func (a *CreateTaskAction) Execute(ctx context.Context, action models.AutomationAction, ev Event) (string, error) {
	task := models.Task{
		OrganizationID: ev.OrganizationID,
		Title:          RenderTemplate(configString(action.Config, "title"), ev.Payload),
		Description:    RenderTemplate(configString(action.Config, "description"), ev.Payload),
	}
	if days, err := strconv.ParseFloat(configString(action.Config, "due_in_days"), 64); err == nil {
		due := time.Now().Add(time.Duration(days * 24 * float64(time.Hour)))
		task.DueDate = &due
	}
	if id := payloadID(action.Config, "assigned_to"); id != nil {
		task.AssignedTo = id
	}
	task.ContactID = payloadID(ev.Payload, "contact_id")
	task.DealID = payloadID(ev.Payload, "deal_id")
	task.ServiceID = payloadID(ev.Payload, "service_id")

	if err := a.DB.WithContext(ctx).Create(&task).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("task %d created", task.ID), nil
}

// WebhookAction config: url, optional method and headers. The event is the body.
type WebhookAction struct {
	Client HTTPPoster
}

func (a *WebhookAction) Validate(config map[string]interface{}) error {
	if err := requireKeys(config, "url"); err != nil {
		return err
	}
	url := configString(config, "url")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("url must be http or https")
	}
	return nil
}

func (a *WebhookAction) Execute(ctx context.Context, action models.AutomationAction, ev Event) (string, error) {
	if a.Client == nil {
		return "", fmt.Errorf("http client is not configured")
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	headers := map[string]string{"Content-Type": "application/json"}
	if h, ok := action.Config["headers"].(map[string]interface{}); ok {
		for k, v := range h {
			headers[k] = RenderTemplate(fmt.Sprint(v), ev.Payload)
		}
	}
	status, _, err := a.Client.Post(ctx, RenderTemplate(configString(action.Config, "url"), ev.Payload), headers, body)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("endpoint responded %d", status)
	}
	return fmt.Sprintf("HTTP %d", status), nil
}

// UpdateServiceStatusAction config: status. Targets the event's service.
type UpdateServiceStatusAction struct {
	DB *gorm.DB
}

func (a *UpdateServiceStatusAction) Validate(config map[string]interface{}) error {
	if err := requireKeys(config, "status"); err != nil {
		return err
	}
	status := configString(config, "status")
	for _, s := range models.ServiceStatuses {
		if s == status {
			return nil
		}
	}
	return fmt.Errorf("unknown service status %q", status)
}

func (a *UpdateServiceStatusAction) Execute(ctx context.Context, action models.AutomationAction, ev Event) (string, error) {
	serviceID := payloadID(ev.Payload, "service_id")
	if serviceID == nil {
		return "", fmt.Errorf("event carries no service_id")
	}
	status := configString(action.Config, "status")
	res := a.DB.WithContext(ctx).Model(&models.Service{}).
		Where("id = ? AND organization_id = ?", *serviceID, ev.OrganizationID).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return "", fmt.Errorf("service %d not found", *serviceID)
	}
	return "status set to " + status, nil
}

func payloadID(m map[string]interface{}, key string) *uint {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	n, err := strconv.ParseUint(fmt.Sprint(v), 10, 64)
	if err != nil || n == 0 {
		return nil
	}
	id := uint(n)
	return &id
}
