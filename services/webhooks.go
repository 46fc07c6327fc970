package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"fieldcrm/models"
	"fieldcrm/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MaxDeliveryAttempts bounds retries of a failed delivery across batches.
const MaxDeliveryAttempts = 3

// Webhook request headers
const (
	HeaderWebhookEvent     = "X-Webhook-Event"
	HeaderWebhookDelivery  = "X-Webhook-Delivery"
	HeaderWebhookSignature = "X-Webhook-Signature"
	HeaderWebhookTimestamp = "X-Webhook-Timestamp"
)

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature header in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

// WebhookQueue turns events into pending deliveries
type WebhookQueue struct {
	db *gorm.DB
}

func NewWebhookQueue(db *gorm.DB) *WebhookQueue {
	return &WebhookQueue{db: db}
}

// Enqueue writes one pending delivery per active subscribed webhook.
func (q *WebhookQueue) Enqueue(ctx context.Context, ev Event) (int, error) {
	var hooks []models.Webhook
	if err := q.db.WithContext(ctx).Where("organization_id = ? AND active = ?", ev.OrganizationID, true).Find(&hooks).Error; err != nil {
		return 0, fmt.Errorf("failed to load webhooks: %w", err)
	}

	queued := 0
	for _, hook := range hooks {
		if !hook.Subscribes(ev.Type) {
			continue
		}
		deliveryID := uuid.NewString()
		body, err := json.Marshal(map[string]interface{}{
			"id":              deliveryID,
			"event":           ev.Type,
			"organization_id": ev.OrganizationID,
			"created_at":      time.Now().UTC(),
			"data":            ev.Payload,
		})
		if err != nil {
			return queued, err
		}
		delivery := models.WebhookDelivery{
			WebhookID:  hook.ID,
			DeliveryID: deliveryID,
			EventType:  ev.Type,
			Payload:    datatypes.JSON(body),
			Status:     models.DeliveryPending,
		}
		if err := q.db.WithContext(ctx).Create(&delivery).Error; err != nil {
			return queued, fmt.Errorf("failed to queue delivery: %w", err)
		}
		queued++
	}
	return queued, nil
}

// BatchResult summarizes one processing pass
type BatchResult struct {
	Processed int `json:"processed"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// WebhookProcessor posts queued deliveries. One failed delivery never stops
// the batch.
type WebhookProcessor struct {
	db     *gorm.DB
	client HTTPPoster
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewWebhookProcessor(db *gorm.DB, client HTTPPoster, logger logrus.FieldLogger) *WebhookProcessor {
	return &WebhookProcessor{db: db, client: client, logger: logger, now: time.Now}
}

// ProcessBatch handles up to limit pending or retryable deliveries, oldest first.
func (p *WebhookProcessor) ProcessBatch(ctx context.Context, limit int) (*BatchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	var deliveries []models.WebhookDelivery
	err := p.db.WithContext(ctx).Preload("Webhook").
		Where("status = ? OR (status = ? AND attempts < ?)", models.DeliveryPending, models.DeliveryFailed, MaxDeliveryAttempts).
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&deliveries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load deliveries: %w", err)
	}

	result := &BatchResult{}
	for i := range deliveries {
		if ctx.Err() != nil {
			break
		}
		result.Processed++
		if p.deliver(ctx, &deliveries[i]) {
			result.Delivered++
		} else {
			result.Failed++
		}
	}

	if result.Processed > 0 {
		utils.LogEvent(p.logger, "webhook_batch_processed", map[string]interface{}{
			"processed": result.Processed,
			"delivered": result.Delivered,
			"failed":    result.Failed,
		})
	}
	return result, nil
}

func (p *WebhookProcessor) deliver(ctx context.Context, d *models.WebhookDelivery) bool {
	d.Attempts++
	status, err := p.post(ctx, d)
	d.ResponseCode = status

	now := p.now()
	if err == nil {
		d.Status = models.DeliveryDelivered
		d.LastError = ""
		d.DeliveredAt = &now
	} else {
		d.Status = models.DeliveryFailed
		d.LastError = err.Error()
		utils.LogError(p.logger, "webhook_delivery", err, map[string]interface{}{
			"delivery_id": d.DeliveryID,
			"webhook_id":  d.WebhookID,
			"attempts":    d.Attempts,
		})
	}

	if serr := p.db.WithContext(ctx).Model(&models.WebhookDelivery{}).Where("id = ?", d.ID).Updates(map[string]interface{}{
		"status":        d.Status,
		"attempts":      d.Attempts,
		"response_code": d.ResponseCode,
		"last_error":    d.LastError,
		"delivered_at":  d.DeliveredAt,
	}).Error; serr != nil {
		utils.LogError(p.logger, "webhook_delivery_update", serr, map[string]interface{}{"delivery_id": d.DeliveryID})
	}
	if err == nil {
		p.db.WithContext(ctx).Model(&models.Webhook{}).Where("id = ?", d.WebhookID).Update("last_delivery_at", now)
	}
	return err == nil
}

func (p *WebhookProcessor) post(ctx context.Context, d *models.WebhookDelivery) (int, error) {
	if p.client == nil {
		return 0, fmt.Errorf("http client is not configured")
	}
	if d.Webhook == nil {
		return 0, fmt.Errorf("webhook %d no longer exists", d.WebhookID)
	}
	if !d.Webhook.Active {
		return 0, fmt.Errorf("webhook %d is inactive", d.WebhookID)
	}

	body := []byte(d.Payload)
	headers := map[string]string{
		"Content-Type":         "application/json",
		HeaderWebhookEvent:     d.EventType,
		HeaderWebhookDelivery:  d.DeliveryID,
		HeaderWebhookSignature: Sign(d.Webhook.Secret, body),
		HeaderWebhookTimestamp: strconv.FormatInt(p.now().Unix(), 10),
	}
	status, _, err := p.client.Post(ctx, d.Webhook.URL, headers, body)
	if err != nil {
		return status, err
	}
	if status < 200 || status >= 300 {
		return status, fmt.Errorf("endpoint responded %d", status)
	}
	return status, nil
}
