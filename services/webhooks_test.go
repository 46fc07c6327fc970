package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"fieldcrm/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type fakePoster struct {
	mu       sync.Mutex
	statuses map[string]int
	err      error
	requests []postedRequest
}

type postedRequest struct {
	url     string
	headers map[string]string
	body    []byte
}

func (f *fakePoster) Post(_ context.Context, url string, headers map[string]string, body []byte) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, postedRequest{url: url, headers: headers, body: body})
	if f.err != nil {
		return 0, nil, f.err
	}
	if status, ok := f.statuses[url]; ok {
		return status, nil, nil
	}
	return 200, nil, nil
}

func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"event":"deal.created"}`)
	sig := Sign("s3cret", body)

	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, sig)
	assert.True(t, VerifySignature("s3cret", body, sig))
	assert.False(t, VerifySignature("other", body, sig))
	assert.False(t, VerifySignature("s3cret", []byte(`{}`), sig))
}

func TestEnqueueOnlySubscribedActiveWebhooks(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db, "Acme")
	other := seedOrganization(t, db, "Other")

	hooks := []models.Webhook{
		{OrganizationID: org.ID, URL: "https://a.example/hook", Secret: "a", Active: true, Events: datatypes.JSONSlice[string]{EventDealCreated}},
		{OrganizationID: org.ID, URL: "https://b.example/hook", Secret: "b", Active: true, Events: datatypes.JSONSlice[string]{"*"}},
		{OrganizationID: org.ID, URL: "https://c.example/hook", Secret: "c", Active: true, Events: datatypes.JSONSlice[string]{EventTaskCreated}},
		{OrganizationID: org.ID, URL: "https://d.example/hook", Secret: "d", Active: false, Events: datatypes.JSONSlice[string]{"*"}},
		{OrganizationID: other.ID, URL: "https://e.example/hook", Secret: "e", Active: true, Events: datatypes.JSONSlice[string]{"*"}},
	}
	require.NoError(t, db.Create(&hooks).Error)

	queued, err := NewWebhookQueue(db).Enqueue(context.Background(), Event{
		OrganizationID: org.ID,
		Type:           EventDealCreated,
		Payload:        map[string]interface{}{"title": "Boiler swap"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, queued)

	var deliveries []models.WebhookDelivery
	require.NoError(t, db.Order("id asc").Find(&deliveries).Error)
	require.Len(t, deliveries, 2)
	assert.Equal(t, hooks[0].ID, deliveries[0].WebhookID)
	assert.Equal(t, hooks[1].ID, deliveries[1].WebhookID)
	assert.Equal(t, models.DeliveryPending, deliveries[0].Status)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(deliveries[0].Payload, &body))
	assert.Equal(t, EventDealCreated, body["event"])
	assert.Equal(t, deliveries[0].DeliveryID, body["id"])
}

func TestProcessBatchRecordsOutcomes(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db, "Acme")

	good := models.Webhook{OrganizationID: org.ID, URL: "https://good.example", Secret: "g", Active: true, Events: datatypes.JSONSlice[string]{"*"}}
	bad := models.Webhook{OrganizationID: org.ID, URL: "https://bad.example", Secret: "b", Active: true, Events: datatypes.JSONSlice[string]{"*"}}
	require.NoError(t, db.Create(&good).Error)
	require.NoError(t, db.Create(&bad).Error)

	_, err := NewWebhookQueue(db).Enqueue(context.Background(), Event{OrganizationID: org.ID, Type: EventContactCreated})
	require.NoError(t, err)

	poster := &fakePoster{statuses: map[string]int{"https://bad.example": 500}}
	processor := NewWebhookProcessor(db, poster, testLogger())

	result, err := processor.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, &BatchResult{Processed: 2, Delivered: 1, Failed: 1}, result)

	for _, req := range poster.requests {
		assert.Equal(t, EventContactCreated, req.headers[HeaderWebhookEvent])
		secret := "g"
		if req.url == bad.URL {
			secret = "b"
		}
		assert.True(t, VerifySignature(secret, req.body, req.headers[HeaderWebhookSignature]))
	}

	var delivered, failed models.WebhookDelivery
	require.NoError(t, db.Where("webhook_id = ?", good.ID).First(&delivered).Error)
	require.NoError(t, db.Where("webhook_id = ?", bad.ID).First(&failed).Error)
	assert.Equal(t, models.DeliveryDelivered, delivered.Status)
	assert.NotNil(t, delivered.DeliveredAt)
	assert.Equal(t, models.DeliveryFailed, failed.Status)
	assert.Equal(t, 500, failed.ResponseCode)
	assert.Equal(t, 1, failed.Attempts)
	assert.Contains(t, failed.LastError, "500")

	// the failed delivery is retried until it runs out of attempts
	for i := 1; i < MaxDeliveryAttempts; i++ {
		result, err = processor.ProcessBatch(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Processed)
	}
	result, err = processor.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)

	require.NoError(t, db.First(&failed, failed.ID).Error)
	assert.Equal(t, MaxDeliveryAttempts, failed.Attempts)
}

func TestProcessBatchTransportError(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db, "Acme")
	hook := models.Webhook{OrganizationID: org.ID, URL: "https://down.example", Secret: "x", Active: true, Events: datatypes.JSONSlice[string]{"*"}}
	require.NoError(t, db.Create(&hook).Error)
	_, err := NewWebhookQueue(db).Enqueue(context.Background(), Event{OrganizationID: org.ID, Type: EventTaskCreated})
	require.NoError(t, err)

	result, err := NewWebhookProcessor(db, &fakePoster{err: errors.New("connection refused")}, testLogger()).
		ProcessBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	var delivery models.WebhookDelivery
	require.NoError(t, db.First(&delivery).Error)
	assert.Equal(t, "connection refused", delivery.LastError)
}
