package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"fieldcrm/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type threadCounter struct {
	mu      sync.Mutex
	updates int
}

func (n *threadCounter) ThreadUpdated(uint, uint, interface{}) {
	n.mu.Lock()
	n.updates++
	n.mu.Unlock()
}

func TestComposeInfoRequestListsFiveFields(t *testing.T) {
	fields := []models.MissingField{
		{Field: "phone", Label: "a contact phone number"},
		{Field: "address", Label: "the service address"},
		{Field: "appliance_type", Label: "the appliance type"},
		{Field: "brand", Label: "the brand"},
		{Field: "model_number", Label: "the model number"},
		{Field: "description"},
		{Field: "preferred_date"},
	}

	msg := ComposeInfoRequest("Ada", "furnace", fields)

	assert.True(t, strings.HasPrefix(msg, "Hi Ada, to schedule your furnace service we still need: "))
	assert.Contains(t, msg, "the model number (+2 more).")
	assert.NotContains(t, msg, "preferred date")
}

func TestComposeInfoRequestDefaults(t *testing.T) {
	msg := ComposeInfoRequest(" ", "", []models.MissingField{{Field: "serial_number"}})
	assert.Equal(t, "Hi there, to schedule your service we still need: serial number. Reply to this message with the details.", msg)
}

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"(555) 010-1234":   "+15550101234",
		"+44 20 7946 0958": "+442079460958",
		"1-555-010-1234":   "+15550101234",
		"  ":               "",
		"+15550101234":     "+15550101234",
	}
	for in, want := range tests {
		assert.Equal(t, want, models.NormalizePhone(in), in)
	}
}

func TestConcurrentSendsShareOneThread(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db, "Acme")
	sender := &fakeSMS{}
	notifier := &threadCounter{}
	flow := NewSMSFlow(db, sender, NewLocalLocker(), notifier, testLogger())

	const sends = 8
	var wg sync.WaitGroup
	errs := make(chan error, sends)
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := flow.Send(context.Background(), OutboundSMS{
				OrganizationID: org.ID,
				Phone:          "(555) 010-1234",
				Body:           fmt.Sprintf("message %d", i),
				Kind:           KindManual,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var threads []models.SMSThread
	require.NoError(t, db.Find(&threads).Error)
	require.Len(t, threads, 1)
	assert.Equal(t, "+15550101234", threads[0].PhoneNumber)
	assert.Len(t, threads[0].Messages, sends)
	assert.Equal(t, models.ThreadStatusAwaitingResponse, threads[0].Status)
	assert.Equal(t, sends, notifier.updates)
}

func TestSendFailureLeavesNoThread(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db, "Acme")
	flow := NewSMSFlow(db, &fakeSMS{err: errors.New("carrier rejected")}, nil, nil, testLogger())

	_, err := flow.Send(context.Background(), OutboundSMS{OrganizationID: org.ID, Phone: "5550101234", Body: "hi"})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.SMSThread{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSendWithoutSenderFails(t *testing.T) {
	flow := NewSMSFlow(nil, nil, nil, nil, testLogger())
	_, err := flow.Send(context.Background(), OutboundSMS{Phone: "5550101234", Body: "hi"})
	assert.EqualError(t, err, "sms is not configured")
}

func TestRequestInfoNeedsFields(t *testing.T) {
	flow := NewSMSFlow(nil, &fakeSMS{}, nil, nil, testLogger())
	_, err := flow.RequestInfo(context.Background(), InfoRequest{Phone: "5550101234"})
	assert.Error(t, err)
}

func TestRecordInboundAppendsToExistingThread(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db, "Acme")
	flow := NewSMSFlow(db, &fakeSMS{}, nil, nil, testLogger())

	_, err := flow.RequestInfo(context.Background(), InfoRequest{
		OrganizationID: org.ID,
		Phone:          "555-010-1234",
		FirstName:      "Ada",
		MissingFields:  []models.MissingField{{Field: "brand", Label: "the brand"}},
	})
	require.NoError(t, err)

	thread, err := flow.RecordInbound(context.Background(), "+15550101234", "It's a Carrier", "SM123")
	require.NoError(t, err)
	assert.Equal(t, models.ThreadStatusResponded, thread.Status)
	require.Len(t, thread.Messages, 2)
	assert.Equal(t, models.DirectionInbound, thread.Messages[1].Direction)
	assert.Equal(t, KindInfoRequest, thread.Messages[0].Kind)
}

func TestRecordInboundFromContactWithoutThread(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db, "Acme")
	contact := models.Contact{OrganizationID: org.ID, FirstName: "Ada", Phone: "(555) 010-9999"}
	require.NoError(t, db.Create(&contact).Error)
	flow := NewSMSFlow(db, nil, nil, nil, testLogger())

	thread, err := flow.RecordInbound(context.Background(), "+15550109999", "hello", "SM1")
	require.NoError(t, err)
	assert.Equal(t, org.ID, thread.OrganizationID)
	require.NotNil(t, thread.ContactID)
	assert.Equal(t, contact.ID, *thread.ContactID)

	_, err = flow.RecordInbound(context.Background(), "+15550100000", "who is this", "SM2")
	assert.ErrorIs(t, err, ErrUnknownSender)
}

func TestRecordInboundResolvesOrganization(t *testing.T) {
	db := newTestDB(t)
	acme := seedOrganization(t, db, "Acme")
	other := seedOrganization(t, db, "Other")
	require.NoError(t, db.Create(&models.Contact{OrganizationID: acme.ID, FirstName: "Ada", Phone: "(555) 010-1234"}).Error)

	earlier := time.Now().Add(-2 * time.Hour)
	recent := time.Now().Add(-10 * time.Minute)
	waiting := models.SMSThread{OrganizationID: other.ID, PhoneNumber: "+15550101234", Status: models.ThreadStatusAwaitingResponse, LastMessageAt: &earlier}
	require.NoError(t, db.Create(&waiting).Error)
	require.NoError(t, db.Create(&models.SMSThread{OrganizationID: acme.ID, PhoneNumber: "+15550101234", Status: models.ThreadStatusResponded, LastMessageAt: &recent}).Error)

	flow := NewSMSFlow(db, nil, nil, nil, testLogger())
	thread, err := flow.RecordInbound(context.Background(), "+15550101234", "Tuesday works", "SM1")
	require.NoError(t, err)
	assert.Equal(t, waiting.ID, thread.ID, "the organization awaiting a reply gets it")

	// the conversation just answered is now the most recently active
	thread, err = flow.RecordInbound(context.Background(), "+15550101234", "after 2pm", "SM2")
	require.NoError(t, err)
	assert.Equal(t, waiting.ID, thread.ID)
	assert.Len(t, thread.Messages, 2)

	// with no thread, the latest contact holding the number decides
	require.NoError(t, db.Create(&models.Contact{OrganizationID: acme.ID, FirstName: "Bo", Phone: "555.010.7777"}).Error)
	owner := models.Contact{OrganizationID: other.ID, FirstName: "Cy", Phone: "(555) 010-7777"}
	require.NoError(t, db.Create(&owner).Error)
	thread, err = flow.RecordInbound(context.Background(), "+15550107777", "hello", "SM3")
	require.NoError(t, err)
	assert.Equal(t, other.ID, thread.OrganizationID)
	require.NotNil(t, thread.ContactID)
	assert.Equal(t, owner.ID, *thread.ContactID)
}
