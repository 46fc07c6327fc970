package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fieldcrm/models"
	"fieldcrm/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// maxListedFields caps how many missing fields an info request names.
const maxListedFields = 5

// Message kinds
const (
	KindInfoRequest = "info_request"
	KindManual      = "manual"
	KindAutomation  = "automation"
	KindReply       = "reply"
)

// ErrUnknownSender is returned for inbound messages from a number with no
// thread and no contact.
var ErrUnknownSender = errors.New("no thread or contact for sender")

// SMSFlow sends texts and keeps one message log per phone number. Thread
// selection and append for a number happen under a per-number lock so
// concurrent sends never drop each other's messages.
type SMSFlow struct {
	db       *gorm.DB
	sender   SMSSender
	locks    KeyedLocker
	notifier ThreadNotifier
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewSMSFlow(db *gorm.DB, sender SMSSender, locks KeyedLocker, notifier ThreadNotifier, logger logrus.FieldLogger) *SMSFlow {
	if locks == nil {
		locks = NewLocalLocker()
	}
	return &SMSFlow{
		db:       db,
		sender:   sender,
		locks:    locks,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// InfoRequest asks a customer for the details a service request lacks.
type InfoRequest struct {
	OrganizationID uint
	Phone          string
	FirstName      string
	Appliance      string
	MissingFields  []models.MissingField
	ContactID      *uint
	ServiceID      *uint
}

// ComposeInfoRequest builds the customer-facing text. Only the first five
// fields are listed; the rest are counted.
func ComposeInfoRequest(firstName, appliance string, fields []models.MissingField) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "there"
	}
	subject := "your service"
	if a := strings.TrimSpace(appliance); a != "" {
		subject = "your " + a + " service"
	}

	labels := make([]string, 0, maxListedFields)
	for i, f := range fields {
		if i == maxListedFields {
			break
		}
		label := f.Label
		if label == "" {
			label = strings.ReplaceAll(f.Field, "_", " ")
		}
		labels = append(labels, label)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s, to schedule %s we still need: %s", name, subject, strings.Join(labels, ", "))
	if extra := len(fields) - maxListedFields; extra > 0 {
		fmt.Fprintf(&b, " (+%d more)", extra)
	}
	b.WriteString(". Reply to this message with the details.")
	return b.String()
}

// RequestInfo sends the info-request text and logs it on the number's thread.
func (f *SMSFlow) RequestInfo(ctx context.Context, req InfoRequest) (*models.SMSThread, error) {
	if len(req.MissingFields) == 0 {
		return nil, fmt.Errorf("no missing fields to request")
	}
	body := ComposeInfoRequest(req.FirstName, req.Appliance, req.MissingFields)
	return f.Send(ctx, OutboundSMS{
		OrganizationID: req.OrganizationID,
		Phone:          req.Phone,
		Body:           body,
		Kind:           KindInfoRequest,
		ContactID:      req.ContactID,
		ServiceID:      req.ServiceID,
	})
}

// OutboundSMS is one text to send
type OutboundSMS struct {
	OrganizationID uint
	Phone          string
	Body           string
	Kind           string
	ContactID      *uint
	ServiceID      *uint
}

// Send delivers the text first; nothing is appended when delivery fails.
func (f *SMSFlow) Send(ctx context.Context, msg OutboundSMS) (*models.SMSThread, error) {
	if f.sender == nil {
		return nil, fmt.Errorf("sms is not configured")
	}
	phone := models.NormalizePhone(msg.Phone)
	if phone == "" {
		return nil, fmt.Errorf("invalid phone number %q", msg.Phone)
	}
	sid, err := f.sender.SendSMS(ctx, phone, msg.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to send sms: %w", err)
	}

	utils.LogEvent(f.logger, "sms_sent", map[string]interface{}{
		"organization_id": msg.OrganizationID,
		"sid":             sid,
		"kind":            msg.Kind,
	})

	entry := models.SMSMessage{
		Direction: models.DirectionOutbound,
		Body:      msg.Body,
		SID:       sid,
		Kind:      msg.Kind,
		SentAt:    f.now(),
	}
	return f.appendToThread(ctx, phone, entry, models.ThreadStatusAwaitingResponse, func() (uint, *uint, error) {
		return msg.OrganizationID, msg.ContactID, nil
	}, msg.ServiceID)
}

// RecordInbound appends a customer reply to the sender's thread in the
// organization the reply belongs to. See senderOrganization.
func (f *SMSFlow) RecordInbound(ctx context.Context, from, body, sid string) (*models.SMSThread, error) {
	phone := models.NormalizePhone(from)
	if phone == "" {
		return nil, fmt.Errorf("invalid phone number %q", from)
	}
	entry := models.SMSMessage{
		Direction: models.DirectionInbound,
		Body:      body,
		SID:       sid,
		Kind:      KindReply,
		SentAt:    f.now(),
	}
	return f.appendToThread(ctx, phone, entry, models.ThreadStatusResponded, func() (uint, *uint, error) {
		return f.senderOrganization(ctx, phone)
	}, nil)
}

// senderOrganization resolves which organization an inbound text from phone
// belongs to, in order: the latest thread awaiting a reply, the most recently
// active thread, the latest contact holding the number.
func (f *SMSFlow) senderOrganization(ctx context.Context, phone string) (uint, *uint, error) {
	db := f.db.WithContext(ctx)

	var thread models.SMSThread
	err := db.Where("phone_number = ? AND status = ?", phone, models.ThreadStatusAwaitingResponse).
		Order("last_message_at desc, id desc").First(&thread).Error
	if err == nil {
		return thread.OrganizationID, thread.ContactID, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil, fmt.Errorf("failed to load sms thread: %w", err)
	}

	err = db.Where("phone_number = ?", phone).Order("last_message_at desc, id desc").First(&thread).Error
	if err == nil {
		return thread.OrganizationID, thread.ContactID, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil, fmt.Errorf("failed to load sms thread: %w", err)
	}

	var contact models.Contact
	err = db.Where("phone_e164 = ?", phone).Order("updated_at desc, id desc").First(&contact).Error
	if err == nil {
		return contact.OrganizationID, &contact.ID, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil, fmt.Errorf("failed to load contact: %w", err)
	}
	return 0, nil, ErrUnknownSender
}

// appendToThread adds entry to the organization's latest thread for phone,
// creating the thread when there is none. resolve runs under the number's
// lock and names the organization and contact.
func (f *SMSFlow) appendToThread(
	ctx context.Context,
	phone string,
	entry models.SMSMessage,
	status string,
	resolve func() (uint, *uint, error),
	serviceID *uint,
) (*models.SMSThread, error) {
	unlock, err := f.locks.Lock(ctx, phone)
	if err != nil {
		return nil, err
	}
	defer unlock()

	organizationID, contactID, err := resolve()
	if err != nil {
		return nil, err
	}

	var thread models.SMSThread
	err = f.db.WithContext(ctx).
		Where("phone_number = ? AND organization_id = ?", phone, organizationID).
		Order("created_at desc, id desc").
		First(&thread).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		thread = models.SMSThread{OrganizationID: organizationID, PhoneNumber: phone}
	case err != nil:
		return nil, fmt.Errorf("failed to load sms thread: %w", err)
	}

	at := entry.SentAt
	thread.Messages = append(thread.Messages, entry)
	thread.Status = status
	thread.LastMessageAt = &at
	if thread.ContactID == nil {
		thread.ContactID = contactID
	}
	if serviceID != nil {
		thread.ServiceID = serviceID
	}
	if err := f.db.WithContext(ctx).Save(&thread).Error; err != nil {
		return nil, fmt.Errorf("failed to save sms thread: %w", err)
	}

	if f.notifier != nil {
		f.notifier.ThreadUpdated(thread.OrganizationID, thread.ID, entry)
	}
	return &thread, nil
}
