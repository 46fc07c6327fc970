package services

import (
	"context"
	"time"
)

// SMSSender delivers a text message and returns the provider message id.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

// EmailSender delivers an HTML email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) error
}

// HTTPPoster performs an outbound HTTP request and returns the status code and
// response body.
type HTTPPoster interface {
	Post(ctx context.Context, url string, headers map[string]string, body []byte) (int, []byte, error)
}

// ChatMessage is one turn of an LLM conversation.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// LLM is the hosted language model used by triage and the assistant.
type LLM interface {
	CompleteJSON(ctx context.Context, system, user string) (string, error)
	Chat(ctx context.Context, system string, messages []ChatMessage) (string, error)
	ModelName() string
}

// CalendarEvent is a service appointment as pushed to an external calendar.
type CalendarEvent struct {
	ID          string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// CalendarProvider writes appointments to a user's external calendar.
type CalendarProvider interface {
	UpsertEvent(ctx context.Context, userID uint, ev CalendarEvent) (string, error)
	DeleteEvent(ctx context.Context, userID uint, eventID string) error
}

// ThreadNotifier is told about every SMS thread change.
type ThreadNotifier interface {
	ThreadUpdated(organizationID uint, threadID uint, message interface{})
}
