package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fieldcrm/models"

	"gorm.io/gorm"
)

// ErrAssistantNotConfigured is returned when no LLM is wired in.
var ErrAssistantNotConfigured = errors.New("AI assistant is not configured")

// maxHistory bounds the prior turns forwarded to the model.
const maxHistory = 20

// Assistant answers CRM questions with a summary of the caller's
// organization in the system prompt.
type Assistant struct {
	db  *gorm.DB
	llm LLM
}

func NewAssistant(db *gorm.DB, llm LLM) *Assistant {
	return &Assistant{db: db, llm: llm}
}

func (a *Assistant) Reply(ctx context.Context, user *models.User, message string, history []ChatMessage) (string, error) {
	if a.llm == nil {
		return "", ErrAssistantNotConfigured
	}
	snapshot, err := BuildSnapshot(ctx, a.db, user.OrganizationID)
	if err != nil {
		return "", fmt.Errorf("failed to build CRM snapshot: %w", err)
	}

	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	messages := append(append([]ChatMessage{}, history...), ChatMessage{Role: "user", Content: message})
	return a.llm.Chat(ctx, AssistantPrompt(user, snapshot, time.Now()), messages)
}

// AssistantPrompt renders the system prompt for one user.
func AssistantPrompt(user *models.User, s *Snapshot, now time.Time) string {
	name := user.Email
	if user.Name != nil && *user.Name != "" {
		name = *user.Name
	}

	var b strings.Builder
	b.WriteString("You are the assistant inside a CRM used by an appliance repair and field service company.\n")
	b.WriteString("Answer briefly and only from the data below; say so when the data does not cover a question.\n\n")
	fmt.Fprintf(&b, "User: %s (role %s)\n", name, user.Role)
	fmt.Fprintf(&b, "Date: %s\n\n", now.Format("Monday, January 2 2006"))
	fmt.Fprintf(&b, "Contacts: %d\n", s.Contacts)
	fmt.Fprintf(&b, "Open deals: %d worth %s\n", s.OpenDeals, FormatCents(s.PipelineValue))
	fmt.Fprintf(&b, "Pending tasks: %d (%d overdue)\n", s.OpenTasks, s.OverdueTasks)
	fmt.Fprintf(&b, "Scheduled services: %d\n", s.ServicesByStatus[models.ServiceStatusScheduled])
	fmt.Fprintf(&b, "New service requests: %d\n", s.ServicesByStatus[models.ServiceStatusNew])
	fmt.Fprintf(&b, "Unpaid invoices: %d totalling %s\n", s.UnpaidInvoices, FormatCents(s.UnpaidTotal))
	return b.String()
}

// FormatCents renders an amount in cents as dollars.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
