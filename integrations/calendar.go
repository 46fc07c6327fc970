package integrations

import (
	"context"
	"fmt"
	"time"

	"fieldcrm/services"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Calendar pushes service appointments to the user's Google calendar.
type Calendar struct {
	google *Google
}

func NewCalendar(g *Google) *Calendar {
	return &Calendar{google: g}
}

func (c *Calendar) service(ctx context.Context, userID uint) (*calendar.Service, string, error) {
	client, integration, err := c.google.Client(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create calendar service: %w", err)
	}
	calendarID := integration.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	return svc, calendarID, nil
}

// UpsertEvent updates ev.ID when set, otherwise inserts, and returns the event id.
func (c *Calendar) UpsertEvent(ctx context.Context, userID uint, ev services.CalendarEvent) (string, error) {
	svc, calendarID, err := c.service(ctx, userID)
	if err != nil {
		return "", err
	}
	event := &calendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       &calendar.EventDateTime{DateTime: ev.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: ev.End.Format(time.RFC3339)},
	}

	var saved *calendar.Event
	if ev.ID != "" {
		saved, err = svc.Events.Update(calendarID, ev.ID, event).Context(ctx).Do()
	} else {
		saved, err = svc.Events.Insert(calendarID, event).Context(ctx).Do()
	}
	if err != nil {
		return "", fmt.Errorf("failed to save calendar event: %w", err)
	}
	return saved.Id, nil
}

func (c *Calendar) DeleteEvent(ctx context.Context, userID uint, eventID string) error {
	svc, calendarID, err := c.service(ctx, userID)
	if err != nil {
		return err
	}
	if err := svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete calendar event: %w", err)
	}
	return nil
}
