package meeting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/kazz187/taskforest/internal/config"
)

const (
	propertyMeetingID = "taskforest_meeting_id"
	propertyTaskID    = "taskforest_task_id"
)

// Calendar is the external calendar meetings are exported to.
type Calendar interface {
	InsertEvent(ctx context.Context, m *Meeting) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// GoogleCalendar exports meetings to a single Google Calendar.
type GoogleCalendar struct {
	srv        *calendar.Service
	calendarID string
}

func NewGoogleCalendar(srv *calendar.Service, calendarID string) *GoogleCalendar {
	return &GoogleCalendar{srv: srv, calendarID: calendarID}
}

// NewGoogleCalendarFromEnv authenticates with a service account credentials
// file or, failing that, a static OAuth access token.
func NewGoogleCalendarFromEnv(ctx context.Context, env *config.CalendarEnv) (*GoogleCalendar, error) {
	var opts []option.ClientOption
	switch {
	case env.GoogleCredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(env.GoogleCredentialsFile), option.WithScopes(calendar.CalendarEventsScope))
	case env.GoogleAccessToken != "":
		opts = append(opts, option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: env.GoogleAccessToken})))
	default:
		return nil, errors.New("google calendar: no credentials configured")
	}
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create calendar client: %w", err)
	}
	return NewGoogleCalendar(srv, env.GoogleCalendarID), nil
}

func (c *GoogleCalendar) InsertEvent(ctx context.Context, m *Meeting) (string, error) {
	event := &calendar.Event{
		Summary: m.Title,
		Start:   &calendar.EventDateTime{DateTime: m.StartTime.Format(time.RFC3339)},
		End:     &calendar.EventDateTime{DateTime: m.EndTime().Format(time.RFC3339)},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				propertyMeetingID: m.ID,
				propertyTaskID:    m.TaskID,
			},
		},
	}
	created, err := c.srv.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert calendar event: %w", err)
	}
	return created.Id, nil
}

// DeleteEvent treats an already removed event as deleted.
func (c *GoogleCalendar) DeleteEvent(ctx context.Context, eventID string) error {
	err := c.srv.Events.Delete(c.calendarID, eventID).Context(ctx).Do()
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete calendar event %s: %w", eventID, err)
	}
	return nil
}
