package meeting

import (
	"context"
	"log/slog"

	"github.com/kazz187/taskforest/internal/eventbus"
	"github.com/kazz187/taskforest/pkg/cerr"
	"github.com/kazz187/taskforest/pkg/clog"
	"github.com/kazz187/taskforest/pkg/panicerr"
)

// CalendarSync mirrors meeting creation and deletion into a Calendar.
// Failures are logged; the meeting records are never rolled back.
type CalendarSync struct {
	service  *Service
	calendar Calendar
}

func NewCalendarSync(service *Service, cal Calendar) *CalendarSync {
	return &CalendarSync{service: service, calendar: cal}
}

// Start handles meeting events until ctx is done.
func (s *CalendarSync) Start(ctx context.Context, eventBus *eventbus.Bus) {
	subID, ch := eventBus.Subscribe(64)
	defer eventBus.Unsubscribe(subID)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			evCtx := clog.WithAttributes(ctx, map[string]any{"job": "calendar_sync", "meeting_id": ev.ResourceID})
			err := panicerr.Safe(func() error {
				return s.Handle(evCtx, ev)
			})()
			if err != nil {
				slog.ErrorContext(evCtx, "calendar sync failed", "event", string(ev.Type), "error", err)
			}
		}
	}
}

func (s *CalendarSync) Handle(ctx context.Context, ev *eventbus.Event) error {
	if ev == nil {
		return nil
	}
	switch ev.Type {
	case eventbus.EventMeetingCreated:
		return s.export(ctx, ev.ResourceID)
	case eventbus.EventMeetingDeleted:
		eventID := ev.Metadata[MetadataCalendarEventID]
		if eventID == "" {
			return nil
		}
		return s.calendar.DeleteEvent(ctx, eventID)
	}
	return nil
}

func (s *CalendarSync) export(ctx context.Context, meetingID string) error {
	m, err := s.service.Get(ctx, meetingID)
	if cerr.IsCode(err, cerr.NotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if m.CalendarEventID != "" {
		return nil
	}
	eventID, err := s.calendar.InsertEvent(ctx, m)
	if err != nil {
		return err
	}
	if err := s.service.SetCalendarEventID(ctx, m.ID, eventID); err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			// deleted while exporting; its delete event carried no calendar id
			return s.calendar.DeleteEvent(ctx, eventID)
		}
		return err
	}
	slog.InfoContext(ctx, "meeting exported to calendar", "calendar_event_id", eventID)
	return nil
}
