package meeting

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/taskforest/internal/eventbus"
	"github.com/kazz187/taskforest/internal/task"
	"github.com/kazz187/taskforest/pkg/cerr"
)

// MetadataCalendarEventID carries the exported calendar event of a deleted
// meeting, since the record itself is gone by the time the event is handled.
const MetadataCalendarEventID = "calendar_event_id"

type TaskGetter interface {
	Get(ctx context.Context, id string) (*task.Task, error)
}

type Service struct {
	repo     Repository
	tasks    TaskGetter
	eventBus *eventbus.Bus
	now      func() time.Time
}

func NewService(repo Repository, tasks TaskGetter, bus *eventbus.Bus) *Service {
	return &Service{
		repo:     repo,
		tasks:    tasks,
		eventBus: bus,
		now:      time.Now,
	}
}

type CreateParams struct {
	TaskID    string
	Title     string
	StartTime time.Time
	Duration  int64
}

// Create attaches a meeting to an Active task.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Meeting, error) {
	m := &Meeting{
		ID:        ulid.Make().String(),
		TaskID:    p.TaskID,
		Title:     p.Title,
		StartTime: p.StartTime.UTC(),
		Duration:  p.Duration,
		CreatedAt: s.now(),
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	t, err := s.tasks.Get(ctx, p.TaskID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive() {
		return nil, cerr.NewError(cerr.FailedPrecondition, "task is deleted", nil)
	}
	if m.Title == "" {
		m.Title = t.Name
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	s.publish(eventbus.EventMeetingCreated, m.ID, map[string]string{"task_id": m.TaskID})
	return m, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Meeting, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByTask(ctx context.Context, taskID string) ([]*Meeting, error) {
	if _, err := s.tasks.Get(ctx, taskID); err != nil {
		return nil, err
	}
	return s.repo.ListByTask(ctx, taskID)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(eventbus.EventMeetingDeleted, m.ID, map[string]string{
		"task_id":               m.TaskID,
		MetadataCalendarEventID: m.CalendarEventID,
	})
	return nil
}

// SetCalendarEventID records the exported calendar event on the meeting.
func (s *Service) SetCalendarEventID(ctx context.Context, id, eventID string) error {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	m.CalendarEventID = eventID
	return s.repo.Update(ctx, m)
}

func (s *Service) publish(eventType eventbus.EventType, resourceID string, metadata map[string]string) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.PublishNew(eventType, resourceID, "", metadata)
}
