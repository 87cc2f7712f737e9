package meeting

import (
	"time"

	"github.com/kazz187/taskforest/pkg/cerr"
)

// Meeting is a scheduled session attached to exactly one task. Meetings are
// not part of completion or membership propagation.
type Meeting struct {
	ID              string    `yaml:"id" json:"id"`
	TaskID          string    `yaml:"task_id" json:"taskId"`
	Title           string    `yaml:"title" json:"title"`
	StartTime       time.Time `yaml:"start_time" json:"startTime"`
	Duration        int64     `yaml:"duration" json:"duration"` // seconds
	CalendarEventID string    `yaml:"calendar_event_id,omitempty" json:"calendarEventId,omitempty"`
	CreatedAt       time.Time `yaml:"created_at" json:"createdAt"`
}

func (m *Meeting) EndTime() time.Time {
	return m.StartTime.Add(time.Duration(m.Duration) * time.Second)
}

func (m *Meeting) Validate() error {
	if m.TaskID == "" {
		return cerr.NewInvalidFieldError("taskId", "task id is required")
	}
	if m.StartTime.IsZero() {
		return cerr.NewInvalidFieldError("startTime", "start time is required")
	}
	if m.Duration <= 0 {
		return cerr.NewInvalidFieldError("duration", "must be positive")
	}
	return nil
}
