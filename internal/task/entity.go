package task

import (
	"slices"
	"time"

	"github.com/kazz187/taskforest/pkg/cerr"
)

type State string

const (
	StateActive  State = "active"
	StateDeleted State = "deleted"
)

type Task struct {
	ID                string    `yaml:"id" json:"id"`
	Owner             string    `yaml:"owner" json:"owner"`
	Name              string    `yaml:"name" json:"name"`
	Detail            string    `yaml:"detail" json:"detail"`
	State             State     `yaml:"state" json:"state"`
	Parent            string    `yaml:"parent,omitempty" json:"parent,omitempty"`
	Children          []string  `yaml:"children" json:"children"`
	Members           []string  `yaml:"members" json:"members"`
	UnfinishedMembers []string  `yaml:"unfinished_members" json:"unfinishedMembers"`
	Penalty           *float64  `yaml:"penalty,omitempty" json:"penalty,omitempty"`
	ExpectedDuration  *float64  `yaml:"expected_duration,omitempty" json:"expectedDuration,omitempty"` // seconds
	DueAt             time.Time `yaml:"due_at" json:"dueAt"`
	CreatedAt         time.Time `yaml:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `yaml:"updated_at" json:"updatedAt"`
}

func (t *Task) IsActive() bool {
	return t.State == StateActive
}

func (t *Task) IsRoot() bool {
	return t.Parent == ""
}

func (t *Task) HasMember(memberID string) bool {
	return slices.Contains(t.Members, memberID)
}

func (t *Task) IsUnfinishedBy(memberID string) bool {
	return slices.Contains(t.UnfinishedMembers, memberID)
}

// IsFinishedBy requires membership explicitly; a task the member never joined
// is not finished by them.
func (t *Task) IsFinishedBy(memberID string) bool {
	return t.HasMember(memberID) && !t.IsUnfinishedBy(memberID)
}

func (t *Task) HasChild(id string) bool {
	return slices.Contains(t.Children, id)
}

func (t *Task) Validate() error {
	if t.Name == "" {
		return cerr.NewInvalidFieldError("name", "must not be empty")
	}
	if t.Owner == "" {
		return cerr.NewInvalidFieldError("owner", "must not be empty")
	}
	if t.Penalty != nil && *t.Penalty < 0 {
		return cerr.NewInvalidFieldError("penalty", "must not be negative")
	}
	if t.ExpectedDuration != nil && *t.ExpectedDuration <= 0 {
		return cerr.NewInvalidFieldError("expectedDuration", "must be positive")
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without touching a shared
// record.
func (t *Task) Clone() *Task {
	c := *t
	c.Children = slices.Clone(t.Children)
	c.Members = slices.Clone(t.Members)
	c.UnfinishedMembers = slices.Clone(t.UnfinishedMembers)
	if t.Penalty != nil {
		v := *t.Penalty
		c.Penalty = &v
	}
	if t.ExpectedDuration != nil {
		v := *t.ExpectedDuration
		c.ExpectedDuration = &v
	}
	return &c
}

// addToSet appends v unless present, keeping insertion order.
func addToSet(s []string, v string) ([]string, bool) {
	if slices.Contains(s, v) {
		return s, false
	}
	return append(s, v), true
}

func removeFromSet(s []string, v string) ([]string, bool) {
	i := slices.Index(s, v)
	if i < 0 {
		return s, false
	}
	return slices.Delete(s, i, i+1), true
}
