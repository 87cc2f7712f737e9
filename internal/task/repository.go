package task

import "context"

// ModifyFunc mutates t in place and reports whether anything changed. Nothing
// is written when it returns false.
type ModifyFunc func(t *Task) (changed bool, err error)

type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	Update(ctx context.Context, t *Task) error
	// Modify is an atomic read-modify-write of a single task. It returns the
	// task as stored after the call.
	Modify(ctx context.Context, id string, fn ModifyFunc) (*Task, error)
	List(ctx context.Context, f Filter) ([]*Task, error)
}

// Filter selects tasks; zero fields match everything.
type Filter struct {
	State              State
	RootOnly           bool
	ParentID           string
	MemberID           string // Members contains
	UnfinishedMemberID string // UnfinishedMembers contains
	FinishedMemberID   string // Members contains and UnfinishedMembers does not
}

func (f Filter) Match(t *Task) bool {
	if f.State != "" && t.State != f.State {
		return false
	}
	if f.RootOnly && !t.IsRoot() {
		return false
	}
	if f.ParentID != "" && t.Parent != f.ParentID {
		return false
	}
	if f.MemberID != "" && !t.HasMember(f.MemberID) {
		return false
	}
	if f.UnfinishedMemberID != "" && !t.IsUnfinishedBy(f.UnfinishedMemberID) {
		return false
	}
	if f.FinishedMemberID != "" && !t.IsFinishedBy(f.FinishedMemberID) {
		return false
	}
	return true
}
