package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// FetchWarning names a child that could not be loaded while classifying its
// parent.
type FetchWarning struct {
	TaskID  string
	ChildID string
	Err     error
}

// PartialResultError accompanies a result computed while some child fetches
// failed. Failed children were treated as non-participating.
type PartialResultError struct {
	Warnings []FetchWarning
}

func (e *PartialResultError) Error() string {
	first := e.Warnings[0]
	return fmt.Sprintf("partial result: %d child fetches failed (first: task %s child %s: %v)",
		len(e.Warnings), first.TaskID, first.ChildID, first.Err)
}

func (e *PartialResultError) Unwrap() []error {
	errs := make([]error, 0, len(e.Warnings))
	for _, w := range e.Warnings {
		errs = append(errs, w.Err)
	}
	return errs
}

func partialOrNil(warnings []FetchWarning) error {
	if len(warnings) == 0 {
		return nil
	}
	return &PartialResultError{Warnings: warnings}
}

// AsPartialResult reports whether err only carries fetch warnings, so the
// accompanying result is still usable.
func AsPartialResult(err error) (*PartialResultError, bool) {
	var pe *PartialResultError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// LeafClassifier computes viewer-relative leaf-ness on read. A task is a leaf
// for m when none of its children has m in Members. Deleted children stay in
// Children and still count; list selection drops deleted tasks themselves.
type LeafClassifier struct {
	repo Repository
}

func NewLeafClassifier(repo Repository) *LeafClassifier {
	return &LeafClassifier{repo: repo}
}

// IsLeafFor returns the classification and, when some children could not be
// fetched, a *PartialResultError next to the computed value.
func (c *LeafClassifier) IsLeafFor(ctx context.Context, t *Task, memberID string) (bool, error) {
	if len(t.Children) == 0 {
		return true, nil
	}
	var warnings []FetchWarning
	for _, childID := range t.Children {
		child, err := c.repo.Get(ctx, childID)
		if err != nil {
			warnings = append(warnings, FetchWarning{TaskID: t.ID, ChildID: childID, Err: err})
			continue
		}
		if child.HasMember(memberID) {
			return false, nil
		}
	}
	return true, partialOrNil(warnings)
}

func (c *LeafClassifier) RootTasksFor(ctx context.Context, memberID string) ([]*Task, error) {
	return c.list(ctx, Filter{State: StateActive, RootOnly: true, UnfinishedMemberID: memberID})
}

func (c *LeafClassifier) FinishedRootTasksFor(ctx context.Context, memberID string) ([]*Task, error) {
	return c.list(ctx, Filter{State: StateActive, RootOnly: true, FinishedMemberID: memberID})
}

func (c *LeafClassifier) LeafTasksFor(ctx context.Context, memberID string) ([]*Task, error) {
	return c.listLeaves(ctx, Filter{State: StateActive, UnfinishedMemberID: memberID}, memberID)
}

func (c *LeafClassifier) FinishedLeafTasksFor(ctx context.Context, memberID string) ([]*Task, error) {
	return c.listLeaves(ctx, Filter{State: StateActive, FinishedMemberID: memberID}, memberID)
}

func (c *LeafClassifier) list(ctx context.Context, f Filter) ([]*Task, error) {
	tasks, err := c.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	sortByDue(tasks)
	return tasks, nil
}

func (c *LeafClassifier) listLeaves(ctx context.Context, f Filter, memberID string) ([]*Task, error) {
	tasks, err := c.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	var (
		leaves   []*Task
		warnings []FetchWarning
	)
	for _, t := range tasks {
		leaf, err := c.IsLeafFor(ctx, t, memberID)
		if pe, ok := AsPartialResult(err); ok {
			warnings = append(warnings, pe.Warnings...)
		} else if err != nil {
			return nil, err
		}
		if leaf {
			leaves = append(leaves, t)
		}
	}
	sortByDue(leaves)
	return leaves, partialOrNil(warnings)
}

func sortByDue(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].DueAt.Equal(tasks[j].DueAt) {
			return tasks[i].DueAt.Before(tasks[j].DueAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}
