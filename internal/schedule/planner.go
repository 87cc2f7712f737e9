package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kazz187/taskforest/internal/task"
	"github.com/kazz187/taskforest/pkg/cerr"
)

type LeafLister interface {
	LeafTasksFor(ctx context.Context, memberID string) ([]*task.Task, error)
}

type Plan struct {
	MemberID    string          `json:"memberId"`
	AlgorithmID int             `json:"algorithmId"`
	Items       []ScheduledTask `json:"items"`
	Warnings    []string        `json:"warnings,omitempty"`
}

// Planner feeds a member's actionable tasks to the optimizer. It never writes
// task state.
type Planner struct {
	leaves    LeafLister
	optimizer Optimizer
	now       func() time.Time
}

func NewPlanner(leaves LeafLister, optimizer Optimizer) *Planner {
	return &Planner{leaves: leaves, optimizer: optimizer, now: time.Now}
}

func (p *Planner) Plan(ctx context.Context, memberID string, algorithmID int) (*Plan, error) {
	plan := &Plan{MemberID: memberID, AlgorithmID: algorithmID, Items: []ScheduledTask{}}

	tasks, err := p.leaves.LeafTasksFor(ctx, memberID)
	if pe, ok := task.AsPartialResult(err); ok {
		for _, w := range pe.Warnings {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("task %s child %s: %v", w.TaskID, w.ChildID, w.Err))
		}
	} else if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return plan, nil
	}
	if p.optimizer == nil {
		return nil, cerr.NewError(cerr.Unavailable, "schedule optimizer is not configured", nil)
	}

	req := BuildRequest(tasks, p.now(), algorithmID)
	entries, err := p.optimizer.Optimize(ctx, req)
	if err != nil {
		slog.WarnContext(ctx, "schedule optimizer failed", "member_id", memberID, "tasks", req.Len(), "error", err)
		var oe *OptimizerError
		if errors.As(err, &oe) {
			return nil, cerr.NewError(cerr.Unavailable, "schedule optimizer rejected the request: "+oe.Message, err)
		}
		return nil, cerr.NewError(cerr.Unavailable, "schedule optimizer unavailable", err)
	}

	names := make(map[string]string, len(tasks))
	for _, t := range tasks {
		names[t.ID] = t.Name
	}
	items, err := req.MapResult(entries, names)
	if err != nil {
		return nil, err
	}
	plan.Items = items
	return plan, nil
}
