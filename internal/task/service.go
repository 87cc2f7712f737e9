package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/taskforest/internal/eventbus"
	"github.com/kazz187/taskforest/pkg/cerr"
)

type CreateParams struct {
	Owner            string
	Name             string
	Detail           string
	DueAt            time.Time
	Parent           string
	Penalty          *float64
	ExpectedDuration *float64
}

// Patch holds the editable fields; nil means unchanged.
type Patch struct {
	Name             *string
	Detail           *string
	DueAt            *time.Time
	Penalty          *float64
	ExpectedDuration *float64
}

// ParsePatch decodes a JSON merge body. Keys other than the editable fields
// are rejected by name.
func ParsePatch(raw map[string]json.RawMessage) (*Patch, error) {
	p := &Patch{}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		v := raw[key]
		var err error
		switch key {
		case "name":
			err = json.Unmarshal(v, &p.Name)
		case "detail":
			err = json.Unmarshal(v, &p.Detail)
		case "dueAt":
			var ts Timestamp
			if err = json.Unmarshal(v, &ts); err == nil {
				if ts.IsZero() {
					return nil, cerr.NewInvalidFieldError(key, "must not be empty")
				}
				p.DueAt = &ts.Time
			}
		case "penalty":
			err = json.Unmarshal(v, &p.Penalty)
		case "expectedDuration":
			err = json.Unmarshal(v, &p.ExpectedDuration)
		default:
			return nil, cerr.NewInvalidFieldError(key, "field is not editable")
		}
		if err != nil {
			return nil, cerr.NewInvalidFieldError(key, "malformed value")
		}
	}
	return p, nil
}

type View string

const (
	ViewRoot View = "root"
	ViewLeaf View = "leaf"
)

type TreeNode struct {
	Task  *Task
	Depth int
}

// Service is the entry point shared by the HTTP server, the MCP tools and the
// CLI.
type Service struct {
	repo       Repository
	propagator *Propagator
	leaves     *LeafClassifier
	eventBus   *eventbus.Bus
	now        func() time.Time
}

func NewService(repo Repository, eventBus *eventbus.Bus) *Service {
	return &Service{
		repo:       repo,
		propagator: NewPropagator(repo),
		leaves:     NewLeafClassifier(repo),
		eventBus:   eventBus,
		now:        time.Now,
	}
}

// discardOrphan marks a task Deleted whose parent could not be linked to it.
// No walk can reach such a task, and a retried Create makes a fresh one.
func (s *Service) discardOrphan(ctx context.Context, id string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.repo.Modify(ctx, id, func(t *Task) (bool, error) {
		if t.State == StateDeleted {
			return false, nil
		}
		t.State = StateDeleted
		return true, nil
	}); err != nil {
		slog.WarnContext(ctx, "failed to discard unlinked task", "task_id", id, "error", err)
	}
}

func (s *Service) Leaves() *LeafClassifier {
	return s.leaves
}

func (s *Service) Create(ctx context.Context, p CreateParams) (*Task, error) {
	now := s.now()
	t := &Task{
		ID:                ulid.Make().String(),
		Owner:             p.Owner,
		Name:              p.Name,
		Detail:            p.Detail,
		State:             StateActive,
		Parent:            p.Parent,
		Children:          []string{},
		Members:           []string{p.Owner},
		UnfinishedMembers: []string{p.Owner},
		Penalty:           p.Penalty,
		ExpectedDuration:  p.ExpectedDuration,
		DueAt:             p.DueAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	var parent *Task
	if p.Parent != "" {
		var err error
		parent, err = s.repo.Get(ctx, p.Parent)
		if err != nil {
			return nil, err
		}
		if !parent.IsActive() {
			return nil, cerr.NewError(cerr.FailedPrecondition, "parent task is deleted", nil)
		}
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	if parent != nil {
		if _, err := s.repo.Modify(ctx, parent.ID, func(pt *Task) (bool, error) {
			var added bool
			pt.Children, added = addToSet(pt.Children, t.ID)
			return added, nil
		}); err != nil {
			s.discardOrphan(ctx, t.ID)
			return nil, fmt.Errorf("link task %s to parent %s: %w", t.ID, parent.ID, err)
		}
		if !parent.HasMember(p.Owner) {
			if _, err := s.propagator.JoinAncestors(ctx, parent.ID, p.Owner); err != nil {
				return nil, err
			}
		}
	}

	s.publish(eventbus.EventTaskCreated, t.ID, map[string]string{"owner": t.Owner, "parent": t.Parent})
	return t, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListActive(ctx context.Context) ([]*Task, error) {
	return s.repo.List(ctx, Filter{State: StateActive})
}

func (s *Service) Edit(ctx context.Context, id string, p *Patch) (*Task, error) {
	var dueChanged bool
	t, err := s.repo.Modify(ctx, id, func(t *Task) (bool, error) {
		if !t.IsActive() {
			return false, cerr.NewError(cerr.FailedPrecondition, "task is deleted", nil)
		}
		var changed bool
		if p.Name != nil && *p.Name != t.Name {
			t.Name = *p.Name
			changed = true
		}
		if p.Detail != nil && *p.Detail != t.Detail {
			t.Detail = *p.Detail
			changed = true
		}
		if p.DueAt != nil && !p.DueAt.Equal(t.DueAt) {
			t.DueAt = *p.DueAt
			changed, dueChanged = true, true
		}
		if p.Penalty != nil {
			t.Penalty = p.Penalty
			changed = true
		}
		if p.ExpectedDuration != nil {
			t.ExpectedDuration = p.ExpectedDuration
			changed = true
		}
		if err := t.Validate(); err != nil {
			return false, err
		}
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(eventbus.EventTaskUpdated, id, map[string]string{"due_changed": strconv.FormatBool(dueChanged)})
	return t, nil
}

func (s *Service) Complete(ctx context.Context, taskID, memberID string) (*WalkResult, error) {
	res, err := s.propagator.CompleteForMember(ctx, taskID, memberID)
	return s.finishWalk(ctx, eventbus.EventTaskCompleted, memberID, res, err)
}

func (s *Service) Uncomplete(ctx context.Context, taskID, memberID string) (*WalkResult, error) {
	res, err := s.propagator.UncompleteForMember(ctx, taskID, memberID)
	return s.finishWalk(ctx, eventbus.EventTaskUncompleted, memberID, res, err)
}

func (s *Service) Delete(ctx context.Context, taskID string) (*WalkResult, error) {
	res, err := s.propagator.DeleteCascade(ctx, taskID)
	return s.finishWalk(ctx, eventbus.EventTaskDeleted, "", res, err)
}

func (s *Service) Join(ctx context.Context, taskID, memberID string) (*WalkResult, error) {
	res, err := s.propagator.JoinAncestors(ctx, taskID, memberID)
	return s.finishWalk(ctx, eventbus.EventTaskJoined, memberID, res, err)
}

func (s *Service) finishWalk(ctx context.Context, eventType eventbus.EventType, memberID string, res *WalkResult, err error) (*WalkResult, error) {
	if err != nil {
		return nil, err
	}
	if len(res.Skipped) > 0 {
		slog.WarnContext(ctx, "walk skipped dangling references", "op", string(res.Op), "task_id", res.StartID, "skipped", res.Skipped)
	}
	// Deletion events are published per visited node so subscribers (the
	// reminder log) can drop state for the whole subtree.
	if eventType == eventbus.EventTaskDeleted {
		for _, id := range res.Visited {
			s.publish(eventType, id, map[string]string{"start_id": res.StartID})
		}
		return res, nil
	}
	s.publish(eventType, res.StartID, map[string]string{
		"member_id": memberID,
		"visited":   strconv.Itoa(len(res.Visited)),
		"written":   strconv.Itoa(res.Written),
	})
	return res, nil
}

func (s *Service) ListForMember(ctx context.Context, memberID string, view View, finished bool) ([]*Task, error) {
	switch {
	case view == ViewRoot && !finished:
		return s.leaves.RootTasksFor(ctx, memberID)
	case view == ViewRoot && finished:
		return s.leaves.FinishedRootTasksFor(ctx, memberID)
	case view == ViewLeaf && !finished:
		return s.leaves.LeafTasksFor(ctx, memberID)
	case view == ViewLeaf && finished:
		return s.leaves.FinishedLeafTasksFor(ctx, memberID)
	default:
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown view %q", view), nil)
	}
}

// Subtree returns rootID and its descendants in depth-first order. Dangling
// children are skipped.
func (s *Service) Subtree(ctx context.Context, rootID string) ([]TreeNode, error) {
	root, err := s.repo.Get(ctx, rootID)
	if err != nil {
		return nil, err
	}
	var (
		nodes   []TreeNode
		visited = map[string]struct{}{}
		stack   = []TreeNode{{Task: root}}
	)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[n.Task.ID]; ok {
			continue
		}
		visited[n.Task.ID] = struct{}{}
		nodes = append(nodes, n)
		for i := len(n.Task.Children) - 1; i >= 0; i-- {
			child, err := s.repo.Get(ctx, n.Task.Children[i])
			if err != nil {
				if cerr.IsCode(err, cerr.NotFound) {
					continue
				}
				return nil, err
			}
			stack = append(stack, TreeNode{Task: child, Depth: n.Depth + 1})
		}
	}
	return nodes, nil
}

func (s *Service) publish(eventType eventbus.EventType, resourceID string, metadata map[string]string) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.PublishNew(eventType, resourceID, "", metadata)
}
