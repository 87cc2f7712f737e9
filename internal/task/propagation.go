package task

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kazz187/taskforest/pkg/cerr"
)

type Op string

const (
	OpComplete   Op = "complete"
	OpUncomplete Op = "uncomplete"
	OpDelete     Op = "delete"
	OpJoin       Op = "join"
)

// WalkResult describes a finished walk.
type WalkResult struct {
	Op      Op       `json:"op"`
	StartID string   `json:"startId"`
	Visited []string `json:"visited"` // in visit order
	Written int      `json:"written"`
	Skipped []string `json:"skipped,omitempty"` // dangling child references
}

// PartialPropagationError reports a walk that stopped at FailedAt because the
// store failed there. Nodes in Visited keep their writes; replaying the same
// call converges.
type PartialPropagationError struct {
	Op            Op
	StartID       string
	FailedAt      string
	LastSucceeded string
	Visited       []string
	Err           error
}

func (e *PartialPropagationError) Error() string {
	last := e.LastSucceeded
	if last == "" {
		last = "none"
	}
	return fmt.Sprintf("%s walk from %s stopped at %s (last succeeded: %s): %v", e.Op, e.StartID, e.FailedAt, last, e.Err)
}

func (e *PartialPropagationError) Unwrap() error {
	return e.Err
}

func (e *PartialPropagationError) CerrCode() cerr.Code {
	return cerr.Aborted
}

func (e *PartialPropagationError) CerrMessage() string {
	return fmt.Sprintf("%s stopped at task %s after %d tasks; retry the same request", e.Op, e.FailedAt, len(e.Visited))
}

// Propagator runs the walks that keep membership and completion consistent
// across a task tree. Each node visit is one Repository.Modify call; there is
// no multi-node transaction.
type Propagator struct {
	repo Repository
}

func NewPropagator(repo Repository) *Propagator {
	return &Propagator{repo: repo}
}

type walk struct {
	res     *WalkResult
	visited map[string]struct{}
}

func newWalk(op Op, startID string) *walk {
	return &walk{
		res:     &WalkResult{Op: op, StartID: startID},
		visited: make(map[string]struct{}),
	}
}

func (w *walk) seen(id string) bool {
	if _, ok := w.visited[id]; ok {
		return true
	}
	w.visited[id] = struct{}{}
	return false
}

func (w *walk) succeeded(id string, wrote bool) {
	w.res.Visited = append(w.res.Visited, id)
	if wrote {
		w.res.Written++
	}
}

func (w *walk) fail(id string, err error) error {
	last := ""
	if n := len(w.res.Visited); n > 0 {
		last = w.res.Visited[n-1]
	}
	return &PartialPropagationError{
		Op:            w.res.Op,
		StartID:       w.res.StartID,
		FailedAt:      id,
		LastSucceeded: last,
		Visited:       slices.Clone(w.res.Visited),
		Err:           err,
	}
}

// visitFunc mutates one node and reports whether its children are walked.
type visitFunc func(t *Task) (changed, descend bool)

// walkDown is a depth-first walk from startID over Children using an explicit
// stack. A node is written before its children are pushed.
func (p *Propagator) walkDown(ctx context.Context, w *walk, visit visitFunc) (*WalkResult, error) {
	startID := w.res.StartID
	stack := []string{startID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if w.seen(id) {
			continue
		}

		var descend, wrote bool
		t, err := p.repo.Modify(ctx, id, func(t *Task) (bool, error) {
			var changed bool
			changed, descend = visit(t)
			wrote = changed
			return changed, nil
		})
		if err != nil {
			if id != startID && cerr.IsCode(err, cerr.NotFound) {
				slog.WarnContext(ctx, "skipping dangling child reference",
					"op", string(w.res.Op), "task_id", id, "start_id", startID)
				w.res.Skipped = append(w.res.Skipped, id)
				continue
			}
			return nil, w.fail(id, err)
		}
		w.succeeded(id, wrote)

		if descend {
			// push in reverse so children are visited in insertion order
			for i := len(t.Children) - 1; i >= 0; i-- {
				stack = append(stack, t.Children[i])
			}
		}
	}
	return w.res, nil
}

// requireActiveMember loads the start task and checks the preconditions shared
// by the completion walks.
func (p *Propagator) requireActiveMember(ctx context.Context, taskID, memberID string) error {
	t, err := p.repo.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if !t.IsActive() {
		return cerr.NewError(cerr.FailedPrecondition, "task is deleted", nil)
	}
	if !t.HasMember(memberID) {
		return cerr.NewError(cerr.NotFound, "member not found", fmt.Errorf("member %s is not a member of task %s", memberID, taskID))
	}
	return nil
}

// CompleteForMember removes memberID from UnfinishedMembers of taskID and all
// of its descendants. Nodes where the member is already finished are not
// written but are still descended, so replaying a walk that stopped halfway
// reaches the nodes it missed. A branch ends at a node the member does not
// belong to. A repeated call performs no writes.
func (p *Propagator) CompleteForMember(ctx context.Context, taskID, memberID string) (*WalkResult, error) {
	ctx = context.WithoutCancel(ctx)
	if err := p.requireActiveMember(ctx, taskID, memberID); err != nil {
		return nil, err
	}
	return p.walkDown(ctx, newWalk(OpComplete, taskID), func(t *Task) (bool, bool) {
		if !t.HasMember(memberID) {
			return false, false
		}
		var removed bool
		t.UnfinishedMembers, removed = removeFromSet(t.UnfinishedMembers, memberID)
		return removed, true
	})
}

// UncompleteForMember re-adds memberID to UnfinishedMembers from taskID
// downwards. Writes happen only where the member is missing; nodes the member
// does not belong to are neither written nor descended.
func (p *Propagator) UncompleteForMember(ctx context.Context, taskID, memberID string) (*WalkResult, error) {
	ctx = context.WithoutCancel(ctx)
	if err := p.requireActiveMember(ctx, taskID, memberID); err != nil {
		return nil, err
	}
	return p.walkDown(ctx, newWalk(OpUncomplete, taskID), func(t *Task) (bool, bool) {
		if !t.HasMember(memberID) {
			return false, false
		}
		var added bool
		t.UnfinishedMembers, added = addToSet(t.UnfinishedMembers, memberID)
		return added, true
	})
}

// DeleteCascade marks taskID and every descendant Deleted. Already deleted
// nodes are descended too so an interrupted cascade can be replayed.
func (p *Propagator) DeleteCascade(ctx context.Context, taskID string) (*WalkResult, error) {
	ctx = context.WithoutCancel(ctx)
	if _, err := p.repo.Get(ctx, taskID); err != nil {
		return nil, err
	}
	return p.walkDown(ctx, newWalk(OpDelete, taskID), func(t *Task) (bool, bool) {
		if t.State == StateDeleted {
			return false, true
		}
		t.State = StateDeleted
		return true, true
	})
}

// JoinAncestors adds memberID to Members and UnfinishedMembers of taskID and
// of every ancestor up to the root. The walk never stops early on nodes that
// already contain the member.
func (p *Propagator) JoinAncestors(ctx context.Context, taskID, memberID string) (*WalkResult, error) {
	ctx = context.WithoutCancel(ctx)
	start, err := p.repo.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !start.IsActive() {
		return nil, cerr.NewError(cerr.FailedPrecondition, "task is deleted", nil)
	}

	w := newWalk(OpJoin, taskID)
	for id := taskID; id != ""; {
		if w.seen(id) {
			return nil, w.fail(id, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("parent cycle at task %s", id)))
		}
		var wrote bool
		t, err := p.repo.Modify(ctx, id, func(t *Task) (bool, error) {
			var addedMember, addedUnfinished bool
			t.Members, addedMember = addToSet(t.Members, memberID)
			t.UnfinishedMembers, addedUnfinished = addToSet(t.UnfinishedMembers, memberID)
			wrote = addedMember || addedUnfinished
			return wrote, nil
		})
		if err != nil {
			if id != taskID && cerr.IsCode(err, cerr.NotFound) {
				slog.WarnContext(ctx, "parent reference is dangling, stopping at last reachable ancestor",
					"op", string(OpJoin), "task_id", id, "start_id", taskID)
				w.res.Skipped = append(w.res.Skipped, id)
				break
			}
			return nil, w.fail(id, err)
		}
		w.succeeded(id, wrote)
		id = t.Parent
	}
	return w.res, nil
}
