package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskforest/internal/eventbus"
	"github.com/kazz187/taskforest/internal/task"
	"github.com/kazz187/taskforest/pkg/cerr"
)

func drain(ch <-chan *eventbus.Event) []*eventbus.Event {
	var out []*eventbus.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestService_CreateLinksChildAndJoinsOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bus := eventbus.New()
	_, events := bus.Subscribe(16)
	svc := task.NewService(f.repo, bus)

	root, err := svc.Create(ctx, task.CreateParams{Owner: "u1", Name: "launch", DueAt: baseTime})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, root.Members)
	assert.Equal(t, []string{"u1"}, root.UnfinishedMembers)
	assert.Equal(t, task.StateActive, root.State)
	assert.True(t, root.IsRoot())

	child, err := svc.Create(ctx, task.CreateParams{Owner: "u2", Name: "slides", Parent: root.ID, DueAt: baseTime})
	require.NoError(t, err)
	assert.Equal(t, root.ID, child.Parent)

	stored := f.get(t, root.ID)
	assert.Equal(t, []string{child.ID}, stored.Children)
	assert.Contains(t, stored.Members, "u2")
	assert.Contains(t, stored.UnfinishedMembers, "u2")
	f.assertSubsetInvariant(t)

	var types []eventbus.EventType
	for _, ev := range drain(events) {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []eventbus.EventType{eventbus.EventTaskCreated, eventbus.EventTaskCreated}, types)
}

func TestService_CreateDiscardsChildWhenParentLinkFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := task.NewService(f.repo, nil)
	root, err := svc.Create(ctx, task.CreateParams{Owner: "u1", Name: "launch", DueAt: baseTime})
	require.NoError(t, err)

	f.fs.failWrite(root.ID, errDiskFull)
	_, err = svc.Create(ctx, task.CreateParams{Owner: "u1", Name: "slides", Parent: root.ID, DueAt: baseTime})
	require.ErrorIs(t, err, errDiskFull)

	orphans, err := f.repo.List(ctx, task.Filter{ParentID: root.ID})
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, task.StateDeleted, orphans[0].State)
	leaves, err := svc.Leaves().LeafTasksFor(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{root.ID}, ids(leaves))

	f.fs.clearFaults()
	child, err := svc.Create(ctx, task.CreateParams{Owner: "u1", Name: "slides", Parent: root.ID, DueAt: baseTime})
	require.NoError(t, err)
	assert.Equal(t, []string{child.ID}, f.get(t, root.ID).Children)
	active, err := f.repo.List(ctx, task.Filter{ParentID: root.ID, State: task.StateActive})
	require.NoError(t, err)
	assert.Equal(t, []string{child.ID}, ids(active))
}

func TestService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := task.NewService(f.repo, nil)
	neg := -3.0

	_, err := svc.Create(ctx, task.CreateParams{Owner: "u1", Name: ""})
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))

	_, err = svc.Create(ctx, task.CreateParams{Owner: "u1", Name: "x", Penalty: &neg})
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))

	_, err = svc.Create(ctx, task.CreateParams{Owner: "u1", Name: "x", Parent: "missing"})
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	f.put(t, node{id: "D", members: "u1", unfinished: "u1", state: task.StateDeleted})
	_, err = svc.Create(ctx, task.CreateParams{Owner: "u1", Name: "x", Parent: "D"})
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
}

func TestService_Edit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bus := eventbus.New()
	_, events := bus.Subscribe(16)
	svc := task.NewService(f.repo, bus)
	f.put(t, node{id: "T", members: "u1", unfinished: "u1"})

	name := "renamed"
	due := baseTime.Add(48 * time.Hour)
	got, err := svc.Edit(ctx, "T", &task.Patch{Name: &name, DueAt: &due})
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.True(t, due.Equal(f.get(t, "T").DueAt))

	evs := drain(events)
	require.Len(t, evs, 1)
	assert.Equal(t, eventbus.EventTaskUpdated, evs[0].Type)
	assert.Equal(t, "true", evs[0].Metadata["due_changed"])

	zero := 0.0
	_, err = svc.Edit(ctx, "T", &task.Patch{ExpectedDuration: &zero})
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
	assert.Nil(t, f.get(t, "T").ExpectedDuration)
}

func TestService_WalksPublishEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	putForest(t, f)
	bus := eventbus.New()
	_, events := bus.Subscribe(16)
	svc := task.NewService(f.repo, bus)

	_, err := svc.Complete(ctx, "R", "u1")
	require.NoError(t, err)
	evs := drain(events)
	require.Len(t, evs, 1)
	assert.Equal(t, eventbus.EventTaskCompleted, evs[0].Type)
	assert.Equal(t, "4", evs[0].Metadata["visited"])
	assert.Equal(t, "u1", evs[0].Metadata["member_id"])

	_, err = svc.Delete(ctx, "A")
	require.NoError(t, err)
	var deleted []string
	for _, ev := range drain(events) {
		assert.Equal(t, eventbus.EventTaskDeleted, ev.Type)
		deleted = append(deleted, ev.ResourceID)
	}
	assert.Equal(t, []string{"A", "A1"}, deleted)
}

func TestService_ListForMemberAndSubtree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	putDuedForest(t, f)
	svc := task.NewService(f.repo, nil)

	got, err := svc.ListForMember(ctx, "u1", task.ViewRoot, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "R"}, ids(got))

	_, err = svc.ListForMember(ctx, "u1", task.View("forest"), false)
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))

	nodes, err := svc.Subtree(ctx, "R")
	require.NoError(t, err)
	var order []string
	var depths []int
	for _, n := range nodes {
		order = append(order, n.Task.ID)
		depths = append(depths, n.Depth)
	}
	assert.Equal(t, []string{"R", "A", "A1", "B"}, order)
	assert.Equal(t, []int{0, 1, 2, 1}, depths)
}
