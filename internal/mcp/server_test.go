package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskforest/internal/eventbus"
	"github.com/kazz187/taskforest/internal/reminder"
	"github.com/kazz187/taskforest/internal/task"
	taskrepo "github.com/kazz187/taskforest/internal/task/repositoryimpl"
	"github.com/kazz187/taskforest/pkg/storage"
)

type nopDispatcher struct{}

func (nopDispatcher) Notify(context.Context, reminder.Notification) error { return nil }

func newTestServer(t *testing.T) (*server.MCPServer, *task.Service) {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	tasks := task.NewService(taskrepo.NewYAMLRepository(s), eventbus.New())
	windows, err := reminder.NewWindowSource(reminder.DefaultWindows)
	require.NoError(t, err)
	checker := reminder.NewChecker(tasks, windows, reminder.NewSentLog(s), nopDispatcher{})
	return NewServer(Deps{Tasks: tasks, Checker: checker}), tasks
}

func call(t *testing.T, s *server.MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool := s.GetTool(name)
	require.NotNil(t, tool, "tool %s not registered", name)
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := tool.Handler(context.Background(), req)
	require.NoError(t, err)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func decode[T any](t *testing.T, res *mcp.CallToolResult) T {
	t.Helper()
	require.False(t, res.IsError, text(t, res))
	var v T
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &v))
	return v
}

func TestTools_Registered(t *testing.T) {
	s, _ := newTestServer(t)
	for _, name := range []string{"create_task", "get_task", "update_task", "task_tree", "complete_task", "uncomplete_task", "join_task", "delete_task", "list_tasks", "check_due"} {
		assert.NotNil(t, s.GetTool(name), name)
	}
	assert.Nil(t, s.GetTool("plan_schedule"), "planner not configured")
}

func TestTools_HierarchyFlow(t *testing.T) {
	s, _ := newTestServer(t)
	due := time.Now().Add(30 * time.Minute).UTC().Format(time.RFC3339)

	root := decode[task.Task](t, call(t, s, "create_task", map[string]any{"owner": "u1", "name": "Release", "due_at": due}))
	child := decode[task.Task](t, call(t, s, "create_task", map[string]any{
		"owner": "u2", "name": "Changelog", "due_at": due, "parent": root.ID, "expected_duration": float64(1800),
	}))
	require.NotNil(t, child.ExpectedDuration)
	assert.Equal(t, 1800.0, *child.ExpectedDuration)

	got := decode[task.Task](t, call(t, s, "get_task", map[string]any{"id": root.ID}))
	assert.ElementsMatch(t, []string{"u1", "u2"}, got.Members, "child owner joined the parent")

	leaves := decode[listResult](t, call(t, s, "list_tasks", map[string]any{"member_id": "u1"}))
	require.Len(t, leaves.Tasks, 1)
	assert.Equal(t, root.ID, leaves.Tasks[0].ID)

	walk := decode[task.WalkResult](t, call(t, s, "complete_task", map[string]any{"id": root.ID, "member_id": "u2"}))
	assert.Equal(t, []string{root.ID, child.ID}, walk.Visited)

	finished := decode[listResult](t, call(t, s, "list_tasks", map[string]any{"member_id": "u2", "view": "root", "finished": true}))
	require.Len(t, finished.Tasks, 1)

	tree := decode[[]treeNode](t, call(t, s, "task_tree", map[string]any{"id": root.ID}))
	require.Len(t, tree, 2)
	assert.Equal(t, 1, tree[1].Depth)

	updated := decode[task.Task](t, call(t, s, "update_task", map[string]any{"id": child.ID, "name": "Changelog v2"}))
	assert.Equal(t, "Changelog v2", updated.Name)

	due1 := call(t, s, "check_due", map[string]any{"windows": "3600"})
	assert.Contains(t, text(t, due1), root.ID)

	del := decode[task.WalkResult](t, call(t, s, "delete_task", map[string]any{"id": root.ID}))
	assert.Len(t, del.Visited, 2)

	res := call(t, s, "check_due", map[string]any{"windows": "3600"})
	assert.Contains(t, text(t, res), "No tasks due")
}

func TestTools_Errors(t *testing.T) {
	s, _ := newTestServer(t)

	res := call(t, s, "create_task", map[string]any{"owner": "u1", "name": "x", "due_at": "tomorrow"})
	assert.True(t, res.IsError)

	res = call(t, s, "get_task", map[string]any{"id": "missing"})
	assert.True(t, res.IsError)

	res = call(t, s, "list_tasks", map[string]any{"member_id": "u1", "view": "sideways"})
	assert.True(t, res.IsError)

	res = call(t, s, "check_due", map[string]any{"windows": "-1"})
	assert.True(t, res.IsError)
}
