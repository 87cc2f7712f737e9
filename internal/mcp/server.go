package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kazz187/taskforest/internal/reminder"
	"github.com/kazz187/taskforest/internal/schedule"
	"github.com/kazz187/taskforest/internal/task"
)

const (
	serverName    = "taskforest"
	serverVersion = "0.1.0"
)

// Deps are the services behind the tools. Checker and Planner may be nil, in
// which case their tools are not registered.
type Deps struct {
	Tasks   *task.Service
	Checker *reminder.Checker
	Planner *schedule.Planner
}

// NewServer creates the MCP server exposing task hierarchy operations.
func NewServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))
	tasks := deps.Tasks

	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a task. With a parent, the task becomes its child and the owner joins the parent chain."),
		mcp.WithString("owner", mcp.Description("Member id of the owner"), mcp.Required()),
		mcp.WithString("name", mcp.Description("Task name"), mcp.Required()),
		mcp.WithString("due_at", mcp.Description("Due time as RFC 3339 or epoch seconds"), mcp.Required()),
		mcp.WithString("detail", mcp.Description("Free-form detail")),
		mcp.WithString("parent", mcp.Description("Parent task id")),
		mcp.WithNumber("penalty", mcp.Description("Cost of missing the due time (>= 0)")),
		mcp.WithNumber("expected_duration", mcp.Description("Expected duration in seconds (> 0)")),
	), createTaskHandler(tasks))

	s.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Get a single task by id."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
	), getTaskHandler(tasks))

	s.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Edit the name, detail or due time of an active task."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("name", mcp.Description("New name")),
		mcp.WithString("detail", mcp.Description("New detail")),
		mcp.WithString("due_at", mcp.Description("New due time as RFC 3339 or epoch seconds")),
	), updateTaskHandler(tasks))

	s.AddTool(mcp.NewTool("task_tree",
		mcp.WithDescription("Get a task and all of its descendants in depth-first order."),
		mcp.WithString("id", mcp.Description("Root task id"), mcp.Required()),
	), taskTreeHandler(tasks))

	s.AddTool(mcp.NewTool("complete_task",
		mcp.WithDescription("Mark a task and its whole subtree finished for a member."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("member_id", mcp.Description("Member id"), mcp.Required()),
	), walkHandler(tasks.Complete))

	s.AddTool(mcp.NewTool("uncomplete_task",
		mcp.WithDescription("Mark a task and its subtree unfinished again for a member."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("member_id", mcp.Description("Member id"), mcp.Required()),
	), walkHandler(tasks.Uncomplete))

	s.AddTool(mcp.NewTool("join_task",
		mcp.WithDescription("Add a member to a task and every ancestor."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
		mcp.WithString("member_id", mcp.Description("Member id"), mcp.Required()),
	), walkHandler(tasks.Join))

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task and its whole subtree."),
		mcp.WithString("id", mcp.Description("Task id"), mcp.Required()),
	), deleteTaskHandler(tasks))

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List a member's tasks. view=leaf returns actionable tasks, view=root the top of each tree."),
		mcp.WithString("member_id", mcp.Description("Member id"), mcp.Required()),
		mcp.WithString("view", mcp.Description("leaf (default) or root"), mcp.Enum("leaf", "root")),
		mcp.WithBoolean("finished", mcp.Description("List finished instead of unfinished tasks")),
	), listTasksHandler(tasks))

	if deps.Checker != nil {
		s.AddTool(mcp.NewTool("check_due",
			mcp.WithDescription("Group active tasks by due window without sending reminders."),
			mcp.WithString("windows", mcp.Description("Comma separated window lengths in seconds (defaults to the configured windows)")),
		), checkDueHandler(deps.Checker))
	}

	if deps.Planner != nil {
		s.AddTool(mcp.NewTool("plan_schedule",
			mcp.WithDescription("Ask the optimizer for an ordering of the member's actionable tasks."),
			mcp.WithString("member_id", mcp.Description("Member id"), mcp.Required()),
			mcp.WithNumber("algorithm_id", mcp.Description("Optimizer algorithm id")),
		), planScheduleHandler(deps.Planner))
	}

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func arguments(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	return args
}

func optionalFloat(request mcp.CallToolRequest, key string) *float64 {
	v, ok := arguments(request)[key].(float64)
	if !ok {
		return nil
	}
	return &v
}

func createTaskHandler(tasks *task.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dueAt, err := task.ParseTimestamp(mcp.ParseString(request, "due_at", ""))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid due_at: %v", err)), nil
		}
		t, err := tasks.Create(ctx, task.CreateParams{
			Owner:            mcp.ParseString(request, "owner", ""),
			Name:             mcp.ParseString(request, "name", ""),
			Detail:           mcp.ParseString(request, "detail", ""),
			DueAt:            dueAt,
			Parent:           mcp.ParseString(request, "parent", ""),
			Penalty:          optionalFloat(request, "penalty"),
			ExpectedDuration: optionalFloat(request, "expected_duration"),
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(t)
	}
}

func getTaskHandler(tasks *task.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t, err := tasks.Get(ctx, mcp.ParseString(request, "id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(t)
	}
}

func updateTaskHandler(tasks *task.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := arguments(request)
		p := &task.Patch{}
		if v, ok := args["name"].(string); ok {
			p.Name = &v
		}
		if v, ok := args["detail"].(string); ok {
			p.Detail = &v
		}
		if v, ok := args["due_at"].(string); ok {
			dueAt, err := task.ParseTimestamp(v)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid due_at: %v", err)), nil
			}
			p.DueAt = &dueAt
		}
		t, err := tasks.Edit(ctx, mcp.ParseString(request, "id", ""), p)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(t)
	}
}

type treeNode struct {
	Depth int        `json:"depth"`
	Task  *task.Task `json:"task"`
}

func taskTreeHandler(tasks *task.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		nodes, err := tasks.Subtree(ctx, mcp.ParseString(request, "id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out := make([]treeNode, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, treeNode{Depth: n.Depth, Task: n.Task})
		}
		return jsonResult(out)
	}
}

func walkHandler(walk func(ctx context.Context, taskID, memberID string) (*task.WalkResult, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := walk(ctx, mcp.ParseString(request, "id", ""), mcp.ParseString(request, "member_id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(res)
	}
}

func deleteTaskHandler(tasks *task.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := tasks.Delete(ctx, mcp.ParseString(request, "id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(res)
	}
}

type listResult struct {
	Tasks    []*task.Task `json:"tasks"`
	Warnings []string     `json:"warnings,omitempty"`
}

func listTasksHandler(tasks *task.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		view := task.View(mcp.ParseString(request, "view", string(task.ViewLeaf)))
		list, err := tasks.ListForMember(ctx, mcp.ParseString(request, "member_id", ""), view, mcp.ParseBoolean(request, "finished", false))
		res := listResult{Tasks: list}
		if pe, ok := task.AsPartialResult(err); ok {
			for _, w := range pe.Warnings {
				res.Warnings = append(res.Warnings, fmt.Sprintf("task %s child %s: %v", w.TaskID, w.ChildID, w.Err))
			}
		} else if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if res.Tasks == nil {
			res.Tasks = []*task.Task{}
		}
		return jsonResult(res)
	}
}

type dueEntry struct {
	Window   int64  `json:"window"`
	TaskID   string `json:"taskId"`
	Name     string `json:"name"`
	UntilDue int64  `json:"untilDue"`
}

func checkDueHandler(checker *reminder.Checker) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		windows, err := reminder.ParseWindows(mcp.ParseString(request, "windows", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		now := checker.Now()
		buckets, err := checker.Due(ctx, windows)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		entries := []dueEntry{}
		for _, w := range buckets.Windows() {
			for _, t := range buckets[w] {
				entries = append(entries, dueEntry{Window: w, TaskID: t.ID, Name: t.Name, UntilDue: reminder.UntilDue(t, now)})
			}
		}
		if len(entries) == 0 {
			return mcp.NewToolResultText("No tasks due within " + formatWindows(buckets.Windows())), nil
		}
		return jsonResult(entries)
	}
}

func formatWindows(windows []int64) string {
	parts := make([]string, 0, len(windows))
	for _, w := range windows {
		parts = append(parts, (time.Duration(w) * time.Second).String())
	}
	return strings.Join(parts, ", ")
}

func planScheduleHandler(planner *schedule.Planner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		plan, err := planner.Plan(ctx, mcp.ParseString(request, "member_id", ""), int(mcp.ParseInt64(request, "algorithm_id", 0)))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(plan)
	}
}
