package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/kazz187/taskforest/internal/config"
	"github.com/kazz187/taskforest/internal/eventbus"
	"github.com/kazz187/taskforest/internal/mcp"
	"github.com/kazz187/taskforest/internal/pushnotification"
	pushsubrepo "github.com/kazz187/taskforest/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/taskforest/internal/reminder"
	"github.com/kazz187/taskforest/internal/schedule"
	"github.com/kazz187/taskforest/internal/task"
	taskrepo "github.com/kazz187/taskforest/internal/task/repositoryimpl"
	"github.com/kazz187/taskforest/pkg/clog"
	"github.com/kazz187/taskforest/pkg/color"
	"github.com/kazz187/taskforest/pkg/storage"
)

var (
	app = kingpin.New("taskforest", "Shared task hierarchies with per-member completion")

	createCmd      = app.Command("create", "Create a task")
	createOwner    = createCmd.Flag("owner", "Owner member id").Required().String()
	createName     = createCmd.Arg("name", "Task name").Required().String()
	createDue      = createCmd.Flag("due", "Due time (RFC 3339 or epoch seconds)").Required().String()
	createParent   = createCmd.Flag("parent", "Parent task id").String()
	createDetail   = createCmd.Flag("detail", "Task detail").String()
	createPenalty  = createCmd.Flag("penalty", "Penalty for missing the due time").Float64()
	createDuration = createCmd.Flag("expected-duration", "Expected duration in seconds").Float64()

	showCmd = app.Command("show", "Show a task")
	showID  = showCmd.Arg("id", "Task ID").Required().String()

	treeCmd = app.Command("tree", "Show a task and its descendants")
	treeID  = treeCmd.Arg("id", "Task ID").Required().String()

	listCmd      = app.Command("list", "List a member's tasks")
	listMember   = listCmd.Arg("member", "Member id").Required().String()
	listView     = listCmd.Flag("view", "leaf or root").Default("leaf").Enum("leaf", "root")
	listFinished = listCmd.Flag("finished", "List finished tasks").Bool()

	completeCmd    = app.Command("complete", "Complete a task subtree for a member")
	completeID     = completeCmd.Arg("id", "Task ID").Required().String()
	completeMember = completeCmd.Arg("member", "Member id").Required().String()

	uncompleteCmd    = app.Command("uncomplete", "Mark a task subtree unfinished for a member")
	uncompleteID     = uncompleteCmd.Arg("id", "Task ID").Required().String()
	uncompleteMember = uncompleteCmd.Arg("member", "Member id").Required().String()

	joinCmd    = app.Command("join", "Join a task and all of its ancestors")
	joinID     = joinCmd.Arg("id", "Task ID").Required().String()
	joinMember = joinCmd.Arg("member", "Member id").Required().String()

	deleteCmd = app.Command("delete", "Delete a task subtree")
	deleteID  = deleteCmd.Arg("id", "Task ID").Required().String()

	checkDueCmd     = app.Command("check-due", "Group active tasks by due window")
	checkDueWindows = checkDueCmd.Flag("windows", "Comma separated windows in seconds").Default("3600").String()
	checkDueSend    = checkDueCmd.Flag("send", "Send the due reminders through the configured push channels").Bool()

	scheduleCmd       = app.Command("schedule", "Ask the optimizer to order a member's actionable tasks")
	scheduleMember    = scheduleCmd.Arg("member", "Member id").Required().String()
	scheduleAlgorithm = scheduleCmd.Flag("algorithm", "Optimizer algorithm id").Default("0").Int()

	mcpCmd = app.Command("mcp", "Serve the task tools over MCP on stdio")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	app.FatalIfError(err, "load env")

	handler := clog.NewTextHandler(os.Stderr, clog.WithLevel(env.SlogLevel()))
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, env.StorageEnv.Options())
	app.FatalIfError(err, "open storage")
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	tasks := task.NewService(taskrepo.NewYAMLRepository(store), eventbus.New())

	var out any
	switch command {
	case createCmd.FullCommand():
		dueAt, err := task.ParseTimestamp(*createDue)
		app.FatalIfError(err, "parse --due")
		params := task.CreateParams{
			Owner:  *createOwner,
			Name:   *createName,
			Detail: *createDetail,
			DueAt:  dueAt,
			Parent: *createParent,
		}
		if *createPenalty != 0 {
			params.Penalty = createPenalty
		}
		if *createDuration != 0 {
			params.ExpectedDuration = createDuration
		}
		out, err = tasks.Create(ctx, params)
		app.FatalIfError(err, "create")
	case showCmd.FullCommand():
		out, err = tasks.Get(ctx, *showID)
		app.FatalIfError(err, "show")
	case treeCmd.FullCommand():
		nodes, err := tasks.Subtree(ctx, *treeID)
		app.FatalIfError(err, "tree")
		printTree(nodes)
		return
	case listCmd.FullCommand():
		list, err := tasks.ListForMember(ctx, *listMember, task.View(*listView), *listFinished)
		if pe, ok := task.AsPartialResult(err); ok {
			for _, w := range pe.Warnings {
				slog.Warn("child could not be read", "task_id", w.TaskID, "child_id", w.ChildID, "error", w.Err)
			}
		} else {
			app.FatalIfError(err, "list")
		}
		out = list
	case completeCmd.FullCommand():
		out, err = tasks.Complete(ctx, *completeID, *completeMember)
		app.FatalIfError(err, "complete")
	case uncompleteCmd.FullCommand():
		out, err = tasks.Uncomplete(ctx, *uncompleteID, *uncompleteMember)
		app.FatalIfError(err, "uncomplete")
	case joinCmd.FullCommand():
		out, err = tasks.Join(ctx, *joinID, *joinMember)
		app.FatalIfError(err, "join")
	case deleteCmd.FullCommand():
		out, err = tasks.Delete(ctx, *deleteID)
		app.FatalIfError(err, "delete")
	case checkDueCmd.FullCommand():
		out, err = checkDue(ctx, env, store, tasks)
		app.FatalIfError(err, "check-due")
	case scheduleCmd.FullCommand():
		optimizerEnv := config.OptimizerEnvFromEnv(env)
		var optimizer schedule.Optimizer
		if optimizerEnv.OptimizerURL != "" {
			optimizer = schedule.NewHTTPOptimizer(optimizerEnv.OptimizerURL, optimizerEnv.OptimizerTimeout)
		}
		out, err = schedule.NewPlanner(tasks.Leaves(), optimizer).Plan(ctx, *scheduleMember, *scheduleAlgorithm)
		app.FatalIfError(err, "schedule")
	case mcpCmd.FullCommand():
		checker, err := newChecker(env, store, tasks, nil)
		app.FatalIfError(err, "reminder windows")
		deps := mcp.Deps{Tasks: tasks, Checker: checker}
		if optimizerEnv := config.OptimizerEnvFromEnv(env); optimizerEnv.OptimizerURL != "" {
			deps.Planner = schedule.NewPlanner(tasks.Leaves(), schedule.NewHTTPOptimizer(optimizerEnv.OptimizerURL, optimizerEnv.OptimizerTimeout))
		}
		app.FatalIfError(mcp.Serve(mcp.NewServer(deps)), "mcp")
		return
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	app.FatalIfError(enc.Encode(out), "write output")
}

func newChecker(env *config.Env, store storage.Storage, tasks *task.Service, dispatcher reminder.Dispatcher) (*reminder.Checker, error) {
	windows, err := reminder.NewWindowSource(env.ReminderEnv.Windows)
	if err != nil {
		return nil, err
	}
	if dispatcher == nil {
		dispatcher = logDispatcher{}
	}
	return reminder.NewChecker(tasks, windows, reminder.NewSentLog(store), dispatcher,
		reminder.WithConcurrency(env.ReminderEnv.Concurrency),
	), nil
}

type dueLine struct {
	Window   int64  `json:"window"`
	TaskID   string `json:"taskId"`
	Name     string `json:"name"`
	UntilDue int64  `json:"untilDue"`
}

func checkDue(ctx context.Context, env *config.Env, store storage.Storage, tasks *task.Service) (any, error) {
	windows, err := reminder.ParseWindows(*checkDueWindows)
	if err != nil {
		return nil, err
	}

	var dispatcher reminder.Dispatcher
	if *checkDueSend {
		pushSubRepo := pushsubrepo.NewYAMLRepository(store)
		dispatcher = pushnotification.NewDispatcher(
			pushSubRepo,
			pushnotification.NewWebPushSender(config.VAPIDEnvFromEnv(env), pushSubRepo),
			pushnotification.NewExpoSender(config.ExpoEnvFromEnv(env), pushSubRepo),
		)
	}
	checker, err := newChecker(env, store, tasks, dispatcher)
	if err != nil {
		return nil, err
	}

	if *checkDueSend {
		if len(windows) > 0 {
			if err := checker.SetWindows(windows); err != nil {
				return nil, err
			}
		}
		return checker.RunOnce(ctx)
	}

	now := checker.Now()
	buckets, err := checker.Due(ctx, windows)
	if err != nil {
		return nil, err
	}
	lines := []dueLine{}
	for _, w := range buckets.Windows() {
		for _, t := range buckets[w] {
			lines = append(lines, dueLine{Window: w, TaskID: t.ID, Name: t.Name, UntilDue: reminder.UntilDue(t, now)})
		}
	}
	return lines, nil
}

// logDispatcher prints reminders instead of delivering them.
type logDispatcher struct{}

func (logDispatcher) Notify(ctx context.Context, n reminder.Notification) error {
	slog.InfoContext(ctx, "due reminder", "member_id", n.Destination, "task_id", n.TaskID, "task_name", n.TaskName, "until_due", n.UntilDueSeconds)
	return nil
}

func printTree(nodes []task.TreeNode) {
	now := time.Now()
	for _, n := range nodes {
		due := "-"
		if !n.Task.DueAt.IsZero() {
			due = n.Task.DueAt.Local().Format("2006-01-02 15:04")
		}
		color.FprintTaskLine(os.Stdout, color.TaskLine{
			Depth:      n.Depth,
			ID:         n.Task.ID,
			Name:       n.Task.Name,
			Due:        due,
			Unfinished: n.Task.UnfinishedMembers,
			Deleted:    !n.Task.IsActive(),
			Overdue:    !n.Task.DueAt.IsZero() && n.Task.DueAt.Before(now),
		})
	}
}
