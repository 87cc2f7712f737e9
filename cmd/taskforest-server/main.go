package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kazz187/taskforest/internal/config"
	"github.com/kazz187/taskforest/internal/eventbus"
	"github.com/kazz187/taskforest/internal/eventlog"
	"github.com/kazz187/taskforest/internal/meeting"
	meetingrepo "github.com/kazz187/taskforest/internal/meeting/repositoryimpl"
	"github.com/kazz187/taskforest/internal/pushnotification"
	pushsubrepo "github.com/kazz187/taskforest/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/taskforest/internal/reminder"
	"github.com/kazz187/taskforest/internal/schedule"
	"github.com/kazz187/taskforest/internal/task"
	taskrepo "github.com/kazz187/taskforest/internal/task/repositoryimpl"
	"github.com/kazz187/taskforest/pkg/clog"
	"github.com/kazz187/taskforest/pkg/panicerr"
	"github.com/kazz187/taskforest/pkg/storage"

	server "github.com/kazz187/taskforest/internal"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Setup storage
	store, err := storage.Open(ctx, env.StorageEnv.Options())
	if err != nil {
		slog.Error("failed to open storage", "type", env.StorageEnv.Type, "error", err)
		os.Exit(1)
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	// Setup event bus
	bus := eventbus.New()

	// Setup repositories
	taskRepo := taskrepo.NewYAMLRepository(store)
	meetingRepo := meetingrepo.NewYAMLRepository(store)
	pushSubRepo := pushsubrepo.NewYAMLRepository(store)

	// Setup services
	taskService := task.NewService(taskRepo, bus)
	meetingService := meeting.NewService(meetingRepo, taskService, bus)

	// Setup push notification
	vapidEnv := config.VAPIDEnvFromEnv(env)
	expoSender := pushnotification.NewExpoSender(config.ExpoEnvFromEnv(env), pushSubRepo)
	dispatcher := pushnotification.NewDispatcher(pushSubRepo, pushnotification.NewWebPushSender(vapidEnv, pushSubRepo), expoSender)

	// Setup reminders
	reminderEnv := config.ReminderEnvFromEnv(env)
	windows, err := reminder.NewWindowSource(reminderEnv.Windows)
	if err != nil {
		slog.Error("invalid reminder windows", "windows", reminderEnv.Windows, "error", err)
		os.Exit(1)
	}
	sentLog := reminder.NewSentLog(store)
	checker := reminder.NewChecker(taskService, windows, sentLog, dispatcher,
		reminder.WithInterval(reminderEnv.Interval),
		reminder.WithConcurrency(reminderEnv.Concurrency),
		reminder.WithEventBus(bus),
	)

	// Setup schedule optimizer
	var optimizer schedule.Optimizer
	if optimizerEnv := config.OptimizerEnvFromEnv(env); optimizerEnv.OptimizerURL != "" {
		optimizer = schedule.NewHTTPOptimizer(optimizerEnv.OptimizerURL, optimizerEnv.OptimizerTimeout)
	}
	planner := schedule.NewPlanner(taskService.Leaves(), optimizer)

	journal := eventlog.NewJournal(store)

	srv := server.NewServer(
		env,
		task.NewServer(taskService),
		meeting.NewServer(meetingService),
		schedule.NewServer(planner),
		reminder.NewServer(checker),
		pushnotification.NewServer(vapidEnv, pushSubRepo, dispatcher, expoSender),
		eventlog.NewServer(journal),
	)

	panicerr.Go(ctx, "event_journal", func(ctx context.Context) { journal.Start(ctx, bus) })
	panicerr.Go(ctx, "sent_log", func(ctx context.Context) { sentLog.Start(ctx, bus) })
	if !reminderEnv.Disabled {
		panicerr.Go(ctx, "reminder_checker", checker.Start)
	}
	if reminderEnv.WindowsFile != "" {
		go func() {
			if err := windows.Watch(ctx, reminderEnv.WindowsFile); err != nil {
				slog.Error("reminder windows watcher stopped", "path", reminderEnv.WindowsFile, "error", err)
			}
		}()
	}

	if calendarEnv := config.CalendarEnvFromEnv(env); calendarEnv.Enabled() {
		cal, err := meeting.NewGoogleCalendarFromEnv(ctx, calendarEnv)
		if err != nil {
			slog.Error("failed to set up calendar sync", "error", err)
			os.Exit(1)
		}
		cs := meeting.NewCalendarSync(meetingService, cal)
		panicerr.Go(ctx, "calendar_sync", func(ctx context.Context) { cs.Start(ctx, bus) })
	}

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
