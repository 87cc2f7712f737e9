package reminder

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/kazz187/taskforest/internal/eventbus"
	"github.com/kazz187/taskforest/internal/task"
	"github.com/kazz187/taskforest/pkg/clog"
	"github.com/kazz187/taskforest/pkg/panicerr"
)

// Notification is what the dispatcher receives for one member and task.
// Destination is the member id; the dispatcher resolves it to devices.
type Notification struct {
	Destination     string
	UntilDueSeconds int64
	TaskName        string
	TaskID          string
	Window          int64
}

type Dispatcher interface {
	Notify(ctx context.Context, n Notification) error
}

type TaskLister interface {
	ListActive(ctx context.Context) ([]*task.Task, error)
}

type Report struct {
	Checked int `json:"checked"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type Checker struct {
	tasks       TaskLister
	windows     *WindowSource
	sentLog     *SentLog
	dispatcher  Dispatcher
	eventBus    *eventbus.Bus
	interval    time.Duration
	concurrency int
	now         func() time.Time
}

type CheckerOption func(*Checker)

func WithInterval(d time.Duration) CheckerOption {
	return func(c *Checker) {
		if d > 0 {
			c.interval = d
		}
	}
}

func WithConcurrency(n int) CheckerOption {
	return func(c *Checker) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) CheckerOption {
	return func(c *Checker) {
		c.now = now
	}
}

func WithEventBus(bus *eventbus.Bus) CheckerOption {
	return func(c *Checker) {
		c.eventBus = bus
	}
}

func NewChecker(tasks TaskLister, windows *WindowSource, sentLog *SentLog, dispatcher Dispatcher, opts ...CheckerOption) *Checker {
	c := &Checker{
		tasks:       tasks,
		windows:     windows,
		sentLog:     sentLog,
		dispatcher:  dispatcher,
		interval:    time.Minute,
		concurrency: 8,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetWindows replaces the windows used by RunOnce.
func (c *Checker) SetWindows(windows []int64) error {
	return c.windows.Set(windows)
}

// Now is the checker's clock.
func (c *Checker) Now() time.Time {
	return c.now()
}

// Due classifies every Active task against windows, or against the current
// windows when none are given.
func (c *Checker) Due(ctx context.Context, windows []int64) (Buckets, error) {
	if len(windows) == 0 {
		windows = c.windows.Windows()
	}
	tasks, err := c.tasks.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return Classify(tasks, windows, c.now())
}

// RunOnce sends the reminders that are due now. Each unfinished member of a
// task gets one reminder per window; delivery failures are logged and retried
// on the next run.
func (c *Checker) RunOnce(ctx context.Context) (*Report, error) {
	now := c.now()
	buckets, err := c.Due(ctx, nil)
	if err != nil {
		return nil, err
	}

	var sent, skipped, failed atomic.Int64
	p := pool.New().WithErrors().WithMaxGoroutines(c.concurrency)
	for _, window := range buckets.Windows() {
		for _, t := range buckets[window] {
			for _, memberID := range t.UnfinishedMembers {
				p.Go(panicerr.Safe(func() error {
					ok, err := c.remind(ctx, t, memberID, window, now)
					switch {
					case err != nil:
						failed.Add(1)
						slog.WarnContext(ctx, "reminder failed", "task_id", t.ID, "member_id", memberID, "window", window, "error", err)
						return err
					case ok:
						sent.Add(1)
					default:
						skipped.Add(1)
					}
					return nil
				}))
			}
		}
	}
	poolErr := p.Wait()

	report := &Report{
		Checked: buckets.Len(),
		Sent:    int(sent.Load()),
		Skipped: int(skipped.Load()),
		Failed:  int(failed.Load()),
	}
	if poolErr != nil && report.Sent == 0 && report.Skipped == 0 {
		return report, poolErr
	}
	return report, nil
}

func (c *Checker) remind(ctx context.Context, t *task.Task, memberID string, window int64, now time.Time) (bool, error) {
	already, err := c.sentLog.WasSent(ctx, t, memberID, window)
	if err != nil {
		return false, err
	}
	if already {
		return false, nil
	}
	if err := c.dispatcher.Notify(ctx, Notification{
		Destination:     memberID,
		UntilDueSeconds: UntilDue(t, now),
		TaskName:        t.Name,
		TaskID:          t.ID,
		Window:          window,
	}); err != nil {
		return false, err
	}
	if err := c.sentLog.MarkSent(ctx, t, memberID, window); err != nil {
		return true, err
	}
	if c.eventBus != nil {
		c.eventBus.PublishNew(eventbus.EventReminderSent, t.ID, "", map[string]string{
			"member_id": memberID,
			"window":    strconv.FormatInt(window, 10),
		})
	}
	return true, nil
}

// Start runs RunOnce every interval until ctx is done. A panic in one run is
// logged and does not stop the loop.
func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	slog.Info("reminder checker started", "interval", c.interval, "windows", c.windows.Windows())
	run := panicerr.SafeContext(func(ctx context.Context) error {
		report, err := c.RunOnce(ctx)
		if report != nil && (report.Sent > 0 || report.Failed > 0) {
			slog.InfoContext(ctx, "reminder run finished", "checked", report.Checked, "sent", report.Sent, "skipped", report.Skipped, "failed", report.Failed)
		}
		return err
	})
	for {
		select {
		case <-ctx.Done():
			slog.Info("reminder checker stopped")
			return
		case <-ticker.C:
			runCtx := clog.WithAttributes(ctx, map[string]any{"job": "reminder"})
			if err := run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				slog.ErrorContext(runCtx, "reminder run failed", "error", err)
			}
		}
	}
}
