package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/taskforest/internal/eventbus"
	"github.com/kazz187/taskforest/internal/task"
	"github.com/kazz187/taskforest/pkg/cerr"
	"github.com/kazz187/taskforest/pkg/storage"
)

const remindersPrefix = "reminders"

type sentRecord struct {
	TaskID string             `yaml:"task_id"`
	DueAt  time.Time          `yaml:"due_at"`
	Sent   map[string][]int64 `yaml:"sent"` // member id -> windows already reminded
}

// SentLog remembers which (member, window) reminders went out for a task so a
// minutely trigger sends each one once. A record written for another due time
// is treated as empty.
type SentLog struct {
	storage storage.Storage
	mu      sync.Mutex
}

func NewSentLog(s storage.Storage) *SentLog {
	return &SentLog{storage: s}
}

func sentPath(taskID string) string {
	return fmt.Sprintf("%s/%s.yaml", remindersPrefix, taskID)
}

func (l *SentLog) read(ctx context.Context, t *task.Task) (*sentRecord, error) {
	data, err := l.storage.Read(ctx, sentPath(t.ID))
	if errors.Is(err, storage.ErrNotFound) {
		return &sentRecord{TaskID: t.ID, DueAt: t.DueAt, Sent: map[string][]int64{}}, nil
	}
	if err != nil {
		return nil, cerr.WrapStorageReadError("reminder log", err)
	}
	var rec sentRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal reminder log: %w", err))
	}
	if !rec.DueAt.Equal(t.DueAt) || rec.Sent == nil {
		return &sentRecord{TaskID: t.ID, DueAt: t.DueAt, Sent: map[string][]int64{}}, nil
	}
	return &rec, nil
}

func (l *SentLog) WasSent(ctx context.Context, t *task.Task, memberID string, window int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, err := l.read(ctx, t)
	if err != nil {
		return false, err
	}
	return slices.Contains(rec.Sent[memberID], window), nil
}

func (l *SentLog) MarkSent(ctx context.Context, t *task.Task, memberID string, window int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, err := l.read(ctx, t)
	if err != nil {
		return err
	}
	if slices.Contains(rec.Sent[memberID], window) {
		return nil
	}
	rec.Sent[memberID] = append(rec.Sent[memberID], window)
	data, err := yaml.Marshal(rec)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal reminder log: %w", err))
	}
	if err := l.storage.Write(ctx, sentPath(t.ID), data); err != nil {
		return cerr.WrapStorageWriteError("reminder log", err)
	}
	return nil
}

func (l *SentLog) Reset(ctx context.Context, taskID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.storage.Delete(ctx, sentPath(taskID))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return cerr.WrapStorageDeleteError("reminder log", err)
	}
	return nil
}

// Start drops the log of deleted tasks and of tasks whose due time moved.
func (l *SentLog) Start(ctx context.Context, eventBus *eventbus.Bus) {
	subID, ch := eventBus.Subscribe(256)
	defer eventBus.Unsubscribe(subID)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			switch {
			case event.Type == eventbus.EventTaskDeleted,
				event.Type == eventbus.EventTaskUpdated && event.Metadata["due_changed"] == "true":
				if err := l.Reset(ctx, event.ResourceID); err != nil {
					slog.Error("reminder log: failed to reset", "task_id", event.ResourceID, "error", err)
				}
			}
		}
	}
}
