package eventlog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kazz187/taskforest/internal/eventbus"
	"github.com/kazz187/taskforest/pkg/cerr"
	"github.com/kazz187/taskforest/pkg/storage"
)

const journalPrefix = "events"

// Journal appends every domain event to one NDJSON object per UTC day, giving
// an audit trail of completions, joins and deletions.
type Journal struct {
	storage storage.Storage
	mu      sync.Mutex
}

func NewJournal(s storage.Storage) *Journal {
	return &Journal{storage: s}
}

func journalPath(day time.Time) string {
	return fmt.Sprintf("%s/%s.ndjson", journalPrefix, day.UTC().Format(time.DateOnly))
}

// Append adds ev to the journal of the day it was created.
func (j *Journal) Append(ctx context.Context, ev *eventbus.Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	path := journalPath(ev.CreatedAt)
	data, err := j.storage.Read(ctx, path)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return cerr.WrapStorageReadError("event journal", err)
	}
	data = append(data, line...)
	data = append(data, '\n')
	if err := j.storage.Write(ctx, path, data); err != nil {
		return cerr.WrapStorageWriteError("event journal", err)
	}
	return nil
}

// Read returns the events journaled on day, oldest first. An empty type
// matches every event. Undecodable lines are skipped.
func (j *Journal) Read(ctx context.Context, day time.Time, eventType eventbus.EventType) ([]*eventbus.Event, error) {
	data, err := j.storage.Read(ctx, journalPath(day))
	if errors.Is(err, storage.ErrNotFound) {
		return []*eventbus.Event{}, nil
	}
	if err != nil {
		return nil, cerr.WrapStorageReadError("event journal", err)
	}

	events := []*eventbus.Event{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev eventbus.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			slog.WarnContext(ctx, "event journal: skipping malformed line", "day", day.Format(time.DateOnly), "error", err)
			continue
		}
		if eventType != "" && ev.Type != eventType {
			continue
		}
		events = append(events, &ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("scan event journal: %w", err))
	}
	return events, nil
}

// Start journals every published event until ctx is done.
func (j *Journal) Start(ctx context.Context, eventBus *eventbus.Bus) {
	subID, ch := eventBus.Subscribe(256)
	defer eventBus.Unsubscribe(subID)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := j.Append(ctx, ev); err != nil {
				slog.Error("event journal: failed to append", "event_id", ev.ID, "type", string(ev.Type), "error", err)
			}
		}
	}
}
