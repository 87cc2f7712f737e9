package eventlog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskforest/internal/eventbus"
	"github.com/kazz187/taskforest/pkg/cerr"
	"github.com/kazz187/taskforest/pkg/storage"
)

var day = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func newJournal(t *testing.T) (*Journal, storage.Storage) {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewJournal(s), s
}

func TestJournal_AppendAndRead(t *testing.T) {
	ctx := context.Background()
	j, s := newJournal(t)

	events := []*eventbus.Event{
		{ID: "1", Type: eventbus.EventTaskCreated, ResourceID: "t1", CreatedAt: day},
		{ID: "2", Type: eventbus.EventTaskCompleted, ResourceID: "t1", Metadata: map[string]string{"member_id": "u1"}, CreatedAt: day.Add(time.Hour)},
		{ID: "3", Type: eventbus.EventTaskCreated, ResourceID: "t2", CreatedAt: day.Add(24 * time.Hour)},
	}
	for _, ev := range events {
		require.NoError(t, j.Append(ctx, ev))
	}

	got, err := j.Read(ctx, day, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "u1", got[1].Metadata["member_id"])

	got, err = j.Read(ctx, day, eventbus.EventTaskCompleted)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)

	got, err = j.Read(ctx, day.AddDate(0, 0, 5), "")
	require.NoError(t, err)
	assert.Empty(t, got)

	// a corrupt line does not hide the rest of the day
	data, err := s.Read(ctx, journalPath(day))
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, journalPath(day), append([]byte("{not json\n"), data...)))
	got, err = j.Read(ctx, day, "")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestJournal_Start(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	j, _ := newJournal(t)
	bus := eventbus.New()

	done := make(chan struct{})
	go func() {
		j.Start(ctx, bus)
		close(done)
	}()

	require.Eventually(t, func() bool {
		bus.Publish(&eventbus.Event{ID: "x", Type: eventbus.EventTaskJoined, ResourceID: "t1", CreatedAt: day})
		got, err := j.Read(context.Background(), day, eventbus.EventTaskJoined)
		return err == nil && len(got) > 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}

func TestServer_ListEvents(t *testing.T) {
	ctx := context.Background()
	j, _ := newJournal(t)
	require.NoError(t, j.Append(ctx, &eventbus.Event{ID: "1", Type: eventbus.EventTaskCreated, ResourceID: "t1", CreatedAt: day}))
	require.NoError(t, j.Append(ctx, &eventbus.Event{ID: "2", Type: eventbus.EventTaskCreated, ResourceID: "t2", CreatedAt: day}))

	r := chi.NewRouter()
	r.Use(cerr.NewJSONResponseChiMiddleware())
	NewServer(j).Mount(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events?date=2026-04-01&resourceId=t2", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Events []eventbus.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, "2", body.Events[0].ID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events?date=April", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
