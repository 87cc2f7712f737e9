package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
	"github.com/kazz187/taskforest/pkg/storage"
)

type nopDispatcher struct{}

func (nopDispatcher) Notify(context.Context, reminder.Notification) error { return nil }

func newTestHandler(t *testing.T, apiKey string) http.Handler {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	env := &config.Env{BaseEnv: config.BaseEnv{APIKey: apiKey}}
	bus := eventbus.New()
	pushSubRepo := pushsubrepo.NewYAMLRepository(store)
	taskService := task.NewService(taskrepo.NewYAMLRepository(store), bus)
	meetingService := meeting.NewService(meetingrepo.NewYAMLRepository(store), taskService, bus)

	windows, err := reminder.NewWindowSource([]int64{3600})
	require.NoError(t, err)
	checker := reminder.NewChecker(taskService, windows, reminder.NewSentLog(store), nopDispatcher{})

	dispatcher := pushnotification.NewDispatcher(pushSubRepo, nil, nil)
	srv := NewServer(
		env,
		task.NewServer(taskService),
		meeting.NewServer(meetingService),
		schedule.NewServer(schedule.NewPlanner(taskService.Leaves(), nil)),
		reminder.NewServer(checker),
		pushnotification.NewServer(config.VAPIDEnvFromEnv(env), pushSubRepo, dispatcher, nil),
		eventlog.NewServer(eventlog.NewJournal(store)),
	)
	return srv.Handler()
}

func do(h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	h := newTestHandler(t, "secret")
	rec := do(h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_APIKey(t *testing.T) {
	h := newTestHandler(t, "secret")

	rec := do(h, http.MethodGet, "/api/members/u1/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, http.MethodGet, "/api/members/u1/tasks", "", map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, http.MethodGet, "/api/members/u1/tasks", "", map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(h, http.MethodGet, "/api/members/u1/tasks", "", map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestServer_TaskFlow(t *testing.T) {
	h := newTestHandler(t, "")

	rec := do(h, http.MethodPost, "/api/tasks", `{"owner":"u1","name":"root","dueAt":"2026-01-01T09:00:00Z"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var root task.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &root))
	require.NotEmpty(t, root.ID)

	rec = do(h, http.MethodPost, "/api/tasks", `{"owner":"u1","name":"child","parent":"`+root.ID+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(h, http.MethodGet, "/api/tasks/"+root.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got task.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got.Children, 1)

	rec = do(h, http.MethodGet, "/api/tasks/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, http.MethodPost, "/api/tasks", `{"owner":"","name":"x"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_UnknownRoute(t *testing.T) {
	h := newTestHandler(t, "")
	rec := do(h, http.MethodGet, "/api/nothing-here", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body["code"])
}
