package task_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskforest/internal/task"
	"github.com/kazz187/taskforest/pkg/cerr"
)

func newRouter(t *testing.T, f *fixture) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Use(cerr.NewJSONResponseChiMiddleware())
	task.NewServer(task.NewService(f.repo, nil)).Mount(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestServer_CreateAndGet(t *testing.T) {
	f := newFixture(t)
	h := newRouter(t, f)

	rec := do(t, h, http.MethodPost, "/tasks", `{"owner":"u1","name":"write report","dueAt":"2026-01-02T00:00:00Z","penalty":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var created task.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "write report", created.Name)
	assert.Equal(t, 2.0, *created.Penalty)

	rec = do(t, h, http.MethodGet, "/tasks/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unfinishedMembers":["u1"]`)

	rec = do(t, h, http.MethodGet, "/tasks/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_PatchRejectsNonEditableField(t *testing.T) {
	f := newFixture(t)
	f.put(t, node{id: "T", members: "u1", unfinished: "u1"})
	h := newRouter(t, f)

	rec := do(t, h, http.MethodPatch, "/tasks/T", `{"owner":"u2"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"fields":["owner"]`)

	rec = do(t, h, http.MethodPatch, "/tasks/T", `{"detail":"more words","expectedDuration":900}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "more words", f.get(t, "T").Detail)
}

func TestServer_WalkEndpoints(t *testing.T) {
	f := newFixture(t)
	putForest(t, f)
	h := newRouter(t, f)

	rec := do(t, h, http.MethodPost, "/tasks/R/complete", `{"memberId":"u1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"op":"complete","startId":"R","visited":["R","A","A1","B"],"written":4}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/tasks/R/complete", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.fs.failWrite("A1", errDiskFull)
	rec = do(t, h, http.MethodPost, "/tasks/R/uncomplete", `{"memberId":"u1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "stopped at task A1")
	f.fs.clearFaults()

	rec = do(t, h, http.MethodDelete, "/tasks/A", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, task.StateDeleted, f.get(t, "A1").State)
}

func TestServer_ListMemberTasks(t *testing.T) {
	f := newFixture(t)
	putDuedForest(t, f)
	h := newRouter(t, f)

	rec := do(t, h, http.MethodGet, "/members/u1/tasks?view=leaf", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Tasks    []task.Task `json:"tasks"`
		Warnings []string    `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	var got []string
	for _, tk := range resp.Tasks {
		got = append(got, tk.ID)
	}
	assert.Equal(t, []string{"B", "X", "A1"}, got)
	assert.Empty(t, resp.Warnings)

	rec = do(t, h, http.MethodGet, "/members/u1/tasks?finished=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/members/u9/tasks?view=root&finished=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tasks":[]}`, rec.Body.String())
}
