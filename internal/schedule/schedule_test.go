package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskforest/internal/task"
	"github.com/kazz187/taskforest/pkg/cerr"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

func sampleTasks() []*task.Task {
	return []*task.Task{
		{ID: "a", Name: "draft", DueAt: now.Add(2 * time.Hour), Penalty: ptr(5), ExpectedDuration: ptr(1800)},
		{ID: "b", Name: "review", DueAt: now.Add(-time.Hour)},
		{ID: "c", Name: "ship", DueAt: now.Add(24 * time.Hour), Penalty: ptr(0)},
	}
}

func TestBuildRequest_ParallelVectors(t *testing.T) {
	req := BuildRequest(sampleTasks(), now, 2)

	assert.Equal(t, []string{"a", "b", "c"}, req.TaskIDs)
	assert.Equal(t, []float64{1800, DefaultExpectedDuration, DefaultExpectedDuration}, req.ExpectedDuration)
	assert.Equal(t, []float64{5, 0, 0}, req.Penalty)
	assert.Equal(t, []int64{7200, -3600, 86400}, req.SecondsUntilDue)
	assert.Equal(t, 2, req.AlgorithmID)

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"expectedDuration":[1800,3600,3600],"penalty":[5,0,0],"secondsUntilDue":[7200,-3600,86400],"taskIds":["a","b","c"],"algorithmId":2}`, string(data))
}

func TestBuildRequest_Empty(t *testing.T) {
	req := BuildRequest(nil, now, 0)
	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"expectedDuration":[],"penalty":[],"secondsUntilDue":[],"taskIds":[],"algorithmId":0}`, string(data))
}

func TestMapResult(t *testing.T) {
	req := BuildRequest(sampleTasks(), now, 0)
	one := 1
	items, err := req.MapResult([]ResultEntry{
		{TaskID: "c", StartOffset: 0, Duration: 3600},
		{Index: &one, StartOffset: 3600, Duration: 3600},
	}, map[string]string{"c": "ship"})
	require.NoError(t, err)
	assert.Equal(t, []ScheduledTask{
		{TaskID: "c", Name: "ship", StartOffset: 0, Duration: 3600},
		{TaskID: "b", StartOffset: 3600, Duration: 3600},
	}, items)

	_, err = req.MapResult([]ResultEntry{{TaskID: "zzz"}}, nil)
	assert.True(t, cerr.IsCode(err, cerr.Internal))

	nine := 9
	_, err = req.MapResult([]ResultEntry{{Index: &nine}}, nil)
	assert.True(t, cerr.IsCode(err, cerr.Internal))

	_, err = req.MapResult([]ResultEntry{{StartOffset: 1}}, nil)
	assert.Error(t, err)
}

func TestHTTPOptimizer(t *testing.T) {
	var gotID string
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Request-Id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		if gotReq.AlgorithmID == 9 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":"unknown algorithm"}`))
			return
		}
		_, _ = w.Write([]byte(`[{"taskId":"c","startOffset":0,"duration":3600},{"taskId":"a","startOffset":3600,"duration":1800}]`))
	}))
	defer srv.Close()

	o := NewHTTPOptimizer(srv.URL, time.Second)
	entries, err := o.Optimize(context.Background(), BuildRequest(sampleTasks(), now, 1))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].TaskID)
	assert.Equal(t, []string{"a", "b", "c"}, gotReq.TaskIDs)
	_, err = uuid.Parse(gotID)
	assert.NoError(t, err)

	_, err = o.Optimize(context.Background(), BuildRequest(sampleTasks(), now, 9))
	var oe *OptimizerError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, http.StatusUnprocessableEntity, oe.StatusCode)
	assert.Equal(t, "unknown algorithm", oe.Message)
}

type fakeLeaves struct {
	tasks []*task.Task
	err   error
}

func (f fakeLeaves) LeafTasksFor(context.Context, string) ([]*task.Task, error) {
	return f.tasks, f.err
}

type fakeOptimizer struct {
	calls int
	err   error
}

func (f *fakeOptimizer) Optimize(_ context.Context, req *Request) ([]ResultEntry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	// reverse order
	out := make([]ResultEntry, 0, req.Len())
	var offset float64
	for i := req.Len() - 1; i >= 0; i-- {
		idx := i
		out = append(out, ResultEntry{Index: &idx, StartOffset: offset, Duration: req.ExpectedDuration[i]})
		offset += req.ExpectedDuration[i]
	}
	return out, nil
}

func TestPlanner_Plan(t *testing.T) {
	opt := &fakeOptimizer{}
	p := NewPlanner(fakeLeaves{tasks: sampleTasks()}, opt)
	p.now = func() time.Time { return now }

	plan, err := p.Plan(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, plan.Items, 3)
	assert.Equal(t, "c", plan.Items[0].TaskID)
	assert.Equal(t, "ship", plan.Items[0].Name)
	assert.Equal(t, 7200.0, plan.Items[2].StartOffset)
}

func TestPlanner_NoTasksSkipsOptimizer(t *testing.T) {
	opt := &fakeOptimizer{}
	plan, err := NewPlanner(fakeLeaves{}, opt).Plan(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, plan.Items)
	assert.Equal(t, 0, opt.calls)
}

func TestPlanner_OptimizerFailureIsUnavailable(t *testing.T) {
	opt := &fakeOptimizer{err: errors.New("connection refused")}
	_, err := NewPlanner(fakeLeaves{tasks: sampleTasks()}, opt).Plan(context.Background(), "u1", 0)
	assert.True(t, cerr.IsCode(err, cerr.Unavailable))

	_, err = NewPlanner(fakeLeaves{tasks: sampleTasks()}, nil).Plan(context.Background(), "u1", 0)
	assert.True(t, cerr.IsCode(err, cerr.Unavailable))
}

func TestPlanner_KeepsPartialWarnings(t *testing.T) {
	partial := &task.PartialResultError{Warnings: []task.FetchWarning{{TaskID: "a", ChildID: "x", Err: errors.New("timeout")}}}
	plan, err := NewPlanner(fakeLeaves{tasks: sampleTasks()[:1], err: partial}, &fakeOptimizer{}).Plan(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Len(t, plan.Items, 1)
	assert.Equal(t, []string{"task a child x: timeout"}, plan.Warnings)
}

func TestServer_PlanSchedule(t *testing.T) {
	r := chi.NewRouter()
	r.Use(cerr.NewJSONResponseChiMiddleware())
	p := NewPlanner(fakeLeaves{tasks: sampleTasks()[:1]}, &fakeOptimizer{})
	NewServer(p).Mount(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/members/u1/schedule", strings.NewReader(`{"algorithmId":3}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"memberId":"u1","algorithmId":3,"items":[{"taskId":"a","name":"draft","startOffset":0,"duration":1800}]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/members/u1/schedule", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
