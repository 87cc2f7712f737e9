package task

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/taskforest/pkg/cerr"
	"github.com/kazz187/taskforest/pkg/clog"
)

type Server struct {
	service *Service
}

func NewServer(service *Service) *Server {
	return &Server{service: service}
}

func (s *Server) Mount(r chi.Router) {
	r.Post("/tasks", s.CreateTask)
	r.Route("/tasks/{taskID}", func(r chi.Router) {
		r.Get("/", s.GetTask)
		r.Patch("/", s.UpdateTask)
		r.Delete("/", s.DeleteTask)
		r.Get("/tree", s.GetTaskTree)
		r.Post("/complete", s.CompleteTask)
		r.Post("/uncomplete", s.UncompleteTask)
		r.Post("/join", s.JoinTask)
	})
	r.Get("/members/{memberID}/tasks", s.ListMemberTasks)
}

type createTaskRequest struct {
	Owner            string    `json:"owner"`
	Name             string    `json:"name"`
	Detail           string    `json:"detail"`
	DueAt            Timestamp `json:"dueAt"`
	Parent           string    `json:"parent"`
	Penalty          *float64  `json:"penalty"`
	ExpectedDuration *float64  `json:"expectedDuration"`
}

type memberRequest struct {
	MemberID string `json:"memberId"`
}

type walkResponse struct {
	Op      Op       `json:"op"`
	StartID string   `json:"startId"`
	Visited []string `json:"visited"`
	Written int      `json:"written"`
	Skipped []string `json:"skipped,omitempty"`
}

type listTasksResponse struct {
	Tasks    []*Task  `json:"tasks"`
	Warnings []string `json:"warnings,omitempty"`
}

type treeNodeResponse struct {
	*Task
	Depth int `json:"depth"`
}

func newWalkResponse(res *WalkResult) *walkResponse {
	return &walkResponse{
		Op:      res.Op,
		StartID: res.StartID,
		Visited: res.Visited,
		Written: res.Written,
		Skipped: res.Skipped,
	}
}

func (s *Server) CreateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "malformed request body", err)
		return
	}
	t, err := s.service.Create(ctx, CreateParams{
		Owner:            req.Owner,
		Name:             req.Name,
		Detail:           req.Detail,
		DueAt:            req.DueAt.Time,
		Parent:           req.Parent,
		Penalty:          req.Penalty,
		ExpectedDuration: req.ExpectedDuration,
	})
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	clog.AddAttribute(ctx, "task_id", t.ID)
	cerr.SetJSONResponse(ctx, t)
}

func (s *Server) GetTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.service.Get(ctx, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, t)
}

func (s *Server) UpdateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "malformed request body", err)
		return
	}
	patch, err := ParsePatch(raw)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	t, err := s.service.Edit(ctx, chi.URLParam(r, "taskID"), patch)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, t)
}

func (s *Server) DeleteTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := s.service.Delete(ctx, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, newWalkResponse(res))
}

func (s *Server) CompleteTask(w http.ResponseWriter, r *http.Request) {
	s.memberWalk(w, r, s.service.Complete)
}

func (s *Server) UncompleteTask(w http.ResponseWriter, r *http.Request) {
	s.memberWalk(w, r, s.service.Uncomplete)
}

func (s *Server) JoinTask(w http.ResponseWriter, r *http.Request) {
	s.memberWalk(w, r, s.service.Join)
}

func (s *Server) memberWalk(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, taskID, memberID string) (*WalkResult, error)) {
	ctx := r.Context()
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "malformed request body", err)
		return
	}
	if req.MemberID == "" {
		cerr.SetJSONError(ctx, cerr.NewInvalidFieldError("memberId", "must not be empty"))
		return
	}
	clog.AddAttribute(ctx, "member_id", req.MemberID)
	res, err := fn(ctx, chi.URLParam(r, "taskID"), req.MemberID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, newWalkResponse(res))
}

func (s *Server) GetTaskTree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	nodes, err := s.service.Subtree(ctx, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	resp := make([]treeNodeResponse, 0, len(nodes))
	for _, n := range nodes {
		resp = append(resp, treeNodeResponse{Task: n.Task, Depth: n.Depth})
	}
	cerr.SetJSONResponse(ctx, resp)
}

func (s *Server) ListMemberTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view := View(r.URL.Query().Get("view"))
	if view == "" {
		view = ViewLeaf
	}
	var finished bool
	if v := r.URL.Query().Get("finished"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			cerr.SetJSONError(ctx, cerr.NewInvalidFieldError("finished", "must be a boolean"))
			return
		}
		finished = b
	}
	tasks, err := s.service.ListForMember(ctx, chi.URLParam(r, "memberID"), view, finished)
	resp := &listTasksResponse{Tasks: tasks}
	if pe, ok := AsPartialResult(err); ok {
		for _, warn := range pe.Warnings {
			resp.Warnings = append(resp.Warnings, "task "+warn.TaskID+" child "+warn.ChildID+": "+warn.Err.Error())
		}
		clog.AddAttribute(ctx, "partial_warnings", len(pe.Warnings))
	} else if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if resp.Tasks == nil {
		resp.Tasks = []*Task{}
	}
	cerr.SetJSONResponse(ctx, resp)
}
