package meeting

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/taskforest/internal/task"
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
	r.Post("/tasks/{taskID}/meetings", s.CreateMeeting)
	r.Get("/tasks/{taskID}/meetings", s.ListMeetings)
	r.Get("/meetings/{meetingID}", s.GetMeeting)
	r.Delete("/meetings/{meetingID}", s.DeleteMeeting)
}

type createMeetingRequest struct {
	Title     string         `json:"title"`
	StartTime task.Timestamp `json:"startTime"`
	Duration  int64          `json:"duration"`
}

func (s *Server) CreateMeeting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createMeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "malformed request body", err)
		return
	}
	m, err := s.service.Create(ctx, CreateParams{
		TaskID:    chi.URLParam(r, "taskID"),
		Title:     req.Title,
		StartTime: req.StartTime.Time,
		Duration:  req.Duration,
	})
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	clog.AddAttribute(ctx, "meeting_id", m.ID)
	cerr.SetJSONResponse(ctx, m)
}

func (s *Server) ListMeetings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	meetings, err := s.service.ListByTask(ctx, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if meetings == nil {
		meetings = []*Meeting{}
	}
	cerr.SetJSONResponse(ctx, map[string]any{"meetings": meetings})
}

func (s *Server) GetMeeting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, err := s.service.Get(ctx, chi.URLParam(r, "meetingID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, m)
}

func (s *Server) DeleteMeeting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.service.Delete(ctx, chi.URLParam(r, "meetingID")); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]bool{"success": true})
}
