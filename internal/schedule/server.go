package schedule

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/taskforest/pkg/cerr"
)

type Server struct {
	planner *Planner
}

func NewServer(planner *Planner) *Server {
	return &Server{planner: planner}
}

func (s *Server) Mount(r chi.Router) {
	r.Post("/members/{memberID}/schedule", s.PlanSchedule)
}

type planRequest struct {
	AlgorithmID int `json:"algorithmId"`
}

func (s *Server) PlanSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "malformed request body", err)
		return
	}
	plan, err := s.planner.Plan(ctx, chi.URLParam(r, "memberID"), req.AlgorithmID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, plan)
}
