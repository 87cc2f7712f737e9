package reminder

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/taskforest/internal/task"
	"github.com/kazz187/taskforest/pkg/cerr"
)

type Server struct {
	checker *Checker
}

func NewServer(checker *Checker) *Server {
	return &Server{checker: checker}
}

func (s *Server) Mount(r chi.Router) {
	r.Get("/reminders/due", s.ListDue)
	r.Post("/reminders/run", s.Run)
}

type dueTask struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	DueAt             task.Timestamp `json:"dueAt"`
	UntilDue          int64          `json:"untilDue"`
	UnfinishedMembers []string       `json:"unfinishedMembers"`
}

type dueWindow struct {
	Window int64     `json:"window"`
	Tasks  []dueTask `json:"tasks"`
}

// ParseWindows reads a comma separated list of window lengths in seconds.
func ParseWindows(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var windows []int64
	for _, part := range strings.Split(raw, ",") {
		w, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, cerr.NewInvalidFieldError("windows", "must be a comma separated list of seconds")
		}
		windows = append(windows, w)
	}
	return NormalizeWindows(windows)
}

// ListDue groups Active tasks by due window without sending anything.
func (s *Server) ListDue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	windows, err := ParseWindows(r.URL.Query().Get("windows"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	now := s.checker.Now()
	buckets, err := s.checker.Due(ctx, windows)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	resp := make([]dueWindow, 0, len(buckets))
	for _, window := range buckets.Windows() {
		dw := dueWindow{Window: window, Tasks: []dueTask{}}
		for _, t := range buckets[window] {
			dw.Tasks = append(dw.Tasks, dueTask{
				ID:                t.ID,
				Name:              t.Name,
				DueAt:             task.Timestamp{Time: t.DueAt},
				UntilDue:          UntilDue(t, now),
				UnfinishedMembers: t.UnfinishedMembers,
			})
		}
		resp = append(resp, dw)
	}
	cerr.SetJSONResponse(ctx, map[string]any{"windows": resp})
}

// Run sends the reminders that are due now.
func (s *Server) Run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := s.checker.RunOnce(ctx)
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.Unavailable, "reminder delivery failed", err)
		return
	}
	cerr.SetJSONResponse(ctx, report)
}
