package eventlog

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/taskforest/internal/eventbus"
	"github.com/kazz187/taskforest/pkg/cerr"
)

type Server struct {
	journal *Journal
}

func NewServer(journal *Journal) *Server {
	return &Server{journal: journal}
}

func (s *Server) Mount(r chi.Router) {
	r.Get("/events", s.ListEvents)
}

// ListEvents serves ?date=YYYY-MM-DD (default today, UTC) and optional
// ?type= and ?resourceId= filters.
func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	day := time.Now().UTC()
	if v := q.Get("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			cerr.SetJSONError(ctx, cerr.NewInvalidFieldError("date", "must be YYYY-MM-DD"))
			return
		}
		day = d
	}
	events, err := s.journal.Read(ctx, day, eventbus.EventType(q.Get("type")))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if resourceID := q.Get("resourceId"); resourceID != "" {
		filtered := []*eventbus.Event{}
		for _, ev := range events {
			if ev.ResourceID == resourceID {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	cerr.SetJSONResponse(ctx, map[string]any{"events": events})
}
