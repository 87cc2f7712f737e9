package internal

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kazz187/taskforest/internal/config"
	"github.com/kazz187/taskforest/internal/eventlog"
	"github.com/kazz187/taskforest/internal/meeting"
	"github.com/kazz187/taskforest/internal/pushnotification"
	"github.com/kazz187/taskforest/internal/reminder"
	"github.com/kazz187/taskforest/internal/schedule"
	"github.com/kazz187/taskforest/internal/task"
	"github.com/kazz187/taskforest/pkg/cerr"
	"github.com/kazz187/taskforest/pkg/clog"
)

type Server struct {
	server                 *http.Server
	env                    *config.Env
	taskServer             *task.Server
	meetingServer          *meeting.Server
	scheduleServer         *schedule.Server
	reminderServer         *reminder.Server
	pushNotificationServer *pushnotification.Server
	eventLogServer         *eventlog.Server
}

func NewServer(
	env *config.Env,
	taskServer *task.Server,
	meetingServer *meeting.Server,
	scheduleServer *schedule.Server,
	reminderServer *reminder.Server,
	pushNotificationServer *pushnotification.Server,
	eventLogServer *eventlog.Server,
) *Server {
	return &Server{
		env:                    env,
		taskServer:             taskServer,
		meetingServer:          meetingServer,
		scheduleServer:         scheduleServer,
		reminderServer:         reminderServer,
		pushNotificationServer: pushNotificationServer,
		eventLogServer:         eventLogServer,
	}
}

// Handler builds the full handler chain: the JSON API under /api, plain and
// gRPC health checks, CORS, API key auth and h2c.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			middleware.RequestID,
			clog.SlogChiMiddleware(),
			middleware.Recoverer,
			cerr.NewJSONResponseChiMiddleware(),
		)
		s.taskServer.Mount(r)
		s.meetingServer.Mount(r)
		s.scheduleServer.Mount(r)
		s.reminderServer.Mount(r)
		s.pushNotificationServer.Mount(r)
		s.eventLogServer.Mount(r)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", r)
	mux.Handle(grpchealth.NewHandler(
		grpchealth.NewStaticChecker(),
		connect.WithInterceptors(s.interceptors()...),
	))

	return h2c.NewHandler(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.apiKeyMiddleware(mux)), &http2.Server{})
}

// ListenAndServe starts the HTTP server. ctx becomes the base context of
// every request, so cancelling it cancels in-flight requests on shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) interceptors() []connect.Interceptor {
	return []connect.Interceptor{
		clog.NewSlogConnectInterceptor(clog.WithConnectFilter(clog.DefaultConnectHealthCheckUnaryFilter)),
		cerr.NewConvertConnectErrorInterceptor(),
	}
}

// apiKeyMiddleware is a no-op when no API key is configured.
func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.env.APIKey == "" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		// Skip API key check for health endpoints.
		if r.URL.Path == "/health" || r.URL.Path == "/grpc.health.v1.Health/Check" {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.env.APIKey)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
