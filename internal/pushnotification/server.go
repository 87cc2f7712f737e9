package pushnotification

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/kazz187/taskforest/internal/config"
	"github.com/kazz187/taskforest/internal/pushsubscription"
	"github.com/kazz187/taskforest/pkg/cerr"
	"github.com/kazz187/taskforest/pkg/clog"
)

type Server struct {
	vapidEnv   *config.VAPIDEnv
	repo       pushsubscription.Repository
	dispatcher *Dispatcher
	expo       *ExpoSender
}

func NewServer(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository, dispatcher *Dispatcher, expo *ExpoSender) *Server {
	return &Server{
		vapidEnv:   vapidEnv,
		repo:       repo,
		dispatcher: dispatcher,
		expo:       expo,
	}
}

func (s *Server) Mount(r chi.Router) {
	r.Get("/vapid-public-key", s.GetVapidPublicKey)
	r.Post("/members/{memberID}/push-subscriptions", s.RegisterPushSubscription)
	r.Get("/members/{memberID}/push-subscriptions", s.ListPushSubscriptions)
	r.Post("/push-subscriptions/unregister", s.UnregisterPushSubscription)
	r.Post("/test-notification", s.SendTestNotification)
	r.Post("/due-notification", s.SendDueNotification)
}

func (s *Server) GetVapidPublicKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.vapidEnv.VAPIDPublicKey == "" {
		cerr.SetNewJSONError(ctx, cerr.FailedPrecondition, "VAPID keys not configured", nil)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]string{"publicKey": s.vapidEnv.VAPIDPublicKey})
}

type registerRequest struct {
	Kind      pushsubscription.Kind `json:"kind"`
	Endpoint  string                `json:"endpoint"`
	P256dhKey string                `json:"p256dhKey"`
	AuthKey   string                `json:"authKey"`
	ExpoToken string                `json:"expoToken"`
}

func (req *registerRequest) validate() error {
	switch req.Kind {
	case pushsubscription.KindWebPush:
		if req.Endpoint == "" {
			return cerr.NewInvalidFieldError("endpoint", "endpoint is required")
		}
		if req.P256dhKey == "" {
			return cerr.NewInvalidFieldError("p256dhKey", "p256dh key is required")
		}
		if req.AuthKey == "" {
			return cerr.NewInvalidFieldError("authKey", "auth key is required")
		}
	case pushsubscription.KindExpo:
		if req.ExpoToken == "" {
			return cerr.NewInvalidFieldError("expoToken", "expo token is required")
		}
	default:
		return cerr.NewInvalidFieldError("kind", "must be webpush or expo")
	}
	return nil
}

func (s *Server) RegisterPushSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	memberID := chi.URLParam(r, "memberID")
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "malformed request body", err)
		return
	}
	if req.Kind == "" && req.ExpoToken != "" {
		req.Kind = pushsubscription.KindExpo
	}
	if req.Kind == "" {
		req.Kind = pushsubscription.KindWebPush
	}
	if err := req.validate(); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	sub := &pushsubscription.Subscription{
		MemberID:  memberID,
		Kind:      req.Kind,
		Endpoint:  req.Endpoint,
		P256dhKey: req.P256dhKey,
		AuthKey:   req.AuthKey,
		ExpoToken: req.ExpoToken,
	}

	// Idempotent: re-registering a device moves it to this member and
	// refreshes its keys.
	if existing, err := s.repo.FindByDestination(ctx, sub.Destination()); err == nil {
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
		if err := s.repo.Update(ctx, sub); err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		cerr.SetJSONResponse(ctx, sub)
		return
	} else if !cerr.IsCode(err, cerr.NotFound) {
		cerr.SetJSONError(ctx, err)
		return
	}

	sub.ID = ulid.Make().String()
	sub.CreatedAt = time.Now()
	if err := s.repo.Create(ctx, sub); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	clog.AddAttribute(ctx, "subscription_id", sub.ID)
	cerr.SetJSONResponse(ctx, sub)
}

func (s *Server) ListPushSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subs, err := s.repo.ListByMember(ctx, chi.URLParam(r, "memberID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if subs == nil {
		subs = []*pushsubscription.Subscription{}
	}
	cerr.SetJSONResponse(ctx, subs)
}

type unregisterRequest struct {
	Endpoint  string `json:"endpoint"`
	ExpoToken string `json:"expoToken"`
}

func (s *Server) UnregisterPushSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req unregisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "malformed request body", err)
		return
	}
	destination := req.Endpoint
	if destination == "" {
		destination = req.ExpoToken
	}
	if destination == "" {
		cerr.SetJSONError(ctx, cerr.NewInvalidFieldError("endpoint", "endpoint or expoToken is required"))
		return
	}
	if err := s.repo.DeleteByDestination(ctx, destination); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]bool{"success": true})
}

type directRequest struct {
	Token    string `json:"token"`
	MemberID string `json:"memberId"`
	UntilDue int64  `json:"until_due"`
	TaskName string `json:"task_name"`
	TaskID   string `json:"taskId"`
}

func (s *Server) send(w http.ResponseWriter, r *http.Request, build func(req *directRequest) *NotificationPayload) {
	ctx := r.Context()
	var req directRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "malformed request body", err)
		return
	}
	payload := build(&req)
	switch {
	case req.Token != "":
		ticket, err := s.expo.SendToToken(ctx, req.Token, payload)
		if err != nil {
			cerr.SetNewJSONError(ctx, cerr.Unavailable, "failed to send push notification", err)
			return
		}
		cerr.SetJSONResponse(ctx, map[string]any{"success": true, "result": ticket})
	case req.MemberID != "":
		if err := s.dispatcher.SendToMember(ctx, req.MemberID, payload); err != nil {
			cerr.SetNewJSONError(ctx, cerr.Unavailable, "failed to send push notification", err)
			return
		}
		cerr.SetJSONResponse(ctx, map[string]any{"success": true})
	default:
		cerr.SetJSONError(ctx, cerr.NewInvalidFieldError("token", "missing push token"))
	}
}

func (s *Server) SendTestNotification(w http.ResponseWriter, r *http.Request) {
	s.send(w, r, func(*directRequest) *NotificationPayload {
		return TestPayload()
	})
}

func (s *Server) SendDueNotification(w http.ResponseWriter, r *http.Request) {
	s.send(w, r, func(req *directRequest) *NotificationPayload {
		return DuePayload(req.TaskID, req.TaskName, req.UntilDue)
	})
}
