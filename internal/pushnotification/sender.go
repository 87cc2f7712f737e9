package pushnotification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/kazz187/taskforest/internal/config"
	"github.com/kazz187/taskforest/internal/pushsubscription"
)

// ErrNotConfigured is returned when a channel has no credentials.
var ErrNotConfigured = errors.New("push channel not configured")

// ErrSubscriptionGone means the device unsubscribed; the subscription has been
// removed.
var ErrSubscriptionGone = errors.New("push subscription expired")

type NotificationPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	URL   string            `json:"url,omitempty"`
	Tag   string            `json:"tag,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

// DuePayload builds the reminder message for a task due in untilDue seconds.
// Hours are rounded to one decimal place.
func DuePayload(taskID, taskName string, untilDue int64) *NotificationPayload {
	hours := strconv.FormatFloat(math.Round(float64(untilDue)/360)/10, 'f', -1, 64)
	return &NotificationPayload{
		Title: "⏰Task Due Soon",
		Body:  fmt.Sprintf("Your task %q is due in %s hours!", taskName, hours),
		URL:   "/tasks/" + taskID,
		Tag:   taskID,
		Data:  map[string]string{"taskId": taskID},
	}
}

func TestPayload() *NotificationPayload {
	return &NotificationPayload{
		Title: "📆 Test Notification",
		Body:  "This is a test push notification from taskforest!",
		Data:  map[string]string{"test": "true"},
	}
}

// Sender delivers to a single subscription.
type Sender interface {
	Send(ctx context.Context, sub *pushsubscription.Subscription, payload *NotificationPayload) error
}

type WebPushSender struct {
	vapidEnv *config.VAPIDEnv
	repo     pushsubscription.Repository
	client   webpush.HTTPClient
}

func NewWebPushSender(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository) *WebPushSender {
	return &WebPushSender{
		vapidEnv: vapidEnv,
		repo:     repo,
	}
}

func (s *WebPushSender) Send(ctx context.Context, sub *pushsubscription.Subscription, payload *NotificationPayload) error {
	if s.vapidEnv.VAPIDPrivateKey == "" || s.vapidEnv.VAPIDPublicKey == "" {
		return fmt.Errorf("web push: %w: VAPID keys missing", ErrNotConfigured)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("web push: marshal payload: %w", err)
	}

	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}
	resp, err := webpush.SendNotificationWithContext(ctx, data, wpSub, &webpush.Options{
		HTTPClient:      s.client,
		VAPIDPublicKey:  s.vapidEnv.VAPIDPublicKey,
		VAPIDPrivateKey: s.vapidEnv.VAPIDPrivateKey,
		Subscriber:      s.vapidEnv.VAPIDContact,
		TTL:             86400,
	})
	if err != nil {
		return fmt.Errorf("web push: send to %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		slog.Info("push notification: subscription expired, removing", "endpoint", sub.Endpoint)
		if err := s.repo.Delete(ctx, sub.ID); err != nil {
			slog.Error("push notification: failed to delete expired subscription", "id", sub.ID, "error", err)
		}
		return ErrSubscriptionGone
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("web push: unexpected status %d from %s", resp.StatusCode, sub.Endpoint)
	}
	return nil
}
