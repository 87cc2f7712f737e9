package pushnotification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kazz187/taskforest/internal/config"
	"github.com/kazz187/taskforest/internal/pushsubscription"
)

type expoMessage struct {
	To    string            `json:"to"`
	Sound string            `json:"sound"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// ExpoTicket is the per-message receipt returned by the Expo push service.
type ExpoTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type expoResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// ExpoSender delivers through the Expo push service.
type ExpoSender struct {
	expoEnv *config.ExpoEnv
	repo    pushsubscription.Repository
	client  *http.Client
}

func NewExpoSender(expoEnv *config.ExpoEnv, repo pushsubscription.Repository) *ExpoSender {
	return &ExpoSender{
		expoEnv: expoEnv,
		repo:    repo,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *ExpoSender) Send(ctx context.Context, sub *pushsubscription.Subscription, payload *NotificationPayload) error {
	ticket, err := s.SendToToken(ctx, sub.ExpoToken, payload)
	if err != nil {
		return err
	}
	if ticket.Status == "error" && ticket.Details.Error == "DeviceNotRegistered" {
		slog.Info("push notification: expo token no longer registered, removing", "id", sub.ID)
		if sub.ID != "" {
			if err := s.repo.Delete(ctx, sub.ID); err != nil {
				slog.Error("push notification: failed to delete expo subscription", "id", sub.ID, "error", err)
			}
		}
		return ErrSubscriptionGone
	}
	if ticket.Status == "error" {
		return fmt.Errorf("expo push: %s", ticket.Message)
	}
	return nil
}

// SendToToken sends one message to a raw Expo push token and returns its
// ticket.
func (s *ExpoSender) SendToToken(ctx context.Context, token string, payload *NotificationPayload) (*ExpoTicket, error) {
	if token == "" {
		return nil, fmt.Errorf("expo push: empty token")
	}
	body, err := json.Marshal(expoMessage{
		To:    token,
		Sound: "default",
		Title: payload.Title,
		Body:  payload.Body,
		Data:  payload.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("expo push: marshal message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.expoEnv.ExpoPushURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("expo push: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if s.expoEnv.ExpoAccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.expoEnv.ExpoAccessToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("expo push: send: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("expo push: read response: %w", err)
	}
	var parsed expoResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("expo push: status %d: decode response: %w", resp.StatusCode, err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("expo push: status %d: %s: %s", resp.StatusCode, parsed.Errors[0].Code, parsed.Errors[0].Message)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("expo push: unexpected status %d", resp.StatusCode)
	}

	// a single message is answered with a single ticket, a batch with a list
	var ticket ExpoTicket
	if err := json.Unmarshal(parsed.Data, &ticket); err != nil {
		var tickets []ExpoTicket
		if err := json.Unmarshal(parsed.Data, &tickets); err != nil || len(tickets) == 0 {
			return nil, fmt.Errorf("expo push: unexpected ticket payload: %s", parsed.Data)
		}
		ticket = tickets[0]
	}
	return &ticket, nil
}
