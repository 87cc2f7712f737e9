package pushnotification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kazz187/taskforest/internal/pushsubscription"
	"github.com/kazz187/taskforest/internal/reminder"
)

var _ reminder.Dispatcher = (*Dispatcher)(nil)

// Dispatcher resolves a member to their registered devices and delivers the
// reminder to each of them.
type Dispatcher struct {
	repo    pushsubscription.Repository
	senders map[pushsubscription.Kind]Sender
}

// NewDispatcher routes each subscription kind to its sender. A nil sender
// leaves that kind unsupported.
func NewDispatcher(repo pushsubscription.Repository, webPush, expo Sender) *Dispatcher {
	senders := map[pushsubscription.Kind]Sender{}
	if webPush != nil {
		senders[pushsubscription.KindWebPush] = webPush
	}
	if expo != nil {
		senders[pushsubscription.KindExpo] = expo
	}
	return &Dispatcher{repo: repo, senders: senders}
}

// Notify succeeds when at least one device accepted the message or the member
// has no devices at all. Expired devices are removed and do not count as
// failures. The message names the reminder window when one is set, so a
// periodic reminder reads "due in 24 hours" rather than the exact remainder.
func (d *Dispatcher) Notify(ctx context.Context, n reminder.Notification) error {
	subs, err := d.repo.ListByMember(ctx, n.Destination)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		slog.DebugContext(ctx, "push notification: member has no devices", "member_id", n.Destination, "task_id", n.TaskID)
		return nil
	}
	untilDue := n.UntilDueSeconds
	if n.Window > 0 {
		untilDue = n.Window
	}
	return d.SendToSubscriptions(ctx, subs, DuePayload(n.TaskID, n.TaskName, untilDue))
}

func (d *Dispatcher) SendToMember(ctx context.Context, memberID string, payload *NotificationPayload) error {
	subs, err := d.repo.ListByMember(ctx, memberID)
	if err != nil {
		return err
	}
	return d.SendToSubscriptions(ctx, subs, payload)
}

func (d *Dispatcher) SendToSubscriptions(ctx context.Context, subs []*pushsubscription.Subscription, payload *NotificationPayload) error {
	var (
		delivered int
		errs      []error
	)
	for _, sub := range subs {
		sender, ok := d.senders[sub.Kind]
		if !ok {
			errs = append(errs, fmt.Errorf("subscription %s: unsupported kind %q", sub.ID, sub.Kind))
			continue
		}
		err := sender.Send(ctx, sub, payload)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ErrSubscriptionGone):
		default:
			slog.WarnContext(ctx, "push notification: delivery failed", "subscription_id", sub.ID, "kind", string(sub.Kind), "error", err)
			errs = append(errs, err)
		}
	}
	if delivered > 0 || len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
