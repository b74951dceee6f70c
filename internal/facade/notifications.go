package facade

import (
	"context"
	"strings"

	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/models"
	"partner-workspace/internal/persistence"

	"go.opentelemetry.io/otel/attribute"
)

// CreateNotification persists an in-app notification and then hands it to the
// notifier. Delivery failures are logged; the persisted record stands.
func (f *Facade) CreateNotification(ctx context.Context, userID, message, link string) (models.Notification, error) {
	var out models.Notification
	err := f.run(ctx, "create_notification", func(ctx context.Context) error {
		if strings.TrimSpace(message) == "" {
			return errors.NewValidationError("notification message is required")
		}
		recipient, ok := f.snapshot().User(userID)
		if !ok {
			return errors.NewEntityNotFoundError("user", userID)
		}
		rec, err := f.create(ctx, "create_notification", persistence.Notifications, models.Notification{
			UserID:  userID,
			Message: message,
			Link:    link,
		})
		if err != nil {
			return err
		}
		if out, err = decode[models.Notification](rec); err != nil {
			return err
		}
		f.deliver(ctx, recipient, out)
		return nil
	}, attribute.String("user.id", userID))
	return out, err
}

func (f *Facade) deliver(ctx context.Context, recipient models.User, n models.Notification) {
	if f.notifier == nil {
		return
	}
	if err := f.notifier.Deliver(ctx, recipient, n); err != nil {
		f.log.Warn("Notification stored but not delivered", map[string]interface{}{
			"notificationId": n.ID,
			"userId":         recipient.ID,
			"error":          err.Error(),
		})
	}
}

func (f *Facade) MarkNotificationRead(ctx context.Context, notificationID string) (models.Notification, error) {
	var out models.Notification
	err := f.run(ctx, "mark_notification_read", func(ctx context.Context) error {
		n, ok := f.snapshot().Notification(notificationID)
		if !ok {
			return errors.NewEntityNotFoundError("notification", notificationID)
		}
		if n.Read {
			out = n
			return nil
		}
		rec, err := f.update(ctx, "mark_notification_read", persistence.Notifications, notificationID, map[string]any{"read": true})
		if err != nil {
			return err
		}
		out, err = decode[models.Notification](rec)
		return err
	})
	return out, err
}

// MarkAllNotificationsRead flips every unread notification of userID and
// returns how many were updated. It stops at the first failed write.
func (f *Facade) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	var marked int
	err := f.run(ctx, "mark_all_notifications_read", func(ctx context.Context) error {
		for _, n := range f.snapshot().UnreadNotifications(userID) {
			if _, err := f.update(ctx, "mark_notification_read", persistence.Notifications, n.ID, map[string]any{"read": true}); err != nil {
				return err
			}
			marked++
		}
		return nil
	}, attribute.String("user.id", userID))
	return marked, err
}
