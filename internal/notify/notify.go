package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
)

// Notifier informs account owners about events that need their attention.
type Notifier interface {
	AccountDisconnected(ctx context.Context, userID int64, acc *models.SocialAccount, reason string)
	PostFailed(ctx context.Context, userID int64, post *models.Post)
}

type notifier struct {
	notifications repository.NotificationRepository
}

func New(notifications repository.NotificationRepository) Notifier {
	return &notifier{notifications: notifications}
}

func (n *notifier) AccountDisconnected(ctx context.Context, userID int64, acc *models.SocialAccount, reason string) {
	message := fmt.Sprintf("Your %s account %s was disconnected and needs to be reconnected: %s",
		acc.Platform, acc.AccountUsername, reason)

	_, err := n.notifications.Create(ctx, &models.Notification{
		UserID:  userID,
		Kind:    models.NotificationAccountDisconnected,
		Title:   "Social account disconnected",
		Message: message,
	})
	if err != nil {
		slog.Info(err.Error())
	}

	slog.Info("account disconnected",
		slog.Int64("account_id", acc.ID),
		slog.String("platform", acc.Platform),
		slog.String("reason", reason))
}

func (n *notifier) PostFailed(ctx context.Context, userID int64, post *models.Post) {
	message := fmt.Sprintf("Your post %q could not be published to any platform.", post.Caption)

	_, err := n.notifications.Create(ctx, &models.Notification{
		UserID:  userID,
		Kind:    models.NotificationPostFailed,
		Title:   "Post failed to publish",
		Message: message,
	})
	if err != nil {
		slog.Info(err.Error())
	}
}
