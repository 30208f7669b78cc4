package service

import (
	"context"
	"fmt"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
)

type NotificationService interface {
	List(ctx context.Context, userID int64) ([]*models.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID int64) error
}

type notificationService struct {
	n repository.NotificationRepository
}

func NewNotificationService(n repository.NotificationRepository) NotificationService {
	return &notificationService{n: n}
}

func (s *notificationService) List(ctx context.Context, userID int64) ([]*models.Notification, error) {
	notifications, err := s.n.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting notifications")
	}
	return notifications, nil
}

func (s *notificationService) MarkRead(ctx context.Context, userID, notificationID int64) error {
	return s.n.MarkRead(ctx, notificationID, userID)
}
