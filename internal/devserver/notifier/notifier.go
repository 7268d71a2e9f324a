package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/taskbell/internal/apperrors"
	"github.com/nkiryanov/taskbell/internal/logger"
	"github.com/nkiryanov/taskbell/internal/models"
)

const DefaultTopicPrefix = "/topic/notifications/"

type notificationRepo interface {
	Create(ctx context.Context, recipient uuid.UUID, title string, content string) (models.Notification, error)
	ListByRecipient(ctx context.Context, recipient uuid.UUID) ([]models.Notification, error)
	MarkRead(ctx context.Context, id models.ID) error
	MarkAllRead(ctx context.Context, recipient uuid.UUID) (int, error)
}

// Publisher delivers a payload to subscribers of the destination
type Publisher interface {
	Publish(ctx context.Context, destination string, payload []byte) error
}

type Service struct {
	repo      notificationRepo
	publisher Publisher
	logger    logger.Logger
}

func NewService(repo notificationRepo, publisher Publisher, l logger.Logger) *Service {
	return &Service{repo: repo, publisher: publisher, logger: l}
}

// Notify stores the notification and pushes it to the user's topic.
// A failed push is logged only: the notification is still listed on the next fetch
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, title string, content string) (models.Notification, error) {
	n, err := s.repo.Create(ctx, userID, title, content)
	if err != nil {
		return n, fmt.Errorf("save notification: %w", err)
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return n, fmt.Errorf("encode notification: %w", err)
	}

	if err := s.publisher.Publish(ctx, DefaultTopicPrefix+userID.String(), payload); err != nil {
		s.logger.Warn("Failed to push notification", "user_id", userID, "id", n.ID, "error", err)
		return n, nil
	}

	s.logger.Debug("Notification pushed", "user_id", userID, "id", n.ID)
	return n, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.Notification, error) {
	return s.repo.ListByRecipient(ctx, userID)
}

// MarkRead ignores unknown ids
func (s *Service) MarkRead(ctx context.Context, id models.ID) error {
	err := s.repo.MarkRead(ctx, id)
	if errors.Is(err, apperrors.ErrNotificationNotFound) {
		s.logger.Debug("Mark read of unknown notification", "id", id)
		return nil
	}
	return err
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	changed, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return err
	}
	s.logger.Debug("Marked all read", "user_id", userID, "changed", changed)
	return nil
}
