package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/taskbell/internal/apperrors"
	"github.com/nkiryanov/taskbell/internal/models"
)

// Layout of notification timestamps, local date-time without zone
const TimestampLayout = "2006-01-02T15:04:05.999999"

type storedNotification struct {
	models.Notification
	recipient uuid.UUID
	createdAt time.Time
}

type NotificationRepo struct {
	mu    sync.RWMutex
	items []storedNotification
}

func NewNotificationRepo() *NotificationRepo {
	return &NotificationRepo{}
}

func (r *NotificationRepo) Create(_ context.Context, recipient uuid.UUID, title string, content string) (models.Notification, error) {
	now := time.Now()
	n := storedNotification{
		Notification: models.Notification{
			ID:        models.ID(uuid.NewString()),
			Title:     title,
			Content:   content,
			Timestamp: now.Format(TimestampLayout),
		},
		recipient: recipient,
		createdAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	return n.Notification, nil
}

// ListByRecipient returns notifications of the user, newest first
func (r *NotificationRepo) ListByRecipient(_ context.Context, recipient uuid.UUID) ([]models.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Notification, 0)
	for _, n := range slices.Backward(r.items) {
		if n.recipient == recipient {
			out = append(out, n.Notification)
		}
	}
	return out, nil
}

func (r *NotificationRepo) MarkRead(_ context.Context, id models.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.items {
		if r.items[i].ID == id {
			r.items[i].Read = true
			return nil
		}
	}
	return fmt.Errorf("repo error: %w", apperrors.ErrNotificationNotFound)
}

// MarkAllRead marks every unread notification of the user and returns how many changed
func (r *NotificationRepo) MarkAllRead(_ context.Context, recipient uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	for i := range r.items {
		if r.items[i].recipient == recipient && !r.items[i].Read {
			r.items[i].Read = true
			changed++
		}
	}
	return changed, nil
}
