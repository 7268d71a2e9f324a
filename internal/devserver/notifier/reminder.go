package notifier

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/taskbell/internal/logger"
	"github.com/nkiryanov/taskbell/internal/models"
)

const (
	ReminderTitle   = "Reminder"
	reminderContent = "You have tasks waiting for you"
)

type userLister interface {
	ListUsers(ctx context.Context) ([]models.User, error)
}

type notifyService interface {
	Notify(ctx context.Context, userID uuid.UUID, title string, content string) (models.Notification, error)
}

// Reminder pushes a reminder notification to every user on each tick
type Reminder struct {
	Interval time.Duration
	Users    userLister
	Notifier notifyService
	Logger   logger.Logger
}

// Run starts the ticker; returned channel is closed when it stops
func (r *Reminder) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	r.Logger.Debug("Starting reminder", "interval", r.Interval)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.Logger.Debug("Reminder stopped by context")
				return

			case <-ticker.C:
				users, err := r.Users.ListUsers(ctx)
				if err != nil {
					r.Logger.Error("Failed to list users", "error", err)
					continue
				}

				for _, u := range users {
					if ctx.Err() != nil {
						return
					}
					if _, err := r.Notifier.Notify(ctx, u.ID, ReminderTitle, reminderContent); err != nil {
						r.Logger.Error("Failed to send reminder", "user_id", u.ID, "error", err)
					}
				}
				r.Logger.Debug("Reminder tick done", "users", len(users))
			}
		}
	}()

	return idleStopped
}
