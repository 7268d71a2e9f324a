package notification

import (
	"context"
	"errors"

	"github.com/nkiryanov/taskbell/internal/apperrors"
)

// Bind makes the channel follow the identity: start on login, restart when the
// subject changes, stop on logout or session invalidation.
// Identity events are applied on a separate goroutine, latest event wins.
func (c *Channel) Bind(ctx context.Context, id Identity) (unbind func()) {
	events := make(chan string, 1)
	push := func(subject string) {
		for {
			select {
			case events <- subject:
				return
			default:
			}
			// Drop the stale event, only the latest subject matters
			select {
			case <-events:
			default:
			}
		}
	}

	cancelWatch := id.Watch(push)

	subject, err := id.Subject(ctx)
	if err != nil {
		c.logger.Warn("Failed to read subject", "error", err)
	} else {
		push(subject)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case subject := <-events:
				c.follow(ctx, subject)
			}
		}
	}()

	return func() {
		cancelWatch()
		cancel()
		<-done
		c.Stop()
	}
}

func (c *Channel) follow(ctx context.Context, subject string) {
	err := c.Start(ctx, subject)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrInvalidSubject):
		c.logger.Debug("Signed out, notifications stopped")
	default:
		c.logger.Warn("Failed to follow subject", "subject", subject, "error", err)
	}
}
