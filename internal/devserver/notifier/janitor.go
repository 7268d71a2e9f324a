package notifier

import (
	"context"
	"time"

	"github.com/nkiryanov/taskbell/internal/logger"
)

type cleaner interface {
	Cleanup(ctx context.Context) (int, error)
}

// Janitor removes expired refresh tokens on each tick
type Janitor struct {
	Interval time.Duration
	Tokens   cleaner
	Logger   logger.Logger
}

func (j *Janitor) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(j.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := j.Tokens.Cleanup(ctx)
				if err != nil {
					j.Logger.Error("Failed to remove expired tokens", "error", err)
					continue
				}
				if removed > 0 {
					j.Logger.Info("Expired refresh tokens removed", "count", removed)
				}
			}
		}
	}()

	return idleStopped
}
