package probe

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nkiryanov/taskbell/internal/logger"
	"github.com/nkiryanov/taskbell/internal/models"
	"github.com/nkiryanov/taskbell/internal/session"
)

const (
	DefaultPath        = "/user/me"
	defaultInterval    = 5 * time.Second
	defaultMaxAttempts = 20
)

// Doer sends authenticated API requests, implemented by *session.Guard
type Doer interface {
	Do(ctx context.Context, r session.Request, out any) error
}

type Config struct {
	// Pause between attempts
	Interval time.Duration

	// Attempts before giving up
	MaxAttempts uint

	Logger logger.Logger
}

// Wait polls path until the backend answers it with 2xx.
// Returns the profile on success and the last error once attempts are exhausted
func Wait(ctx context.Context, doer Doer, path string, cfg Config) (models.Profile, error) {
	if path == "" {
		path = DefaultPath
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}

	attempt := 0
	return backoff.Retry(ctx, func() (models.Profile, error) {
		attempt++

		var profile models.Profile
		err := doer.Do(ctx, session.Request{Method: http.MethodGet, Path: path}, &profile)
		if err != nil {
			cfg.Logger.Warn("Backend is not ready", "attempt", attempt, "max_attempts", cfg.MaxAttempts, "error", err)
			return profile, err
		}
		return profile, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(cfg.Interval)),
		backoff.WithMaxTries(cfg.MaxAttempts),
		backoff.WithMaxElapsedTime(cfg.Interval*time.Duration(cfg.MaxAttempts+1)),
	)
}
