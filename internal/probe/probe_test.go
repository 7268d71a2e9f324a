package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/taskbell/internal/models"
	"github.com/nkiryanov/taskbell/internal/session"
)

// doerFunc allows to use a function as Doer
type doerFunc func(ctx context.Context, r session.Request, out any) error

func (f doerFunc) Do(ctx context.Context, r session.Request, out any) error {
	return f(ctx, r, out)
}

func TestWait(t *testing.T) {
	cfg := Config{Interval: time.Millisecond, MaxAttempts: 5}

	t.Run("ready after failures", func(t *testing.T) {
		calls := 0
		doer := doerFunc(func(ctx context.Context, r session.Request, out any) error {
			calls++
			require.Equal(t, DefaultPath, r.Path)
			if calls < 3 {
				return errors.New("connection refused")
			}
			*out.(*models.Profile) = models.Profile{ID: "7", Username: "bob"}
			return nil
		})

		profile, err := Wait(t.Context(), doer, "", cfg)

		require.NoError(t, err)
		require.Equal(t, 3, calls)
		require.Equal(t, "bob", profile.Username)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		lastErr := errors.New("still down")
		doer := doerFunc(func(context.Context, session.Request, any) error {
			calls++
			return lastErr
		})

		_, err := Wait(t.Context(), doer, "/health", cfg)

		require.ErrorIs(t, err, lastErr)
		require.Equal(t, 5, calls)
	})

	t.Run("context cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		doer := doerFunc(func(context.Context, session.Request, any) error {
			cancel()
			return errors.New("down")
		})

		_, err := Wait(ctx, doer, "", Config{Interval: time.Hour, MaxAttempts: 3})

		require.ErrorIs(t, err, context.Canceled)
	})
}
