package devserver_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/taskbell/internal/credstore"
	"github.com/nkiryanov/taskbell/internal/devserver"
	"github.com/nkiryanov/taskbell/internal/logger"
	"github.com/nkiryanov/taskbell/internal/models"
	"github.com/nkiryanov/taskbell/internal/notification"
	"github.com/nkiryanov/taskbell/internal/session"
	"github.com/nkiryanov/taskbell/internal/stompws"
)

// Client stack against a live devserver: guard, REST source, STOMP channel
func TestEndToEnd(t *testing.T) {
	s, err := devserver.New(devserver.Config{SecretKey: "e2e-secret", HeartBeat: time.Second}, logger.NewNoOpLogger())
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		_ = s.Close()
		srv.Close()
	})

	api := srv.URL + "/api"
	store := credstore.NewMemory()
	guard := session.New(session.Config{BaseURL: api, Timeout: 5 * time.Second}, store, logger.NewNoOpLogger())
	client := stompws.NewClient(stompws.Config{BaseURL: api, HeartBeat: time.Second}, logger.NewNoOpLogger(), guard.AuthHeader)
	channel := notification.NewChannel(
		notification.NewRESTSource(guard),
		client,
		logger.NewNoOpLogger(),
		notification.WithBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(20 * time.Millisecond) }),
	)

	unbind := channel.Bind(t.Context(), guard)
	t.Cleanup(func() {
		unbind()
		channel.Stop()
	})

	creds, err := guard.Register(t.Context(), "bob", "bob@example.com", "password")
	require.NoError(t, err)
	userID := uuid.MustParse(creds.UserID)

	require.Eventually(t, func() bool {
		return channel.State() == notification.StateConnected && channel.Subject() == creds.UserID
	}, 5*time.Second, 10*time.Millisecond, "channel follows the signed in subject")

	t.Run("push arrives", func(t *testing.T) {
		// No receipt for SUBSCRIBE: repeat until the broker routes one
		require.Eventually(t, func() bool {
			if _, err := s.Notifications.Notify(t.Context(), userID, "Due today", "Write report"); err != nil {
				t.Logf("notify: %v", err)
				return false
			}
			return channel.UnreadCount() > 0
		}, 5*time.Second, 50*time.Millisecond)

		items := channel.Notifications()
		require.Equal(t, "Due today", items[0].Title)
	})

	t.Run("mark all read reaches backend", func(t *testing.T) {
		channel.MarkAllRead(t.Context())
		require.Zero(t, channel.UnreadCount(), "local state changes immediately")
		channel.Wait()

		stored, err := s.Notifications.List(t.Context(), userID)
		require.NoError(t, err)
		for _, n := range stored {
			require.True(t, n.Read)
		}
	})

	t.Run("expired access token is refreshed", func(t *testing.T) {
		before, err := guard.Credentials(t.Context())
		require.NoError(t, err)
		require.NoError(t, store.Set(t.Context(), map[string]string{models.KeyAccessToken: "expired"}))

		var profile models.Profile
		err = guard.Do(t.Context(), session.Request{Method: http.MethodGet, Path: "/user/me"}, &profile)
		require.NoError(t, err)
		require.Equal(t, creds.UserID, profile.ID)

		after, err := guard.Credentials(t.Context())
		require.NoError(t, err)
		require.NotEqual(t, "expired", after.AccessToken)
		require.NotEqual(t, before.RefreshToken, after.RefreshToken, "refresh token rotated")
	})

	t.Run("logout stops channel", func(t *testing.T) {
		require.NoError(t, guard.Logout(t.Context()))

		require.Eventually(t, func() bool {
			return channel.State() == notification.StateDisconnected
		}, 5*time.Second, 10*time.Millisecond)
		require.Empty(t, channel.Notifications(), "cache is cleared")
	})
}
