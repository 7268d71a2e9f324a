package notification

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/taskbell/internal/apperrors"
	"github.com/nkiryanov/taskbell/internal/credstore"
	"github.com/nkiryanov/taskbell/internal/logger"
	"github.com/nkiryanov/taskbell/internal/models"
	"github.com/nkiryanov/taskbell/internal/session"
)

func TestRESTSource(t *testing.T) {
	var mu sync.Mutex
	var requests []string

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.Method+" "+r.URL.Path+" "+r.Header.Get("Authorization"))
		mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/notifications/42":
			_, _ = w.Write([]byte(`[{"id":1,"title":"Task due","content":"Ship it","timestamp":"2026-10-15T09:00:00","read":false}]`))
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := credstore.NewMemory()
	require.NoError(t, store.Set(t.Context(), models.Credentials{AccessToken: "a1", RefreshToken: "r1", UserID: "42"}.Values()))
	guard := session.New(session.Config{BaseURL: srv.URL + "/api"}, store, logger.NewNoOpLogger())
	source := NewRESTSource(guard)

	t.Run("list", func(t *testing.T) {
		items, err := source.List(t.Context(), "42")

		require.NoError(t, err)
		require.Equal(t, []models.Notification{{ID: "1", Title: "Task due", Content: "Ship it", Timestamp: "2026-10-15T09:00:00"}}, items)
	})

	t.Run("list error", func(t *testing.T) {
		_, err := source.List(t.Context(), "13")

		require.ErrorIs(t, err, apperrors.ErrUnexpectedStatus)
	})

	t.Run("mutations", func(t *testing.T) {
		require.NoError(t, source.MarkRead(t.Context(), "1"))
		require.NoError(t, source.MarkAllRead(t.Context(), "42"))

		mu.Lock()
		defer mu.Unlock()
		require.Contains(t, requests, "PUT /api/notifications/1/read Bearer a1")
		require.Contains(t, requests, "PUT /api/notifications/42/mark-all-read Bearer a1")
	})
}
