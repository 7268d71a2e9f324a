package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/taskbell/internal/devserver/memstore"
	"github.com/nkiryanov/taskbell/internal/logger"
	"github.com/nkiryanov/taskbell/internal/models"
)

type published struct {
	destination string
	payload     []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, destination string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{destination: destination, payload: payload})
	return nil
}

func (p *fakePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.sent...)
}

func TestService(t *testing.T) {
	userID := uuid.New()

	t.Run("notify stores and pushes", func(t *testing.T) {
		pub := &fakePublisher{}
		s := NewService(memstore.NewNotificationRepo(), pub, logger.NewNoOpLogger())

		n, err := s.Notify(t.Context(), userID, "Due today", "Write report")
		require.NoError(t, err)

		sent := pub.all()
		require.Len(t, sent, 1)
		require.Equal(t, "/topic/notifications/"+userID.String(), sent[0].destination)

		var pushed models.Notification
		require.NoError(t, json.Unmarshal(sent[0].payload, &pushed))
		require.Equal(t, n, pushed)

		listed, err := s.List(t.Context(), userID)
		require.NoError(t, err)
		require.Equal(t, []models.Notification{n}, listed)
	})

	t.Run("push failure keeps notification", func(t *testing.T) {
		s := NewService(memstore.NewNotificationRepo(), &fakePublisher{err: errors.New("broker down")}, logger.NewNoOpLogger())

		_, err := s.Notify(t.Context(), userID, "Overdue", "Fix bug")
		require.NoError(t, err)

		listed, err := s.List(t.Context(), userID)
		require.NoError(t, err)
		require.Len(t, listed, 1)
	})

	t.Run("mark read", func(t *testing.T) {
		s := NewService(memstore.NewNotificationRepo(), &fakePublisher{}, logger.NewNoOpLogger())
		first, err := s.Notify(t.Context(), userID, "one", "")
		require.NoError(t, err)
		_, err = s.Notify(t.Context(), userID, "two", "")
		require.NoError(t, err)

		require.NoError(t, s.MarkRead(t.Context(), first.ID))
		require.NoError(t, s.MarkRead(t.Context(), "unknown"), "unknown ids are ignored")

		listed, err := s.List(t.Context(), userID)
		require.NoError(t, err)
		require.False(t, listed[0].Read)
		require.True(t, listed[1].Read)

		require.NoError(t, s.MarkAllRead(t.Context(), userID))
		listed, err = s.List(t.Context(), userID)
		require.NoError(t, err)
		require.True(t, listed[0].Read)
	})
}

func TestReminder(t *testing.T) {
	users := memstore.NewUserRepo()
	_, err := users.CreateUser(t.Context(), "bob", "bob@example.com", "hash")
	require.NoError(t, err)
	_, err = users.CreateUser(t.Context(), "alice", "alice@example.com", "hash")
	require.NoError(t, err)

	pub := &fakePublisher{}
	ctx, cancel := context.WithCancel(t.Context())
	r := &Reminder{
		Interval: 10 * time.Millisecond,
		Users:    users,
		Notifier: NewService(memstore.NewNotificationRepo(), pub, logger.NewNoOpLogger()),
		Logger:   logger.NewNoOpLogger(),
	}

	stopped := r.Run(ctx)
	require.Eventually(t, func() bool { return len(pub.all()) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("reminder did not stop on context cancel")
	}

	destinations := map[string]bool{}
	for _, p := range pub.all() {
		destinations[p.destination] = true
	}
	require.Len(t, destinations, 2, "every user gets a reminder")
}

type countingCleaner struct{ calls atomic.Int32 }

func (c *countingCleaner) Cleanup(context.Context) (int, error) {
	c.calls.Add(1)
	return 1, nil
}

func TestJanitor(t *testing.T) {
	cleaner := &countingCleaner{}
	ctx, cancel := context.WithCancel(t.Context())
	j := &Janitor{Interval: 5 * time.Millisecond, Tokens: cleaner, Logger: logger.NewNoOpLogger()}

	stopped := j.Run(ctx)
	require.Eventually(t, func() bool { return cleaner.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-stopped
}
