package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/taskbell/internal/logger"
	"github.com/nkiryanov/taskbell/internal/models"
)

type fakeHandle struct {
	topic     string
	onMessage func([]byte)
	done      chan struct{}
	once      sync.Once
}

func (h *fakeHandle) Done() <-chan struct{} {
	return h.done
}

func (h *fakeHandle) close() {
	h.once.Do(func() { close(h.done) })
}

// fakePubSub records subscriptions; messages are delivered by the test itself
type fakePubSub struct {
	mu          sync.Mutex
	active      map[*fakeHandle]bool
	handles     []*fakeHandle
	maxActive   int
	failConnect int
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{active: make(map[*fakeHandle]bool)}
}

func (p *fakePubSub) Connect(ctx context.Context, topic string, onMessage func([]byte)) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failConnect > 0 {
		p.failConnect--
		return nil, errors.New("handshake refused")
	}

	h := &fakeHandle{topic: topic, onMessage: onMessage, done: make(chan struct{})}
	p.active[h] = true
	p.handles = append(p.handles, h)
	p.maxActive = max(p.maxActive, len(p.active))
	return h, nil
}

func (p *fakePubSub) Disconnect(h Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fh := h.(*fakeHandle)
	delete(p.active, fh)
	fh.close()
	return nil
}

func (p *fakePubSub) Send(context.Context, string, []byte) error {
	return errors.New("not supported")
}

func (p *fakePubSub) activeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

func (p *fakePubSub) connects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

func (p *fakePubSub) last() *fakeHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handles[len(p.handles)-1]
}

// fakeSource serves snapshots per subject; a gate delays List until released
type fakeSource struct {
	mu        sync.Mutex
	items     map[string][]models.Notification
	gate      chan struct{}
	listErr   error
	listCalls int

	markErr error
	read    []models.ID
	allRead []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{items: make(map[string][]models.Notification)}
}

func (s *fakeSource) List(ctx context.Context, subject string) ([]models.Notification, error) {
	s.mu.Lock()
	s.listCalls++
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]models.Notification(nil), s.items[subject]...), nil
}

func (s *fakeSource) MarkRead(_ context.Context, id models.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.read = append(s.read, id)
	return s.markErr
}

func (s *fakeSource) MarkAllRead(_ context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allRead = append(s.allRead, subject)
	return s.markErr
}

func (s *fakeSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

// fakeIdentity plays the session guard
type fakeIdentity struct {
	mu      sync.Mutex
	subject string
	watch   func(string)
}

func (i *fakeIdentity) Subject(context.Context) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.subject, nil
}

func (i *fakeIdentity) Watch(fn func(string)) func() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.watch = fn
	return func() {
		i.mu.Lock()
		defer i.mu.Unlock()
		i.watch = nil
	}
}

func (i *fakeIdentity) set(subject string) {
	i.mu.Lock()
	i.subject = subject
	fn := i.watch
	i.mu.Unlock()

	if fn != nil {
		fn(subject)
	}
}

func newTestChannel(source Source, pubsub PubSub) *Channel {
	return NewChannel(source, pubsub, logger.NewNoOpLogger(),
		WithBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }),
		WithTimeout(time.Second),
	)
}

func note(id string) models.Notification {
	return models.Notification{ID: models.ID(id), Title: "Task " + id, Content: "Deadline is near", Timestamp: "2026-10-15T10:00:00"}
}

func payload(t *testing.T, n models.Notification) []byte {
	t.Helper()
	data, err := json.Marshal(n)
	require.NoError(t, err)
	return data
}

func ids(items []models.Notification) []models.ID {
	out := make([]models.ID, 0, len(items))
	for _, n := range items {
		out = append(out, n.ID)
	}
	return out
}

func waitState(t *testing.T, c *Channel, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, time.Second, time.Millisecond, "channel state must become %s", want)
}
