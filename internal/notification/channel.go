package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nkiryanov/taskbell/internal/apperrors"
	"github.com/nkiryanov/taskbell/internal/logger"
	"github.com/nkiryanov/taskbell/internal/models"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

const (
	defaultTopicPrefix     = "/topic/notifications/"
	defaultMutationTimeout = 10 * time.Second
)

// View is a consistent copy of the channel
type View struct {
	State         State
	Subject       string
	Notifications []models.Notification
	UnreadCount   int
}

type Option func(*Channel)

// WithBackOff sets the reconnect policy, a fresh one is made for every reconnect
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Channel) { c.newBackOff = fn }
}

// WithTimeout bounds snapshot fetches and read-state mutations
func WithTimeout(d time.Duration) Option {
	return func(c *Channel) { c.timeout = d }
}

func WithTopicPrefix(prefix string) Option {
	return func(c *Channel) { c.topicPrefix = prefix }
}

// Channel keeps a live subscription to the subject's notification topic and
// a deduplicated cache of notifications, newest first
type Channel struct {
	source Source
	pubsub PubSub
	logger logger.Logger

	topicPrefix string
	timeout     time.Duration
	newBackOff  func() backoff.BackOff

	lifecycleMu sync.Mutex // serializes Start and Stop

	mu      sync.Mutex
	state   State
	subject string
	epoch   uint64 // bumped on every start and stop, stale results are dropped
	cache   []models.Notification
	pushed  []models.ID // pushed during the epoch, oldest first
	cancel  context.CancelFunc
	done    chan struct{} // closed when the epoch's run loop exits

	published uint64 // sequence of the last view taken, guarded by mu

	notifyMu   sync.Mutex
	notifyCond *sync.Cond // signals a delivered view
	delivered  uint64     // sequence of the last view handed to observers
	observers  map[int]func(View)
	nextObs    int

	inflight sync.WaitGroup
}

func NewChannel(source Source, pubsub PubSub, l logger.Logger, opts ...Option) *Channel {
	c := &Channel{
		source:      source,
		pubsub:      pubsub,
		logger:      l.With("component", "notification"),
		topicPrefix: defaultTopicPrefix,
		timeout:     defaultMutationTimeout,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		state:     StateDisconnected,
		observers: make(map[int]func(View)),
	}

	c.notifyCond = sync.NewCond(&c.notifyMu)

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start subscribes to the subject's notifications.
// Same subject while active is a no-op, another subject replaces the subscription.
// An invalid subject stops the channel and returns apperrors.ErrInvalidSubject.
// Cancelling ctx ends the subscription like Stop.
func (c *Channel) Start(ctx context.Context, subject string) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if !ValidSubject(subject) {
		c.stop()
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidSubject, subject)
	}

	c.mu.Lock()
	if c.state != StateDisconnected && c.subject == subject {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// The old subscription is gone before the new one is opened
	c.stop()

	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	c.subject = subject
	c.state = StateConnecting
	c.cache = nil
	c.pushed = nil

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel, c.done = cancel, done
	c.publishLocked()

	c.logger.Info("Subscribing", "subject", subject)
	go c.run(runCtx, epoch, subject, done)
	return nil
}

// Stop tears the subscription down and waits for it to finish.
// In-flight snapshot fetches and mutations are not cancelled, their results are dropped
func (c *Channel) Stop() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.stop()
}

func (c *Channel) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	if cancel == nil && c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}

	c.epoch++
	c.cancel, c.done = nil, nil
	c.state = StateDisconnected
	c.subject = ""
	c.cache = nil
	c.pushed = nil
	c.publishLocked()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Wait blocks until in-flight read-state mutations are finished
func (c *Channel) Wait() {
	c.inflight.Wait()
}

func (c *Channel) run(ctx context.Context, epoch uint64, subject string, done chan struct{}) {
	defer close(done)

	topic := c.topicPrefix + subject
	onMessage := func(data []byte) { c.apply(epoch, data) }

	go c.fetchSnapshot(ctx, epoch, subject)

	for reconnect := false; ; reconnect = true {
		handle, err := c.dial(ctx, topic, onMessage)
		if err != nil {
			c.expire(epoch)
			return
		}

		if !c.transition(epoch, StateConnected) {
			c.disconnect(handle)
			return
		}
		c.logger.Info("Subscribed", "topic", topic)

		if reconnect {
			go c.fetchSnapshot(ctx, epoch, subject)
		}

		select {
		case <-ctx.Done():
			c.disconnect(handle)
			c.expire(epoch)
			return
		case <-handle.Done():
			c.logger.Warn("Push link dropped, reconnecting", "topic", topic)
			c.disconnect(handle)
			if !c.transition(epoch, StateConnecting) {
				return
			}
		}
	}
}

// dial connects with backoff until it succeeds or ctx is done
func (c *Channel) dial(ctx context.Context, topic string, onMessage func([]byte)) (Handle, error) {
	connect := func() (Handle, error) {
		h, err := c.pubsub.Connect(ctx, topic, onMessage)
		if err != nil && ctx.Err() == nil {
			c.logger.Warn("Push handshake failed", "topic", topic, "error", err)
		}
		return h, err
	}

	for {
		h, err := backoff.Retry(ctx, connect, backoff.WithBackOff(c.newBackOff()))
		if err == nil || ctx.Err() != nil {
			return h, err
		}
		c.logger.Warn("Reconnect attempts exhausted, starting over", "topic", topic, "error", err)
	}
}

func (c *Channel) disconnect(h Handle) {
	if err := c.pubsub.Disconnect(h); err != nil {
		c.logger.Warn("Failed to disconnect", "error", err)
	}
}

// transition sets the state if epoch is still current
func (c *Channel) transition(epoch uint64, state State) bool {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return false
	}

	c.state = state
	c.publishLocked()
	return true
}

// expire moves the channel to disconnected when its context ended without Stop
func (c *Channel) expire(epoch uint64) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}

	c.epoch++
	c.cancel, c.done = nil, nil
	c.state = StateDisconnected
	c.subject = ""
	c.cache = nil
	c.pushed = nil
	c.publishLocked()
}

func (c *Channel) fetchSnapshot(ctx context.Context, epoch uint64, subject string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	items, err := c.source.List(ctx, subject)
	if err != nil {
		c.logger.Warn("Failed to fetch notifications", "subject", subject, "error", err)
		return
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}

	c.cache, c.pushed = merge(c.cache, c.pushed, items)
	c.publishLocked()
}

// merge replaces the cache with the snapshot. Pushed items the snapshot
// misses stay in front, newest first. Read flags never go back to unread.
// The returned pushed ids are the ones still in front, oldest first.
func merge(cache []models.Notification, pushed []models.ID, snapshot []models.Notification) ([]models.Notification, []models.ID) {
	inSnapshot := make(map[models.ID]bool, len(snapshot))
	for _, n := range snapshot {
		inSnapshot[n.ID] = true
	}
	read := make(map[models.ID]bool, len(cache))
	byID := make(map[models.ID]models.Notification, len(cache))
	for _, n := range cache {
		byID[n.ID] = n
		if n.Read {
			read[n.ID] = true
		}
	}

	merged := make([]models.Notification, 0, len(pushed)+len(snapshot))
	var front []models.ID
	for _, id := range slices.Backward(pushed) {
		if n, ok := byID[id]; ok && !inSnapshot[id] {
			merged = append(merged, n)
			front = append(front, id)
		}
	}
	slices.Reverse(front)

	seen := make(map[models.ID]bool, len(snapshot))
	for _, n := range snapshot {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		if read[n.ID] {
			n.Read = true
		}
		merged = append(merged, n)
	}

	return merged, front
}

// apply handles one pushed message
func (c *Channel) apply(epoch uint64, data []byte) {
	var n models.Notification
	if err := json.Unmarshal(data, &n); err != nil || n.ID == "" {
		c.logger.Warn("Dropping malformed notification", "error", err, "payload", string(data))
		return
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	if c.indexLocked(n.ID) >= 0 {
		c.mu.Unlock()
		c.logger.Debug("Duplicate notification discarded", "id", n.ID)
		return
	}

	c.cache = slices.Insert(c.cache, 0, n)
	c.pushed = append(c.pushed, n.ID)
	c.publishLocked()
}

// MarkRead flips the flag locally and sends the mutation in background.
// Unknown ids are still sent, failures are logged and not rolled back.
func (c *Channel) MarkRead(ctx context.Context, id models.ID) {
	c.mu.Lock()
	if i := c.indexLocked(id); i >= 0 && !c.cache[i].Read {
		c.cache[i].Read = true
		c.publishLocked()
	} else {
		c.mu.Unlock()
	}

	c.mutate(ctx, "mark read", func(ctx context.Context) error {
		return c.source.MarkRead(ctx, id)
	})
}

// MarkAllRead flips every flag locally and sends the bulk mutation in background.
// No-op without a subject.
func (c *Channel) MarkAllRead(ctx context.Context) {
	c.mu.Lock()
	subject := c.subject
	if subject == "" {
		c.mu.Unlock()
		return
	}

	for i := range c.cache {
		c.cache[i].Read = true
	}
	c.publishLocked()

	c.mutate(ctx, "mark all read", func(ctx context.Context) error {
		return c.source.MarkAllRead(ctx, subject)
	})
}

func (c *Channel) mutate(ctx context.Context, name string, fn func(context.Context) error) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			c.logger.Warn("Read-state mutation failed", "mutation", name, "error", err)
		}
	}()
}

func (c *Channel) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return unread(c.cache)
}

func (c *Channel) Notifications() []models.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.cache)
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *Channel) Subject() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.subject
}

func (c *Channel) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.viewLocked()
}

// Subscribe registers fn to be called with a new view after every change,
// one view at a time and in the order changes were made.
// fn may read the channel and cancel its own subscription; it must not call
// mutating methods (Start, Stop, MarkRead, MarkAllRead) synchronously
func (c *Channel) Subscribe(fn func(View)) (cancel func()) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn

	return func() {
		c.notifyMu.Lock()
		defer c.notifyMu.Unlock()
		delete(c.observers, id)
	}
}

// publishLocked must be called with c.mu held; it releases c.mu.
// The view is numbered under c.mu and delivered in that order with no lock held
func (c *Channel) publishLocked() {
	view := c.viewLocked()
	c.published++
	seq := c.published
	c.mu.Unlock()

	c.notifyMu.Lock()
	for c.delivered+1 != seq {
		c.notifyCond.Wait()
	}
	observers := slices.Collect(maps.Values(c.observers))
	c.notifyMu.Unlock()

	for _, fn := range observers {
		fn(view)
	}

	c.notifyMu.Lock()
	c.delivered = seq
	c.notifyCond.Broadcast()
	c.notifyMu.Unlock()
}

func (c *Channel) viewLocked() View {
	return View{
		State:         c.state,
		Subject:       c.subject,
		Notifications: slices.Clone(c.cache),
		UnreadCount:   unread(c.cache),
	}
}

func (c *Channel) indexLocked(id models.ID) int {
	return slices.IndexFunc(c.cache, func(n models.Notification) bool { return n.ID == id })
}

func unread(items []models.Notification) int {
	count := 0
	for _, n := range items {
		if !n.Read {
			count++
		}
	}
	return count
}
