package notification

import (
	"context"
	"strings"

	"github.com/nkiryanov/taskbell/internal/models"
)

// Source is the REST side: snapshot and read-state mutations
type Source interface {
	List(ctx context.Context, subjectID string) ([]models.Notification, error)
	MarkRead(ctx context.Context, id models.ID) error
	MarkAllRead(ctx context.Context, subjectID string) error
}

// PubSub is the push side, a topic based publish/subscribe client
type PubSub interface {
	// Connect subscribes to topic. onMessage is called with every message body,
	// one at a time and in arrival order, until Disconnect or a link drop
	Connect(ctx context.Context, topic string, onMessage func([]byte)) (Handle, error)
	Disconnect(h Handle) error
	Send(ctx context.Context, topic string, payload []byte) error
}

// Handle is one live subscription
type Handle interface {
	// Done is closed when the link drops or the handle is disconnected
	Done() <-chan struct{}
}

// Identity is whoever knows the current subject, usually the session guard
type Identity interface {
	Subject(ctx context.Context) (string, error)
	Watch(fn func(subject string)) (cancel func())
}

// ValidSubject reports whether subject identifies a user.
// Placeholders leaking from unset values are rejected
func ValidSubject(subject string) bool {
	switch strings.TrimSpace(subject) {
	case "", "null", "undefined":
		return false
	default:
		return true
	}
}
