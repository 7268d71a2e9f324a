package notification

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nkiryanov/taskbell/internal/models"
	"github.com/nkiryanov/taskbell/internal/session"
)

// Doer sends authenticated API requests, implemented by *session.Guard
type Doer interface {
	Do(ctx context.Context, r session.Request, out any) error
}

// RESTSource talks to the notification endpoints of the API
type RESTSource struct {
	api Doer
}

func NewRESTSource(api Doer) *RESTSource {
	return &RESTSource{api: api}
}

func (s *RESTSource) List(ctx context.Context, subjectID string) ([]models.Notification, error) {
	var items []models.Notification
	err := s.api.Do(ctx, session.Request{
		Method: http.MethodGet,
		Path:   "/notifications/" + url.PathEscape(subjectID),
	}, &items)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

func (s *RESTSource) MarkRead(ctx context.Context, id models.ID) error {
	err := s.api.Do(ctx, session.Request{
		Method: http.MethodPut,
		Path:   "/notifications/" + url.PathEscape(id.String()) + "/read",
	}, nil)
	if err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return nil
}

func (s *RESTSource) MarkAllRead(ctx context.Context, subjectID string) error {
	err := s.api.Do(ctx, session.Request{
		Method: http.MethodPut,
		Path:   "/notifications/" + url.PathEscape(subjectID) + "/mark-all-read",
	}, nil)
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}
