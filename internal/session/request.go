package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nkiryanov/taskbell/internal/apperrors"
)

// StatusError is returned for non 2xx responses
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status code %d", e.Code)
	}
	return fmt.Sprintf("status code %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized {
		return apperrors.ErrUnauthenticated
	}
	return apperrors.ErrUnexpectedStatus
}

// Request is an API call relative to the base url
type Request struct {
	Method string
	Path   string
	Body   any // encoded as JSON when not nil
	Header http.Header
}

// Do sends the request through the guard and decodes a JSON response into out.
// out may be nil when the response has no interesting body.
func (g *Guard) Do(ctx context.Context, r Request, out any) error {
	var body io.Reader
	if r.Body != nil {
		data, err := json.Marshal(r.Body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, g.url(r.Path), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, vv := range r.Header {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	return decodeResponse(resp, out)
}

// maxErrorBody limits how much of an error response ends up in StatusError
const maxErrorBody = 4 << 10

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
