package session

import (
	"io"
	"net/http"
)

// transport is the guard's http.RoundTripper
type transport struct {
	guard *Guard
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.guard.dispatch(req, 0)
}

// dispatch sends req and, on the first 401, refreshes the pair and sends it once more.
// attempt is 0 for the original request and 1 for the retry; a retry is never retried.
func (g *Guard) dispatch(orig *http.Request, attempt int) (*http.Response, error) {
	req := orig.Clone(orig.Context())
	if attempt > 0 && orig.GetBody != nil {
		body, err := orig.GetBody()
		if err != nil {
			return nil, err
		}
		req.Body = body
	}

	sent := g.attach(req)

	resp, err := g.cfg.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || attempt > 0 || !replayable(orig) {
		return resp, nil
	}

	creds, err := g.Credentials(req.Context())
	if err != nil || creds.RefreshToken == "" {
		// Anonymous request: nothing to recover with
		return resp, nil
	}

	// The first response is dropped, drain it so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if err := g.recover(req.Context(), sent, creds); err != nil {
		return nil, err
	}

	g.logger.Debug("Retrying request after refresh", "method", orig.Method, "url", orig.URL.String())
	return g.dispatch(orig, attempt+1)
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}
