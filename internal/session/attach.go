package session

import (
	"net/http"
	"strings"
)

const (
	contentTypeJSON   = "application/json"
	contentTypeBinary = "application/octet-stream"
)

// Attach sets bearer credentials and the content type on req.
// It never fails: when credentials can't be read the request goes out anonymous.
func (g *Guard) Attach(req *http.Request) {
	g.attach(req)
}

// attach returns the access token it attached, empty if none
func (g *Guard) attach(req *http.Request) string {
	if !keepsContentType(req.Header.Get("Content-Type")) {
		req.Header.Set("Content-Type", contentTypeJSON)
	}

	creds, err := g.Credentials(req.Context())
	if err != nil {
		g.logger.Warn("Failed to read credentials, sending request anonymous", "error", err, "url", req.URL.String())
		return ""
	}
	if !creds.Authenticated() {
		return ""
	}

	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	return creds.AccessToken
}

// Multipart and binary bodies carry their own content type (and boundary)
func keepsContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.HasPrefix(ct, "multipart/") || strings.HasPrefix(ct, contentTypeBinary)
}
