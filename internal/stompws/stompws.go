package stompws

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Subprotocols offered and accepted on the websocket handshake
var Subprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

const (
	DefaultPath      = "/ws"
	contentTypeJSON  = "application/json"
	defaultHeartBeat = 10 * time.Second
	closeTimeout     = 2 * time.Second
)

// WebSocketURL maps the API base url to the websocket endpoint: http to ws, https to wss
func WebSocketURL(baseURL string, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}

	if path == "" {
		path = DefaultPath
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = ""
	return u.String(), nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
