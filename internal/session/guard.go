package session

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nkiryanov/taskbell/internal/credstore"
	"github.com/nkiryanov/taskbell/internal/logger"
	"github.com/nkiryanov/taskbell/internal/models"
)

const (
	defaultRefreshPath  = "/auth/refresh"
	defaultLoginPath    = "/auth/login"
	defaultRegisterPath = "/auth/register"
	defaultTimeout      = 10 * time.Second
)

type Config struct {
	// API base url, e.g. http://localhost:8080/api
	// Required to be set
	BaseURL string

	// Auth endpoints relative to BaseURL
	// If not set than default is used
	RefreshPath  string
	LoginPath    string
	RegisterPath string

	// Transport used for the actual network calls
	// http.DefaultTransport if not set
	Transport http.RoundTripper

	// Timeout of one request including a refresh and retry
	Timeout time.Duration
}

// Guard owns the credential pair: it attaches it to outbound requests and
// recovers from an expired access token with one refresh and one retry
type Guard struct {
	cfg    Config
	store  credstore.Store
	logger logger.Logger

	base   *http.Client // bypasses the guard, used for auth endpoints
	client *http.Client

	refreshGroup singleflight.Group

	invalidateMu sync.Mutex

	notifyMu sync.Mutex // serializes notify, keeps events ordered

	watchMu  sync.Mutex
	watchers map[int]func(subject string)
	nextID   int
}

func New(cfg Config, store credstore.Store, l logger.Logger) *Guard {
	setDefault := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefault(&cfg.RefreshPath, defaultRefreshPath)
	setDefault(&cfg.LoginPath, defaultLoginPath)
	setDefault(&cfg.RegisterPath, defaultRegisterPath)
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	g := &Guard{
		cfg:      cfg,
		store:    store,
		logger:   l.With("component", "session"),
		base:     &http.Client{Transport: cfg.Transport, Timeout: cfg.Timeout},
		watchers: make(map[int]func(string)),
	}
	g.client = &http.Client{Transport: g.Transport(), Timeout: cfg.Timeout}

	return g
}

// BaseURL returns the API base url without trailing slash
func (g *Guard) BaseURL() string {
	return g.cfg.BaseURL
}

// Client returns http client whose requests go through the guard
func (g *Guard) Client() *http.Client {
	return g.client
}

// Transport returns the guard as http.RoundTripper
func (g *Guard) Transport() http.RoundTripper {
	return &transport{guard: g}
}

// Credentials returns the stored pair. A partially stored pair is read as anonymous
func (g *Guard) Credentials(ctx context.Context) (models.Credentials, error) {
	values, err := g.store.Get(ctx, models.CredentialKeys...)
	if err != nil {
		return models.Credentials{}, err
	}

	creds := models.CredentialsFromValues(values)
	if creds.Partial() {
		g.logger.Warn("Credential store holds only one token, treating session as anonymous")
		return models.Credentials{}, nil
	}
	if !creds.Authenticated() {
		return models.Credentials{}, nil
	}
	return creds, nil
}

// Subject returns the user id of the session, empty if anonymous
func (g *Guard) Subject(ctx context.Context) (string, error) {
	creds, err := g.Credentials(ctx)
	if err != nil {
		return "", err
	}
	return creds.UserID, nil
}

// AuthHeader returns headers that authenticate a non-HTTP handshake, e.g. websocket
func (g *Guard) AuthHeader(ctx context.Context) http.Header {
	h := http.Header{}
	creds, err := g.Credentials(ctx)
	if err != nil {
		g.logger.Warn("Failed to read credentials", "error", err)
		return h
	}
	if creds.Authenticated() {
		h.Set("Authorization", "Bearer "+creds.AccessToken)
	}
	return h
}

// Watch registers fn to be called with the current subject after login,
// register, refresh, logout and invalidation. Subject is empty when anonymous.
// fn may call Watch or its own cancel; it must not log in or out synchronously
func (g *Guard) Watch(fn func(subject string)) (cancel func()) {
	g.watchMu.Lock()
	defer g.watchMu.Unlock()

	id := g.nextID
	g.nextID++
	g.watchers[id] = fn

	return func() {
		g.watchMu.Lock()
		defer g.watchMu.Unlock()
		delete(g.watchers, id)
	}
}

// notify calls watchers one at a time, with watchMu released
func (g *Guard) notify(subject string) {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.watchMu.Lock()
	watchers := slices.Collect(maps.Values(g.watchers))
	g.watchMu.Unlock()

	for _, fn := range watchers {
		fn(subject)
	}
}

func (g *Guard) url(path string) string {
	return g.cfg.BaseURL + path
}
