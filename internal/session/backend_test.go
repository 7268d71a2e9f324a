package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/taskbell/internal/credstore"
	"github.com/nkiryanov/taskbell/internal/logger"
	"github.com/nkiryanov/taskbell/internal/models"
)

// fakeBackend issues 'aN'/'rN' pairs; only the latest pair is valid and refresh tokens are single use
type fakeBackend struct {
	mu      sync.Mutex
	gen     int
	access  string
	refresh string

	refreshCalls atomic.Int32
	dataCalls    atomic.Int32

	refreshDelay time.Duration
	failRefresh  bool
	alwaysDeny   bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{gen: 1, access: "a1", refresh: "r1"}
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		time.Sleep(b.refreshDelay)

		var in struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)

		b.mu.Lock()
		defer b.mu.Unlock()
		if b.failRefresh || in.RefreshToken != b.refresh {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		b.gen++
		b.access, b.refresh = fmt.Sprintf("a%d", b.gen), fmt.Sprintf("r%d", b.gen)
		_ = json.NewEncoder(w).Encode(map[string]string{"accessToken": b.access, "refreshToken": b.refresh})
	})

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Password != "secret" {
			http.Error(w, `{"error":"service_error","message":"bad credentials"}`, http.StatusUnauthorized)
			return
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		// numeric user id on purpose
		_, _ = fmt.Fprintf(w, `{"accessToken":%q,"refreshToken":%q,"userId":7}`, b.access, b.refresh)
	})

	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		b.dataCalls.Add(1)

		b.mu.Lock()
		valid := r.Header.Get("Authorization") == "Bearer "+b.access
		b.mu.Unlock()

		if b.alwaysDeny || !valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		body := map[string]string{"contentType": r.Header.Get("Content-Type")}
		if r.Body != nil {
			var in map[string]string
			if json.NewDecoder(r.Body).Decode(&in) == nil {
				body["echo"] = in["value"]
			}
		}
		_ = json.NewEncoder(w).Encode(body)
	})

	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nothing here", http.StatusNotFound)
	})

	return mux
}

type fixture struct {
	backend *fakeBackend
	store   *credstore.Memory
	guard   *Guard
}

func newFixture(t *testing.T, stored models.Credentials) fixture {
	t.Helper()

	backend := newFakeBackend()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	store := credstore.NewMemory()
	if stored.AccessToken != "" || stored.RefreshToken != "" {
		require.NoError(t, store.Set(t.Context(), stored.Values()))
	}

	guard := New(Config{BaseURL: srv.URL + "/"}, store, logger.NewNoOpLogger())

	return fixture{backend: backend, store: store, guard: guard}
}

func (f fixture) stored(t *testing.T) map[string]string {
	values, err := f.store.Get(t.Context(), models.CredentialKeys...)
	require.NoError(t, err)
	return values
}

func (f fixture) get(t *testing.T, path string) *http.Response {
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, f.guard.BaseURL()+path, nil)
	require.NoError(t, err)

	resp, err := f.guard.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
