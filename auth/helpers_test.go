package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/habedi/salonctl/auth"
	"github.com/habedi/salonctl/client"
	"github.com/stretchr/testify/require"
)

// memorySecrets is an in-memory auth.SecretStore.
type memorySecrets struct {
	mu      sync.Mutex
	data    map[string]string
	failGet error
	failSet error
	failDel error
	deletes int
}

func newMemorySecrets() *memorySecrets {
	return &memorySecrets{data: make(map[string]string)}
}

func (m *memorySecrets) SetSecret(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	m.data[key] = value
	return nil
}

func (m *memorySecrets) GetSecret(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return "", false, m.failGet
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memorySecrets) DeleteSecret(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.failDel != nil {
		return m.failDel
	}
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memorySecrets) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

var errDiskGone = errors.New("disk gone")

// fakeAPI is a minimal salon API with rotating credentials.
type fakeAPI struct {
	mu      sync.Mutex
	valid   string
	refresh string
	issued  int

	refreshDelay  time.Duration
	refreshStatus int
	dropRefresh   bool
	rejectAll     bool
	logoutStatus  int
	meStatus      int

	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32
	meCalls      atomic.Int32
}

func (f *fakeAPI) issue() (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued++
	f.valid = fmt.Sprintf("access-%d", f.issued)
	f.refresh = fmt.Sprintf("refresh-%d", f.issued)
	return f.valid, f.refresh
}

// rotate invalidates the current access token but keeps the refresh token usable.
func (f *fakeAPI) rotate() {
	f.mu.Lock()
	f.valid = "rotated-away"
	f.mu.Unlock()
}

// revoke makes every refresh token unusable.
func (f *fakeAPI) revoke() {
	f.mu.Lock()
	f.refresh = "revoked"
	f.mu.Unlock()
}

func (f *fakeAPI) setRefresh(token string) {
	f.mu.Lock()
	f.refresh = token
	f.mu.Unlock()
}

// configure mutates behaviour switches under the lock.
func (f *fakeAPI) configure(set func(*fakeAPI)) {
	f.mu.Lock()
	set(f)
	f.mu.Unlock()
}

func (f *fakeAPI) authorized(r *http.Request) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectAll {
		return false
	}
	return f.valid != "" && r.Header.Get("Authorization") == "Bearer "+f.valid
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	switch r.URL.Path {
	case "/auth/login":
		if body["password"] != "secret12" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid credentials"})
			return
		}
		access, refresh := f.issue()
		writeJSON(w, http.StatusOK, map[string]any{
			"accessToken":  access,
			"refreshToken": refresh,
			"user":         map[string]any{"id": "u1", "email": body["email"]},
		})
	case "/auth/social":
		if body["provider"] != "google" || body["token"] == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "bad assertion"})
			return
		}
		access, refresh := f.issue()
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"access_token": access, "refresh_token": refresh}})
	case "/auth/signup":
		writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"userId": "u1", "verificationToken": "vt-1"}})
	case "/auth/verify":
		writeJSON(w, http.StatusOK, map[string]any{"verified": body["code"] == "123456"})
	case "/auth/refresh-token":
		f.refreshCalls.Add(1)
		f.mu.Lock()
		delay, drop, status := f.refreshDelay, f.dropRefresh, f.refreshStatus
		f.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		if drop {
			hj, ok := w.(http.Hijacker)
			if ok {
				if conn, _, err := hj.Hijack(); err == nil {
					_ = conn.Close()
					return
				}
			}
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if status != 0 {
			writeJSON(w, status, map[string]any{"message": "refresh rejected"})
			return
		}
		f.mu.Lock()
		current := f.refresh
		f.mu.Unlock()
		if body["refreshToken"] == "" || body["refreshToken"] != current {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid refresh token"})
			return
		}
		access, refresh := f.issue()
		writeJSON(w, http.StatusOK, map[string]any{"accessToken": access, "refreshToken": refresh})
	case "/auth/logout":
		f.logoutCalls.Add(1)
		f.mu.Lock()
		status := f.logoutStatus
		f.mu.Unlock()
		if status != 0 {
			writeJSON(w, status, map[string]any{"message": "logout failed"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "/users/me":
		f.meCalls.Add(1)
		f.mu.Lock()
		status := f.meStatus
		f.mu.Unlock()
		if status != 0 {
			writeJSON(w, status, map[string]any{"message": "profile unavailable"})
			return
		}
		if !f.authorized(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "token expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": "u1", "email": "ana@example.com", "firstName": "Ana", "verified": true}})
	case "/appointments":
		if !f.authorized(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "token expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{{"id": "a1", "salonId": "s1", "service": "cut"}}})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// harness wires the full pipeline against a fakeAPI.
type harness struct {
	server      *fakeAPI
	secrets     *memorySecrets
	store       *auth.CredentialStore
	client      *client.Client
	api         *auth.API
	coordinator *auth.Coordinator
	invalidator *auth.Invalidator
	service     *auth.Service

	mu      sync.Mutex
	signals []auth.Invalidation
}

func newHarness(t *testing.T, secrets auth.SecretStore) *harness {
	t.Helper()
	h := &harness{server: &fakeAPI{}}
	srv := httptest.NewServer(h.server)
	t.Cleanup(srv.Close)

	if secrets == nil {
		h.secrets = newMemorySecrets()
		secrets = h.secrets
	}
	h.store = auth.NewCredentialStore(secrets)
	augmenter := client.NewAugmenter(h.store, client.Metadata{AppVersion: "1.0.0-test", Platform: "cli", DeviceID: "device-test"})
	h.client = client.New(client.NewHTTPTransport(srv.URL, 2*time.Second), augmenter)
	h.api = auth.NewAPI(h.client, auth.DefaultPaths())
	h.invalidator = auth.NewInvalidator(h.store)
	h.coordinator = auth.NewCoordinator(h.store, h.api, h.invalidator, 2*time.Second)
	h.client.SetRecoverer(h.coordinator)
	h.service = auth.NewService(h.api, h.store, h.invalidator)

	unsubscribe := h.invalidator.Subscribe(func(ev auth.Invalidation) {
		h.mu.Lock()
		h.signals = append(h.signals, ev)
		h.mu.Unlock()
	})
	t.Cleanup(unsubscribe)
	return h
}

func (h *harness) signalCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.signals)
}

func (h *harness) lastSignal() auth.Invalidation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.signals[len(h.signals)-1]
}

// seed stores a session whose access token the server no longer accepts.
func (h *harness) seedStale(t *testing.T) {
	t.Helper()
	_, refresh := h.server.issue()
	h.server.rotate()
	require.NoError(t, h.store.Set(context.Background(), auth.Record{AccessToken: "stale-access", RefreshToken: refresh, IssuedAt: time.Now()}))
}

func (h *harness) accessToken(t *testing.T) string {
	t.Helper()
	tok, err := h.store.AccessToken(context.Background())
	require.NoError(t, err)
	return tok
}
