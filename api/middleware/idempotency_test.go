package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryReplays struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryReplays() *memoryReplays {
	return &memoryReplays{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryReplays) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

// Writes honour ctx the way go-redis does, so a cancelled request context
// surfaces as a failed ledger write.
func (m *memoryReplays) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key], m.ttls[key] = value.(string), ttl
	return nil
}

func (m *memoryReplays) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	_, taken := m.data[key]
	m.mu.Unlock()
	if taken {
		return false, nil
	}
	return true, m.Set(ctx, key, value, ttl)
}

func (m *memoryReplays) Del(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryReplays) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func checkoutRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	return req.WithContext(WithIdentity(req.Context(), "user-1", "user", "session-1"))
}

func TestReplayWindow(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		method string
		path   string
		ttl    time.Duration
	}{
		{"checkout", http.MethodPost, "/api/v1/checkout", criticalIdempotencyTTL},
		{"trailing slash", http.MethodPost, "/api/v1/checkout/", criticalIdempotencyTTL},
		{"order cancel", http.MethodPost, "/api/v1/orders/7d7c3c1e-0a51-4f3e-9d0c-2f1a1b6f8e11/cancel", criticalIdempotencyTTL},
		{"cart add", http.MethodPost, "/api/v1/cart/items", defaultIdempotencyTTL},
		{"requeue", http.MethodPost, "/api/admin/v1/outbox/dead-letters/abc/requeue", defaultIdempotencyTTL},
		{"quote is a preview", http.MethodPost, "/api/v1/checkout/quote", 0},
		{"wrong method", http.MethodGet, "/api/v1/checkout", 0},
		{"empty param", http.MethodPost, "/api/v1/orders//cancel", 0},
	}
	for _, tc := range cases {
		ttl, ok := replayWindow(tc.method, tc.path)
		assert.Equal(t, tc.ttl != 0, ok, tc.name)
		assert.Equal(t, tc.ttl, ttl, tc.name)
	}
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	t.Parallel()
	called := false
	handler := Idempotency(newMemoryReplays(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest("", `{}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}

func TestIdempotencyReplaysSettledOutcome(t *testing.T) {
	t.Parallel()
	store := newMemoryReplays()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"order":"o-1"}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, checkoutRequest("k1", `{"coupon_code":"SAVE10"}`))
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get(ReplayHeader))

	again := httptest.NewRecorder()
	handler.ServeHTTP(again, checkoutRequest("k1", `{"coupon_code":"SAVE10"}`))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, again.Code)
	assert.Equal(t, "true", again.Header().Get(ReplayHeader))
	assert.Equal(t, "application/json", again.Header().Get("Content-Type"))
	assert.Equal(t, `{"order":"o-1"}`, again.Body.String())
	for _, ttl := range store.ttls {
		assert.Equal(t, criticalIdempotencyTTL, ttl)
	}
}

func TestIdempotencyRejectsChangedBody(t *testing.T) {
	t.Parallel()
	handler := Idempotency(newMemoryReplays(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("k2", `{"coupon_code":"A"}`))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest("k2", `{"coupon_code":"B"}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "IDEMPOTENCY_KEY_REUSED")
}

func TestIdempotencyRejectsRetryWhileInFlight(t *testing.T) {
	t.Parallel()
	var (
		mw      = Idempotency(newMemoryReplays(), nil)
		nested  *httptest.ResponseRecorder
		handler http.Handler
	)
	handler = mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if nested == nil {
			nested = httptest.NewRecorder()
			handler.ServeHTTP(nested, checkoutRequest("k3", `{}`))
		}
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest("k3", `{}`))

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, nested)
	assert.Equal(t, http.StatusConflict, nested.Code)
	assert.Contains(t, nested.Body.String(), "still in progress")
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	t.Parallel()
	store := newMemoryReplays()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("k4", `{}`))
	}
	assert.Equal(t, 2, calls)
	assert.Len(t, store.data, 1)
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	t.Parallel()
	calls := 0
	handler := Idempotency(newMemoryReplays(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("shared", `{}`))
	other := checkoutRequest("shared", `{}`)
	other = other.WithContext(WithIdentity(other.Context(), "user-2", "user", "session-2"))
	handler.ServeHTTP(httptest.NewRecorder(), other)

	assert.Equal(t, 2, calls)
}

func TestIdempotencyIgnoresOtherRoutes(t *testing.T) {
	t.Parallel()
	handler := Idempotency(newMemoryReplays(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/quote", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIdempotencyReleasesKeyWhenHandlerPanics(t *testing.T) {
	t.Parallel()
	store := newMemoryReplays()
	calls := 0
	handler := Recoverer(nil)(Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			panic("order writer blew up")
		}
		w.WriteHeader(http.StatusCreated)
	})))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, checkoutRequest("k5", `{}`))
	require.Equal(t, http.StatusInternalServerError, first.Code)
	assert.Empty(t, store.data)

	retry := httptest.NewRecorder()
	handler.ServeHTTP(retry, checkoutRequest("k5", `{}`))
	assert.Equal(t, http.StatusCreated, retry.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotencyLedgerOutlivesClientDisconnect(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name       string
		status     int
		wantCalls  int
		wantReplay string
	}{
		{name: "server error frees the key", status: http.StatusServiceUnavailable, wantCalls: 2},
		{name: "success is still settled", status: http.StatusCreated, wantCalls: 1, wantReplay: "true"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			calls := 0
			var cancel context.CancelFunc
			handler := Idempotency(newMemoryReplays(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls++
				if cancel != nil {
					cancel()
				}
				w.WriteHeader(tc.status)
			}))

			req := checkoutRequest("k6", `{}`)
			ctx, cancelReq := context.WithCancel(req.Context())
			cancel = cancelReq
			handler.ServeHTTP(httptest.NewRecorder(), req.WithContext(ctx))

			cancel = nil
			retry := httptest.NewRecorder()
			handler.ServeHTTP(retry, checkoutRequest("k6", `{}`))

			assert.Equal(t, tc.wantCalls, calls)
			assert.Equal(t, tc.status, retry.Code)
			assert.Equal(t, tc.wantReplay, retry.Header().Get(ReplayHeader))
		})
	}
}

func TestIdempotencyCapsBody(t *testing.T) {
	t.Parallel()
	store := newMemoryReplays()
	called := false
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest("k7", `{"note":"`+strings.Repeat("x", maxIdempotentBody)+`"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "request body too large")
	assert.False(t, called)
	assert.Empty(t, store.data)
}
