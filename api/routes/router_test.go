package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type stubStore struct{}

func (stubStore) Get(context.Context, string) (string, error) { return "", goredis.Nil }
func (stubStore) SetNX(context.Context, string, any, time.Duration) (bool, error) {
	return true, nil
}
func (stubStore) Set(context.Context, string, any, time.Duration) error { return nil }
func (stubStore) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }
func (stubStore) Del(context.Context, ...string) error   { return nil }
func (stubStore) IncrWithTTL(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}
func (stubStore) RateLimitKey(scope string) string { return "rl:" + scope }

type stubSessions struct{}

func (stubSessions) HasSession(context.Context, string) (bool, error) { return true, nil }

type stubPasses struct {
	session string
	token   string
}

func (s stubPasses) Check(_ context.Context, sessionID, tokenID string) (bool, error) {
	return sessionID == s.session && tokenID == s.token, nil
}

// stubProfileRoles answers role lookups with the stored role only.
type stubProfileRoles struct {
	users.Service
	role enums.UserRole
}

func (s stubProfileRoles) CurrentRole(context.Context, uuid.UUID) (enums.UserRole, error) {
	return s.role, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 10},
		AuthRateLimit: config.AuthRateLimitConfig{
			LoginWindow:        time.Minute,
			LoginIPLimit:       10,
			LoginEmailLimit:    10,
			RegisterWindow:     time.Minute,
			RegisterIPLimit:    10,
			RegisterEmailLimit: 10,
			HeadquartersWindow: time.Minute,
			HeadquartersLimit:  5,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:5173"}},
	}
}

func newTestRouter(t *testing.T, passes stubPasses) (http.Handler, *config.Config) {
	t.Helper()
	return newTestRouterWithRole(t, passes, enums.UserRoleUser)
}

func newTestRouterWithRole(t *testing.T, passes stubPasses, stored enums.UserRole) (http.Handler, *config.Config) {
	t.Helper()
	cfg := testConfig()
	return NewRouter(Params{
		Config:   cfg,
		Store:    stubStore{},
		Sessions: stubSessions{},
		Users:    stubProfileRoles{role: stored},
		Passes:   passes,
		Gatherer: prometheus.NewRegistry(),
		Now:      func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) },
	}), cfg
}

func bearer(t *testing.T, cfg *config.Config, role enums.UserRole) (string, string) {
	t.Helper()
	accessID := session.NewAccessID()
	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
		JTI:    accessID,
	})
	require.NoError(t, err)
	return token, accessID
}

func TestHealthLive(t *testing.T) {
	router, _ := newTestRouter(t, stubPasses{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "test", resp.Header().Get("X-Storefront-Env"))
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, stubPasses{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, resp.Code)
}

func TestStorefrontRoutesRequireToken(t *testing.T) {
	router, _ := newTestRouter(t, stubPasses{})

	for _, path := range []string{"/api/v1/me", "/api/v1/cart", "/api/v1/orders"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusUnauthorized, resp.Code, path)
	}
}

func TestAdminRoutesRejectCustomerWithoutPass(t *testing.T) {
	router, cfg := newTestRouter(t, stubPasses{})
	token, _ := bearer(t, cfg, enums.UserRoleUser)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/media/paths",
		strings.NewReader(`{"purpose":"products/main","filename":"a.png"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestAdminRoutesAcceptHeadquartersPass(t *testing.T) {
	cfg := testConfig()
	token, accessID := bearer(t, cfg, enums.UserRoleUser)
	router, _ := newTestRouter(t, stubPasses{session: accessID, token: "pass-1"})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/media/paths",
		strings.NewReader(`{"purpose":"products/main","filename":"a.png"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(middleware.HQPassHeader, "pass-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	require.Contains(t, resp.Body.String(), "products/")
}

func TestAdminRoutesAcceptAdminRole(t *testing.T) {
	router, cfg := newTestRouterWithRole(t, stubPasses{}, enums.UserRoleAdmin)
	token, _ := bearer(t, cfg, enums.UserRoleAdmin)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/media/paths",
		strings.NewReader(`{"purpose":"homepage/hero","filename":"hero.jpg"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
}

func TestAdminRoutesRejectDemotedAdminToken(t *testing.T) {
	router, cfg := newTestRouterWithRole(t, stubPasses{}, enums.UserRoleUser)
	token, _ := bearer(t, cfg, enums.UserRoleAdmin)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/media/paths",
		strings.NewReader(`{"purpose":"homepage/hero","filename":"hero.jpg"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusForbidden, resp.Code, resp.Body.String())
}
