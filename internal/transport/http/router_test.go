package http

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-notify-engine/internal/config"
	"github.com/go-notify-engine/internal/domain"
	jwtinfra "github.com/go-notify-engine/internal/infrastructure/jwt"
)

type stubDispatcher struct{ calls int }

func (s *stubDispatcher) ProcessPending(_ context.Context, now time.Time) (*domain.DispatchReport, error) {
	s.calls++
	return &domain.DispatchReport{RunID: "r", Now: now}, nil
}

type stubHistory struct{}

func (stubHistory) List(_ context.Context, _ domain.Caller, _, _ int) (*domain.HistoryPage, error) {
	return &domain.HistoryPage{}, nil
}

func newRouter(t *testing.T) (http.Handler, *jwtinfra.Provider, *stubDispatcher) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	p := jwtinfra.NewProviderFromKeys(key, &key.PublicKey, time.Hour)
	d := &stubDispatcher{}
	cfg := &config.Config{AppEnv: "test", CronSecret: "tick", AllowedOrigins: []string{"*"}}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) })
	return NewRouter(cfg, &Deps{Dispatcher: d, History: stubHistory{}, JWTProvider: p, Metrics: metrics}), p, d
}

func do(h http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_CronRequiresSecret(t *testing.T) {
	h, _, d := newRouter(t)

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/v1/cron/notifications", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/v1/cron/notifications", map[string]string{"x-cron-secret": "tock"}).Code)
	assert.Equal(t, 0, d.calls)

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/v1/cron/notifications", map[string]string{"x-cron-secret": "tick"}).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/v1/cron/notifications", map[string]string{"x-cron-secret": "tick"}).Code)
	assert.Equal(t, 2, d.calls)
}

func TestRouter_AdminHistoryGate(t *testing.T) {
	h, p, _ := newRouter(t)
	userTok, err := p.Sign("u1", domain.RoleUser, "s")
	require.NoError(t, err)
	adminTok, err := p.Sign("a1", domain.RoleAdmin, "s")
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/v1/admin/notifications/history", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodGet, "/v1/admin/notifications/history",
		map[string]string{"Authorization": "Bearer " + userTok}).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/v1/admin/notifications/history",
		map[string]string{"Authorization": "Bearer " + adminTok}).Code)
}

func TestRouter_PublicEndpoints(t *testing.T) {
	h, _, _ := newRouter(t)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/v1/health-check/ping", nil).Code)
	rr := do(h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "# metrics")
}

func TestRouter_TokenEndpointsNeedSession(t *testing.T) {
	h, _, _ := newRouter(t)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/v1/push-tokens", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/v1/trial/notifications", nil).Code)
}
