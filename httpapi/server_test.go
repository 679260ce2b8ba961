package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/middleware"
)

const password = "Passw0rd!23"

type mailbox struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (m *mailbox) NotifyPasswordReset(_ context.Context, email, token string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[email] = token
	return nil
}

func (m *mailbox) token(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[email]
}

type harness struct {
	srv      *httptest.Server
	accounts *authsession.MemoryAccountStore
	mail     *mailbox
	mr       *miniredis.Miniredis
}

func newHarness(t *testing.T, mutate func(*authsession.Config)) *harness {
	t.Helper()
	cfg := authsession.DefaultConfig()
	cfg.JWT.Secret = []byte(strings.Repeat("h", 64))
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Sweeper.Interval = 0
	if mutate != nil {
		mutate(&cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	accounts := authsession.NewMemoryAccountStore()
	mail := &mailbox{tokens: make(map[string]string)}

	engine, err := authsession.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithResetNotifier(mail).
		Build()
	require.NoError(t, err)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("authsession_login_success_total 0\n"))
	})
	api := New(engine, Options{
		Metrics: metrics,
		Health:  func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})
	srv := httptest.NewServer(api.Handler())

	t.Cleanup(func() {
		srv.Close()
		_ = engine.Close(context.Background())
		_ = rdb.Close()
	})
	return &harness{srv: srv, accounts: accounts, mail: mail, mr: mr}
}

func (h *harness) do(t *testing.T, method, path, bearer string, body any, headers ...string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (h *harness) registerAndLogin(t *testing.T, email string) authsession.TokenPair {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Alice", "email": email, "password": password,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[authsession.TokenPair](t, resp)
}

func TestRegisterLoginRefreshLogout(t *testing.T) {
	h := newHarness(t, nil)
	pair := h.registerAndLogin(t, "alice@example.com")
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.NotEmpty(t, pair.AccessToken)

	resp := h.do(t, http.MethodGet, "/api/users/me", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile := decode[ProfileResponse](t, resp)
	assert.Equal(t, "alice@example.com", profile.Email)
	assert.Equal(t, []string{authsession.DefaultRole}, profile.Roles)
	assert.True(t, profile.Enabled)

	resp = h.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": pair.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	next := decode[authsession.TokenPair](t, resp)

	resp = h.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	errBody := decode[ErrorResponse](t, resp)
	assert.Equal(t, "TOKEN_REVOKED", errBody.Code)
	assert.Equal(t, "/api/auth/refresh", errBody.Path)
	assert.False(t, errBody.Timestamp.IsZero())

	resp = h.do(t, http.MethodPost, "/api/auth/logout", next.AccessToken, map[string]string{"refresh_token": next.RefreshToken})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/users/me", next.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestErrorStatusMapping(t *testing.T) {
	h := newHarness(t, nil)
	h.registerAndLogin(t, "alice@example.com")

	resp := h.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "ALICE@example.com", "password": password,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "EMAIL_ALREADY_EXISTS", decode[ErrorResponse](t, resp).Code)

	resp = h.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "bob@example.com", "password": "weak",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[ErrorResponse](t, resp)
	assert.Equal(t, "PASSWORD_POLICY", body.Code)
	assert.Contains(t, body.Message, "Password does not meet the policy: ")

	resp = h.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "Wrong-Passw0rd"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIALS", decode[ErrorResponse](t, resp).Code)

	resp = h.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "alice@example.com", "extra": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", decode[ErrorResponse](t, resp).Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{authsession.ErrInvalidCredentials, http.StatusUnauthorized},
		{authsession.ErrTokenExpired, http.StatusUnauthorized},
		{&authsession.LockedError{Remaining: time.Minute}, http.StatusLocked},
		{&authsession.RateLimitError{Limit: 5}, http.StatusTooManyRequests},
		{authsession.ErrResetTokenInvalid, http.StatusBadRequest},
		{authsession.ErrPasswordReuse, http.StatusBadRequest},
		{authsession.ErrEmailAlreadyExists, http.StatusConflict},
		{authsession.ErrResourceNotFound, http.StatusNotFound},
		{middleware.ErrForbidden, http.StatusForbidden},
		{authsession.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{authsession.ErrInternal, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestLockoutReturns423(t *testing.T) {
	h := newHarness(t, func(cfg *authsession.Config) {
		cfg.Lockout.MaxAttempts = 2
		cfg.RateLimit.Enabled = false
	})
	h.registerAndLogin(t, "alice@example.com")

	for i := 0; i < 2; i++ {
		h.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "Wrong-Passw0rd"})
	}
	resp := h.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": password})
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, "ACCOUNT_LOCKED", decode[ErrorResponse](t, resp).Code)
}

func TestLoginRateLimit(t *testing.T) {
	h := newHarness(t, func(cfg *authsession.Config) {
		cfg.RateLimit.Rules[authsession.RateLogin] = authsession.RateRule{Capacity: 1, Window: time.Minute}
	})

	creds := map[string]string{"email": "nobody@example.com", "password": password}
	first := h.do(t, http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusUnauthorized, first.StatusCode)
	assert.Equal(t, "1", first.Header.Get("X-RateLimit-Limit"))

	second := h.do(t, http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.NotEmpty(t, second.Header.Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", decode[ErrorResponse](t, second).Code)
}

func TestPasswordFlows(t *testing.T) {
	h := newHarness(t, nil)
	pair := h.registerAndLogin(t, "alice@example.com")

	resp := h.do(t, http.MethodPost, "/api/auth/change-password", pair.AccessToken, map[string]string{
		"current_password": password, "new_password": password,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "PASSWORD_REUSE", decode[ErrorResponse](t, resp).Code)

	resp = h.do(t, http.MethodPost, "/api/auth/change-password", pair.AccessToken, map[string]string{
		"current_password": password, "new_password": "Chang3d-Passw0rd",
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = h.do(t, http.MethodPost, "/api/auth/forgot-password", "", map[string]string{"email": "alice@example.com"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	token := h.mail.token("alice@example.com")
	require.NotEmpty(t, token)

	resp = h.do(t, http.MethodPost, "/api/auth/reset-password", "", map[string]string{"token": token, "new_password": "R3set-Passw0rd"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = h.do(t, http.MethodPost, "/api/auth/reset-password", "", map[string]string{"token": token, "new_password": "R3set-Passw0rd"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "RESET_TOKEN_INVALID", decode[ErrorResponse](t, resp).Code)

	resp = h.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "R3set-Passw0rd"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionsEndpoints(t *testing.T) {
	h := newHarness(t, nil)
	first := h.registerAndLogin(t, "alice@example.com")

	resp := h.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": password},
		"X-Device-Name", "phone")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode[authsession.TokenPair](t, resp)

	resp = h.do(t, http.MethodGet, "/api/users/me/sessions", first.AccessToken, nil, "X-Refresh-Token", first.RefreshToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sessions := decode[[]authsession.SessionInfo](t, resp)
	require.Len(t, sessions, 2)

	var phoneID string
	for _, s := range sessions {
		if s.DeviceName == "phone" {
			phoneID = s.ID
			assert.False(t, s.Current)
		}
	}
	require.NotEmpty(t, phoneID)

	resp = h.do(t, http.MethodDelete, "/api/users/me/sessions/"+phoneID, first.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = h.do(t, http.MethodDelete, "/api/users/me/sessions/"+phoneID+"x", first.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": second.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/auth/logout-all", first.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = h.do(t, http.MethodGet, "/api/users/me", first.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRequiresRole(t *testing.T) {
	h := newHarness(t, nil)
	pair := h.registerAndLogin(t, "alice@example.com")

	resp := h.do(t, http.MethodGet, "/api/admin/ping", pair.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "ACCESS_DENIED", decode[ErrorResponse](t, resp).Code)

	account, err := h.accounts.AccountByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.NoError(t, h.accounts.SetRoles(context.Background(), account.ID, []string{"USER", "ADMIN"}))

	resp = h.do(t, http.MethodGet, "/api/admin/ping", pair.AccessToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/admin/ping", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	h.mr.Close()
	resp = h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRecovererRendersPanic(t *testing.T) {
	s := New(nil, Options{})
	h := s.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/explode", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL_SERVER_ERROR", body.Code)
	assert.Equal(t, "/explode", body.Path)
}
