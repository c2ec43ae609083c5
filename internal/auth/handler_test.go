package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-auth/aegis/internal/guard"
	"github.com/aegis-auth/aegis/internal/shared"
)

type fakeRegistrar struct {
	provider string
	email    string
	id       int64
}

func (f *fakeRegistrar) Register(_ context.Context, provider, email, _, _ string) (int64, error) {
	f.provider = provider
	f.email = email
	f.id = 42
	return f.id, nil
}

type fakeGranter struct {
	userID int64
	slug   string
}

func (f *fakeGranter) AssignRoleBySlug(_ context.Context, userID int64, slug string) error {
	f.userID = userID
	f.slug = slug
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubResetter struct {
	beganProvider string
	beganEmail    string
	resetToken    string
	resetErr      error
}

func (s *stubResetter) Begin(_ context.Context, provider, email string) error {
	s.beganProvider = provider
	s.beganEmail = email
	return nil
}

func (s *stubResetter) Reset(_ context.Context, token, _ string) error {
	s.resetToken = token
	return s.resetErr
}

func newAuthServer(t *testing.T, stores *memStores, registrar Registrar, resetter PasswordResetter, granter RoleGranter, cfg HandlerConfig) http.Handler {
	t.Helper()
	factory := testFactory(stores, Config{})
	resolver := guard.NewResolver(testGuards(), factory.GuardProbe())
	handler := NewHandler(discardLogger(), factory, resolver, registrar, nil, resetter, granter, nil, cfg)

	r := chi.NewRouter()
	r.Use(guard.Middleware(resolver))
	r.Route("/auth", handler.MountRoutes)
	return r
}

func postJSON(t *testing.T, srv http.Handler, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	return rr
}

func loginToken(t *testing.T, srv http.Handler) string {
	t.Helper()
	rr := postJSON(t, srv, "/auth/login", `{"identity":"kai@example.com","password":"secret123"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var result LoginResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.NotEmpty(t, result.Token)
	return result.Token
}

func TestLoginEndpoint(t *testing.T) {
	stores := newMemStores()
	seedAccount(t, stores, Account{Email: "kai@example.com"})
	srv := newAuthServer(t, stores, nil, nil, nil, HandlerConfig{})

	loginToken(t, srv)

	rr := postJSON(t, srv, "/auth/login", `{"identity":"kai@example.com","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = postJSON(t, srv, "/auth/login", `{"identity":"kai@example.com"}`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code, "missing password fails validation")
}

func TestLoginThrottle(t *testing.T) {
	stores := newMemStores()
	seedAccount(t, stores, Account{Email: "kai@example.com"})
	srv := newAuthServer(t, stores, nil, nil, nil, HandlerConfig{Throttle: 2})

	body := `{"identity":"kai@example.com","password":"wrong"}`
	for i := 0; i < 2; i++ {
		rr := postJSON(t, srv, "/auth/login", body, "")
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}
	rr := postJSON(t, srv, "/auth/login", body, "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestMeAndLogout(t *testing.T) {
	stores := newMemStores()
	account := seedAccount(t, stores, Account{Email: "kai@example.com"})
	srv := newAuthServer(t, stores, nil, nil, nil, HandlerConfig{})

	token := loginToken(t, srv)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var me struct {
		UserID int64  `json:"user_id"`
		Guard  string `json:"guard"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))
	assert.Equal(t, account.ID, me.UserID)
	assert.Equal(t, "api", me.Guard)

	rr = postJSON(t, srv, "/auth/logout", "", token)
	require.Equal(t, http.StatusNoContent, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRefreshEndpointRotatesToken(t *testing.T) {
	stores := newMemStores()
	seedAccount(t, stores, Account{Email: "kai@example.com"})
	srv := newAuthServer(t, stores, nil, nil, nil, HandlerConfig{})

	token := loginToken(t, srv)
	rr := postJSON(t, srv, "/auth/refresh", "", token)
	require.Equal(t, http.StatusOK, rr.Code)
	var result LoginResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.NotEmpty(t, result.Token)
	assert.NotEqual(t, token, result.Token)
}

func TestForgotPasswordEndpoint(t *testing.T) {
	stores := newMemStores()
	seedAccount(t, stores, Account{Email: "kai@example.com"})
	resetter := &stubResetter{}
	srv := newAuthServer(t, stores, nil, resetter, nil, HandlerConfig{})

	rr := postJSON(t, srv, "/auth/forgot-password", `{"email":"kai@example.com"}`, "")
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Equal(t, "users", resetter.beganProvider, "provider follows the resolved guard")
	assert.Equal(t, "kai@example.com", resetter.beganEmail)

	// Unknown accounts get the identical response.
	ghost := postJSON(t, srv, "/auth/forgot-password", `{"email":"ghost@example.com"}`, "")
	assert.Equal(t, rr.Code, ghost.Code)
	assert.Equal(t, rr.Body.String(), ghost.Body.String())

	rr = postJSON(t, srv, "/auth/forgot-password", `{"email":"not-an-email"}`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestResetPasswordEndpoint(t *testing.T) {
	stores := newMemStores()
	resetter := &stubResetter{}
	srv := newAuthServer(t, stores, nil, resetter, nil, HandlerConfig{})

	rr := postJSON(t, srv, "/auth/reset-password", `{"token":"tok-1","password":"newsecret99"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "tok-1", resetter.resetToken)

	resetter.resetErr = shared.ErrTokenInvalid
	rr = postJSON(t, srv, "/auth/reset-password", `{"token":"tok-2","password":"newsecret99"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = postJSON(t, srv, "/auth/reset-password", `{"token":"tok-3","password":"short"}`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code, "password below minimum length is rejected")
}

func TestRegisterGrantsDefaultRole(t *testing.T) {
	stores := newMemStores()
	registrar := &fakeRegistrar{}
	granter := &fakeGranter{}
	srv := newAuthServer(t, stores, registrar, nil, granter, HandlerConfig{DefaultRoleSlug: "user"})

	rr := postJSON(t, srv, "/auth/register", `{"email":"new@example.com","password":"secret123"}`, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	assert.Equal(t, "users", registrar.provider, "provider follows the resolved guard")
	assert.Equal(t, "new@example.com", registrar.email)
	assert.Equal(t, int64(42), granter.userID)
	assert.Equal(t, "user", granter.slug)
}
