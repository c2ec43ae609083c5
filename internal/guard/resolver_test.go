package guard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(enabled bool) Config {
	return Config{
		Enabled: enabled,
		Default: "api",
		Prefixes: map[string]string{
			"api":   "user",
			"admin": "admin",
		},
		Providers: map[string]string{
			"api":   "users",
			"admin": "admins",
		},
	}
}

func TestResolveContextWins(t *testing.T) {
	res := NewResolver(testConfig(true), nil)
	r := httptest.NewRequest(http.MethodGet, "/auth/admin/me?guard=api", nil)
	r = r.WithContext(WithGuard(r.Context(), "admin"))

	assert.Equal(t, "admin", res.Resolve(r))
}

func TestResolveExplicitQueryAndHeader(t *testing.T) {
	res := NewResolver(testConfig(true), nil)

	r := httptest.NewRequest(http.MethodGet, "/me?guard=admin", nil)
	assert.Equal(t, "admin", res.Resolve(r))

	r = httptest.NewRequest(http.MethodGet, "/me", nil)
	r.Header.Set("X-Guard", "admin")
	assert.Equal(t, "admin", res.Resolve(r))

	// unconfigured guard names are ignored
	r = httptest.NewRequest(http.MethodGet, "/me?guard=nope", nil)
	assert.Equal(t, "api", res.Resolve(r))
}

func TestResolveSingleGuardAlwaysDefault(t *testing.T) {
	res := NewResolver(testConfig(false), nil)
	r := httptest.NewRequest(http.MethodGet, "/auth/admin/login", nil)

	assert.Equal(t, "api", res.Resolve(r))
}

func TestResolveRouteInference(t *testing.T) {
	res := NewResolver(testConfig(true), nil)

	r := httptest.NewRequest(http.MethodPost, "/auth/admin/login", nil)
	assert.Equal(t, "admin", res.Resolve(r))

	r = httptest.NewRequest(http.MethodPost, "/auth/user/login", nil)
	assert.Equal(t, "api", res.Resolve(r))
}

func TestResolveProbeFallback(t *testing.T) {
	probe := func(r *http.Request, guard string) bool {
		return guard == "admin" && r.Header.Get("Authorization") != ""
	}
	res := NewResolver(testConfig(true), probe)

	r := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	r.Header.Set("Authorization", "Bearer x")
	assert.Equal(t, "admin", res.Resolve(r))

	r = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	assert.Equal(t, "api", res.Resolve(r))
}

func TestMiddlewareMemoizes(t *testing.T) {
	res := NewResolver(testConfig(true), nil)
	var seen string
	h := Middleware(res)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodPost, "/auth/admin/login", nil)
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "admin", seen)
}

func TestUserSpaceFailsFast(t *testing.T) {
	cfg := testConfig(true)

	provider, err := cfg.UserSpace("api")
	require.NoError(t, err)
	assert.Equal(t, "users", provider)

	_, err = cfg.UserSpace("ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration error")
}
