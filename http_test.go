package rwportal

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	baseURL string
}

func (c testConfig) GetAPIBaseURL() string             { return c.baseURL }
func (c testConfig) GetRequestTimeout() time.Duration  { return 0 }
func (c testConfig) GetRetryAttempts() int             { return 1 }
func (c testConfig) GetCookieName() string             { return "" }
func (c testConfig) GetCookieMaxAge() time.Duration    { return 0 }
func (c testConfig) GetCookieSecure() bool             { return false }
func (c testConfig) GetProfileCacheSize() int          { return 0 }
func (c testConfig) GetProfileCacheTTL() time.Duration { return 0 }
func (c testConfig) GetLoginRoute() string             { return "" }
func (c testConfig) GetHomeRoute() string              { return "" }
func (c testConfig) GetLoginEndpoint() string          { return "" }
func (c testConfig) GetProfileEndpoint() string        { return "" }
func (c testConfig) GetVerifyEndpoint() string         { return "" }
func (c testConfig) GetGoogleAuthEndpoint() string     { return "" }

type recordingViews struct {
	mu    sync.Mutex
	binds map[string]fiber.Map
}

func (v *recordingViews) Load() error { return nil }

func (v *recordingViews) Render(w io.Writer, name string, bind interface{}, _ ...string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.binds == nil {
		v.binds = map[string]fiber.Map{}
	}
	m, _ := bind.(fiber.Map)
	v.binds[name] = m
	_, err := io.WriteString(w, name)
	return err
}

func (v *recordingViews) bind(name string) fiber.Map {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.binds[name]
}

type guardHarness struct {
	app      *fiber.App
	api      *mockAuthAPI
	guard    *RouteGuard
	views    *recordingViews
	registry *ViewRegistry
}

func newGuardHarness(t *testing.T) *guardHarness {
	t.Helper()
	cfg := testConfig{baseURL: "http://api.invalid"}
	client, err := NewClientFromConfig(cfg)
	require.NoError(t, err)

	api := &mockAuthAPI{}
	guard := NewRouteGuard(cfg, client, WithAuthAPI(api))
	views := &recordingViews{}
	registry := NewViewRegistry(16, time.Minute)

	app := fiber.New(fiber.Config{Views: views, ErrorHandler: guard.ErrorHandler})
	RegisterAuthRoutes(app, NewAuthController(guard, WithViewRegistry(registry)))

	app.Get("/dashboard", guard.Protected(), func(c *fiber.Ctx) error {
		return c.SendString(CurrentUser(c).DisplayName)
	})
	app.Get("/users", guard.Protected(), guard.RequireRole(RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendString("users")
	})
	app.Get("/expired", guard.Protected(), func(c *fiber.Ctx) error {
		return NewUnauthorizedError()
	})
	app.Post("/votes", guard.Protected(), func(c *fiber.Ctx) error {
		guard.Store(c).Invalidate()
		return c.SendString("partial")
	})
	app.Get("/missing", func(c *fiber.Ctx) error {
		return ErrorFromResponse(http.StatusNotFound, []byte(`{"message":"Pengaduan tidak ditemukan"}`))
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("template exploded")
	})
	app.Get("/gone", func(c *fiber.Ctx) error {
		return fiber.ErrNotFound
	})

	return &guardHarness{app: app, api: api, guard: guard, views: views, registry: registry}
}

func (h *guardHarness) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func withToken(req *http.Request, token string) *http.Request {
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: token})
	return req
}

func formRequest(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func findCookie(resp *http.Response, name string) (*http.Cookie, bool) {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestProtectedRedirectsWithoutSession(t *testing.T) {
	h := newGuardHarness(t)

	resp := h.do(t, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, DefaultLoginRoute, resp.Header.Get("Location"))

	resp = h.do(t, formRequest("/votes", url.Values{}))
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("HX-Request", "true")
	resp = h.do(t, req)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, DefaultLoginRoute, resp.Header.Get("HX-Redirect"))

	h.api.AssertNotCalled(t, "Profile", mock.Anything, mock.Anything)
}

func TestProtectedWithValidSession(t *testing.T) {
	h := newGuardHarness(t)
	h.api.On("Profile", mock.Anything, "tok-1").Return(budi, nil)

	resp := h.do(t, withToken(httptest.NewRequest(http.MethodGet, "/dashboard", nil), "tok-1"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Budi", readBody(t, resp))
}

func TestProtectedClearsRejectedToken(t *testing.T) {
	h := newGuardHarness(t)
	h.api.On("Profile", mock.Anything, "tok-old").Return(nil, NewUnauthorizedError())

	resp := h.do(t, withToken(httptest.NewRequest(http.MethodGet, "/dashboard", nil), "tok-old"))
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, DefaultLoginRoute, resp.Header.Get("Location"))

	cookie, ok := findCookie(resp, DefaultCookieName)
	require.True(t, ok)
	assert.Empty(t, cookie.Value)
}

func TestRequireRole(t *testing.T) {
	h := newGuardHarness(t)
	h.api.On("Profile", mock.Anything, "tok-warga").Return(budi, nil)
	h.api.On("Profile", mock.Anything, "tok-admin").Return(&UserProfile{ID: "1", Username: "admin", Role: RoleAdmin}, nil)

	resp := h.do(t, withToken(httptest.NewRequest(http.MethodGet, "/users", nil), "tok-warga"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, MsgForbidden, h.views.bind("errors/403")["message"])

	resp = h.do(t, withToken(httptest.NewRequest(http.MethodGet, "/users", nil), "tok-admin"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnauthorizedDuringHandlerRedirectsOnce(t *testing.T) {
	h := newGuardHarness(t)
	h.api.On("Profile", mock.Anything, "tok-1").Return(budi, nil)

	resp := h.do(t, withToken(httptest.NewRequest(http.MethodGet, "/expired", nil), "tok-1"))
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, DefaultLoginRoute, resp.Header.Get("Location"))
	cookie, ok := findCookie(resp, DefaultCookieName)
	require.True(t, ok)
	assert.Empty(t, cookie.Value)

	resp = h.do(t, withToken(formRequest("/votes", url.Values{}), "tok-1"))
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.NotContains(t, readBody(t, resp), "partial")
}

func TestErrorHandler(t *testing.T) {
	h := newGuardHarness(t)

	resp := h.do(t, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Pengaduan tidak ditemukan", h.views.bind("errors/404")["message"])

	resp = h.do(t, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, MsgGeneric, h.views.bind("errors/500")["message"])

	resp = h.do(t, httptest.NewRequest(http.MethodGet, "/gone", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "errors/404", readBody(t, resp))
}

func TestIndexRedirects(t *testing.T) {
	h := newGuardHarness(t)
	h.api.On("Profile", mock.Anything, "tok-1").Return(budi, nil)

	resp := h.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, DefaultLoginRoute, resp.Header.Get("Location"))

	resp = h.do(t, withToken(httptest.NewRequest(http.MethodGet, "/", nil), "tok-1"))
	assert.Equal(t, DefaultHomeRoute, resp.Header.Get("Location"))
}

func TestLoginShow(t *testing.T) {
	h := newGuardHarness(t)
	h.api.On("Profile", mock.Anything, "tok-1").Return(budi, nil)

	resp := h.do(t, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/auth/google", h.views.bind("login")["google_url"])

	resp = h.do(t, withToken(httptest.NewRequest(http.MethodGet, "/login", nil), "tok-1"))
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, DefaultHomeRoute, resp.Header.Get("Location"))
}

func TestLoginPost(t *testing.T) {
	h := newGuardHarness(t)
	h.api.On("Login", mock.Anything, Credentials{Username: "budi", Password: "warga123"}).Return("tok-1", budi, nil)

	resp := h.do(t, formRequest("/login", url.Values{"username": {" budi "}, "password": {"warga123"}}))
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, DefaultHomeRoute, resp.Header.Get("Location"))

	cookie, ok := findCookie(resp, DefaultCookieName)
	require.True(t, ok)
	assert.Equal(t, "tok-1", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	h.api.AssertExpectations(t)
}

func TestLoginPostRejected(t *testing.T) {
	h := newGuardHarness(t)
	h.api.On("Login", mock.Anything, mock.Anything).Return("", nil, NewInvalidCredentialsError())

	resp := h.do(t, formRequest("/login", url.Values{"username": {"budi"}, "password": {"salah"}}))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_, ok := findCookie(resp, DefaultCookieName)
	assert.False(t, ok)

	bind := h.views.bind("login")
	assert.Equal(t, MsgInvalidCredentials, bind["error"])
	record := bind["record"].(Credentials)
	assert.Equal(t, "budi", record.Username)
	assert.Empty(t, record.Password)
}

func TestLoginPostValidation(t *testing.T) {
	h := newGuardHarness(t)

	resp := h.do(t, formRequest("/login", url.Values{"username": {""}, "password": {""}}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	fields := h.views.bind("login")["errors"].(map[string]string)
	assert.Contains(t, fields, "username")
	h.api.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
}

func TestLogoutForgetsViews(t *testing.T) {
	h := newGuardHarness(t)
	h.registry.Sequencer("tok-1", "complaints").Next(ListParams{Page: 3})

	resp := h.do(t, withToken(formRequest("/logout", url.Values{}), "tok-1"))
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, DefaultLoginRoute, resp.Header.Get("Location"))

	cookie, ok := findCookie(resp, DefaultCookieName)
	require.True(t, ok)
	assert.Empty(t, cookie.Value)

	_, ok = h.registry.Sequencer("tok-1", "complaints").LastParams()
	assert.False(t, ok)

	resp = h.do(t, httptest.NewRequest(http.MethodGet, "/logout", nil))
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestGoogleSignIn(t *testing.T) {
	h := newGuardHarness(t)
	h.api.On("Verify", mock.Anything, "g-tok").Return(budi, nil)
	h.api.On("Verify", mock.Anything, "g-bad").Return(nil, NewUnauthorizedError())

	resp := h.do(t, httptest.NewRequest(http.MethodGet, "/auth/google", nil))
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "http://api.invalid/api/auth/google", resp.Header.Get("Location"))

	resp = h.do(t, httptest.NewRequest(http.MethodGet, "/auth/callback?error=unauthorized", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, MsgGoogleUnregistered, h.views.bind("login")["error"])

	resp = h.do(t, httptest.NewRequest(http.MethodGet, "/auth/callback", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(t, httptest.NewRequest(http.MethodGet, "/auth/callback?token=g-bad", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, MsgGoogleFailed, h.views.bind("login")["error"])

	resp = h.do(t, httptest.NewRequest(http.MethodGet, "/auth/callback?token=g-tok", nil))
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, DefaultHomeRoute, resp.Header.Get("Location"))
	cookie, ok := findCookie(resp, DefaultCookieName)
	require.True(t, ok)
	assert.Equal(t, "g-tok", cookie.Value)
}

func TestGoogleErrorMessage(t *testing.T) {
	assert.Equal(t, MsgGoogleUnregistered, GoogleErrorMessage("unauthorized"))
	assert.Equal(t, MsgGoogleFailed, GoogleErrorMessage("authentication_failed"))
	assert.Equal(t, MsgLoginFailed, GoogleErrorMessage("weird"))
}
