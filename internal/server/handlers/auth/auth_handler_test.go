package auth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/openmined/drivegate/internal/drive/drivetest"
	"github.com/openmined/drivegate/internal/googleauth"
	"github.com/openmined/drivegate/internal/server/auth"
	"github.com/openmined/drivegate/internal/server/session"
)

const cookieName = "drivegate_session"

type testEnv struct {
	router  *gin.Engine
	auth    *auth.AuthService
	fake    *drivetest.Server
	handler *AuthHandler
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := drivetest.New(t)
	sessions := session.NewStore(&session.Config{
		CookieName: cookieName,
		Secret:     strings.Repeat("k", 32),
		TTL:        time.Hour,
	})
	svc, err := auth.NewAuthService(&auth.Config{
		ClientID:      "client",
		ClientSecret:  "secret",
		RedirectURL:   "http://localhost/signin-google",
		StateExpiry:   time.Minute,
		PostLoginPath: "/",
		AuthURL:       fake.AuthURL(),
		TokenURL:      fake.TokenURL(),
		APIEndpoint:   fake.APIEndpoint(),
	}, sessions)
	require.NoError(t, err)

	h := New(svc)
	r := gin.New()
	r.GET("/api/Drive/User/Auth", h.Auth)
	r.GET("/signin-google", h.Callback)
	r.GET("/api/Drive/User/IsAuthorized", h.IsAuthorized)
	r.POST("/api/Drive/User/Logout", h.Logout)
	r.GET("/api/Drive/User/UserInfo", func(ctx *gin.Context) {
		if sess, err := sessions.FromRequest(ctx); err == nil {
			session.SetContext(ctx, sess)
		}
	}, h.UserInfo)

	return &testEnv{router: r, auth: svc, fake: fake, handler: h}
}

func (e *testEnv) do(method, target, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: cookie})
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()

	w := e.do(http.MethodGet, "/api/Drive/User/Auth", "")
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)

	w = e.do(http.MethodGet, "/signin-google?code="+drivetest.AuthCode+"&state="+url.QueryEscape(loc.Query().Get("state")), "")
	require.Equal(t, http.StatusFound, w.Code)

	for _, c := range w.Result().Cookies() {
		if c.Name == cookieName {
			return c.Value
		}
	}
	t.Fatal("no session cookie set")
	return ""
}

func TestAuth_RedirectsToConsent(t *testing.T) {
	env := setupTest(t)

	w := env.do(http.MethodGet, "/api/Drive/User/Auth", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), env.fake.AuthURL()))
}

func TestAuth_AlreadyAuthorized(t *testing.T) {
	env := setupTest(t)
	cookie := env.login(t)

	w := env.do(http.MethodGet, "/api/Drive/User/Auth", cookie)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestAuth_MissingScopesStartsLogin(t *testing.T) {
	env := setupTest(t)
	_, cookie, err := env.auth.Sessions().Create(session.Profile{Subject: "1"}, &oauth2.Token{AccessToken: drivetest.AccessToken}, []string{googleauth.ServerScopes()[0]})
	require.NoError(t, err)

	w := env.do(http.MethodGet, "/api/Drive/User/Auth", cookie)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), env.fake.AuthURL()))
}

func TestCallback_SetsCookieAndRedirects(t *testing.T) {
	env := setupTest(t)

	w := env.do(http.MethodGet, "/api/Drive/User/Auth?returnUrl=%2Ffiles", "")
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)

	w = env.do(http.MethodGet, "/signin-google?code="+drivetest.AuthCode+"&state="+url.QueryEscape(loc.Query().Get("state")), "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/files", w.Header().Get("Location"))

	setCookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, setCookie, cookieName+"=")
	assert.Contains(t, setCookie, "HttpOnly")
	assert.Contains(t, setCookie, "SameSite=Lax")
}

func TestCallback_Errors(t *testing.T) {
	env := setupTest(t)

	w := env.do(http.MethodGet, "/signin-google?code=x&state=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "E_AUTH_INVALID_STATE")

	state := func() string {
		w := env.do(http.MethodGet, "/api/Drive/User/Auth", "")
		loc, _ := url.Parse(w.Header().Get("Location"))
		return url.QueryEscape(loc.Query().Get("state"))
	}

	w = env.do(http.MethodGet, "/signin-google?error=access_denied&state="+state(), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "E_AUTH_LOGIN_FAILED")

	w = env.do(http.MethodGet, "/signin-google?state="+state(), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/signin-google?code=wrong&state="+state(), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Header().Get("Set-Cookie"))
}

func TestIsAuthorized(t *testing.T) {
	env := setupTest(t)

	w := env.do(http.MethodGet, "/api/Drive/User/IsAuthorized", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "false", w.Body.String())

	w = env.do(http.MethodGet, "/api/Drive/User/IsAuthorized", "garbage")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "false", w.Body.String())

	cookie := env.login(t)
	w = env.do(http.MethodGet, "/api/Drive/User/IsAuthorized", cookie)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Body.String())
}

func TestLogout(t *testing.T) {
	env := setupTest(t)
	cookie := env.login(t)

	w := env.do(http.MethodPost, "/api/Drive/User/Logout", cookie)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "Max-Age=0")

	w = env.do(http.MethodGet, "/api/Drive/User/IsAuthorized", cookie)
	assert.Equal(t, "false", w.Body.String())

	w = env.do(http.MethodPost, "/api/Drive/User/Logout", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestUserInfo(t *testing.T) {
	env := setupTest(t)

	w := env.do(http.MethodGet, "/api/Drive/User/UserInfo", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	cookie := env.login(t)
	w = env.do(http.MethodGet, "/api/Drive/User/UserInfo", cookie)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"`+drivetest.DefaultUser.Name+`"`)
	assert.Contains(t, w.Body.String(), `"id":"`+drivetest.DefaultUser.ID+`"`)
}
