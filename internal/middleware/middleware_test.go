package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type touchRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *touchRecorder) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func testRouter(cfg SessionConfig, passwordHash string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Sessions(cfg))
	r.POST("/login", func(c *gin.Context) {
		if !CheckPassword(passwordHash, c.PostForm("password")) {
			c.Status(http.StatusUnauthorized)
			return
		}
		_ = SetAuthenticated(c, cfg, true)
		c.Status(http.StatusNoContent)
	})

	gated := r.Group("/", PasswordGate(passwordHash))
	gated.GET("/whoami", func(c *gin.Context) { c.String(http.StatusOK, GetSessionID(c)) })
	gated.GET("/api/v1/whoami", func(c *gin.Context) { c.String(http.StatusOK, GetSessionID(c)) })
	return r
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	// The last Set-Cookie wins, as in a browser.
	var found *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie {
			found = c
		}
	}
	require.NotNil(t, found, "no %s cookie in response", SessionCookie)
	return found
}

func do(r http.Handler, method, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func login(r http.Handler, password string, cookie *http.Cookie) *httptest.ResponseRecorder {
	form := url.Values{"password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSessionTokenRoundTrip(t *testing.T) {
	token, err := GenerateSessionToken("sid-1", true, "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseSessionToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "sid-1", claims.SessionID)
	assert.True(t, claims.Authenticated)

	_, err = ParseSessionToken(token, "other-secret")
	assert.Error(t, err)

	expired, err := GenerateSessionToken("sid-1", false, "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseSessionToken(expired, "secret")
	assert.Error(t, err)
}

func TestSessionsAssignAndKeepID(t *testing.T) {
	rec := &touchRecorder{}
	r := testRouter(SessionConfig{Secret: "s", TTL: time.Hour, Store: rec}, "")

	w := do(r, http.MethodGet, "/whoami", nil)
	require.Equal(t, http.StatusOK, w.Code)
	first := w.Body.String()
	assert.NotEmpty(t, first)

	cookie := sessionCookie(t, w)
	assert.True(t, cookie.HttpOnly)

	w = do(r, http.MethodGet, "/whoami", cookie)
	assert.Equal(t, first, w.Body.String(), "same cookie, same session")

	w = do(r, http.MethodGet, "/whoami", nil)
	assert.NotEqual(t, first, w.Body.String(), "new browser, new session")

	tampered := &http.Cookie{Name: SessionCookie, Value: cookie.Value + "x"}
	w = do(r, http.MethodGet, "/whoami", tampered)
	assert.NotEqual(t, first, w.Body.String(), "tampered cookie starts over")

	assert.Len(t, rec.ids, 4)
}

func TestPasswordGate(t *testing.T) {
	hash, err := HashPassword("open sesame")
	require.NoError(t, err)
	cfg := SessionConfig{Secret: "s", TTL: time.Hour}
	r := testRouter(cfg, hash)

	w := do(r, http.MethodGet, "/whoami", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?next=%2Fwhoami", w.Header().Get("Location"))
	cookie := sessionCookie(t, w)

	w = do(r, http.MethodGet, "/api/v1/whoami", cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Wrong password.
	w = login(r, "nope", cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = login(r, "open sesame", cookie)
	require.Equal(t, http.StatusNoContent, w.Code)
	authed := sessionCookie(t, w)

	w = do(r, http.MethodGet, "/api/v1/whoami", authed)
	assert.Equal(t, http.StatusOK, w.Code)

	claims, err := ParseSessionToken(authed.Value, "s")
	require.NoError(t, err)
	orig, err := ParseSessionToken(cookie.Value, "s")
	require.NoError(t, err)
	assert.Equal(t, orig.SessionID, claims.SessionID, "login keeps the session")
}

func TestOpenGate(t *testing.T) {
	r := testRouter(SessionConfig{Secret: "s", TTL: time.Hour}, "")
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/whoami", nil).Code)
}

func TestSafeNext(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/runs/abc", "/runs/abc"},
		{"", "/"},
		{"https://evil.example", "/"},
		{"//evil.example", "/"},
		{"/\\evil.example", "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeNext(tt.in), tt.in)
	}
}

func corsRouter(origins []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(origins))
	r.GET("/api/v1/options", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/v1/analyses", func(c *gin.Context) { c.Status(http.StatusAccepted) })
	return r
}

func corsRequest(r http.Handler, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/v1/analyses", nil)
	if method == http.MethodGet {
		req = httptest.NewRequest(method, "/api/v1/options", nil)
	}
	req.Header.Set("Origin", origin)
	if method == http.MethodOptions {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORSListedOriginsSendCredentials(t *testing.T) {
	r := corsRouter([]string{" http://localhost:5173/ ", ""})

	w := corsRequest(r, http.MethodOptions, "http://localhost:5173")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")

	w = corsRequest(r, http.MethodGet, "http://localhost:5173")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")

	w = corsRequest(r, http.MethodGet, "http://evil.example")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardDropsCredentials(t *testing.T) {
	r := corsRouter([]string{"*"})

	w := corsRequest(r, http.MethodGet, "http://anywhere.example")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSEmptyListIsSameOriginOnly(t *testing.T) {
	var r *gin.Engine
	require.NotPanics(t, func() { r = corsRouter(nil) })

	w := corsRequest(r, http.MethodGet, "http://localhost:5173")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNormalizeOrigins(t *testing.T) {
	got := normalizeOrigins([]string{"http://a.test/", " http://a.test", "", "https://b.test"})
	assert.Equal(t, []string{"http://a.test", "https://b.test"}, got)
}
