package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"dashboard-service/internal/domain/auth"
	"dashboard-service/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeRevocations struct {
	revoked map[string]bool
	err     error
}

func (f *fakeRevocations) IsRevoked(_ context.Context, _ int64, jti string, _ time.Time) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[jti], nil
}

type guardFixture struct {
	clock       *clock
	tokens      *jwt.Manager
	revocations *fakeRevocations
	policy      *RoutePolicy
	guard       *Guard
	cookie      CookieConfig
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	k := signingKey(t)
	tokens := jwt.NewManager(k, &k.PublicKey, jwt.Config{Issuer: "dashboard-service", Audience: "dashboard"}, clk.Now)

	policy := NewRoutePolicy("/login", "/dashboard", AccessNone, map[string]Access{
		"/dashboard":         AccessAuthenticated,
		"/api/v1":            AccessAuthenticated,
		"/api/v1/auth/login": AccessNone,
		"/api/v1/auth/reset": AccessNone,
		"/api/v1/health":     AccessNone,
		"/ws":                AccessAuthenticated,
		"/static/":           AccessNone,
	})
	rev := &fakeRevocations{revoked: map[string]bool{}}
	cookie := CookieConfig{Name: "dash", Secure: true, MaxAge: time.Hour}

	return &guardFixture{
		clock:       clk,
		tokens:      tokens,
		revocations: rev,
		policy:      policy,
		cookie:      cookie,
		guard:       NewGuard(policy, tokens, rev, cookie, nil, zap.NewNop()),
	}
}

func (f *guardFixture) issue(t *testing.T, role auth.Role) (string, *jwt.Claims) {
	t.Helper()
	token, claims, err := f.tokens.Issue(7, role, "Ada", nil)
	require.NoError(t, err)
	return token, claims
}

func TestRoutePolicy_Classify(t *testing.T) {
	f := newGuardFixture(t)

	cases := map[string]Access{
		"/dashboard":           AccessAuthenticated,
		"/dashboard/reports":   AccessAuthenticated,
		"/dashboards":          AccessNone,
		"/api/v1/auth/me":      AccessAuthenticated,
		"/api/v1/auth/login":   AccessNone,
		"/api/v1/auth/reset/x": AccessNone,
		"/api/v1/health":       AccessNone,
		"/static/app.js":       AccessNone,
		"/reset/request":       AccessNone,
		"/":                    AccessNone,
	}
	for path, want := range cases {
		assert.Equal(t, want, f.policy.Classify(path), path)
	}
}

func TestParseAccess(t *testing.T) {
	a, ok := ParseAccess("authenticated")
	assert.True(t, ok)
	assert.Equal(t, AccessAuthenticated, a)

	a, ok = ParseAccess(" None ")
	assert.True(t, ok)
	assert.Equal(t, AccessNone, a)

	_, ok = ParseAccess("maybe")
	assert.False(t, ok)
}

func TestAuthorize_NoTokenRedirectsWithCallback(t *testing.T) {
	f := newGuardFixture(t)

	d := f.guard.Authorize(context.Background(), "/dashboard/reports?tab=1", "")
	assert.Equal(t, RedirectToLogin, d.Outcome)
	assert.Equal(t, "/dashboard/reports?tab=1", d.Callback)
	assert.False(t, d.TimedOut)

	loc, err := url.Parse(d.Location(f.policy))
	require.NoError(t, err)
	assert.Equal(t, "/login", loc.Path)
	assert.Equal(t, "/dashboard/reports?tab=1", loc.Query().Get("callbackUrl"))
	assert.Empty(t, loc.Query().Get("timeout"))
}

func TestAuthorize_ValidTokenAllowed(t *testing.T) {
	f := newGuardFixture(t)
	token, claims := f.issue(t, auth.RoleEditor)

	d := f.guard.Authorize(context.Background(), "/dashboard", token)
	assert.Equal(t, Allow, d.Outcome)
	require.NotNil(t, d.Claims)
	assert.Equal(t, claims.ID, d.Claims.ID)
}

func TestAuthorize_IdleTokenTimesOut(t *testing.T) {
	f := newGuardFixture(t)
	token, _ := f.issue(t, auth.RoleUser)

	f.clock.Advance(8*time.Hour + time.Second)

	d := f.guard.Authorize(context.Background(), "/dashboard", token)
	assert.Equal(t, RedirectToLogin, d.Outcome)
	assert.True(t, d.TimedOut)
	assert.Contains(t, d.Location(f.policy), "timeout=true")
}

func TestAuthorize_TamperedTokenNotTimeout(t *testing.T) {
	f := newGuardFixture(t)
	token, _ := f.issue(t, auth.RoleUser)

	b := []byte(token)
	last := len(b) - 2
	if b[last] == 'A' {
		b[last] = 'B'
	} else {
		b[last] = 'A'
	}

	d := f.guard.Authorize(context.Background(), "/dashboard", string(b))
	assert.Equal(t, RedirectToLogin, d.Outcome)
	assert.False(t, d.TimedOut)
}

func TestAuthorize_LoginPath(t *testing.T) {
	f := newGuardFixture(t)
	token, _ := f.issue(t, auth.RoleUser)

	d := f.guard.Authorize(context.Background(), "/login", token)
	assert.Equal(t, RedirectToDashboard, d.Outcome)
	assert.Equal(t, "/dashboard", d.Location(f.policy))

	d = f.guard.Authorize(context.Background(), "/login", "")
	assert.Equal(t, Allow, d.Outcome)

	d = f.guard.Authorize(context.Background(), "/login?callbackUrl=%2Fdashboard", "not-a-token")
	assert.Equal(t, Allow, d.Outcome)
}

func TestAuthorize_PublicPathIgnoresToken(t *testing.T) {
	f := newGuardFixture(t)

	d := f.guard.Authorize(context.Background(), "/static/app.css", "garbage")
	assert.Equal(t, Allow, d.Outcome)
	assert.Nil(t, d.Claims)
}

func TestAuthorize_Revoked(t *testing.T) {
	f := newGuardFixture(t)
	token, claims := f.issue(t, auth.RoleUser)

	f.revocations.revoked[claims.ID] = true
	d := f.guard.Authorize(context.Background(), "/dashboard", token)
	assert.Equal(t, RedirectToLogin, d.Outcome)
	assert.False(t, d.TimedOut)

	f.revocations.revoked = map[string]bool{}
	f.revocations.err = errors.New("connection refused")
	d = f.guard.Authorize(context.Background(), "/dashboard", token)
	assert.Equal(t, RedirectToLogin, d.Outcome)
}

func TestAuthorize_DoesNotRefreshActivity(t *testing.T) {
	f := newGuardFixture(t)
	token, claims := f.issue(t, auth.RoleUser)

	f.clock.Advance(time.Hour)
	d := f.guard.Authorize(context.Background(), "/dashboard", token)
	require.Equal(t, Allow, d.Outcome)
	assert.Equal(t, claims.LastActivity, d.Claims.LastActivity)
}

// ---- HTTP ----

func (f *guardFixture) router(extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(f.guard.Middleware())
	handlers := append(extra, func(c *gin.Context) {
		id, _ := GetIdentityID(c)
		c.JSON(http.StatusOK, gin.H{"identity_id": id, "role": GetRole(c)})
	})
	r.GET("/dashboard", handlers...)
	r.GET("/login", func(c *gin.Context) { c.String(http.StatusOK, "login") })
	r.GET("/api/v1/auth/me", handlers...)
	return r
}

func TestGuardMiddleware_BrowserRedirect(t *testing.T) {
	f := newGuardFixture(t)
	r := f.router()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?callbackUrl=%2Fdashboard", w.Header().Get("Location"))
}

func TestGuardMiddleware_APIUnauthorized(t *testing.T) {
	f := newGuardFixture(t)
	r := f.router()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Timeout bool `json:"timeout"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.False(t, body.Data.Timeout)
}

func TestGuardMiddleware_CookieSession(t *testing.T) {
	f := newGuardFixture(t)
	r := f.router()
	token, _ := f.issue(t, auth.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "dash", Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"identity_id":7,"role":"admin"}`, w.Body.String())
}

func TestGuardMiddleware_BearerHeader(t *testing.T) {
	f := newGuardFixture(t)
	r := f.router()
	token, _ := f.issue(t, auth.RoleUser)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGuardMiddleware_LoginRedirectsSignedIn(t *testing.T) {
	f := newGuardFixture(t)
	r := f.router()
	token, _ := f.issue(t, auth.RoleUser)

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(&http.Cookie{Name: "dash", Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
}

func TestGuardMiddleware_TimeoutClearsCookie(t *testing.T) {
	f := newGuardFixture(t)
	r := f.router()
	token, _ := f.issue(t, auth.RoleUser)
	f.clock.Advance(9 * time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "dash", Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "timeout=true")

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "dash", cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestGuardMiddleware_APITimeoutClearsCookie(t *testing.T) {
	f := newGuardFixture(t)
	r := f.router()
	token, _ := f.issue(t, auth.RoleUser)
	f.clock.Advance(9 * time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "dash", Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body struct {
		Data struct {
			Timeout bool `json:"timeout"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Data.Timeout)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "dash", cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestRequireRole(t *testing.T) {
	f := newGuardFixture(t)
	m := NewAuthMiddleware(f.tokens, f.cookie, 0, zap.NewNop())
	r := f.router(m.AdminOnly()...)

	userToken, _ := f.issue(t, auth.RoleUser)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "dash", Value: userToken})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	adminToken, _ := f.issue(t, auth.RoleSuperAdmin)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "dash", Value: adminToken})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_WithoutGuard(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewAuthMiddleware(nil, CookieConfig{}, 0, zap.NewNop())

	r := gin.New()
	r.GET("/x", m.RequireAuth(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshActivity(t *testing.T) {
	f := newGuardFixture(t)
	m := NewAuthMiddleware(f.tokens, f.cookie, time.Minute, zap.NewNop())
	m.now = f.clock.Now
	r := f.router(m.RefreshActivity())
	token, claims := f.issue(t, auth.RoleUser)

	// within the granularity window nothing is re-issued
	f.clock.Advance(30 * time.Second)
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "dash", Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Result().Cookies())

	f.clock.Advance(90 * time.Second)
	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "dash", Value: token})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.Empty(t, cookies[0].Domain)

	refreshed, err := f.tokens.Validate(cookies[0].Value)
	require.NoError(t, err)
	assert.Equal(t, claims.ID, refreshed.ID)
	assert.Equal(t, f.clock.Now().Unix(), refreshed.LastActivity)
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://admin.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://admin.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
