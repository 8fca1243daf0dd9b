// internal/middleware/guard.go
package middleware

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"dashboard-service/internal/metrics"
	"dashboard-service/internal/pkg/jwt"
	"dashboard-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Access is the authentication level a path requires.
type Access int

const (
	AccessNone Access = iota
	AccessAuthenticated
)

// ParseAccess maps "none" and "authenticated" onto Access.
func ParseAccess(s string) (Access, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "public":
		return AccessNone, true
	case "authenticated", "auth":
		return AccessAuthenticated, true
	}
	return AccessNone, false
}

type rule struct {
	prefix string
	access Access
}

// RoutePolicy is the static prefix table consulted on every request. It is
// built once at startup and never mutated.
type RoutePolicy struct {
	rules         []rule
	fallback      Access
	loginPath     string
	dashboardPath string
}

// NewRoutePolicy builds a policy. The longest matching prefix wins; paths
// matching no prefix get fallback.
func NewRoutePolicy(loginPath, dashboardPath string, fallback Access, prefixes map[string]Access) *RoutePolicy {
	rules := make([]rule, 0, len(prefixes))
	for p, a := range prefixes {
		rules = append(rules, rule{prefix: p, access: a})
	}
	sort.Slice(rules, func(i, j int) bool {
		if len(rules[i].prefix) != len(rules[j].prefix) {
			return len(rules[i].prefix) > len(rules[j].prefix)
		}
		return rules[i].prefix < rules[j].prefix
	})
	return &RoutePolicy{
		rules:         rules,
		fallback:      fallback,
		loginPath:     loginPath,
		dashboardPath: dashboardPath,
	}
}

// Classify returns the access level for path. "/dashboard" matches
// "/dashboard" and "/dashboard/x" but not "/dashboards".
func (p *RoutePolicy) Classify(path string) Access {
	for _, r := range p.rules {
		if matchPrefix(path, r.prefix) {
			return r.access
		}
	}
	return p.fallback
}

func (p *RoutePolicy) LoginPath() string     { return p.loginPath }
func (p *RoutePolicy) DashboardPath() string { return p.dashboardPath }

func matchPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}
	return path[len(prefix)] == '/'
}

// Outcome of a guard check.
type Outcome int

const (
	Allow Outcome = iota
	RedirectToLogin
	RedirectToDashboard
)

func (o Outcome) String() string {
	switch o {
	case RedirectToLogin:
		return "redirect_login"
	case RedirectToDashboard:
		return "redirect_dashboard"
	default:
		return "allow"
	}
}

// Decision is the result of Authorize. Callback and TimedOut are only set on
// RedirectToLogin; Claims is set whenever a valid session was presented.
type Decision struct {
	Outcome  Outcome
	Callback string
	TimedOut bool
	Claims   *jwt.Claims
}

// Location builds the redirect target for a decision.
func (d Decision) Location(p *RoutePolicy) string {
	switch d.Outcome {
	case RedirectToDashboard:
		return p.dashboardPath
	case RedirectToLogin:
		q := url.Values{}
		if d.Callback != "" {
			q.Set("callbackUrl", d.Callback)
		}
		if d.TimedOut {
			q.Set("timeout", "true")
		}
		if len(q) == 0 {
			return p.loginPath
		}
		return p.loginPath + "?" + q.Encode()
	}
	return ""
}

// TokenValidator is the read-only half of the session token service.
type TokenValidator interface {
	Validate(token string) (*jwt.Claims, error)
}

// RevocationChecker reports whether a token was signed out or superseded.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, identityID int64, jti string, issuedAt time.Time) (bool, error)
}

// Guard authorizes every request against the route policy.
type Guard struct {
	policy      *RoutePolicy
	tokens      TokenValidator
	revocations RevocationChecker
	cookie      CookieConfig
	metrics     metrics.Recorder
	logger      *zap.Logger
}

func NewGuard(policy *RoutePolicy, tokens TokenValidator, revocations RevocationChecker, cookie CookieConfig, recorder metrics.Recorder, logger *zap.Logger) *Guard {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Guard{
		policy:      policy,
		tokens:      tokens,
		revocations: revocations,
		cookie:      cookie,
		metrics:     recorder,
		logger:      logger,
	}
}

// Authorize decides access for a request target (path plus optional query)
// and the presented token. It only reads session state.
func (g *Guard) Authorize(ctx context.Context, target, token string) Decision {
	path := target
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	if path == g.policy.loginPath {
		if claims := g.session(ctx, token, nil); claims != nil {
			return Decision{Outcome: RedirectToDashboard, Claims: claims}
		}
		return Decision{Outcome: Allow}
	}

	if g.policy.Classify(path) == AccessNone {
		return Decision{Outcome: Allow}
	}

	if token == "" {
		return Decision{Outcome: RedirectToLogin, Callback: target}
	}

	var timedOut bool
	claims := g.session(ctx, token, &timedOut)
	if claims == nil {
		return Decision{Outcome: RedirectToLogin, Callback: target, TimedOut: timedOut}
	}
	return Decision{Outcome: Allow, Claims: claims}
}

// session validates token and checks revocation. It returns nil when the
// token does not carry a usable session.
func (g *Guard) session(ctx context.Context, token string, timedOut *bool) *jwt.Claims {
	if token == "" {
		return nil
	}
	claims, err := g.tokens.Validate(token)
	if err != nil {
		if timedOut != nil {
			*timedOut = jwt.IsTimeout(err)
		}
		return nil
	}
	if g.revocations == nil {
		return claims
	}

	id, err := claims.SubjectID()
	if err != nil {
		return nil
	}
	var issuedAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	revoked, err := g.revocations.IsRevoked(ctx, id, claims.ID, issuedAt)
	if err != nil {
		// fail closed
		g.logger.Error("revocation check failed", zap.Int64("identity_id", id), zap.Error(err))
		return nil
	}
	if revoked {
		return nil
	}
	return claims
}

// Middleware runs Authorize on every request. Browser navigation is
// redirected; paths under /api/ get a 401 JSON body instead.
func (g *Guard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		d := g.Authorize(c.Request.Context(), c.Request.URL.RequestURI(), extractToken(c, g.cookie.Name))
		g.metrics.RecordGuardDecision(d.Outcome.String())

		switch d.Outcome {
		case RedirectToDashboard:
			c.Redirect(http.StatusFound, d.Location(g.policy))
			c.Abort()
			return
		case RedirectToLogin:
			if d.TimedOut {
				g.cookie.Clear(c)
			}
			if isAPIRequest(c.Request.URL.Path) {
				msg := "authentication required"
				if d.TimedOut {
					msg = "session timed out"
				}
				response.Error(c, http.StatusUnauthorized, msg, nil, gin.H{
					"timeout":  d.TimedOut,
					"redirect": d.Location(g.policy),
				})
				return
			}
			c.Redirect(http.StatusFound, d.Location(g.policy))
			c.Abort()
			return
		}

		if d.Claims != nil {
			setSession(c, d.Claims)
		}
		c.Next()
	}
}

func isAPIRequest(path string) bool {
	return matchPrefix(path, "/api")
}
