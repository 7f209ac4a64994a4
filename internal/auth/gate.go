package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/engine-proxy/internal/metrics"
)

// TokenHasher derives the session token for a credential pair.
type TokenHasher interface {
	SessionToken(username, password string) string
}

// Gate validates credentials and session cookies.
type Gate struct {
	cfg    Config
	hasher TokenHasher
	token  string
	logger *zap.Logger
}

// NewGate builds a gate. The expected token is derived once up front.
func NewGate(cfg Config, hasher TokenHasher, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CookieSecure == "" {
		cfg.CookieSecure = SecureAuto
	}
	if cfg.SessionMaxAge <= 0 {
		cfg.SessionMaxAge = DefaultMaxAge
	}
	g := &Gate{cfg: cfg, hasher: hasher, logger: logger}
	if cfg.Configured() {
		g.token = hasher.SessionToken(cfg.Username, cfg.Password)
	} else {
		logger.Warn("admin credentials are not configured; catalog writes are disabled")
	}
	return g
}

// Configured reports whether admin credentials are set.
func (g *Gate) Configured() bool {
	return g.cfg.Configured()
}

// SignIn checks a credential pair and returns the session token on success.
func (g *Gate) SignIn(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		metrics.ObserveSignIn("missing")
		return "", ErrMissingCredentials
	}
	if !g.Configured() {
		metrics.ObserveSignIn("not_configured")
		return "", ErrNotConfigured
	}
	candidate := g.hasher.SessionToken(username, password)
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(g.token)) != 1 {
		metrics.ObserveSignIn("mismatch")
		g.logger.Info("admin sign-in rejected", zap.String("username", username))
		return "", ErrInvalidCredentials
	}
	metrics.ObserveSignIn("success")
	g.logger.Info("admin signed in", zap.String("username", username))
	return candidate, nil
}

// Check reports whether r carries a valid session.
func (g *Gate) Check(r *http.Request) error {
	if !g.Configured() {
		return ErrNotConfigured
	}
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(g.token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// SetSession writes the session cookie.
func (g *Gate) SetSession(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(g.cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   g.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSession expires the session cookie.
func (g *Gate) ClearSession(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func (g *Gate) secure(r *http.Request) bool {
	switch g.cfg.CookieSecure {
	case SecureAlways:
		return true
	case SecureNever:
		return false
	}
	if r.TLS != nil {
		return true
	}
	proto, _, _ := strings.Cut(r.Header.Get(forwardedProtoHd), ",")
	return strings.EqualFold(strings.TrimSpace(proto), "https")
}

// Require guards next. API calls and mutations are answered with a status
// code; browser navigations are sent to the sign-in page.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := g.Check(r)
		if err == nil {
			next.ServeHTTP(w, r)
			return
		}
		if errors.Is(err, ErrNotConfigured) {
			g.logger.Error("rejected protected request", zap.String("path", r.URL.Path), zap.Error(err))
			if wantsJSON(r) {
				writeJSONError(w, http.StatusInternalServerError, MsgNotConfigured)
				return
			}
			http.Error(w, MsgNotConfigured, http.StatusInternalServerError)
			return
		}
		if wantsJSON(r) {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		http.Redirect(w, r, SignInURL(r.URL.RequestURI()), http.StatusFound)
	})
}

// SignInURL builds the sign-in location that returns to target afterwards.
func SignInURL(target string) string {
	if !IsSafeRedirect(target) || strings.HasPrefix(target, SignInPath) {
		return SignInPath
	}
	return SignInPath + "?" + url.Values{RedirectParam: {target}}.Encode()
}

func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, apiPathPrefix) {
		return true
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead:
	default:
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
