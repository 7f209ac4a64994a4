// Package auth implements the admin session gate: credential checks, session
// cookies and the middleware that guards catalog mutations.
package auth

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Session and routing constants shared with the HTTP layer.
const (
	CookieName       = "engine-proxy-session"
	SignInPath       = "/admin/sign-in"
	DefaultRedirect  = "/admin"
	RedirectParam    = "redirectTo"
	DefaultMaxAge    = 12 * time.Hour
	apiPathPrefix    = "/api/"
	forwardedProtoHd = "X-Forwarded-Proto"
)

// User-facing messages.
const (
	MsgNotConfigured = "Admin credentials are not configured. Set ADMIN_USERNAME and ADMIN_PASSWORD."
	MsgMissing       = "Enter both username and password."
	MsgMismatch      = "That username and password do not match."
)

var (
	// ErrNotConfigured means no admin username or password is set. Protected
	// operations fail closed.
	ErrNotConfigured = errors.New("admin credentials are not configured")
	// ErrUnauthorized means the request carries no valid session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMissingCredentials rejects a sign-in with an empty field.
	ErrMissingCredentials = errors.New("username and password are required")
	// ErrInvalidCredentials rejects a sign-in that does not match.
	ErrInvalidCredentials = errors.New("username and password do not match")
)

// Message returns the text shown to a user for err.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return MsgNotConfigured
	case errors.Is(err, ErrMissingCredentials):
		return MsgMissing
	case errors.Is(err, ErrInvalidCredentials):
		return MsgMismatch
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "unexpected error"
	}
}

// SecureMode controls the Secure attribute of the session cookie.
type SecureMode string

// Supported cookie security modes.
const (
	SecureAuto   SecureMode = "auto"
	SecureAlways SecureMode = "true"
	SecureNever  SecureMode = "false"
)

// Valid reports whether m is a known mode.
func (m SecureMode) Valid() bool {
	switch m {
	case SecureAuto, SecureAlways, SecureNever:
		return true
	}
	return false
}

// Config holds the admin credentials and cookie settings.
type Config struct {
	Username      string
	Password      string
	CookieSecure  SecureMode
	SessionMaxAge time.Duration
}

// Configured reports whether both credentials are set.
func (c Config) Configured() bool {
	return c.Username != "" && c.Password != ""
}

// IsSafeRedirect reports whether p is a same-origin absolute path.
// Browsers strip tab, CR and LF and treat '\' as '/', so any control byte
// or backslash is rejected before checking for a scheme or host.
func IsSafeRedirect(p string) bool {
	if p == "" || p[0] != '/' {
		return false
	}
	for i := 0; i < len(p); i++ {
		if c := p[i]; c < 0x20 || c == 0x7f || c == '\\' {
			return false
		}
	}
	if strings.HasPrefix(p, "//") {
		return false
	}
	u, err := url.Parse(p)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}

// SanitizeRedirect returns p when it is safe and DefaultRedirect otherwise.
func SanitizeRedirect(p string) string {
	p = strings.TrimSpace(p)
	if !IsSafeRedirect(p) {
		return DefaultRedirect
	}
	return p
}
