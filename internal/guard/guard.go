// Package guard decides whether a session may enter a protected page.
package guard

import (
	"net/url"
	"slices"

	"finease/internal/core"
	"finease/internal/session"
)

// Outcome is the kind of Decision.
type Outcome int

const (
	// Pending means the session is still loading; render a neutral page.
	Pending Outcome = iota
	Allow
	// RedirectLogin sends an anonymous visitor to sign in.
	RedirectLogin
	// RedirectHome sends a signed-in user without the required role home.
	RedirectHome
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	default:
		return "unknown"
	}
}

// Decision is the result of a guard check.
type Decision struct {
	Outcome Outcome
	// Location is set for redirects.
	Location string
}

const (
	LoginPath = "/login"
	HomePath  = "/"
)

// AdminRoles may enter the admin dashboard pages.
var AdminRoles = []core.Role{core.RoleAdmin, core.RoleDemoAdmin}

// Authenticated admits any signed-in session. from is the location the
// visitor asked for; login sends them back there afterwards.
func Authenticated(st session.State, from string) Decision {
	if st.AuthLoading {
		return Decision{Outcome: Pending}
	}
	if st.Identity == nil {
		return Decision{Outcome: RedirectLogin, Location: LoginLocation(from)}
	}
	return Decision{Outcome: Allow}
}

// Role admits a signed-in session whose resolved role is in allowed.
func Role(st session.State, from string, allowed ...core.Role) Decision {
	if st.AuthLoading || (st.Identity != nil && st.RoleLoading) {
		return Decision{Outcome: Pending}
	}
	if st.Identity == nil {
		return Decision{Outcome: RedirectLogin, Location: LoginLocation(from)}
	}
	if !slices.Contains(allowed, st.Role) {
		return Decision{Outcome: RedirectHome, Location: HomePath}
	}
	return Decision{Outcome: Allow}
}

// LoginLocation builds the login URL that returns to from.
func LoginLocation(from string) string {
	if from == "" || from == LoginPath {
		return LoginPath
	}
	return LoginPath + "?" + url.Values{"from": {from}}.Encode()
}

// SafeReturn validates a from parameter. Only local absolute paths are
// accepted; anything else returns home.
func SafeReturn(from string) string {
	if from == "" || from[0] != '/' || (len(from) > 1 && (from[1] == '/' || from[1] == '\\')) {
		return HomePath
	}
	u, err := url.Parse(from)
	if err != nil || u.Host != "" || u.Scheme != "" {
		return HomePath
	}
	return from
}
