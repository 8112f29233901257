package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"finease/internal/core"
	"finease/internal/guard"
	"finease/internal/log"
	"finease/internal/session"
)

const (
	oauthStateCookie = "finease_oauth_state"
	oauthStateTTL    = 10 * time.Minute
)

type authForm struct {
	From          string
	Email         string
	Name          string
	PhotoURL      string
	GoogleEnabled bool
}

type profileView struct {
	Name     string
	Email    string
	PhotoURL string
}

// actionNotice turns a session error into the notification shown to the user.
func actionNotice(err error, fallbackTitle string) Notification {
	var ae *session.ActionError
	if errors.As(err, &ae) {
		return failure(ae.Title, ae.Text)
	}
	return failure(fallbackTitle, "Try again later.")
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	from := guard.SafeReturn(r.URL.Query().Get("from"))
	if s.session.State().SignedIn() {
		http.Redirect(w, r, from, http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login.html",
		s.newPage(r, "Login", authForm{From: from, GoogleEnabled: s.googleEnabled}))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	p, errResp := ParseBodyOrFail(r)
	if errResp != nil {
		errResp.Write(w)
		return
	}
	from := guard.SafeReturn(p.Get("from"))

	n, err := s.session.SignIn(r.Context(), p.Get("email"), p.Get("password"))
	if err != nil {
		s.respond(w, r, outcome{
			Status: http.StatusUnauthorized,
			Notice: actionNotice(err, "Login Failed!"),
			Back:   guard.LoginLocation(from),
		})
		return
	}
	s.respond(w, r, outcome{Notice: success(n.Title, n.Text), Redirect: from})
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if s.session.State().SignedIn() {
		http.Redirect(w, r, guard.HomePath, http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "register.html",
		s.newPage(r, "Register", authForm{From: guard.HomePath, GoogleEnabled: s.googleEnabled}))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	p, errResp := ParseBodyOrFail(r)
	if errResp != nil {
		errResp.Write(w)
		return
	}

	n, err := s.session.CreateAccount(r.Context(), p.Get("name"), p.Get("email"), p.Get("photoURL"), p.Get("password"))
	if err != nil {
		s.respond(w, r, outcome{
			Status: http.StatusUnprocessableEntity,
			Notice: actionNotice(err, "Registration Failed!"),
			Back:   "/register",
		})
		return
	}
	s.respond(w, r, outcome{Notice: success(n.Title, n.Text), Redirect: guard.HomePath})
}

// handleGoogleStart sends the browser to the Google consent page. The state
// value is kept in a short-lived cookie and checked on the callback.
func (s *Server) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	if !s.googleEnabled {
		s.handleNotFound(w, r)
		return
	}
	state := uuid.NewString()
	target, err := s.session.FederatedURL(state)
	if err != nil {
		s.respond(w, r, outcome{Notice: actionNotice(err, "Google Login Failed!"), Redirect: guard.LoginPath})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   int(oauthStateTTL.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if !s.googleEnabled {
		s.handleNotFound(w, r)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/auth/google", MaxAge: -1, HttpOnly: true})

	cookie, err := r.Cookie(oauthStateCookie)
	q := r.URL.Query()
	if err != nil || cookie.Value == "" || cookie.Value != q.Get("state") {
		log.FromContext(r.Context()).WarnContext(r.Context(), "OAuth state mismatch",
			log.FieldComponent, log.ComponentIdentity, log.FieldErrorType, log.ErrorTypeAuth)
		s.respond(w, r, outcome{Notice: failure("Google Login Failed!", "Please try again."), Redirect: guard.LoginPath})
		return
	}
	if e := q.Get("error"); e != "" {
		s.respond(w, r, outcome{Notice: failure("Google Login Failed!", e), Redirect: guard.LoginPath})
		return
	}

	n, err := s.session.SignInFederated(r.Context(), q.Get("code"))
	if err != nil {
		s.respond(w, r, outcome{Notice: actionNotice(err, "Google Login Failed!"), Redirect: guard.LoginPath})
		return
	}
	s.respond(w, r, outcome{Notice: success(n.Title, n.Text), Redirect: guard.HomePath})
}

func (s *Server) handleLogoutPage(w http.ResponseWriter, r *http.Request) {
	if !s.session.State().SignedIn() {
		http.Redirect(w, r, guard.HomePath, http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "confirm.html", s.newPage(r, "Logout", confirmView{
		Title:        "Are you sure?",
		Text:         "You will be logged out.",
		Action:       "/logout",
		ConfirmLabel: "Yes, log out",
		CancelURL:    guard.HomePath,
	}))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	email := s.session.State().Email()
	n, err := s.session.SignOut(r.Context())
	if err != nil {
		s.respond(w, r, outcome{Status: http.StatusBadGateway, Notice: actionNotice(err, "Logout Failed!"), Back: guard.HomePath})
		return
	}
	// Drop the previous user's data so nothing leaks into the next session.
	_ = s.ledger.Load(r.Context(), "")
	if s.reports != nil && email != "" {
		s.reports.Invalidate(email)
	}
	s.respond(w, r, outcome{Notice: success(n.Title, n.Text), Redirect: guard.HomePath})
}

func (s *Server) handleProfilePage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.currentIdentity(w, r)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "profile.html", s.newPage(r, "My Profile", profileView{
		Name:     id.DisplayName,
		Email:    id.Email,
		PhotoURL: photoOrDefault(id.PhotoURL),
	}))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, errResp := ParseBodyOrFail(r)
	if errResp != nil {
		errResp.Write(w)
		return
	}
	n, err := s.session.UpdateProfile(r.Context(), p.Get("name"), p.Get("photoURL"))
	if err != nil {
		s.respond(w, r, outcome{Status: http.StatusBadGateway, Notice: actionNotice(err, "Update Failed!"), Back: "/myprofile"})
		return
	}
	s.respond(w, r, outcome{Notice: success(n.Title, n.Text), Redirect: "/myprofile"})
}

// currentIdentity returns the signed-in identity. The guards already checked
// it, but a sign-out may have landed since; such requests go to login.
func (s *Server) currentIdentity(w http.ResponseWriter, r *http.Request) (core.Identity, bool) {
	id := s.session.State().Identity
	if id == nil {
		redirect(w, r, guard.LoginLocation(returnLocation(r)))
		return core.Identity{}, false
	}
	return *id, true
}
