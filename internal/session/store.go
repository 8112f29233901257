// Package session owns the signed-in state of the client: who is signed in,
// which role the backend grants them, and whether either is still loading.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"finease/internal/core"
	"finease/internal/identity"
	"finease/internal/log"
)

// State is a snapshot of the session.
type State struct {
	Identity    *core.Identity
	AuthLoading bool
	Role        core.Role
	RoleLoading bool
}

// SignedIn reports whether an identity is present.
func (s State) SignedIn() bool { return s.Identity != nil }

// Email returns the signed-in email, or "".
func (s State) Email() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.Email
}

// Notice is a user-facing message for a completed action.
type Notice struct {
	Title string
	Text  string
}

// ActionError is a failed action together with the message shown to the user.
type ActionError struct {
	Title string
	Text  string
	Err   error
}

func (e *ActionError) Error() string {
	msg := e.Title
	if e.Text != "" {
		msg += " " + e.Text
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ActionError) Unwrap() error { return e.Err }

// Store wraps an identity provider and keeps the session state current.
type Store struct {
	provider identity.Provider
	resolver *Resolver
	logger   *log.Logger

	mu          sync.Mutex
	identity    *core.Identity
	authLoading bool
	nextSub     int
	subs        map[int]func(State)
	unsubscribe func()
}

// NewStore subscribes to provider. The provider reports the current identity
// right away, which also starts the first role resolution.
func NewStore(provider identity.Provider, resolver *Resolver, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Store{
		provider:    provider,
		resolver:    resolver,
		logger:      logger.WithComponent(log.ComponentSession),
		authLoading: true,
		subs:        make(map[int]func(State)),
	}
	resolver.setOnChange(s.notify)
	s.unsubscribe = provider.Subscribe(s.onIdentity)
	return s
}

// Close drops the provider subscription.
func (s *Store) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// State returns a copy of the current session.
func (s *Store) State() State {
	s.mu.Lock()
	st := State{AuthLoading: s.authLoading}
	if s.identity != nil {
		id := *s.identity
		st.Identity = &id
	}
	s.mu.Unlock()

	st.Role, st.RoleLoading = s.resolver.Role()
	return st
}

// Subscribe calls fn after every state change until the returned func is called.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Resolver exposes the role resolver, mainly so callers can Wait on it.
func (s *Store) Resolver() *Resolver { return s.resolver }

func (s *Store) notify() {
	st := s.State()
	s.mu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

func (s *Store) onIdentity(id *core.Identity) {
	s.mu.Lock()
	s.identity = id
	s.authLoading = false
	s.mu.Unlock()

	if id != nil {
		s.logger.Debug("Identity changed", log.FieldEmail, id.Email)
	} else {
		s.logger.Debug("Identity cleared")
	}
	s.notify()
	s.resolver.Resolve(id)
}

// busy marks an action as running. The returned func clears the flag.
func (s *Store) busy() func() {
	s.mu.Lock()
	s.authLoading = true
	s.mu.Unlock()
	s.notify()
	return func() {
		s.mu.Lock()
		s.authLoading = false
		s.mu.Unlock()
		s.notify()
	}
}

// CreateAccount registers a password account and sets its display name and
// photo. The password rule is checked before anything else.
func (s *Store) CreateAccount(ctx context.Context, name, email, photoURL, password string) (Notice, error) {
	if err := core.ValidatePassword(password); err != nil {
		return Notice{}, &ActionError{
			Title: "Weak Password!",
			Text:  "Password must contain 1 uppercase, 1 lowercase and at least 6 characters.",
			Err:   err,
		}
	}
	defer s.busy()()

	if _, err := s.provider.CreateAccount(ctx, email, password); err != nil {
		s.logger.WarnContext(ctx, "Registration failed", log.FieldOperation, log.OpSignUp, log.FieldError, err, log.FieldErrorType, log.ErrorTypeAuth)
		return Notice{}, &ActionError{Title: "Registration Failed!", Err: err}
	}
	if err := s.provider.UpdateProfile(ctx, strings.TrimSpace(name), strings.TrimSpace(photoURL)); err != nil {
		s.logger.WarnContext(ctx, "Profile update after registration failed", log.FieldOperation, log.OpProfile, log.FieldError, err)
		return Notice{}, &ActionError{Title: "Profile Update Failed!", Err: err}
	}
	s.logger.InfoContext(ctx, "Registered", log.FieldOperation, log.OpSignUp, log.FieldEmail, email)
	return Notice{Title: "Registration Successful!", Text: "Welcome to FinEase."}, nil
}

func (s *Store) SignIn(ctx context.Context, email, password string) (Notice, error) {
	defer s.busy()()

	if _, err := s.provider.SignIn(ctx, email, password); err != nil {
		s.logger.WarnContext(ctx, "Sign-in failed", log.FieldOperation, log.OpSignIn, log.FieldError, err, log.FieldErrorType, log.ErrorTypeAuth)
		return Notice{}, &ActionError{Title: "Login Failed!", Text: "Invalid email or password.", Err: err}
	}
	return Notice{Title: "Login Successful!", Text: "Welcome back to FinEase."}, nil
}

// FederatedURL returns the consent page for Google sign-in.
func (s *Store) FederatedURL(state string) (string, error) {
	u, err := s.provider.FederatedAuthURL(state)
	if err != nil {
		return "", &ActionError{Title: "Google Login Failed!", Err: err}
	}
	return u, nil
}

// SignInFederated completes Google sign-in with the callback's code.
func (s *Store) SignInFederated(ctx context.Context, code string) (Notice, error) {
	defer s.busy()()

	if code == "" {
		return Notice{}, &ActionError{Title: "Google Login Failed!", Err: errors.New("missing authorization code")}
	}
	if _, err := s.provider.SignInFederated(ctx, code); err != nil {
		s.logger.WarnContext(ctx, "Federated sign-in failed", log.FieldOperation, log.OpSignIn, log.FieldError, err, log.FieldErrorType, log.ErrorTypeAuth)
		return Notice{}, &ActionError{Title: "Google Login Failed!", Err: err}
	}
	return Notice{Title: "Google Login Successful!"}, nil
}

func (s *Store) SignOut(ctx context.Context) (Notice, error) {
	defer s.busy()()

	if err := s.provider.SignOut(ctx); err != nil {
		return Notice{}, &ActionError{Title: "Logout Failed!", Err: err}
	}
	return Notice{Title: "Logged out!"}, nil
}

func (s *Store) UpdateProfile(ctx context.Context, name, photoURL string) (Notice, error) {
	defer s.busy()()

	if err := s.provider.UpdateProfile(ctx, strings.TrimSpace(name), strings.TrimSpace(photoURL)); err != nil {
		s.logger.WarnContext(ctx, "Profile update failed", log.FieldOperation, log.OpProfile, log.FieldError, err)
		return Notice{}, &ActionError{Title: "Update Failed!", Text: "Try again later.", Err: err}
	}
	return Notice{Title: "Profile Updated!", Text: "Your changes are saved."}, nil
}
