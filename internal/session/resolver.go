package session

import (
	"context"
	"sync"
	"time"

	"finease/internal/api"
	"finease/internal/core"
	"finease/internal/log"
)

// Backend is the part of the REST API the resolver talks to.
type Backend interface {
	IssueToken(ctx context.Context, email string) (string, error)
	UpsertUser(ctx context.Context, p api.Profile) error
	UserRole(ctx context.Context, email string) (core.Role, error)
}

// TokenStore persists the bearer credential.
type TokenStore interface {
	SetToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}

// Resolver turns a signed-in identity into a backend token and a role. It
// re-runs whenever the identity email changes. Every run carries a
// generation number and only the newest run may commit its results.
type Resolver struct {
	backend Backend
	tokens  TokenStore
	timeout time.Duration
	logger  *log.Logger

	mu       sync.Mutex
	started  bool
	target   string
	gen      uint64
	role     core.Role
	loading  bool
	onChange func()

	wg sync.WaitGroup
}

func NewResolver(backend Backend, tokens TokenStore, timeout time.Duration, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Nop()
	}
	return &Resolver{
		backend: backend,
		tokens:  tokens,
		timeout: timeout,
		logger:  logger.WithComponent(log.ComponentResolver),
		role:    core.RoleUser,
		loading: true,
	}
}

// Role returns the resolved role and whether resolution is still running.
// The role must not be acted on while loading is true.
func (r *Resolver) Role() (role core.Role, loading bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.role, r.loading
}

// Generation returns the number of resolutions started so far.
func (r *Resolver) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// Wait blocks until every started run has finished.
func (r *Resolver) Wait() { r.wg.Wait() }

func (r *Resolver) setOnChange(fn func()) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

func (r *Resolver) notify() {
	r.mu.Lock()
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Resolve reacts to an identity notification. Notifications that do not
// change the email are ignored. Signing out clears the token and resets the
// role synchronously; signing in starts a background run.
func (r *Resolver) Resolve(id *core.Identity) {
	email := ""
	if id != nil {
		email = id.Email
	}

	r.mu.Lock()
	if r.started && email == r.target {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.target = email
	r.gen++
	gen := r.gen

	if email == "" {
		if err := r.tokens.ClearToken(context.Background()); err != nil {
			r.logger.Error("Failed to clear bearer token", log.FieldError, err)
		}
		r.role = core.RoleUser
		r.loading = false
		r.mu.Unlock()
		r.notify()
		return
	}

	r.loading = true
	r.wg.Add(1)
	r.mu.Unlock()
	r.notify()

	go r.run(gen, *id)
}

func (r *Resolver) run(gen uint64, id core.Identity) {
	defer r.wg.Done()

	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	logger := r.logger.With(log.FieldEmail, id.Email, log.FieldGeneration, gen)

	defer func() {
		r.mu.Lock()
		if gen == r.gen {
			r.loading = false
		}
		r.mu.Unlock()
		r.notify()
	}()

	role := core.RoleUser
	defer func() {
		r.commit(gen, func() { r.role = role })
	}()

	token, err := r.backend.IssueToken(ctx, id.Email)
	if err != nil {
		logger.WarnContext(ctx, "Token exchange failed", log.FieldError, err, log.FieldErrorType, log.ErrorTypeBackend)
		return
	}
	if token != "" {
		stale := !r.commit(gen, func() {
			if err := r.tokens.SetToken(ctx, token); err != nil {
				logger.ErrorContext(ctx, "Failed to persist bearer token", log.FieldError, err)
			}
		})
		if stale {
			logger.DebugContext(ctx, "Discarding stale resolution")
			return
		}
	}

	err = r.backend.UpsertUser(ctx, api.Profile{Email: id.Email, Name: id.DisplayName, PhotoURL: id.PhotoURL})
	if err != nil {
		// the role lookup still runs; an existing user keeps its role
		logger.WarnContext(ctx, "Profile upsert failed", log.FieldError, err, log.FieldErrorType, log.ErrorTypeBackend)
	}

	resolved, err := r.backend.UserRole(ctx, id.Email)
	if err != nil {
		logger.WarnContext(ctx, "Role lookup failed", log.FieldError, err, log.FieldErrorType, log.ErrorTypeBackend)
		return
	}
	role = resolved
	logger.InfoContext(ctx, "Role resolved", log.FieldRole, role)
}

// commit runs fn under the lock if gen is still the newest generation.
func (r *Resolver) commit(gen uint64, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		return false
	}
	fn()
	return true
}
