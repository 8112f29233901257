// Package local is an identity provider that keeps password accounts in the
// client's own store and delegates federated sign-in to Google.
package local

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"finease/internal/core"
	"finease/internal/identity"
	"finease/internal/log"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrFederatedDisabled  = errors.New("federated sign-in is not configured")
	ErrNotSignedIn        = errors.New("no user is signed in")
)

// GoogleConfig holds the OAuth client used for federated sign-in.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint and UserinfoEndpoint override Google's servers. Tests only.
	Endpoint         oauth2.Endpoint
	UserinfoEndpoint string
}

// Enabled reports whether enough is configured to run the OAuth flow.
func (c GoogleConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURL != ""
}

type Options struct {
	Accounts   AccountStore
	Google     GoogleConfig
	BcryptCost int
	Logger     *log.Logger
}

// Provider implements identity.Provider.
type Provider struct {
	accounts AccountStore
	oauth    *oauth2.Config
	userinfo string
	cost     int
	hub      *identity.Hub
	logger   *log.Logger
}

var _ identity.Provider = (*Provider)(nil)

func New(opts Options) *Provider {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	accounts := opts.Accounts
	if accounts == nil {
		accounts = NewMemoryAccounts()
	}
	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	p := &Provider{
		accounts: accounts,
		userinfo: opts.Google.UserinfoEndpoint,
		cost:     cost,
		hub:      identity.NewHub(),
		logger:   logger.WithComponent(log.ComponentIdentity),
	}
	if opts.Google.Enabled() {
		endpoint := opts.Google.Endpoint
		if endpoint.TokenURL == "" {
			endpoint = google.Endpoint
		}
		p.oauth = &oauth2.Config{
			ClientID:     opts.Google.ClientID,
			ClientSecret: opts.Google.ClientSecret,
			RedirectURL:  opts.Google.RedirectURL,
			Scopes:       []string{oauth2api.UserinfoEmailScope, oauth2api.UserinfoProfileScope},
			Endpoint:     endpoint,
		}
	}
	return p
}

// FederatedEnabled reports whether Google sign-in is available.
func (p *Provider) FederatedEnabled() bool { return p.oauth != nil }

func (p *Provider) Subscribe(fn func(*core.Identity)) func() {
	return p.hub.Subscribe(fn)
}

func (p *Provider) CreateAccount(ctx context.Context, email, password string) (core.Identity, error) {
	email = normalizeEmail(email)
	if email == "" {
		return core.Identity{}, core.ErrEmptyEmail
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return core.Identity{}, fmt.Errorf("hash password: %w", err)
	}

	acc := Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Provider:     ProviderPassword,
		CreatedAt:    time.Now(),
	}
	if err := p.accounts.Create(ctx, acc); err != nil {
		return core.Identity{}, fmt.Errorf("create account: %w", err)
	}

	p.logger.InfoContext(ctx, "Account created", log.FieldEmail, email)
	id := toIdentity(acc)
	p.hub.Set(&id)
	return id, nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (core.Identity, error) {
	acc, err := p.accounts.ByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrAccountNotFound) {
		return core.Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return core.Identity{}, fmt.Errorf("load account: %w", err)
	}
	if acc.PasswordHash == "" {
		// federated-only account
		return core.Identity{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return core.Identity{}, ErrInvalidCredentials
	}

	id := toIdentity(acc)
	p.hub.Set(&id)
	return id, nil
}

func (p *Provider) FederatedAuthURL(state string) (string, error) {
	if p.oauth == nil {
		return "", ErrFederatedDisabled
	}
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// SignInFederated exchanges an authorization code, reads the Google profile
// and signs in the matching account, creating it on first use.
func (p *Provider) SignInFederated(ctx context.Context, code string) (core.Identity, error) {
	if p.oauth == nil {
		return core.Identity{}, ErrFederatedDisabled
	}
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return core.Identity{}, fmt.Errorf("exchange code: %w", err)
	}

	opts := []option.ClientOption{option.WithHTTPClient(p.oauth.Client(ctx, tok))}
	if p.userinfo != "" {
		opts = append(opts, option.WithEndpoint(p.userinfo))
	}
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return core.Identity{}, fmt.Errorf("create userinfo service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return core.Identity{}, fmt.Errorf("fetch userinfo: %w", err)
	}
	email := normalizeEmail(info.Email)
	if email == "" {
		return core.Identity{}, core.ErrEmptyEmail
	}

	acc, err := p.accounts.ByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		acc = Account{
			ID:          uuid.NewString(),
			Email:       email,
			DisplayName: info.Name,
			PhotoURL:    info.Picture,
			Provider:    ProviderGoogle,
			CreatedAt:   time.Now(),
		}
		if err := p.accounts.Create(ctx, acc); err != nil {
			return core.Identity{}, fmt.Errorf("create account: %w", err)
		}
		p.logger.InfoContext(ctx, "Federated account created", log.FieldEmail, email)
	case err != nil:
		return core.Identity{}, fmt.Errorf("load account: %w", err)
	}

	id := toIdentity(acc)
	p.hub.Set(&id)
	return id, nil
}

func (p *Provider) SignOut(ctx context.Context) error {
	if p.hub.Current() != nil {
		p.logger.InfoContext(ctx, "Signed out")
	}
	p.hub.Set(nil)
	return nil
}

func (p *Provider) UpdateProfile(ctx context.Context, name, photoURL string) error {
	cur := p.hub.Current()
	if cur == nil {
		return ErrNotSignedIn
	}
	if err := p.accounts.UpdateProfile(ctx, cur.Email, name, photoURL); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	cur.DisplayName = name
	cur.PhotoURL = photoURL
	p.hub.Set(cur)
	return nil
}

func toIdentity(a Account) core.Identity {
	return core.Identity{Email: a.Email, DisplayName: a.DisplayName, PhotoURL: a.PhotoURL}
}
