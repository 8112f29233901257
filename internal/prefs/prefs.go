// Package prefs persists the small amount of client state that survives a
// restart: the backend bearer token and the UI theme.
package prefs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"finease/internal/log"
)

// Storage keys.
const (
	KeyToken = "access-token"
	KeyTheme = "theme"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme returns ThemeDark for "dark" and ThemeLight for anything else.
func ParseTheme(s string) Theme {
	if Theme(s) == ThemeDark {
		return ThemeDark
	}
	return ThemeLight
}

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// Store is a string key/value store.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps values for the life of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Prefs gives typed access to the persisted keys.
type Prefs struct {
	store  Store
	now    func() time.Time
	logger *log.Logger
}

func New(store Store, logger *log.Logger) *Prefs {
	if logger == nil {
		logger = log.Nop()
	}
	return &Prefs{store: store, now: time.Now, logger: logger.WithComponent(log.ComponentPrefs)}
}

// Token returns the persisted bearer token, or "" when none is stored.
// Tokens that carry an exp claim in the past are reported as absent. The
// signature is not checked: the backend owns the signing key.
func (p *Prefs) Token(ctx context.Context) (string, error) {
	tok, ok, err := p.store.Get(ctx, KeyToken)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	if !ok || tok == "" {
		return "", nil
	}
	if expired(tok, p.now()) {
		p.logger.DebugContext(ctx, "Ignoring expired bearer token")
		return "", nil
	}
	return tok, nil
}

func (p *Prefs) SetToken(ctx context.Context, token string) error {
	if err := p.store.Set(ctx, KeyToken, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

func (p *Prefs) ClearToken(ctx context.Context) error {
	if err := p.store.Delete(ctx, KeyToken); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// Theme returns the stored theme, light when unset or unreadable.
func (p *Prefs) Theme(ctx context.Context) Theme {
	v, _, err := p.store.Get(ctx, KeyTheme)
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to read theme", log.FieldError, err)
	}
	return ParseTheme(v)
}

func (p *Prefs) SetTheme(ctx context.Context, t Theme) error {
	return p.store.Set(ctx, KeyTheme, string(ParseTheme(string(t))))
}

// ToggleTheme flips and persists the theme, returning the new value.
func (p *Prefs) ToggleTheme(ctx context.Context) (Theme, error) {
	next := p.Theme(ctx).Toggle()
	if err := p.SetTheme(ctx, next); err != nil {
		return p.Theme(ctx), fmt.Errorf("store theme: %w", err)
	}
	return next, nil
}

// expired reports whether tok is a JWT whose exp claim is before now.
// Opaque tokens never expire client-side.
func expired(tok string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
