package local

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	ErrAccountExists   = errors.New("account already exists")
	ErrAccountNotFound = errors.New("account not found")
)

// Account providers.
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

// Account is a credential record kept by the local provider.
type Account struct {
	ID           string
	Email        string
	DisplayName  string
	PhotoURL     string
	PasswordHash string
	Provider     string
	CreatedAt    time.Time
}

// AccountStore persists accounts. Emails compare case-insensitively.
type AccountStore interface {
	Create(ctx context.Context, a Account) error
	ByEmail(ctx context.Context, email string) (Account, error)
	UpdateProfile(ctx context.Context, email, displayName, photoURL string) error
}

// MemoryAccounts is an AccountStore that forgets everything on restart.
type MemoryAccounts struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{accounts: make(map[string]Account)}
}

func (m *MemoryAccounts) Create(_ context.Context, a Account) error {
	key := normalizeEmail(a.Email)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[key]; ok {
		return ErrAccountExists
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.accounts[key] = a
	return nil
}

func (m *MemoryAccounts) ByEmail(_ context.Context, email string) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[normalizeEmail(email)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (m *MemoryAccounts) UpdateProfile(_ context.Context, email, displayName, photoURL string) error {
	key := normalizeEmail(email)
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[key]
	if !ok {
		return ErrAccountNotFound
	}
	a.DisplayName = displayName
	a.PhotoURL = photoURL
	m.accounts[key] = a
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
