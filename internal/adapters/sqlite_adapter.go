package adapters

import (
	"context"
	"errors"
	"fmt"

	"finease/internal/identity/local"
	"finease/internal/storage"
)

// SQLiteAdapter adapts SQLiteRepository to prefs.Store and local.AccountStore
// so preferences and local accounts survive restarts.
type SQLiteAdapter struct {
	storage *storage.SQLiteRepository
}

func NewSQLiteAdapter(storage *storage.SQLiteRepository) *SQLiteAdapter {
	return &SQLiteAdapter{storage: storage}
}

// Get implements prefs.Store
func (a *SQLiteAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	return a.storage.GetPref(ctx, key)
}

// Set implements prefs.Store
func (a *SQLiteAdapter) Set(ctx context.Context, key, value string) error {
	return a.storage.SetPref(ctx, key, value)
}

// Delete implements prefs.Store
func (a *SQLiteAdapter) Delete(ctx context.Context, key string) error {
	return a.storage.DeletePref(ctx, key)
}

// Create implements local.AccountStore
func (a *SQLiteAdapter) Create(ctx context.Context, acc local.Account) error {
	_, err := a.storage.CreateAccount(ctx, storage.CreateAccountParams{
		ID:           acc.ID,
		Email:        acc.Email,
		DisplayName:  acc.DisplayName,
		PhotoUrl:     acc.PhotoURL,
		PasswordHash: acc.PasswordHash,
		Provider:     acc.Provider,
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return fmt.Errorf("%w: %w", local.ErrAccountExists, err)
	}
	return err
}

// ByEmail implements local.AccountStore
func (a *SQLiteAdapter) ByEmail(ctx context.Context, email string) (local.Account, error) {
	acc, err := a.storage.GetAccountByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return local.Account{}, fmt.Errorf("%w: %w", local.ErrAccountNotFound, err)
	}
	if err != nil {
		return local.Account{}, err
	}
	return local.Account{
		ID:           acc.ID,
		Email:        acc.Email,
		DisplayName:  acc.DisplayName,
		PhotoURL:     acc.PhotoUrl,
		PasswordHash: acc.PasswordHash,
		Provider:     acc.Provider,
		CreatedAt:    acc.CreatedAt,
	}, nil
}

// UpdateProfile implements local.AccountStore
func (a *SQLiteAdapter) UpdateProfile(ctx context.Context, email, displayName, photoURL string) error {
	err := a.storage.UpdateAccountProfile(ctx, email, displayName, photoURL)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %w", local.ErrAccountNotFound, err)
	}
	return err
}
