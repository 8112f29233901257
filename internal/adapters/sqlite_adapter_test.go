package adapters

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finease/internal/identity/local"
	"finease/internal/prefs"
	"finease/internal/storage"
)

var (
	_ prefs.Store        = (*SQLiteAdapter)(nil)
	_ local.AccountStore = (*SQLiteAdapter)(nil)
)

func newAdapter(t *testing.T) *SQLiteAdapter {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "finease.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return NewSQLiteAdapter(repo)
}

func TestPrefsRoundTrip(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, prefs.KeyTheme, "dark"))
	v, ok, err := a.Get(ctx, prefs.KeyTheme)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", v)

	require.NoError(t, a.Delete(ctx, prefs.KeyTheme))
	_, ok, err = a.Get(ctx, prefs.KeyTheme)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccountErrorsMapToProviderErrors(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()
	acc := local.Account{ID: "1", Email: "Ann@Example.com", DisplayName: "Ann", PasswordHash: "x", Provider: local.ProviderPassword}

	require.NoError(t, a.Create(ctx, acc))
	assert.ErrorIs(t, a.Create(ctx, acc), local.ErrAccountExists)

	got, err := a.ByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.DisplayName)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = a.ByEmail(ctx, "bob@example.com")
	assert.ErrorIs(t, err, local.ErrAccountNotFound)

	require.NoError(t, a.UpdateProfile(ctx, "ann@example.com", "Annie", "https://img/a.png"))
	got, err = a.ByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Annie", got.DisplayName)
	assert.Equal(t, "https://img/a.png", got.PhotoURL)

	assert.ErrorIs(t, a.UpdateProfile(ctx, "bob@example.com", "Bob", ""), local.ErrAccountNotFound)
}
