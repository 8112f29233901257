package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finease/internal/api/apitest"
	"finease/internal/core"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

type brokenToken struct{}

func (brokenToken) Token(context.Context) (string, error) { return "", errors.New("store down") }

func newClient(t *testing.T, tokens TokenSource) (*Client, *apitest.Backend) {
	t.Helper()
	b := apitest.NewBackend()
	t.Cleanup(b.Close)
	return New(b.URL+"/", 2*time.Second, tokens, nil), b
}

func TestSessionEndpoints(t *testing.T) {
	ctx := context.Background()
	c, b := newClient(t, staticToken(apitest.TokenFor("ann@example.com")))
	b.SetRole("ann@example.com", core.RoleAdmin)

	tok, err := c.IssueToken(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, apitest.TokenFor("ann@example.com"), tok)

	require.NoError(t, c.UpsertUser(ctx, Profile{Email: "ann@example.com", Name: "Ann"}))
	require.NoError(t, c.UpsertUser(ctx, Profile{Email: "ann@example.com", Name: "Ann B"}))
	require.Len(t, b.Users(), 1)
	assert.Equal(t, "Ann B", b.Users()[0].Name)

	role, err := c.UserRole(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, core.RoleAdmin, role)

	role, err = c.UserRole(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, core.RoleUser, role)

	reqs := b.Requests()
	assert.Empty(t, reqs[0].Auth, "POST /jwt is unauthenticated")
	assert.Equal(t, "Bearer "+apitest.TokenFor("ann@example.com"), reqs[1].Auth)
	assert.Equal(t, "email=bob%40example.com", reqs[len(reqs)-1].Query)
}

func TestNoTokenSendsUnauthenticated(t *testing.T) {
	c, b := newClient(t, staticToken(""))
	err := c.UpsertUser(context.Background(), Profile{Email: "ann@example.com"})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Empty(t, b.Requests()[0].Auth)
}

func TestTokenSourceError(t *testing.T) {
	c, b := newClient(t, brokenToken{})
	_, err := c.Users(context.Background())
	require.Error(t, err)
	assert.Empty(t, b.Requests(), "no request without a readable token store")
}

func TestTransactionEndpoints(t *testing.T) {
	ctx := context.Background()
	c, b := newClient(t, staticToken("token-ann"))

	id, err := c.CreateTransaction(ctx, core.Transaction{
		ID: "ignored", Type: core.Income, Category: "Job", Amount: 1000,
		Date: "2024-01-05", UserEmail: "ann@example.com",
	})
	require.NoError(t, err)
	assert.NotEqual(t, "ignored", id)

	b.AddTransactions(core.Transaction{Type: core.Expense, Category: "Food", Amount: 5, Date: "2024-01-06", UserEmail: "bob@example.com"})

	txs, err := c.Transactions(ctx, "ann@example.com")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, id, txs[0].ID)

	upd := core.TransactionUpdate{Type: core.Expense, Category: "Food", Amount: 12.5, Date: "2024-02-01", Description: "lunch"}
	require.NoError(t, c.UpdateTransaction(ctx, id, upd))
	txs, _ = c.Transactions(ctx, "ann@example.com")
	assert.Equal(t, core.Amount(12.5), txs[0].Amount)
	assert.Equal(t, "lunch", txs[0].Description)

	require.NoError(t, c.DeleteTransaction(ctx, id))
	err = c.DeleteTransaction(ctx, id)
	assert.True(t, IsStatus(err, http.StatusNotFound))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.MethodDelete, se.Method)
}

func TestCreateWithoutInsertedID(t *testing.T) {
	c, b := newClient(t, staticToken("token-ann"))
	b.OmitInsertedID = true
	_, err := c.CreateTransaction(context.Background(), core.Transaction{Type: core.Income, Category: "Job", Date: "2024-01-01", UserEmail: "a@x.com"})
	assert.ErrorIs(t, err, ErrNotInserted)
}

func TestAdminEndpoints(t *testing.T) {
	ctx := context.Background()
	c, b := newClient(t, staticToken("token-admin"))
	b.SetUsers(
		core.User{ID: "u1", Name: "Ann", Email: "ann@example.com", Role: core.RoleUser},
		core.User{ID: "u2", Name: "Bob", Email: "bob@example.com", Role: core.RoleAdmin},
	)
	b.SetAnalytics(core.MonthlyCount{Month: "Jan", Count: 3})

	users, err := c.Users(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	counts, err := c.UserAnalytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.MonthlyCount{{Month: "Jan", Count: 3}}, counts)

	require.NoError(t, c.SetUserRole(ctx, "u1", core.RoleDemoAdmin))
	assert.Equal(t, core.RoleDemoAdmin, b.Users()[0].Role)

	require.NoError(t, c.DeleteUser(ctx, "u2"))
	assert.Len(t, b.Users(), 1)

	b.Fail(http.MethodGet, "/users", http.StatusInternalServerError)
	_, err = c.Users(ctx)
	assert.True(t, IsStatus(err, http.StatusInternalServerError))
}

func TestNetworkError(t *testing.T) {
	c := New("http://127.0.0.1:1", 500*time.Millisecond, nil, nil)
	_, err := c.IssueToken(context.Background(), "ann@example.com")
	require.Error(t, err)
	var se *StatusError
	assert.False(t, errors.As(err, &se))
}
