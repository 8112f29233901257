package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"finease/internal/api"
	"finease/internal/api/apitest"
	"finease/internal/core"
	"finease/internal/identity/local"
	"finease/internal/prefs"
)

type fixture struct {
	backend  *apitest.Backend
	prefs    *prefs.Prefs
	provider *local.Provider
	store    *Store
}

func newFixture(t *testing.T, setup func(*apitest.Backend, *prefs.Prefs)) *fixture {
	t.Helper()
	b := apitest.NewBackend()
	t.Cleanup(b.Close)

	p := prefs.New(prefs.NewMemoryStore(), nil)
	if setup != nil {
		setup(b, p)
	}
	client := api.New(b.URL, 2*time.Second, p, nil)
	provider := local.New(local.Options{BcryptCost: bcrypt.MinCost})
	resolver := NewResolver(client, p, 2*time.Second, nil)
	store := NewStore(provider, resolver, nil)
	t.Cleanup(func() {
		store.Close()
		resolver.Wait()
	})
	return &fixture{backend: b, prefs: p, provider: provider, store: store}
}

func (f *fixture) register(t *testing.T, email, password string) {
	t.Helper()
	_, err := f.store.CreateAccount(context.Background(), "Ann", email, "", password)
	require.NoError(t, err)
	f.store.Resolver().Wait()
}

func (f *fixture) token(t *testing.T) string {
	t.Helper()
	tok, err := f.prefs.Token(context.Background())
	require.NoError(t, err)
	return tok
}

func TestNoIdentityResolvesToUserAndClearsToken(t *testing.T) {
	f := newFixture(t, func(_ *apitest.Backend, p *prefs.Prefs) {
		require.NoError(t, p.SetToken(context.Background(), "leftover"))
	})

	st := f.store.State()
	assert.Nil(t, st.Identity)
	assert.False(t, st.AuthLoading)
	assert.False(t, st.RoleLoading)
	assert.Equal(t, core.RoleUser, st.Role)
	assert.Empty(t, f.token(t))
	assert.Empty(t, f.backend.Requests())
}

func TestSignInResolvesRoleAndToken(t *testing.T) {
	f := newFixture(t, func(b *apitest.Backend, _ *prefs.Prefs) {
		b.SetRole("ann@example.com", core.RoleAdmin)
	})
	f.register(t, "ann@example.com", "Secret1")

	st := f.store.State()
	require.NotNil(t, st.Identity)
	assert.Equal(t, "Ann", st.Identity.DisplayName)
	assert.Equal(t, core.RoleAdmin, st.Role)
	assert.False(t, st.RoleLoading)
	assert.Equal(t, apitest.TokenFor("ann@example.com"), f.token(t))

	var paths []string
	for _, r := range f.backend.Requests() {
		paths = append(paths, r.Method+" "+r.Path)
	}
	require.GreaterOrEqual(t, len(paths), 3)
	assert.Equal(t, []string{"POST /jwt", "POST /users", "GET /users/role"}, paths[:3])

	_, err := f.store.SignOut(context.Background())
	require.NoError(t, err)
	st = f.store.State()
	assert.Nil(t, st.Identity)
	assert.Equal(t, core.RoleUser, st.Role)
	assert.Empty(t, f.token(t))
}

func TestProfileChangeDoesNotReResolve(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "ann@example.com", "Secret1")
	gen := f.store.Resolver().Generation()

	n, err := f.store.UpdateProfile(context.Background(), "Ann B", "https://img.example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "Profile Updated!", n.Title)
	assert.Equal(t, gen, f.store.Resolver().Generation())
	assert.Equal(t, "Ann B", f.store.State().Identity.DisplayName)
}

func TestWeakPasswordMakesNoCalls(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.store.CreateAccount(context.Background(), "Ann", "ann@example.com", "", "weak")
	var ae *ActionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Weak Password!", ae.Title)
	assert.ErrorIs(t, err, core.ErrWeakPassword)

	_, err = f.provider.SignIn(context.Background(), "ann@example.com", "weak")
	assert.ErrorIs(t, err, local.ErrInvalidCredentials, "account must not exist")
	assert.False(t, f.store.State().AuthLoading)
}

func TestFailedActionsResetLoading(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "ann@example.com", "Secret1")
	_, err := f.store.SignOut(context.Background())
	require.NoError(t, err)

	_, err = f.store.SignIn(context.Background(), "ann@example.com", "Wrong1")
	var ae *ActionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Login Failed!", ae.Title)
	assert.Equal(t, "Invalid email or password.", ae.Text)
	assert.False(t, f.store.State().AuthLoading)

	_, err = f.store.CreateAccount(context.Background(), "Ann", "ann@example.com", "", "Secret1")
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Registration Failed!", ae.Title)

	_, err = f.store.UpdateProfile(context.Background(), "x", "")
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Update Failed!", ae.Title)

	_, err = f.store.FederatedURL("state")
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Google Login Failed!", ae.Title)

	_, err = f.store.SignInFederated(context.Background(), "")
	require.ErrorAs(t, err, &ae)
	assert.False(t, f.store.State().AuthLoading)
}

func TestBackendFailuresLeaveRoleUser(t *testing.T) {
	f := newFixture(t, func(b *apitest.Backend, _ *prefs.Prefs) {
		b.SetRole("ann@example.com", core.RoleAdmin)
		b.Fail(http.MethodGet, "/users/role", http.StatusInternalServerError)
	})
	f.register(t, "ann@example.com", "Secret1")

	st := f.store.State()
	assert.Equal(t, core.RoleUser, st.Role)
	assert.False(t, st.RoleLoading)
}

func TestUpsertFailureStillFetchesRole(t *testing.T) {
	f := newFixture(t, func(b *apitest.Backend, _ *prefs.Prefs) {
		b.SetRole("ann@example.com", core.RoleDemoAdmin)
		b.Fail(http.MethodPost, "/users", http.StatusBadGateway)
	})
	f.register(t, "ann@example.com", "Secret1")
	assert.Equal(t, core.RoleDemoAdmin, f.store.State().Role)
}

func TestTokenExchangeFailure(t *testing.T) {
	f := newFixture(t, func(b *apitest.Backend, _ *prefs.Prefs) {
		b.Fail(http.MethodPost, "/jwt", http.StatusServiceUnavailable)
	})
	f.register(t, "ann@example.com", "Secret1")

	st := f.store.State()
	assert.Equal(t, core.RoleUser, st.Role)
	assert.False(t, st.RoleLoading)
	assert.Empty(t, f.token(t))
	assert.Equal(t, 0, f.backend.Count(http.MethodGet, "/users/role"))
}

// blockRole holds the role lookup for email until release is closed.
func blockRole(b *apitest.Backend, email string) (reached <-chan struct{}, release chan struct{}) {
	r := make(chan struct{})
	rel := make(chan struct{})
	var once sync.Once
	b.Before = func(req *http.Request) {
		if req.URL.Path == "/users/role" && req.URL.Query().Get("email") == email {
			once.Do(func() { close(r) })
			<-rel
		}
	}
	return r, rel
}

func TestStaleResolutionIsDiscarded(t *testing.T) {
	var reached <-chan struct{}
	var release chan struct{}
	f := newFixture(t, func(b *apitest.Backend, _ *prefs.Prefs) {
		b.SetRole("ann@example.com", core.RoleAdmin)
		b.SetRole("bob@example.com", core.RoleDemoAdmin)
		reached, release = blockRole(b, "ann@example.com")
	})
	ctx := context.Background()

	// bob exists before ann's blocked run starts
	_, err := f.provider.CreateAccount(ctx, "bob@example.com", "Secret1")
	require.NoError(t, err)
	f.store.Resolver().Wait()
	_, err = f.store.SignOut(ctx)
	require.NoError(t, err)

	_, err = f.provider.CreateAccount(ctx, "ann@example.com", "Secret1")
	require.NoError(t, err)
	select {
	case <-reached:
	case <-time.After(2 * time.Second):
		t.Fatal("ann's resolution never reached the role lookup")
	}
	assert.True(t, f.store.State().RoleLoading)

	_, err = f.store.SignIn(ctx, "bob@example.com", "Secret1")
	require.NoError(t, err)

	// wait for bob's run while ann's is still parked
	require.Eventually(t, func() bool {
		st := f.store.State()
		return st.Role == core.RoleDemoAdmin && !st.RoleLoading
	}, 2*time.Second, 10*time.Millisecond)

	close(release)
	f.store.Resolver().Wait()

	st := f.store.State()
	assert.Equal(t, "bob@example.com", st.Email())
	assert.Equal(t, core.RoleDemoAdmin, st.Role)
	assert.False(t, st.RoleLoading)
	assert.Equal(t, apitest.TokenFor("bob@example.com"), f.token(t))
}

func TestSignOutDuringResolution(t *testing.T) {
	var reached <-chan struct{}
	var release chan struct{}
	f := newFixture(t, func(b *apitest.Backend, _ *prefs.Prefs) {
		b.SetRole("ann@example.com", core.RoleAdmin)
		reached, release = blockRole(b, "ann@example.com")
	})
	ctx := context.Background()

	_, err := f.provider.CreateAccount(ctx, "ann@example.com", "Secret1")
	require.NoError(t, err)
	<-reached

	_, err = f.store.SignOut(ctx)
	require.NoError(t, err)
	close(release)
	f.store.Resolver().Wait()

	st := f.store.State()
	assert.Nil(t, st.Identity)
	assert.Equal(t, core.RoleUser, st.Role)
	assert.False(t, st.RoleLoading)
	assert.Empty(t, f.token(t))
}

func TestSubscribersAndClose(t *testing.T) {
	f := newFixture(t, nil)

	var mu sync.Mutex
	var states []State
	unsubscribe := f.store.Subscribe(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})
	f.register(t, "ann@example.com", "Secret1")
	unsubscribe()

	mu.Lock()
	n := len(states)
	sawLoading := false
	for _, s := range states {
		if s.AuthLoading {
			sawLoading = true
		}
	}
	mu.Unlock()
	assert.Positive(t, n)
	assert.True(t, sawLoading)

	f.store.Close()
	require.NoError(t, f.provider.SignOut(context.Background()))
	assert.NotNil(t, f.store.State().Identity, "closed store ignores provider changes")
}

func TestActionErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := error(&ActionError{Title: "Update Failed!", Text: "Try again later.", Err: base})
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "Update Failed! Try again later.: boom", err.Error())
}
