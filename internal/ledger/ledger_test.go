package ledger

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finease/internal/api"
	"finease/internal/api/apitest"
	"finease/internal/core"
	"finease/internal/listview"
)

type token string

func (t token) Token(context.Context) (string, error) { return string(t), nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.Activity
}

func (p *recordingPublisher) PublishActivity(_ context.Context, a core.Activity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, a)
	return nil
}

const ann = "ann@example.com"

func setup(t *testing.T, txs ...core.Transaction) (*Controller, *apitest.Backend, *recordingPublisher) {
	t.Helper()
	b := apitest.NewBackend()
	t.Cleanup(b.Close)
	b.AddTransactions(txs...)
	pub := &recordingPublisher{}
	c := NewController(api.New(b.URL, 2*time.Second, token("token-ann"), nil), Options{Publisher: pub})
	return c, b, pub
}

func tx(typ core.TxType, category string, amount float64, date string) core.Transaction {
	return core.Transaction{Type: typ, Category: category, Amount: core.Amount(amount), Date: date, UserEmail: ann}
}

func validForm() Form {
	return Form{Type: "expense", Category: "Food", Amount: "12,50", Description: "Lunch", Date: "2024-03-01"}
}

func TestLoadEmptyEmailMakesNoRequest(t *testing.T) {
	c, b, _ := setup(t, tx(core.Income, "Job", 1, "2024-01-01"))
	require.NoError(t, c.Load(context.Background(), ""))
	assert.Empty(t, b.Requests())
	assert.Equal(t, 0, c.View().Total)
}

func TestLoadAndAggregateScenario(t *testing.T) {
	c, _, _ := setup(t,
		tx(core.Income, "Job", 1000, "2024-01-05"),
		tx(core.Expense, "Food", 200, "2024-01-10"),
	)
	require.NoError(t, c.Load(context.Background(), ann))
	v := c.View()
	assert.Equal(t, 2, v.Total)
	assert.False(t, v.Loading)
	assert.True(t, c.Loaded(ann))
	// default order is newest first
	assert.Equal(t, "2024-01-10", v.Items[0].Date)
}

func TestLoadFailureKeepsList(t *testing.T) {
	c, b, _ := setup(t, tx(core.Income, "Job", 1, "2024-01-01"))
	ctx := context.Background()
	require.NoError(t, c.Load(ctx, ann))

	b.Fail(http.MethodGet, "/transactions", http.StatusInternalServerError)
	err := c.Load(ctx, ann)
	require.Error(t, err)
	assert.True(t, api.IsStatus(err, http.StatusInternalServerError))
	assert.Equal(t, 1, c.View().Total)
	assert.False(t, c.View().Loading)
}

func TestSortKeys(t *testing.T) {
	c, _, _ := setup(t,
		tx(core.Expense, "Food", 50, "2024-02-01"),
		tx(core.Income, "Job", 900, "2024-01-01"),
		tx(core.Expense, "Education", 5, "not-a-date"),
	)
	require.NoError(t, c.Load(context.Background(), ann))

	first := func(key string) core.Transaction {
		c.SetSort(key)
		return c.View().Items[0]
	}
	assert.Equal(t, "2024-02-01", first(SortDateDesc).Date)
	assert.Equal(t, "not-a-date", first(SortDateAsc).Date, "unparseable dates sort as the epoch")
	assert.Equal(t, core.Amount(900), first(SortAmountDesc).Amount)
	assert.Equal(t, core.Amount(5), first(SortAmountAsc).Amount)
	assert.Equal(t, "Education", first(SortCategoryAsc).Category)
	assert.Equal(t, "Job", first(SortCategoryDesc).Category)
	assert.Equal(t, core.Expense, first(SortTypeAsc).Type)
	assert.Equal(t, core.Income, first(SortTypeDesc).Type)
}

func TestDateSortReversal(t *testing.T) {
	var txs []core.Transaction
	for i := 1; i <= 9; i++ {
		txs = append(txs, tx(core.Expense, "Food", float64(i), fmt.Sprintf("2024-01-%02d", 10-i)))
	}
	schema := Schema()
	desc := listview.Sort(txs, schema.Sorts[SortDateDesc])
	asc := listview.Sort(txs, schema.Sorts[SortDateAsc])
	for i := range asc {
		assert.Equal(t, asc[i], desc[len(desc)-1-i])
	}
	assert.Equal(t, asc, listview.Sort(asc, schema.Sorts[SortDateAsc]))
}

func TestSearchMatchesAnyField(t *testing.T) {
	c, _, _ := setup(t,
		core.Transaction{Type: core.Expense, Category: "Food", Amount: 42.5, Description: "Pizza night", Date: "2024-03-02", UserEmail: ann},
		tx(core.Income, "Job", 1000, "2024-01-05"),
	)
	require.NoError(t, c.Load(context.Background(), ann))

	for _, q := range []string{"PIZZA", "food", "42.5", "2024-03", "expense"} {
		c.SetQuery(q)
		v := c.View()
		require.Len(t, v.Items, 1, q)
		assert.Equal(t, "Food", v.Items[0].Category)
		assert.Equal(t, 2, v.Total)
		assert.Equal(t, 1, v.Matched)
	}
	c.SetQuery("")
	assert.Len(t, c.View().Items, 2)
}

func TestSearchMatchesStringAmountText(t *testing.T) {
	legacy := tx(core.Income, "Job", 1000.5, "2024-01-05")
	legacy.AmountText = "1000.50"
	c, _, _ := setup(t, legacy, tx(core.Expense, "Food", 1000.5, "2024-01-06"))
	require.NoError(t, c.Load(context.Background(), ann))

	c.SetQuery("1000.50")
	v := c.View()
	require.Len(t, v.Items, 1)
	assert.Equal(t, "Job", v.Items[0].Category)
	assert.Equal(t, core.Amount(1000.5), v.Items[0].Amount)

	c.SetQuery("1000.5")
	assert.Len(t, c.View().Items, 2)
}

func TestCreateValidatesBeforeNetwork(t *testing.T) {
	c, b, pub := setup(t)
	owner := core.Identity{Email: ann, DisplayName: "Ann"}
	ctx := context.Background()

	bad := validForm()
	bad.Amount = "abc"
	_, err := c.Create(ctx, owner, bad)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	bad = validForm()
	bad.Category = "Job"
	_, err = c.Create(ctx, owner, bad)
	assert.ErrorIs(t, err, core.ErrInvalidCategory)

	_, err = c.Create(ctx, core.Identity{}, validForm())
	assert.ErrorIs(t, err, core.ErrEmptyEmail)

	assert.Empty(t, b.Requests())
	assert.Empty(t, pub.events)
}

func TestCreate(t *testing.T) {
	c, b, pub := setup(t)
	var changed []string
	c.onChange = func(email string) { changed = append(changed, email) }

	form := validForm()
	form.Description = `<script>alert(1)</script>Lunch & coffee`
	got, err := c.Create(context.Background(), core.Identity{Email: ann, DisplayName: "Ann"}, form)
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, core.Amount(12.5), got.Amount)
	assert.Equal(t, "Ann", got.UserName)
	assert.Equal(t, "Lunch & coffee", got.Description)

	stored := b.Transactions()
	require.Len(t, stored, 1)
	assert.Equal(t, got.ID, stored[0].ID)

	// no optimistic insert
	assert.Equal(t, 0, c.View().Total)
	require.Len(t, pub.events, 1)
	assert.Equal(t, core.ActivityTransactionCreated, pub.events[0].Kind)
	assert.Equal(t, []string{ann}, changed)
}

func TestCreateFailures(t *testing.T) {
	c, b, pub := setup(t)
	owner := core.Identity{Email: ann}

	b.OmitInsertedID = true
	_, err := c.Create(context.Background(), owner, validForm())
	assert.ErrorIs(t, err, ErrActionFailed)
	assert.ErrorIs(t, err, api.ErrNotInserted)
	assert.Empty(t, pub.events)
}

func TestUpdateMergesOnSuccess(t *testing.T) {
	c, b, pub := setup(t, tx(core.Income, "Job", 1000, "2024-01-05"))
	ctx := context.Background()
	require.NoError(t, c.Load(ctx, ann))
	id := c.View().Items[0].ID

	got, err := c.Update(ctx, id, validForm())
	require.NoError(t, err)
	assert.Equal(t, core.Expense, got.Type)

	local, ok := c.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Food", local.Category)
	assert.Equal(t, ann, local.UserEmail)
	assert.Equal(t, "Food", b.Transactions()[0].Category)
	assert.Len(t, pub.events, 1)

	b.Fail(http.MethodPatch, "/transactions/"+id, http.StatusInternalServerError)
	form := validForm()
	form.Category = "Health"
	_, err = c.Update(ctx, id, form)
	assert.ErrorIs(t, err, ErrActionFailed)
	local, _ = c.Get(id)
	assert.Equal(t, "Food", local.Category, "failed update leaves local state")

	_, err = c.Update(ctx, "missing", validForm())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	c, b, _ := setup(t, tx(core.Income, "Job", 1, "2024-01-01"))
	ctx := context.Background()
	require.NoError(t, c.Load(ctx, ann))
	id := c.View().Items[0].ID

	assert.ErrorIs(t, c.Delete(ctx, id, false), ErrNotConfirmed)
	assert.Equal(t, 0, b.Count(http.MethodDelete, "/transactions/"+id))
	assert.Equal(t, 1, c.View().Total)
}

func TestDeleteReclampsPage(t *testing.T) {
	var txs []core.Transaction
	for i := 1; i <= 7; i++ {
		txs = append(txs, tx(core.Expense, "Food", float64(i), fmt.Sprintf("2024-01-%02d", i)))
	}
	c, b, pub := setup(t, txs...)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx, ann))

	c.SetPageSize(6)
	c.SetPage(2)
	v := c.View()
	require.Equal(t, 2, v.Page)
	require.Len(t, v.Items, 1)

	require.NoError(t, c.Delete(ctx, v.Items[0].ID, true))
	v = c.View()
	assert.Equal(t, 6, v.Total)
	assert.Equal(t, 1, v.TotalPages)
	assert.Equal(t, 1, v.Page)
	assert.Len(t, b.Transactions(), 6)
	require.Len(t, pub.events, 1)
	assert.Equal(t, core.ActivityTransactionDeleted, pub.events[0].Kind)
}

func TestDeleteFailureKeepsItem(t *testing.T) {
	c, b, _ := setup(t, tx(core.Income, "Job", 1, "2024-01-01"))
	ctx := context.Background()
	require.NoError(t, c.Load(ctx, ann))
	id := c.View().Items[0].ID

	b.Fail(http.MethodDelete, "/transactions/"+id, http.StatusForbidden)
	err := c.Delete(ctx, id, true)
	assert.ErrorIs(t, err, ErrActionFailed)
	assert.Equal(t, 1, c.View().Total)
}

func TestStateChangesResetPage(t *testing.T) {
	var txs []core.Transaction
	for i := 1; i <= 30; i++ {
		txs = append(txs, tx(core.Expense, "Food", float64(i), "2024-01-01"))
	}
	c, _, _ := setup(t, txs...)
	require.NoError(t, c.Load(context.Background(), ann))

	for name, change := range map[string]func(){
		"query":    func() { c.SetQuery("food") },
		"sort":     func() { c.SetSort(SortAmountAsc) },
		"pageSize": func() { c.SetPageSize(12) },
	} {
		c.SetPage(3)
		require.Equal(t, 3, c.View().Page)
		change()
		assert.Equal(t, 1, c.View().Page, name)
	}
}

func TestFormParse(t *testing.T) {
	u, err := Form{Type: " Income ", Category: "Business", Amount: "10", Date: "2024-05-05", Description: "<b>bonus</b>"}.Parse()
	require.NoError(t, err)
	assert.Equal(t, core.Income, u.Type)
	assert.Equal(t, "bonus", u.Description)

	_, err = Form{Type: "income", Category: "Business", Amount: "10", Date: "05/05/2024"}.Parse()
	assert.ErrorIs(t, err, core.ErrInvalidDate)

	_, err = Form{Type: "income", Category: "Business", Amount: "10", Date: "2024-05-05", Description: strings.Repeat("x", 201)}.Parse()
	assert.ErrorIs(t, err, core.ErrDescriptionLimit)
}
