// Package ledger manages the signed-in user's transaction list: loading it
// from the backend, searching, sorting, paging and the create, update and
// delete round trips.
package ledger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"finease/internal/core"
	"finease/internal/listview"
	"finease/internal/log"
)

// Sort keys.
const (
	SortDateDesc     = "dateDesc"
	SortDateAsc      = "dateAsc"
	SortAmountDesc   = "amountDesc"
	SortAmountAsc    = "amountAsc"
	SortCategoryAsc  = "categoryAsc"
	SortCategoryDesc = "categoryDesc"
	SortTypeAsc      = "typeAsc"
	SortTypeDesc     = "typeDesc"
)

// PageSizes are the page sizes offered by the list.
var PageSizes = []int{6, 9, 12}

const DefaultPageSize = 6

var (
	// ErrActionFailed wraps every backend failure of a mutation.
	ErrActionFailed = errors.New("action failed")
	ErrNotConfirmed = errors.New("deletion not confirmed")
	ErrNotFound     = errors.New("transaction not found")
)

// Backend is the part of the REST API the controller uses.
type Backend interface {
	Transactions(ctx context.Context, email string) ([]core.Transaction, error)
	CreateTransaction(ctx context.Context, t core.Transaction) (string, error)
	UpdateTransaction(ctx context.Context, id string, u core.TransactionUpdate) error
	DeleteTransaction(ctx context.Context, id string) error
}

// Publisher receives an event after each confirmed mutation.
type Publisher interface {
	PublishActivity(ctx context.Context, a core.Activity) error
}

// Options tune a Controller. Zero values are fine.
type Options struct {
	Publisher Publisher
	// OnChange runs after a confirmed mutation with the owner's email.
	OnChange func(email string)
	Logger   *log.Logger
}

var stripTags = bluemonday.StrictPolicy()

func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(stripTags.Sanitize(s)))
}

func haystack(t core.Transaction) string {
	return strings.Join([]string{string(t.Type), t.Category, t.Description, t.Date, t.SearchAmount()}, " ")
}

func byDate(a, b core.Transaction) int { return cmp.Compare(a.Timestamp(), b.Timestamp()) }

func byAmount(a, b core.Transaction) int { return cmp.Compare(a.Amount.Float64(), b.Amount.Float64()) }

func byCategory(a, b core.Transaction) int { return listview.CompareText(a.Category, b.Category) }

func byType(a, b core.Transaction) int {
	return listview.CompareText(string(a.Type), string(b.Type))
}

// Schema is the list behaviour of the transaction table.
func Schema() listview.Schema[core.Transaction] {
	return listview.Schema[core.Transaction]{
		Haystack: haystack,
		Sorts: map[string]func(a, b core.Transaction) int{
			SortDateDesc:     listview.Reverse(byDate),
			SortDateAsc:      byDate,
			SortAmountDesc:   listview.Reverse(byAmount),
			SortAmountAsc:    byAmount,
			SortCategoryAsc:  byCategory,
			SortCategoryDesc: listview.Reverse(byCategory),
			SortTypeAsc:      byType,
			SortTypeDesc:     listview.Reverse(byType),
		},
		DefaultSort: SortDateDesc,
		PageSizes:   PageSizes,
		DefaultSize: DefaultPageSize,
	}
}

// Form is the raw input of the add and edit forms.
type Form struct {
	Type        string
	Category    string
	Amount      string
	Description string
	Date        string
}

// Parse validates the form. No backend call is made for invalid input.
func (f Form) Parse() (core.TransactionUpdate, error) {
	amount, err := core.ParseAmount(f.Amount)
	if err != nil {
		return core.TransactionUpdate{}, err
	}
	u := core.TransactionUpdate{
		Type:        core.TxType(strings.ToLower(strings.TrimSpace(f.Type))),
		Category:    strings.TrimSpace(f.Category),
		Amount:      amount,
		Description: cleanText(f.Description),
		Date:        strings.TrimSpace(f.Date),
	}
	if err := u.Validate(); err != nil {
		return core.TransactionUpdate{}, err
	}
	return u, nil
}

// View is what the list page renders.
type View struct {
	listview.Page[core.Transaction]
	Email   string
	Loading bool
}

// Controller holds one user's transactions. Safe for concurrent use.
type Controller struct {
	backend   Backend
	publisher Publisher
	onChange  func(string)
	logger    *log.Logger

	mu      sync.Mutex
	list    *listview.List[core.Transaction]
	email   string
	loading bool
}

func NewController(backend Backend, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Controller{
		backend:   backend,
		publisher: opts.Publisher,
		onChange:  opts.OnChange,
		logger:    logger.WithComponent(log.ComponentLedger),
		list:      listview.New(Schema()),
	}
}

// Load fetches every transaction of email. An empty email clears the list
// without a request. On failure the current list is kept.
func (c *Controller) Load(ctx context.Context, email string) error {
	if email == "" {
		c.mu.Lock()
		c.email = ""
		c.list.SetItems(nil)
		c.mu.Unlock()
		return nil
	}

	c.setLoading(true)
	defer c.setLoading(false)

	txs, err := c.backend.Transactions(ctx, email)
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to load transactions",
			log.FieldEmail, email, log.FieldOperation, log.OpLoad,
			log.FieldError, err, log.FieldErrorType, log.ErrorTypeBackend)
		return fmt.Errorf("load transactions: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.email = email
	c.list.SetItems(txs)
	c.logger.DebugContext(ctx, "Transactions loaded", log.FieldEmail, email, log.FieldCount, len(txs))
	return nil
}

func (c *Controller) setLoading(v bool) {
	c.mu.Lock()
	c.loading = v
	c.mu.Unlock()
}

// Loaded reports whether the list currently holds email's transactions.
func (c *Controller) Loaded(email string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return email != "" && c.email == email
}

func (c *Controller) SetQuery(q string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list.SetQuery(q)
}

func (c *Controller) SetSort(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list.SetSort(key)
}

func (c *Controller) SetPageSize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list.SetPageSize(n)
}

func (c *Controller) SetPage(p int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list.SetPage(p)
}

// View returns the current page.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{Page: c.list.View(), Email: c.email, Loading: c.loading}
}

// Items returns every loaded transaction.
func (c *Controller) Items() []core.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Items()
}

// Get returns a loaded transaction by id.
func (c *Controller) Get(id string) (core.Transaction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Find(func(t core.Transaction) bool { return t.ID == id })
}

// Create validates the form and stores a new transaction owned by owner.
// The list is not refreshed; the new record shows up on the next Load.
func (c *Controller) Create(ctx context.Context, owner core.Identity, form Form) (core.Transaction, error) {
	u, err := form.Parse()
	if err != nil {
		return core.Transaction{}, err
	}
	t := u.Apply(core.Transaction{UserEmail: owner.Email, UserName: owner.DisplayName})
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	id, err := c.backend.CreateTransaction(ctx, t)
	if err != nil {
		c.logFailure(ctx, log.OpCreate, t, err)
		return core.Transaction{}, fmt.Errorf("%w: %w", ErrActionFailed, err)
	}
	t.ID = id

	c.logger.InfoContext(ctx, "Transaction created",
		log.NewFields().WithOperation(log.OpCreate).
			WithTransaction(t.ID, string(t.Type), t.Category, t.Amount.Float64()).ToSlice()...)
	c.confirmed(ctx, core.ActivityTransactionCreated, t.ID, owner.Email, string(t.Type)+" "+t.Category)
	return t, nil
}

// Update sends the form to the backend and, once accepted, merges it into
// the local copy.
func (c *Controller) Update(ctx context.Context, id string, form Form) (core.Transaction, error) {
	current, ok := c.Get(id)
	if !ok {
		return core.Transaction{}, ErrNotFound
	}
	u, err := form.Parse()
	if err != nil {
		return core.Transaction{}, err
	}

	if err := c.backend.UpdateTransaction(ctx, id, u); err != nil {
		c.logFailure(ctx, log.OpUpdate, current, err)
		return core.Transaction{}, fmt.Errorf("%w: %w", ErrActionFailed, err)
	}

	c.mu.Lock()
	c.list.Replace(func(t core.Transaction) bool { return t.ID == id }, u.Apply)
	c.mu.Unlock()

	updated := u.Apply(current)
	c.confirmed(ctx, core.ActivityTransactionUpdated, id, current.UserEmail, string(u.Type)+" "+u.Category)
	return updated, nil
}

// Delete removes a transaction. The caller must pass confirmed=true after
// the user acknowledged the irreversible warning.
func (c *Controller) Delete(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	current, ok := c.Get(id)
	if !ok {
		return ErrNotFound
	}

	if err := c.backend.DeleteTransaction(ctx, id); err != nil {
		c.logFailure(ctx, log.OpDelete, current, err)
		return fmt.Errorf("%w: %w", ErrActionFailed, err)
	}

	c.mu.Lock()
	c.list.Remove(func(t core.Transaction) bool { return t.ID == id })
	c.mu.Unlock()

	c.confirmed(ctx, core.ActivityTransactionDeleted, id, current.UserEmail, "")
	return nil
}

func (c *Controller) logFailure(ctx context.Context, op string, t core.Transaction, err error) {
	c.logger.WarnContext(ctx, "Transaction mutation failed",
		log.NewFields().WithOperation(op).
			WithTransaction(t.ID, string(t.Type), t.Category, t.Amount.Float64()).
			WithError(err, log.ErrorTypeBackend).ToSlice()...)
}

func (c *Controller) confirmed(ctx context.Context, kind core.ActivityKind, subject, actor, detail string) {
	if c.onChange != nil {
		c.onChange(actor)
	}
	if c.publisher == nil {
		return
	}
	a := core.Activity{
		ID:      uuid.NewString(),
		Kind:    kind,
		Subject: subject,
		Actor:   actor,
		Detail:  detail,
		At:      time.Now().UTC(),
	}
	if err := c.publisher.PublishActivity(ctx, a); err != nil {
		c.logger.WarnContext(ctx, "Failed to publish activity", log.FieldActivity, kind, log.FieldError, err)
	}
}
